// Package sweeper expires pending help requests whose deadline has elapsed.
package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/notifier"
)

// Lifecycle is the slice of the escalation service the sweeper needs.
type Lifecycle interface {
	ListExpired(ctx context.Context) ([]*models.HelpRequest, error)
	ForceTimeout(ctx context.Context, id string) (*models.HelpRequest, bool, error)
}

// Sweeper periodically forces timed-out transitions on expired pending
// requests. It keeps no state of its own: every tick re-reads the store, and
// ForceTimeout is conditional on the request still being pending, so ticks
// are idempotent and safe to re-run after a crash.
type Sweeper struct {
	lifecycle Lifecycle
	notifier  notifier.Notifier
	logger    *zap.Logger
	interval  time.Duration

	// Guards against overlapping ticks: a tick still running when the next
	// fires causes the new one to be skipped, not queued.
	tickMu sync.Mutex
}

// New creates a sweeper with the given cadence.
func New(lifecycle Lifecycle, n notifier.Notifier, logger *zap.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		lifecycle: lifecycle,
		notifier:  n,
		logger:    logger,
		interval:  interval,
	}
}

// Run starts the periodic sweep until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Expiry sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			go s.Sweep(ctx)
		}
	}
}

// Sweep runs one scan-and-timeout pass and returns how many requests it
// transitioned. A pass that starts while another is still running returns
// immediately; the in-flight pass or the next tick will pick the work up.
// Requests are processed independently: a failure on one is logged and does
// not block the rest, and storage errors leave the batch for the next tick
// rather than crashing the process.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if !s.tickMu.TryLock() {
		s.logger.Warn("Previous sweep still running, skipping")
		return 0
	}
	defer s.tickMu.Unlock()

	expired, err := s.lifecycle.ListExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to list expired requests, will retry next tick", zap.Error(err))
		return 0
	}

	if len(expired) == 0 {
		return 0
	}

	s.logger.Info("Processing expired help requests", zap.Int("count", len(expired)))

	transitioned := 0
	for _, candidate := range expired {
		req, ok, err := s.lifecycle.ForceTimeout(ctx, candidate.ID)
		if err != nil {
			s.logger.Error("Failed to time out request",
				zap.String("request_id", candidate.ID), zap.Error(err))
			continue
		}
		if !ok {
			// A supervisor resolved it between the scan and the
			// transition; nothing to do.
			continue
		}
		transitioned++

		if err := s.notifier.TimedOut(ctx, req); err != nil {
			s.logger.Error("Failed to send timeout notification",
				zap.String("request_id", req.ID), zap.Error(err))
		}
	}

	return transitioned
}
