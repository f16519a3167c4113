package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/notifier"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/repository"
)

// DefaultResolverID is used when the caller does not identify the supervisor.
const DefaultResolverID = "supervisor-1"

// EscalationService owns the help request lifecycle: pending -> resolved or
// pending -> timed_out, never back. It is the only component that mutates
// help requests; knowledge entries are only touched through the knowledge
// service's ingestion.
type EscalationService interface {
	Create(ctx context.Context, input models.CreateHelpRequestInput) (*models.HelpRequest, error)
	AttachRequesterHandle(ctx context.Context, id, handle string) (*models.HelpRequest, error)
	Resolve(ctx context.Context, id, answer, resolverID string) (*models.HelpRequest, error)
	ForceTimeout(ctx context.Context, id string) (*models.HelpRequest, bool, error)
	ListExpired(ctx context.Context) ([]*models.HelpRequest, error)
	ListPending(ctx context.Context) ([]*models.HelpRequest, error)
	ListTerminal(ctx context.Context, limit int) ([]*models.HelpRequest, error)
	Get(ctx context.Context, id string) (*models.HelpRequest, error)
	Stats(ctx context.Context) (*models.RequestStats, error)
}

type escalationService struct {
	repo            repository.HelpRequestRepository
	knowledge       KnowledgeService
	notifier        notifier.Notifier
	logger          *zap.Logger
	timeout         time.Duration
	maxContextBytes int
	now             func() time.Time
}

// NewEscalationService creates the escalation service. timeout is the TTL
// applied to every new request's deadline.
func NewEscalationService(
	repo repository.HelpRequestRepository,
	knowledge KnowledgeService,
	n notifier.Notifier,
	logger *zap.Logger,
	timeout time.Duration,
	maxContextBytes int,
) EscalationService {
	return &escalationService{
		repo:            repo,
		knowledge:       knowledge,
		notifier:        n,
		logger:          logger,
		timeout:         timeout,
		maxContextBytes: maxContextBytes,
		now:             time.Now,
	}
}

func (s *escalationService) Create(ctx context.Context, input models.CreateHelpRequestInput) (*models.HelpRequest, error) {
	if input.Question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}
	if input.CorrelationID == "" {
		return nil, fmt.Errorf("%w: correlation_id is required", ErrValidation)
	}

	// A retry with the same correlation id while the escalation is still
	// pending returns the existing request instead of double-escalating.
	existing, err := s.repo.GetPendingByCorrelationID(input.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing escalation: %w", err)
	}
	if existing != nil {
		s.logger.Info("Returning existing pending request for correlation id",
			zap.String("correlation_id", input.CorrelationID),
			zap.String("request_id", existing.ID),
		)
		return existing, nil
	}

	// The context bound keeps the most recent part of the conversation, so
	// an over-long transcript loses its oldest turns first. The cut advances
	// to the next rune start so a multi-byte rune is never split.
	snapshot := input.Context
	if len(snapshot) > s.maxContextBytes {
		cut := len(snapshot) - s.maxContextBytes
		for cut < len(snapshot) && !utf8.RuneStart(snapshot[cut]) {
			cut++
		}
		snapshot = snapshot[cut:]
	}

	now := s.now()
	req := &models.HelpRequest{
		ID:              uuid.NewString(),
		RequesterHandle: input.RequesterHandle,
		Question:        input.Question,
		Context:         snapshot,
		CorrelationID:   input.CorrelationID,
		Status:          models.StatusPending,
		CreatedAt:       now,
		DeadlineAt:      now.Add(s.timeout),
	}

	if err := s.repo.Create(req); err != nil {
		if errors.Is(err, repository.ErrDuplicatePendingCorrelation) {
			// A concurrent retry won the insert race; hand back its request.
			winner, ferr := s.repo.GetPendingByCorrelationID(input.CorrelationID)
			if ferr != nil {
				return nil, fmt.Errorf("failed to fetch concurrent escalation: %w", ferr)
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("failed to create help request: %w", err)
	}

	s.logger.Info("Help request created",
		zap.String("request_id", req.ID),
		zap.String("question", req.Question),
		zap.Time("deadline_at", req.DeadlineAt),
	)

	if err := s.notifier.NewEscalation(ctx, req); err != nil {
		// The request is durably recorded either way.
		s.logger.Error("Failed to notify supervisor of new escalation",
			zap.String("request_id", req.ID), zap.Error(err))
	}

	return req, nil
}

// AttachRequesterHandle fills in the requester's contact handle if it is
// still unknown. Attaching to a request that already has one is a no-op so a
// multi-turn conversation never prompts the requester twice.
func (s *escalationService) AttachRequesterHandle(ctx context.Context, id, handle string) (*models.HelpRequest, error) {
	if handle == "" {
		return nil, fmt.Errorf("%w: requester_handle is required", ErrValidation)
	}

	req, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get help request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: help request %s", ErrNotFound, id)
	}

	if req.RequesterHandle != "" {
		return req, nil
	}

	if err := s.repo.SetRequesterHandle(id, handle); err != nil {
		return nil, fmt.Errorf("failed to set requester handle: %w", err)
	}
	req.RequesterHandle = handle

	return req, nil
}

func (s *escalationService) Resolve(ctx context.Context, id, answer, resolverID string) (*models.HelpRequest, error) {
	if answer == "" {
		return nil, fmt.Errorf("%w: answer is required", ErrValidation)
	}
	if resolverID == "" {
		resolverID = DefaultResolverID
	}

	req, err := s.repo.MarkResolved(id, answer, resolverID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve help request: %w", err)
	}
	if req == nil {
		// The conditional update matched nothing: either the id is unknown
		// or the request already left pending (e.g. the sweeper won).
		current, err := s.repo.GetByID(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get help request: %w", err)
		}
		if current == nil {
			return nil, fmt.Errorf("%w: help request %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: help request %s is %s", ErrInvalidState, id, current.Status)
	}

	s.logger.Info("Help request resolved",
		zap.String("request_id", req.ID),
		zap.String("resolver_id", resolverID),
	)

	// Learn the answer. The resolution stays committed even if learning
	// fails; the missing learned_entry_id is the follow-up signal.
	entry, err := s.knowledge.Ingest(ctx, req.Question, answer, req.ID)
	if err != nil {
		s.logger.Error("Failed to ingest resolved answer into knowledge base",
			zap.String("request_id", req.ID), zap.Error(err))
	} else {
		if err := s.repo.SetLearnedEntryRef(req.ID, entry.ID); err != nil {
			s.logger.Error("Failed to record learned entry ref",
				zap.String("request_id", req.ID), zap.Error(err))
		} else {
			req.LearnedEntryID = &entry.ID
		}
	}

	// Deliver the answer back to the requester. Delivery failure flags the
	// request for manual follow-up instead of rolling back the resolution.
	if err := s.notifier.AnswerReady(ctx, req, answer); err != nil {
		s.logger.Error("Failed to deliver answer to requester",
			zap.String("request_id", req.ID), zap.Error(err))
	} else {
		if err := s.repo.SetDeliveryConfirmed(req.ID, true); err != nil {
			s.logger.Error("Failed to mark delivery confirmed",
				zap.String("request_id", req.ID), zap.Error(err))
		} else {
			req.DeliveryConfirmed = true
		}
	}

	return req, nil
}

// ForceTimeout transitions the request to timed_out only if it is still
// pending. A request that was resolved in the same instant is left alone and
// reported as not transitioned, which makes sweeps safe to re-run.
func (s *escalationService) ForceTimeout(ctx context.Context, id string) (*models.HelpRequest, bool, error) {
	transitioned, err := s.repo.MarkTimedOut(id, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("failed to time out help request: %w", err)
	}
	if !transitioned {
		return nil, false, nil
	}

	req, err := s.repo.GetByID(id)
	if err != nil {
		return nil, true, fmt.Errorf("failed to get help request after timeout: %w", err)
	}

	s.logger.Info("Help request timed out", zap.String("request_id", id))
	return req, true, nil
}

func (s *escalationService) ListExpired(ctx context.Context) ([]*models.HelpRequest, error) {
	return s.repo.ListExpired(s.now())
}

func (s *escalationService) ListPending(ctx context.Context) ([]*models.HelpRequest, error) {
	return s.repo.ListPending()
}

func (s *escalationService) ListTerminal(ctx context.Context, limit int) ([]*models.HelpRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListTerminal(limit)
}

func (s *escalationService) Get(ctx context.Context, id string) (*models.HelpRequest, error) {
	req, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get help request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: help request %s", ErrNotFound, id)
	}
	return req, nil
}

func (s *escalationService) Stats(ctx context.Context) (*models.RequestStats, error) {
	counts, err := s.repo.CountByStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to count help requests: %w", err)
	}

	kbSize, err := s.knowledge.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count knowledge entries: %w", err)
	}

	stats := &models.RequestStats{
		Pending:           counts[models.StatusPending],
		Resolved:          counts[models.StatusResolved],
		TimedOut:          counts[models.StatusTimedOut],
		KnowledgeBaseSize: kbSize,
	}
	stats.Total = stats.Pending + stats.Resolved + stats.TimedOut

	return stats, nil
}
