// Package notifier abstracts delivery of escalation events to supervisors and
// requesters. The console implementation stands in for a real SMS/push
// channel; Telegram and webhook implementations can be layered in through the
// same interface without touching the core services.
package notifier

import (
	"context"
	"errors"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
)

// Notifier receives the three escalation event kinds. Implementations own
// actual delivery; a returned error means the event was not delivered, which
// never rolls back the state transition that produced it.
type Notifier interface {
	// NewEscalation tells the supervisor a question is waiting.
	NewEscalation(ctx context.Context, req *models.HelpRequest) error
	// AnswerReady delivers the supervisor's answer back to the requester.
	AnswerReady(ctx context.Context, req *models.HelpRequest, answer string) error
	// TimedOut tells the requester nobody answered in time.
	TimedOut(ctx context.Context, req *models.HelpRequest) error
}

// Multi fans an event out to every configured channel and reports the
// combined delivery result.
type Multi []Notifier

func (m Multi) NewEscalation(ctx context.Context, req *models.HelpRequest) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NewEscalation(ctx, req))
	}
	return errors.Join(errs...)
}

func (m Multi) AnswerReady(ctx context.Context, req *models.HelpRequest, answer string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.AnswerReady(ctx, req, answer))
	}
	return errors.Join(errs...)
}

func (m Multi) TimedOut(ctx context.Context, req *models.HelpRequest) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TimedOut(ctx, req))
	}
	return errors.Join(errs...)
}
