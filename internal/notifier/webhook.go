package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
)

// Webhook posts escalation events to an external delivery service as JSON.
// A non-2xx response counts as a delivery failure.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// webhookEvent is the wire shape sent to the delivery endpoint.
type webhookEvent struct {
	Kind            string `json:"kind"` // "new_escalation", "answer_ready", "timed_out"
	RequestID       string `json:"request_id"`
	RequesterHandle string `json:"requester_handle"`
	Question        string `json:"question"`
	Answer          string `json:"answer,omitempty"`
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, logger *zap.Logger) *Webhook {
	return &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (w *Webhook) NewEscalation(ctx context.Context, req *models.HelpRequest) error {
	return w.post(ctx, webhookEvent{
		Kind:            "new_escalation",
		RequestID:       req.ID,
		RequesterHandle: req.RequesterHandle,
		Question:        req.Question,
	})
}

func (w *Webhook) AnswerReady(ctx context.Context, req *models.HelpRequest, answer string) error {
	return w.post(ctx, webhookEvent{
		Kind:            "answer_ready",
		RequestID:       req.ID,
		RequesterHandle: req.RequesterHandle,
		Question:        req.Question,
		Answer:          answer,
	})
}

func (w *Webhook) TimedOut(ctx context.Context, req *models.HelpRequest) error {
	return w.post(ctx, webhookEvent{
		Kind:            "timed_out",
		RequestID:       req.ID,
		RequesterHandle: req.RequesterHandle,
		Question:        req.Question,
	})
}

func (w *Webhook) post(ctx context.Context, event webhookEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("Failed to create webhook request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Error("Failed to deliver webhook event", zap.String("kind", event.Kind), zap.Error(err))
		return fmt.Errorf("failed to deliver webhook event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.Error("Webhook endpoint returned non-OK status",
			zap.String("kind", event.Kind),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("webhook endpoint returned status: %d", resp.StatusCode)
	}

	return nil
}
