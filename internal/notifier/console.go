package notifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
)

// Console simulates SMS delivery by writing the message to the process log.
type Console struct {
	logger *zap.Logger
}

// NewConsole creates a console notifier.
func NewConsole(logger *zap.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) NewEscalation(_ context.Context, req *models.HelpRequest) error {
	message := fmt.Sprintf("New help request %s\nFrom: %s\nQuestion: %s",
		req.ID, req.RequesterHandle, req.Question)

	c.logger.Info("[SIMULATED SMS TO SUPERVISOR]",
		zap.String("request_id", req.ID),
		zap.String("message", message),
	)
	return nil
}

func (c *Console) AnswerReady(_ context.Context, req *models.HelpRequest, answer string) error {
	message := fmt.Sprintf("Hi! I checked with my supervisor about your question: %q\n"+
		"Here's the answer: %s\nFeel free to call back if you have more questions!",
		req.Question, answer)

	c.logger.Info("[SIMULATED SMS TO REQUESTER]",
		zap.String("request_id", req.ID),
		zap.String("to", req.RequesterHandle),
		zap.String("message", message),
	)
	return nil
}

func (c *Console) TimedOut(_ context.Context, req *models.HelpRequest) error {
	message := fmt.Sprintf("Hi! I apologize but we weren't able to get back to you "+
		"about your question: %q\nPlease call us back at your convenience and we'll be happy to help!",
		req.Question)

	c.logger.Info("[SIMULATED SMS - TIMEOUT NOTIFICATION]",
		zap.String("request_id", req.ID),
		zap.String("to", req.RequesterHandle),
		zap.String("message", message),
	)
	return nil
}
