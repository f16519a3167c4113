// Package telegram_bot gives supervisors a Telegram surface: new escalations
// are pushed to a configured chat and can be resolved with a /resolve reply,
// without opening the dashboard.
package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/config"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/service"
)

// Resolver is the slice of the escalation service the bot needs.
type Resolver interface {
	Resolve(ctx context.Context, id, answer, resolverID string) (*models.HelpRequest, error)
	ListPending(ctx context.Context) ([]*models.HelpRequest, error)
}

// Bot pushes escalation events to the supervisor chat and accepts
// /resolve and /pending commands back.
type Bot struct {
	api              *tgbotapi.BotAPI
	logger           *zap.Logger
	resolver         Resolver
	supervisorChatID int64
}

// NewBot creates the Telegram bot, or (nil, nil) when it is disabled in config.
func NewBot(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken == "" {
		logger.Info("Telegram bot is disabled (telegram.enabled=false or token is empty)")
		return nil, nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Bot{
		api:              botAPI,
		logger:           logger,
		supervisorChatID: cfg.Telegram.SupervisorChatID,
	}, nil
}

// AttachResolver wires the escalation service in after construction. The bot
// has to exist before the service because the service notifies through it.
func (b *Bot) AttachResolver(r Resolver) {
	if b != nil {
		b.resolver = r
	}
}

// Start begins listening for updates from Telegram.
func (b *Bot) Start(ctx context.Context) error {
	if b == nil {
		return nil // Bot is disabled
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != b.supervisorChatID || b.resolver == nil {
		return
	}

	switch {
	case strings.HasPrefix(msg.Text, "/resolve"):
		b.handleResolve(ctx, msg)
	case strings.HasPrefix(msg.Text, "/pending"):
		b.handlePending(ctx)
	}
}

// handleResolve parses "/resolve <request-id> <answer...>".
func (b *Bot) handleResolve(ctx context.Context, msg *tgbotapi.Message) {
	parts := strings.SplitN(msg.Text, " ", 3)
	if len(parts) != 3 {
		b.sendMessage("Usage: /resolve <request-id> <answer>")
		return
	}
	requestID := parts[1]
	answer := strings.TrimSpace(parts[2])

	resolverID := fmt.Sprintf("telegram:%d", msg.From.ID)
	req, err := b.resolver.Resolve(ctx, requestID, answer, resolverID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			b.sendMessage(fmt.Sprintf("Request %s not found", requestID))
		case errors.Is(err, service.ErrInvalidState):
			b.sendMessage(fmt.Sprintf("Request %s is no longer pending", requestID))
		default:
			b.logger.Error("Failed to resolve via Telegram",
				zap.String("request_id", requestID), zap.Error(err))
			b.sendMessage("Failed to resolve request, check the logs")
		}
		return
	}

	b.sendMessage(fmt.Sprintf("Resolved %s\nQ: %s\nA: %s", req.ID, req.Question, answer))
}

func (b *Bot) handlePending(ctx context.Context) {
	pending, err := b.resolver.ListPending(ctx)
	if err != nil {
		b.logger.Error("Failed to list pending requests", zap.Error(err))
		b.sendMessage("Failed to list pending requests, check the logs")
		return
	}

	if len(pending) == 0 {
		b.sendMessage("No pending help requests")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d pending help request(s):\n", len(pending))
	for _, req := range pending {
		fmt.Fprintf(&sb, "\n%s\nQ: %s\nDeadline: %s\n", req.ID, req.Question, req.DeadlineAt.Format("15:04:05"))
	}
	b.sendMessage(sb.String())
}

// NewEscalation pushes a new help request to the supervisor chat.
func (b *Bot) NewEscalation(_ context.Context, req *models.HelpRequest) error {
	if b == nil {
		return nil
	}
	text := fmt.Sprintf("New help request %s\nFrom: %s\nQuestion: %s\n\nReply with:\n/resolve %s <answer>",
		req.ID, req.RequesterHandle, req.Question, req.ID)
	return b.send(text)
}

// AnswerReady posts a status line so the chat doubles as an audit trail.
func (b *Bot) AnswerReady(_ context.Context, req *models.HelpRequest, answer string) error {
	if b == nil {
		return nil
	}
	return b.send(fmt.Sprintf("Answer sent to %s for request %s", req.RequesterHandle, req.ID))
}

// TimedOut posts a status line for an expired request.
func (b *Bot) TimedOut(_ context.Context, req *models.HelpRequest) error {
	if b == nil {
		return nil
	}
	return b.send(fmt.Sprintf("Request %s timed out before anyone answered\nQ: %s", req.ID, req.Question))
}

func (b *Bot) send(text string) error {
	msg := tgbotapi.NewMessage(b.supervisorChatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send Telegram message", zap.Error(err))
		return err
	}
	return nil
}

func (b *Bot) sendMessage(text string) {
	_ = b.send(text)
}
