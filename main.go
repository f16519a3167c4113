package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/config"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/notifier"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/repository"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/server"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/service"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/sweeper"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/telegram_bot"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err) // Should not happen in development
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Load configuration
	cfgPath := "configs/config.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	repository.MigrateDB(db, logger)

	// Initialize repositories
	helpRequestRepo := repository.NewHelpRequestRepository(db, logger)
	knowledgeRepo := repository.NewKnowledgeRepository(db, logger)
	authRepo := repository.NewAuthRepository(db, logger)

	// Notification channels: console always, Telegram and webhook when configured
	channels := notifier.Multi{notifier.NewConsole(logger)}

	bot, err := telegram_bot.NewBot(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram bot, continuing without it", zap.Error(err))
		bot = nil
	}
	if bot != nil {
		channels = append(channels, bot)
	}

	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		channels = append(channels, notifier.NewWebhook(cfg.Webhook.URL, logger))
		logger.Info("Webhook delivery enabled", zap.String("url", cfg.Webhook.URL))
	}

	// Initialize services
	knowledgeService := service.NewKnowledgeService(knowledgeRepo, logger, cfg.Knowledge.MatchThreshold, cfg.CacheTTL())
	escalationService := service.NewEscalationService(helpRequestRepo, knowledgeService, channels, logger, cfg.RequestTimeout(), cfg.Escalation.MaxContextBytes)
	authService := service.NewAuthService(authRepo, []byte(cfg.Auth.JWTSecret), logger)

	bot.AttachResolver(escalationService)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Seed the knowledge base on first boot
	if cfg.Knowledge.SeedFile != "" {
		entries, err := loadSeedEntries(cfg.Knowledge.SeedFile)
		if err != nil {
			logger.Fatal("Failed to load seed file", zap.Error(err))
		}
		if _, err := knowledgeService.Seed(ctx, entries); err != nil {
			logger.Fatal("Failed to seed knowledge base", zap.Error(err))
		}
	}

	// Run Telegram bot in a goroutine (if enabled)
	if bot != nil {
		go func() {
			if err := bot.Start(ctx); err != nil {
				logger.Error("Telegram bot failed", zap.Error(err))
			}
		}()
	}

	// Run the expiry sweeper in a goroutine
	sw := sweeper.New(escalationService, channels, logger, cfg.SweepInterval())
	go sw.Run(ctx)

	// Initialize and run the server
	srv := server.NewServer(cfg, escalationService, knowledgeService, authService, logger)
	srv.Run(cfg.Server.Port)

	<-ctx.Done()
	logger.Info("Application stopped.")
}

// loadSeedEntries reads pre-canned knowledge entries from a YAML file.
func loadSeedEntries(path string) ([]models.SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var doc struct {
		Entries []models.SeedEntry `yaml:"entries"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}

	return doc.Entries, nil
}
