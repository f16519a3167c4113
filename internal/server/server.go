package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/config"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/handler"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/middleware"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/service"
)

type Server struct {
	router *gin.Engine
	cfg    *config.Config
	logger *zap.Logger
}

// NewServer wires handlers onto the router. The escalation and knowledge
// services are constructed in main and shared with the sweeper and bot.
func NewServer(
	cfg *config.Config,
	escalation service.EscalationService,
	knowledge service.KnowledgeService,
	auth service.AuthService,
	logger *zap.Logger,
) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		cfg:    cfg,
		logger: logger,
	}

	s.setupRoutes(escalation, knowledge, auth)

	return s
}

func (s *Server) setupRoutes(
	escalation service.EscalationService,
	knowledge service.KnowledgeService,
	auth service.AuthService,
) {
	requestHandler := handler.NewRequestHandler(escalation, s.logger)
	knowledgeHandler := handler.NewKnowledgeHandler(knowledge, s.logger)
	authHandler := handler.NewAuthHandler(auth, s.logger)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Authentication routes
	authGroup := s.router.Group("/api/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	// Agent-facing routes: escalation creation and knowledge search are
	// called by the automated front-end, which has no supervisor session.
	agentGroup := s.router.Group("/api")
	{
		agentGroup.POST("/requests", requestHandler.Create)
		agentGroup.PUT("/requests/:id/requester", requestHandler.AttachRequesterHandle)
		agentGroup.POST("/knowledge/search", knowledgeHandler.Search)
	}

	// Supervisor dashboard routes
	dashboard := s.router.Group("/api")
	dashboard.Use(middleware.AuthMiddleware([]byte(s.cfg.Auth.JWTSecret), s.logger))
	{
		dashboard.GET("/requests/pending", requestHandler.GetPending)
		dashboard.GET("/requests/resolved", requestHandler.GetResolved)
		dashboard.GET("/requests/stats/overview", requestHandler.GetStats)
		dashboard.GET("/requests/:id", requestHandler.GetByID)
		dashboard.PUT("/requests/:id/resolve", requestHandler.Resolve)
		dashboard.GET("/knowledge", knowledgeHandler.GetAll)
		dashboard.GET("/knowledge/learned", knowledgeHandler.GetLearned)
		dashboard.POST("/knowledge", knowledgeHandler.Create)
	}
}

func (s *Server) Run(addr string) {
	s.logger.Info("Server starting", zap.String("addr", addr))
	if err := s.router.Run(addr); err != nil {
		s.logger.Fatal("Server failed to start", zap.Error(err))
	}
}
