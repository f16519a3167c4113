package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/service"
)

type AuthHandler interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
}

type authHandler struct {
	auth   service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth service.AuthService, logger *zap.Logger) AuthHandler {
	return &authHandler{auth: auth, logger: logger}
}

// Register handles POST /api/auth/register (first-boot supervisor account).
func (h *authHandler) Register(c *gin.Context) {
	var input models.CredentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.RegisterSupervisor(input.Username, input.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Supervisor account already exists"})
			return
		}
		h.logger.Error("Failed to register supervisor", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register supervisor"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"username": user.Username, "role": user.Role})
}

// Login handles POST /api/auth/login.
func (h *authHandler) Login(c *gin.Context) {
	var input models.CredentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expiresAt, err := h.auth.Login(input.Username, input.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.logger.Error("Failed to log in", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}
