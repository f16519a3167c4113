package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/service"
)

type RequestHandler interface {
	Create(c *gin.Context)
	Resolve(c *gin.Context)
	AttachRequesterHandle(c *gin.Context)
	GetPending(c *gin.Context)
	GetResolved(c *gin.Context)
	GetByID(c *gin.Context)
	GetStats(c *gin.Context)
}

type requestHandler struct {
	escalation service.EscalationService
	logger     *zap.Logger
}

func NewRequestHandler(escalation service.EscalationService, logger *zap.Logger) RequestHandler {
	return &requestHandler{escalation: escalation, logger: logger}
}

// Create handles POST /api/requests (called by the automated front-end when
// it cannot answer).
func (h *requestHandler) Create(c *gin.Context) {
	var input models.CreateHelpRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.escalation.Create(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to create help request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create help request"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Help request created and supervisor notified",
		"request": req,
	})
}

// Resolve handles PUT /api/requests/:id/resolve (supervisor submits answer).
func (h *requestHandler) Resolve(c *gin.Context) {
	id := c.Param("id")

	var input models.ResolveHelpRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.escalation.Resolve(c.Request.Context(), id, input.Answer, input.ResolverID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		case errors.Is(err, service.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": "Request is not pending"})
		default:
			h.logger.Error("Failed to resolve help request", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve help request"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Request resolved, requester notified, and knowledge base updated",
		"request": req,
	})
}

// AttachRequesterHandle handles PUT /api/requests/:id/requester. Attaching a
// handle to a request that already has one is a no-op, not an error.
func (h *requestHandler) AttachRequesterHandle(c *gin.Context) {
	id := c.Param("id")

	var input models.AttachRequesterHandleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.escalation.AttachRequesterHandle(c.Request.Context(), id, input.RequesterHandle)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		default:
			h.logger.Error("Failed to attach requester handle", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach requester handle"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": req})
}

// GetPending handles GET /api/requests/pending.
func (h *requestHandler) GetPending(c *gin.Context) {
	requests, err := h.escalation.ListPending(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to fetch pending requests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pending requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(requests), "requests": requests})
}

// GetResolved handles GET /api/requests/resolved?limit=N (terminal requests,
// resolved and timed out alike).
func (h *requestHandler) GetResolved(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	requests, err := h.escalation.ListTerminal(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to fetch resolved requests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch resolved requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(requests), "requests": requests})
}

// GetByID handles GET /api/requests/:id.
func (h *requestHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	req, err := h.escalation.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
			return
		}
		h.logger.Error("Failed to fetch request", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": req})
}

// GetStats handles GET /api/requests/stats/overview.
func (h *requestHandler) GetStats(c *gin.Context) {
	stats, err := h.escalation.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to fetch statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
