package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/service"
)

type KnowledgeHandler interface {
	Search(c *gin.Context)
	GetAll(c *gin.Context)
	GetLearned(c *gin.Context)
	Create(c *gin.Context)
}

type knowledgeHandler struct {
	knowledge service.KnowledgeService
	logger    *zap.Logger
}

func NewKnowledgeHandler(knowledge service.KnowledgeService, logger *zap.Logger) KnowledgeHandler {
	return &knowledgeHandler{knowledge: knowledge, logger: logger}
}

// Search handles POST /api/knowledge/search (called by the automated
// front-end before escalating).
func (h *knowledgeHandler) Search(c *gin.Context) {
	var input models.SearchKnowledgeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	match, err := h.knowledge.Lookup(c.Request.Context(), input.Question)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Knowledge search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	if match == nil {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"found": true, "match": match})
}

// GetAll handles GET /api/knowledge.
func (h *knowledgeHandler) GetAll(c *gin.Context) {
	entries, err := h.knowledge.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to fetch knowledge entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch knowledge entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

// GetLearned handles GET /api/knowledge/learned.
func (h *knowledgeHandler) GetLearned(c *gin.Context) {
	entries, err := h.knowledge.ListLearned(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to fetch learned knowledge entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch learned entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

// Create handles POST /api/knowledge (manually curated entry).
func (h *knowledgeHandler) Create(c *gin.Context) {
	var input models.SeedEntry
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.knowledge.AddSeeded(c.Request.Context(), input.Question, input.Answer)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to add knowledge entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add knowledge entry"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}
