package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/service"
)

type stubEscalationService struct {
	createFn  func(input models.CreateHelpRequestInput) (*models.HelpRequest, error)
	resolveFn func(id, answer, resolverID string) (*models.HelpRequest, error)
	getFn     func(id string) (*models.HelpRequest, error)
	pending   []*models.HelpRequest
	stats     *models.RequestStats
}

func (s *stubEscalationService) Create(_ context.Context, input models.CreateHelpRequestInput) (*models.HelpRequest, error) {
	return s.createFn(input)
}

func (s *stubEscalationService) AttachRequesterHandle(_ context.Context, id, handle string) (*models.HelpRequest, error) {
	req, err := s.getFn(id)
	if err != nil {
		return nil, err
	}
	req.RequesterHandle = handle
	return req, nil
}

func (s *stubEscalationService) Resolve(_ context.Context, id, answer, resolverID string) (*models.HelpRequest, error) {
	return s.resolveFn(id, answer, resolverID)
}

func (s *stubEscalationService) ForceTimeout(context.Context, string) (*models.HelpRequest, bool, error) {
	return nil, false, nil
}

func (s *stubEscalationService) ListExpired(context.Context) ([]*models.HelpRequest, error) {
	return nil, nil
}

func (s *stubEscalationService) ListPending(context.Context) ([]*models.HelpRequest, error) {
	return s.pending, nil
}

func (s *stubEscalationService) ListTerminal(context.Context, int) ([]*models.HelpRequest, error) {
	return nil, nil
}

func (s *stubEscalationService) Get(_ context.Context, id string) (*models.HelpRequest, error) {
	return s.getFn(id)
}

func (s *stubEscalationService) Stats(context.Context) (*models.RequestStats, error) {
	return s.stats, nil
}

func sampleRequest(id string) *models.HelpRequest {
	now := time.Now()
	return &models.HelpRequest{
		ID:            id,
		Question:      "Do you accept walk-ins?",
		CorrelationID: "s1",
		Status:        models.StatusPending,
		CreatedAt:     now,
		DeadlineAt:    now.Add(10 * time.Minute),
	}
}

func newTestRouter(svc service.EscalationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRequestHandler(svc, zap.NewNop())

	r := gin.New()
	r.POST("/api/requests", h.Create)
	r.GET("/api/requests/pending", h.GetPending)
	r.GET("/api/requests/stats/overview", h.GetStats)
	r.GET("/api/requests/:id", h.GetByID)
	r.PUT("/api/requests/:id/resolve", h.Resolve)
	r.PUT("/api/requests/:id/requester", h.AttachRequesterHandle)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRequest_Created(t *testing.T) {
	svc := &stubEscalationService{
		createFn: func(input models.CreateHelpRequestInput) (*models.HelpRequest, error) {
			req := sampleRequest("req-1")
			req.Question = input.Question
			return req, nil
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/api/requests",
		`{"question": "Do you accept walk-ins?", "correlation_id": "s1"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Request models.HelpRequest `json:"request"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.Request.ID)
	assert.Equal(t, models.StatusPending, resp.Request.Status)
}

func TestCreateRequest_MissingFields(t *testing.T) {
	svc := &stubEscalationService{
		createFn: func(models.CreateHelpRequestInput) (*models.HelpRequest, error) {
			t.Fatal("service must not be called on binding failure")
			return nil, nil
		},
	}
	r := newTestRouter(svc)

	// correlation_id missing, rejected at binding
	w := doJSON(t, r, http.MethodPost, "/api/requests", `{"question": "Hours?"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveRequest_OK(t *testing.T) {
	svc := &stubEscalationService{
		resolveFn: func(id, answer, resolverID string) (*models.HelpRequest, error) {
			req := sampleRequest(id)
			req.Status = models.StatusResolved
			req.Answer = &answer
			return req, nil
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPut, "/api/requests/req-1/resolve",
		`{"answer": "Yes, after 2pm"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Yes, after 2pm")
}

func TestResolveRequest_Conflict(t *testing.T) {
	svc := &stubEscalationService{
		resolveFn: func(id, _, _ string) (*models.HelpRequest, error) {
			return nil, fmt.Errorf("%w: help request %s is timed_out", service.ErrInvalidState, id)
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPut, "/api/requests/req-1/resolve",
		`{"answer": "too late"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResolveRequest_NotFound(t *testing.T) {
	svc := &stubEscalationService{
		resolveFn: func(id, _, _ string) (*models.HelpRequest, error) {
			return nil, fmt.Errorf("%w: help request %s", service.ErrNotFound, id)
		},
	}
	r := newTestRouter(svc)

	w := doJSON(t, r, http.MethodPut, "/api/requests/missing/resolve",
		`{"answer": "hello"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRequest_NotFound(t *testing.T) {
	svc := &stubEscalationService{
		getFn: func(id string) (*models.HelpRequest, error) {
			return nil, fmt.Errorf("%w: help request %s", service.ErrNotFound, id)
		},
	}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/requests/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPending(t *testing.T) {
	svc := &stubEscalationService{
		pending: []*models.HelpRequest{sampleRequest("req-1"), sampleRequest("req-2")},
	}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/requests/pending", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count    int                   `json:"count"`
		Requests []*models.HelpRequest `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Requests, 2)
}

func TestGetStats(t *testing.T) {
	svc := &stubEscalationService{
		stats: &models.RequestStats{Pending: 2, Resolved: 5, TimedOut: 1, Total: 8, KnowledgeBaseSize: 12},
	}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/requests/stats/overview", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats models.RequestStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.Stats.Total)
	assert.Equal(t, 12, resp.Stats.KnowledgeBaseSize)
}
