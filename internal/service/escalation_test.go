package service

import (
	"context"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/repository"
)

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*models.HelpRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*models.HelpRequest)}
}

// Create mirrors the partial unique index on (correlation_id) WHERE
// status='pending'.
func (f *fakeRequestRepo) Create(req *models.HelpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.requests {
		if existing.CorrelationID == req.CorrelationID && existing.Status == models.StatusPending {
			return repository.ErrDuplicatePendingCorrelation
		}
	}
	clone := *req
	f.requests[req.ID] = &clone
	return nil
}

func (f *fakeRequestRepo) GetByID(id string) (*models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[id]; ok {
		clone := *req
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeRequestRepo) GetPendingByCorrelationID(correlationID string) (*models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.CorrelationID == correlationID && req.Status == models.StatusPending {
			clone := *req
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeRequestRepo) SetRequesterHandle(id, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[id]; ok && req.RequesterHandle == "" {
		req.RequesterHandle = handle
	}
	return nil
}

// MarkResolved mirrors the conditional UPDATE ... WHERE status='pending'.
func (f *fakeRequestRepo) MarkResolved(id, answer, resolverID string, resolvedAt time.Time) (*models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != models.StatusPending {
		return nil, nil
	}
	req.Status = models.StatusResolved
	req.Answer = &answer
	req.ResolverID = &resolverID
	req.ResolvedAt = &resolvedAt
	clone := *req
	return &clone, nil
}

// MarkTimedOut mirrors the conditional UPDATE ... WHERE status='pending'.
func (f *fakeRequestRepo) MarkTimedOut(id string, resolvedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.Status != models.StatusPending {
		return false, nil
	}
	req.Status = models.StatusTimedOut
	req.ResolvedAt = &resolvedAt
	return true, nil
}

func (f *fakeRequestRepo) SetLearnedEntryRef(id, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[id]; ok {
		req.LearnedEntryID = &entryID
	}
	return nil
}

func (f *fakeRequestRepo) SetDeliveryConfirmed(id string, confirmed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[id]; ok {
		req.DeliveryConfirmed = confirmed
	}
	return nil
}

func (f *fakeRequestRepo) ListPending() ([]*models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.HelpRequest
	for _, req := range f.requests {
		if req.Status == models.StatusPending {
			clone := *req
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) ListTerminal(limit int) ([]*models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.HelpRequest
	for _, req := range f.requests {
		if req.Status != models.StatusPending && len(out) < limit {
			clone := *req
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) ListExpired(now time.Time) ([]*models.HelpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.HelpRequest
	for _, req := range f.requests {
		if req.Status == models.StatusPending && !req.DeadlineAt.After(now) {
			clone := *req
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) CountByStatus() (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, req := range f.requests {
		counts[req.Status]++
	}
	return counts, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	escalations []string
	answers     []string
	timeouts    []string
	answerErr   error
}

func (f *fakeNotifier) NewEscalation(_ context.Context, req *models.HelpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations = append(f.escalations, req.ID)
	return nil
}

func (f *fakeNotifier) AnswerReady(_ context.Context, req *models.HelpRequest, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answerErr != nil {
		return f.answerErr
	}
	f.answers = append(f.answers, req.ID)
	return nil
}

func (f *fakeNotifier) TimedOut(_ context.Context, req *models.HelpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, req.ID)
	return nil
}

type escalationFixture struct {
	svc       *escalationService
	repo      *fakeRequestRepo
	knowledge *fakeKnowledgeRepo
	notifier  *fakeNotifier
}

func newEscalationFixture(t *testing.T) *escalationFixture {
	t.Helper()

	repo := newFakeRequestRepo()
	knowledgeRepo := newFakeKnowledgeRepo()
	n := &fakeNotifier{}

	svc := &escalationService{
		repo:            repo,
		knowledge:       newTestKnowledgeService(knowledgeRepo),
		notifier:        n,
		logger:          zap.NewNop(),
		timeout:         10 * time.Minute,
		maxContextBytes: 2000,
		now:             time.Now,
	}

	return &escalationFixture{svc: svc, repo: repo, knowledge: knowledgeRepo, notifier: n}
}

func (fx *escalationFixture) mustCreate(t *testing.T, question, correlationID string) *models.HelpRequest {
	t.Helper()
	req, err := fx.svc.Create(context.Background(), models.CreateHelpRequestInput{
		RequesterHandle: "+15550100",
		Question:        question,
		CorrelationID:   correlationID,
	})
	require.NoError(t, err)
	return req
}

func TestCreate_Validation(t *testing.T) {
	fx := newEscalationFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, models.CreateHelpRequestInput{CorrelationID: "s1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = fx.svc.Create(ctx, models.CreateHelpRequestInput{Question: "Do you do balayage?"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreate_Success(t *testing.T) {
	fx := newEscalationFixture(t)

	req := fx.mustCreate(t, "Do you do balayage?", "s1")

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, req.CreatedAt.Add(10*time.Minute), req.DeadlineAt)
	assert.Nil(t, req.Answer)
	assert.False(t, req.DeliveryConfirmed)
	assert.Equal(t, []string{req.ID}, fx.notifier.escalations)
}

func TestCreate_IdempotentPerCorrelationID(t *testing.T) {
	fx := newEscalationFixture(t)

	first := fx.mustCreate(t, "Do you do balayage?", "s1")
	retry := fx.mustCreate(t, "Do you do balayage?", "s1")

	assert.Equal(t, first.ID, retry.ID)
	assert.Len(t, fx.notifier.escalations, 1, "retry must not re-notify the supervisor")

	// A distinct escalation event gets its own request
	other := fx.mustCreate(t, "Do you have parking?", "s2")
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreate_TruncatesContextKeepingTail(t *testing.T) {
	fx := newEscalationFixture(t)
	fx.svc.maxContextBytes = 10

	req, err := fx.svc.Create(context.Background(), models.CreateHelpRequestInput{
		Question:      "Do you do balayage?",
		Context:       "a very long conversation transcript",
		CorrelationID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, "transcript", req.Context, "most recent context survives, oldest is dropped")
}

func TestCreate_TruncatesContextOnRuneBoundary(t *testing.T) {
	fx := newEscalationFixture(t)
	fx.svc.maxContextBytes = 5

	// Five two-byte runes; a byte-level cut at 5 would land mid-rune
	req, err := fx.svc.Create(context.Background(), models.CreateHelpRequestInput{
		Question:      "Do you do balayage?",
		Context:       "ééééé",
		CorrelationID: "s1",
	})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(req.Context))
	assert.Equal(t, "éé", req.Context)
}

func TestCreate_ConcurrentSameCorrelationID(t *testing.T) {
	for i := 0; i < 100; i++ {
		fx := newEscalationFixture(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		results := make([]*models.HelpRequest, 2)
		errs := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				results[j], errs[j] = fx.svc.Create(ctx, models.CreateHelpRequestInput{
					Question:      "Do you do balayage?",
					CorrelationID: "s1",
				})
			}(j)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, results[0].ID, results[1].ID, "both retries see the same escalation")

		fx.repo.mu.Lock()
		stored := len(fx.repo.requests)
		fx.repo.mu.Unlock()
		assert.Equal(t, 1, stored)
	}
}

func TestAttachRequesterHandle_OnlySetsWhenUnset(t *testing.T) {
	fx := newEscalationFixture(t)
	ctx := context.Background()

	req, err := fx.svc.Create(ctx, models.CreateHelpRequestInput{
		Question:      "Do you do balayage?",
		CorrelationID: "s1",
	})
	require.NoError(t, err)

	updated, err := fx.svc.AttachRequesterHandle(ctx, req.ID, "+15550123")
	require.NoError(t, err)
	assert.Equal(t, "+15550123", updated.RequesterHandle)

	// Second attach is a no-op, not an error
	again, err := fx.svc.AttachRequesterHandle(ctx, req.ID, "+15559999")
	require.NoError(t, err)
	assert.Equal(t, "+15550123", again.RequesterHandle)

	_, err = fx.svc.AttachRequesterHandle(ctx, "missing", "+15550123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_Success(t *testing.T) {
	fx := newEscalationFixture(t)
	ctx := context.Background()

	req := fx.mustCreate(t, "Do you accept walk-ins?", "s1")

	resolved, err := fx.svc.Resolve(ctx, req.ID, "Yes, walk-ins welcome after 2pm", "alice")
	require.NoError(t, err)

	assert.Equal(t, models.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.Answer)
	assert.Equal(t, "Yes, walk-ins welcome after 2pm", *resolved.Answer)
	require.NotNil(t, resolved.ResolverID)
	assert.Equal(t, "alice", *resolved.ResolverID)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.DeliveryConfirmed)
	require.NotNil(t, resolved.LearnedEntryID)

	// The answer was learned exactly once
	entry := fx.knowledge.byKey["do you accept walk ins"]
	require.NotNil(t, entry)
	assert.Equal(t, models.ProvenanceLearned, entry.Provenance)
	assert.Equal(t, *resolved.LearnedEntryID, entry.ID)

	// And is answerable on the next lookup
	match, err := fx.svc.knowledge.Lookup(ctx, "walk ins accepted?")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "Yes, walk-ins welcome after 2pm", match.Answer)
}

func TestResolve_DefaultsResolverID(t *testing.T) {
	fx := newEscalationFixture(t)

	req := fx.mustCreate(t, "Do you accept walk-ins?", "s1")

	resolved, err := fx.svc.Resolve(context.Background(), req.ID, "Yes", "")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolverID)
	assert.Equal(t, DefaultResolverID, *resolved.ResolverID)
}

func TestResolve_UnknownID(t *testing.T) {
	fx := newEscalationFixture(t)

	_, err := fx.svc.Resolve(context.Background(), "missing", "answer", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_AfterTimeoutDoesNotResurrect(t *testing.T) {
	fx := newEscalationFixture(t)
	ctx := context.Background()

	req := fx.mustCreate(t, "Do you do balayage?", "s1")

	_, transitioned, err := fx.svc.ForceTimeout(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, transitioned)

	_, err = fx.svc.Resolve(ctx, req.ID, "too late", "alice")
	assert.ErrorIs(t, err, ErrInvalidState)

	current, err := fx.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimedOut, current.Status)
	assert.Nil(t, current.Answer)
}

func TestResolve_DeliveryFailureKeepsResolution(t *testing.T) {
	fx := newEscalationFixture(t)
	fx.notifier.answerErr = assert.AnError

	req := fx.mustCreate(t, "Do you do balayage?", "s1")

	resolved, err := fx.svc.Resolve(context.Background(), req.ID, "Yes, from $180", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	assert.False(t, resolved.DeliveryConfirmed, "undelivered resolution is flagged for follow-up")
	assert.NotNil(t, resolved.LearnedEntryID, "learning is independent of delivery")
}

func TestForceTimeout_NoOpWhenNotPending(t *testing.T) {
	fx := newEscalationFixture(t)
	ctx := context.Background()

	req := fx.mustCreate(t, "Do you do balayage?", "s1")
	_, err := fx.svc.Resolve(ctx, req.ID, "Yes", "alice")
	require.NoError(t, err)

	_, transitioned, err := fx.svc.ForceTimeout(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)

	current, err := fx.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, current.Status)
}

func TestForceTimeout_NoKnowledgeCreated(t *testing.T) {
	fx := newEscalationFixture(t)

	req := fx.mustCreate(t, "Do you do balayage?", "s1")

	timedOut, transitioned, err := fx.svc.ForceTimeout(context.Background(), req.ID)
	require.NoError(t, err)
	require.True(t, transitioned)
	assert.Equal(t, models.StatusTimedOut, timedOut.Status)
	assert.NotNil(t, timedOut.ResolvedAt)
	assert.Empty(t, fx.knowledge.byKey)
}

// Concurrent resolve and forceTimeout on the same id must yield exactly one
// terminal state, with the loser observing an error or a no-op.
func TestResolveVsTimeout_FirstActorWins(t *testing.T) {
	for i := 0; i < 100; i++ {
		fx := newEscalationFixture(t)
		ctx := context.Background()
		req := fx.mustCreate(t, "Do you do balayage?", "s1")

		var wg sync.WaitGroup
		var resolveErr error
		var timedOut bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, resolveErr = fx.svc.Resolve(ctx, req.ID, "Yes", "alice")
		}()
		go func() {
			defer wg.Done()
			_, timedOut, _ = fx.svc.ForceTimeout(ctx, req.ID)
		}()
		wg.Wait()

		current, err := fx.svc.Get(ctx, req.ID)
		require.NoError(t, err)

		if resolveErr == nil {
			assert.Equal(t, models.StatusResolved, current.Status)
			assert.False(t, timedOut, "timeout must lose when resolve wins")
		} else {
			assert.ErrorIs(t, resolveErr, ErrInvalidState)
			assert.True(t, timedOut)
			assert.Equal(t, models.StatusTimedOut, current.Status)
			assert.Nil(t, current.Answer)
		}
	}
}

func TestStats(t *testing.T) {
	fx := newEscalationFixture(t)
	ctx := context.Background()

	a := fx.mustCreate(t, "Do you accept walk-ins?", "s1")
	fx.mustCreate(t, "Do you do balayage?", "s2")
	b := fx.mustCreate(t, "Do you have parking?", "s3")

	_, err := fx.svc.Resolve(ctx, a.ID, "Yes, after 2pm", "alice")
	require.NoError(t, err)
	_, _, err = fx.svc.ForceTimeout(ctx, b.ID)
	require.NoError(t, err)

	stats, err := fx.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.TimedOut)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.KnowledgeBaseSize)
}

func TestListTerminal_DefaultsLimit(t *testing.T) {
	fx := newEscalationFixture(t)
	ctx := context.Background()

	req := fx.mustCreate(t, "Do you do balayage?", "s1")
	_, _, err := fx.svc.ForceTimeout(ctx, req.ID)
	require.NoError(t, err)

	terminal, err := fx.svc.ListTerminal(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, terminal, 1)
}
