package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/repository"
)

// KnowledgeService owns the question/answer knowledge base: fuzzy lookup for
// the automated front-end, idempotent ingestion of supervisor answers, and
// one-time seeding at bootstrap.
type KnowledgeService interface {
	Lookup(ctx context.Context, question string) (*models.KnowledgeMatch, error)
	Ingest(ctx context.Context, question, answer, sourceRequestID string) (*models.KnowledgeEntry, error)
	AddSeeded(ctx context.Context, question, answer string) (*models.KnowledgeEntry, error)
	Seed(ctx context.Context, entries []models.SeedEntry) (int, error)
	ListActive(ctx context.Context) ([]*models.KnowledgeEntry, error)
	ListLearned(ctx context.Context) ([]*models.KnowledgeEntry, error)
	CountActive(ctx context.Context) (int, error)
}

type knowledgeService struct {
	repo      repository.KnowledgeRepository
	logger    *zap.Logger
	threshold float64
	cache     *lookupCache
	now       func() time.Time
}

// NewKnowledgeService creates the knowledge service. threshold is the minimum
// relevance score a lookup candidate must reach; cacheTTL bounds how long a
// successful lookup may be served without re-scoring.
func NewKnowledgeService(
	repo repository.KnowledgeRepository,
	logger *zap.Logger,
	threshold float64,
	cacheTTL time.Duration,
) KnowledgeService {
	return &knowledgeService{
		repo:      repo,
		logger:    logger,
		threshold: threshold,
		cache:     newLookupCache(cacheTTL),
		now:       time.Now,
	}
}

// Lookup canonicalizes the question and returns the best-matching active
// entry, or nil when nothing scores above the threshold. Candidates are
// ranked by shared-term weight; the threshold keeps weak matches from
// misleading a requester.
func (s *knowledgeService) Lookup(ctx context.Context, question string) (*models.KnowledgeMatch, error) {
	normalized := NormalizeQuestion(question)
	if normalized == "" {
		// Punctuation-only or stop-words-only input has no terms to match
		// against; that is a miss, not a caller error.
		return nil, nil
	}

	if match, ok := s.cache.get(normalized); ok {
		return match, nil
	}

	entries, err := s.repo.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}

	var best *models.KnowledgeEntry
	bestScore := 0.0
	for _, entry := range entries {
		score := overlapScore(normalized, entry.NormalizedKey)
		if score > bestScore {
			best = entry
			bestScore = score
		}
	}

	if best == nil || bestScore < s.threshold {
		return nil, nil
	}

	match := &models.KnowledgeMatch{
		Question: best.Question,
		Answer:   best.Answer,
		Score:    bestScore,
	}
	s.cache.set(normalized, match)

	s.logger.Debug("Knowledge lookup hit",
		zap.String("normalized", normalized),
		zap.String("matched_key", best.NormalizedKey),
		zap.Float64("score", bestScore),
	)

	return match, nil
}

// Ingest upserts a learned answer keyed by the normalized question. Learning
// the same question again bumps the usage count and keeps the first-learned
// answer; it never creates a duplicate and never overwrites.
func (s *knowledgeService) Ingest(ctx context.Context, question, answer, sourceRequestID string) (*models.KnowledgeEntry, error) {
	return s.upsert(question, answer, models.ProvenanceLearned, &sourceRequestID)
}

// AddSeeded stores a manually curated entry, outside of any help request.
func (s *knowledgeService) AddSeeded(ctx context.Context, question, answer string) (*models.KnowledgeEntry, error) {
	return s.upsert(question, answer, models.ProvenanceSeeded, nil)
}

func (s *knowledgeService) upsert(question, answer, provenance string, sourceRequestID *string) (*models.KnowledgeEntry, error) {
	normalized := NormalizeQuestion(question)
	if normalized == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}
	if answer == "" {
		return nil, fmt.Errorf("%w: answer is required", ErrValidation)
	}

	entry := &models.KnowledgeEntry{
		ID:              uuid.NewString(),
		Question:        question,
		NormalizedKey:   normalized,
		Answer:          answer,
		Provenance:      provenance,
		SourceRequestID: sourceRequestID,
		CreatedAt:       s.now(),
	}

	stored, err := s.repo.Upsert(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert knowledge entry: %w", err)
	}

	if stored.ID != entry.ID {
		s.logger.Info("Question already known, usage count bumped",
			zap.String("normalized_key", normalized),
			zap.Int64("usage_count", stored.UsageCount),
		)
	} else {
		s.logger.Info("Knowledge entry created",
			zap.String("normalized_key", normalized),
			zap.String("provenance", provenance),
		)
	}

	return stored, nil
}

// Seed bulk-loads pre-canned entries once. If any seeded entry already
// exists the whole pass is skipped, which makes bootstrap re-runs harmless.
func (s *knowledgeService) Seed(ctx context.Context, entries []models.SeedEntry) (int, error) {
	seeded, err := s.repo.CountSeeded()
	if err != nil {
		return 0, fmt.Errorf("failed to check seeded entries: %w", err)
	}
	if seeded > 0 {
		s.logger.Info("Knowledge base already seeded, skipping", zap.Int("existing", seeded))
		return 0, nil
	}

	created := 0
	for _, e := range entries {
		if _, err := s.upsert(e.Question, e.Answer, models.ProvenanceSeeded, nil); err != nil {
			return created, fmt.Errorf("failed to seed entry %q: %w", e.Question, err)
		}
		created++
	}

	s.logger.Info("Knowledge base seeded", zap.Int("entries", created))
	return created, nil
}

func (s *knowledgeService) ListActive(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	return s.repo.ListActive()
}

func (s *knowledgeService) ListLearned(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	return s.repo.ListLearned()
}

func (s *knowledgeService) CountActive(ctx context.Context) (int, error) {
	return s.repo.CountActive()
}
