package repository

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
)

const knowledgeColumns = `id, question, normalized_key, answer, provenance, source_request_id,
		usage_count, active, created_at`

// KnowledgeRepository defines the interface for knowledge entry operations.
type KnowledgeRepository interface {
	Upsert(entry *models.KnowledgeEntry) (*models.KnowledgeEntry, error)
	GetByNormalizedKey(key string) (*models.KnowledgeEntry, error)
	ListActive() ([]*models.KnowledgeEntry, error)
	ListLearned() ([]*models.KnowledgeEntry, error)
	CountActive() (int, error)
	CountSeeded() (int, error)
}

type knowledgeRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewKnowledgeRepository creates a new knowledge repository.
func NewKnowledgeRepository(db *sqlx.DB, logger *zap.Logger) KnowledgeRepository {
	return &knowledgeRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the entry or, when the normalized key already exists, bumps
// the existing row's usage count. The unique index on normalized_key plus
// ON CONFLICT makes concurrent ingestion of the same question safe and keeps
// the first-learned answer and provenance intact.
func (r *knowledgeRepository) Upsert(entry *models.KnowledgeEntry) (*models.KnowledgeEntry, error) {
	var stored models.KnowledgeEntry
	query := `
		INSERT INTO knowledge_entries (id, question, normalized_key, answer, provenance, source_request_id, usage_count, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, TRUE, $7)
		ON CONFLICT (normalized_key) DO UPDATE
		SET usage_count = knowledge_entries.usage_count + 1
		RETURNING ` + knowledgeColumns + `
	`

	err := r.db.Get(
		&stored,
		query,
		entry.ID,
		entry.Question,
		entry.NormalizedKey,
		entry.Answer,
		entry.Provenance,
		entry.SourceRequestID,
		entry.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to upsert knowledge entry", zap.String("normalized_key", entry.NormalizedKey), zap.Error(err))
		return nil, err
	}

	return &stored, nil
}

func (r *knowledgeRepository) GetByNormalizedKey(key string) (*models.KnowledgeEntry, error) {
	var entry models.KnowledgeEntry
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_entries
		WHERE normalized_key = $1
	`

	err := r.db.Get(&entry, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get knowledge entry", zap.String("normalized_key", key), zap.Error(err))
		return nil, err
	}

	return &entry, nil
}

func (r *knowledgeRepository) ListActive() ([]*models.KnowledgeEntry, error) {
	var entries []*models.KnowledgeEntry
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_entries
		WHERE active = TRUE
		ORDER BY created_at DESC
	`

	err := r.db.Select(&entries, query)
	if err != nil {
		r.logger.Error("Failed to list active knowledge entries", zap.Error(err))
		return nil, err
	}

	return entries, nil
}

func (r *knowledgeRepository) ListLearned() ([]*models.KnowledgeEntry, error) {
	var entries []*models.KnowledgeEntry
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_entries
		WHERE active = TRUE AND provenance = 'learned'
		ORDER BY created_at DESC
	`

	err := r.db.Select(&entries, query)
	if err != nil {
		r.logger.Error("Failed to list learned knowledge entries", zap.Error(err))
		return nil, err
	}

	return entries, nil
}

func (r *knowledgeRepository) CountActive() (int, error) {
	var count int
	err := r.db.Get(&count, `SELECT COUNT(*) FROM knowledge_entries WHERE active = TRUE`)
	if err != nil {
		r.logger.Error("Failed to count active knowledge entries", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *knowledgeRepository) CountSeeded() (int, error) {
	var count int
	err := r.db.Get(&count, `SELECT COUNT(*) FROM knowledge_entries WHERE provenance = 'seeded'`)
	if err != nil {
		r.logger.Error("Failed to count seeded knowledge entries", zap.Error(err))
		return 0, err
	}
	return count, nil
}
