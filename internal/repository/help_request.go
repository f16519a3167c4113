package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
)

// ErrDuplicatePendingCorrelation is returned by Create when another pending
// request with the same correlation id already exists. The partial unique
// index on (correlation_id) WHERE status='pending' raises it, so concurrent
// retries cannot double-escalate.
var ErrDuplicatePendingCorrelation = errors.New("pending request with this correlation id already exists")

const helpRequestColumns = `id, requester_handle, question, context, correlation_id, status,
		answer, resolver_id, delivery_confirmed, learned_entry_id, created_at, deadline_at, resolved_at`

// HelpRequestRepository defines the interface for help request operations.
// The conditional MarkResolved/MarkTimedOut updates are the only mutations
// allowed to race on the same row; the WHERE status='pending' clause makes
// whichever lands first win.
type HelpRequestRepository interface {
	Create(req *models.HelpRequest) error
	GetByID(id string) (*models.HelpRequest, error)
	GetPendingByCorrelationID(correlationID string) (*models.HelpRequest, error)
	SetRequesterHandle(id, handle string) error
	MarkResolved(id, answer, resolverID string, resolvedAt time.Time) (*models.HelpRequest, error)
	MarkTimedOut(id string, resolvedAt time.Time) (bool, error)
	SetLearnedEntryRef(id, entryID string) error
	SetDeliveryConfirmed(id string, confirmed bool) error
	ListPending() ([]*models.HelpRequest, error)
	ListTerminal(limit int) ([]*models.HelpRequest, error)
	ListExpired(now time.Time) ([]*models.HelpRequest, error)
	CountByStatus() (map[string]int, error)
}

type helpRequestRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewHelpRequestRepository creates a new help request repository.
func NewHelpRequestRepository(db *sqlx.DB, logger *zap.Logger) HelpRequestRepository {
	return &helpRequestRepository{
		db:     db,
		logger: logger,
	}
}

func (r *helpRequestRepository) Create(req *models.HelpRequest) error {
	query := `
		INSERT INTO help_requests (id, requester_handle, question, context, correlation_id, status, created_at, deadline_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(
		query,
		req.ID,
		req.RequesterHandle,
		req.Question,
		req.Context,
		req.CorrelationID,
		req.Status,
		req.CreatedAt,
		req.DeadlineAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicatePendingCorrelation
		}
		r.logger.Error("Failed to create help request", zap.Error(err))
		return err
	}

	return nil
}

func (r *helpRequestRepository) GetByID(id string) (*models.HelpRequest, error) {
	var req models.HelpRequest
	query := `
		SELECT ` + helpRequestColumns + `
		FROM help_requests
		WHERE id = $1
	`

	err := r.db.Get(&req, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get help request by ID", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return &req, nil
}

func (r *helpRequestRepository) GetPendingByCorrelationID(correlationID string) (*models.HelpRequest, error) {
	var req models.HelpRequest
	query := `
		SELECT ` + helpRequestColumns + `
		FROM help_requests
		WHERE correlation_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.Get(&req, query, correlationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get help request by correlation ID", zap.String("correlation_id", correlationID), zap.Error(err))
		return nil, err
	}

	return &req, nil
}

// SetRequesterHandle fills the handle only if it is still empty; a repeated
// attach is a no-op.
func (r *helpRequestRepository) SetRequesterHandle(id, handle string) error {
	query := `
		UPDATE help_requests
		SET requester_handle = $1
		WHERE id = $2 AND requester_handle = ''
	`

	_, err := r.db.Exec(query, handle, id)
	if err != nil {
		r.logger.Error("Failed to set requester handle", zap.String("id", id), zap.Error(err))
		return err
	}

	return nil
}

// MarkResolved transitions pending -> resolved. Returns nil when the request
// is no longer pending (the timeout transition won the race or the request
// was already resolved).
func (r *helpRequestRepository) MarkResolved(id, answer, resolverID string, resolvedAt time.Time) (*models.HelpRequest, error) {
	var req models.HelpRequest
	query := `
		UPDATE help_requests
		SET status = 'resolved', answer = $1, resolver_id = $2, resolved_at = $3
		WHERE id = $4 AND status = 'pending'
		RETURNING ` + helpRequestColumns + `
	`

	err := r.db.Get(&req, query, answer, resolverID, resolvedAt, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to resolve help request", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	return &req, nil
}

// MarkTimedOut transitions pending -> timed_out. Returns false when the row
// was not pending anymore, which the sweeper treats as a no-op.
func (r *helpRequestRepository) MarkTimedOut(id string, resolvedAt time.Time) (bool, error) {
	query := `
		UPDATE help_requests
		SET status = 'timed_out', resolved_at = $1
		WHERE id = $2 AND status = 'pending'
	`

	result, err := r.db.Exec(query, resolvedAt, id)
	if err != nil {
		r.logger.Error("Failed to time out help request", zap.String("id", id), zap.Error(err))
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *helpRequestRepository) SetLearnedEntryRef(id, entryID string) error {
	query := `
		UPDATE help_requests
		SET learned_entry_id = $1
		WHERE id = $2
	`

	_, err := r.db.Exec(query, entryID, id)
	if err != nil {
		r.logger.Error("Failed to set learned entry ref", zap.String("id", id), zap.Error(err))
		return err
	}

	return nil
}

func (r *helpRequestRepository) SetDeliveryConfirmed(id string, confirmed bool) error {
	query := `
		UPDATE help_requests
		SET delivery_confirmed = $1
		WHERE id = $2
	`

	_, err := r.db.Exec(query, confirmed, id)
	if err != nil {
		r.logger.Error("Failed to set delivery confirmed", zap.String("id", id), zap.Error(err))
		return err
	}

	return nil
}

func (r *helpRequestRepository) ListPending() ([]*models.HelpRequest, error) {
	var requests []*models.HelpRequest
	query := `
		SELECT ` + helpRequestColumns + `
		FROM help_requests
		WHERE status = 'pending'
		ORDER BY created_at DESC
	`

	err := r.db.Select(&requests, query)
	if err != nil {
		r.logger.Error("Failed to list pending help requests", zap.Error(err))
		return nil, err
	}

	return requests, nil
}

func (r *helpRequestRepository) ListTerminal(limit int) ([]*models.HelpRequest, error) {
	var requests []*models.HelpRequest
	query := `
		SELECT ` + helpRequestColumns + `
		FROM help_requests
		WHERE status IN ('resolved', 'timed_out')
		ORDER BY resolved_at DESC
		LIMIT $1
	`

	err := r.db.Select(&requests, query, limit)
	if err != nil {
		r.logger.Error("Failed to list terminal help requests", zap.Error(err))
		return nil, err
	}

	return requests, nil
}

func (r *helpRequestRepository) ListExpired(now time.Time) ([]*models.HelpRequest, error) {
	var requests []*models.HelpRequest
	query := `
		SELECT ` + helpRequestColumns + `
		FROM help_requests
		WHERE status = 'pending' AND deadline_at <= $1
		ORDER BY deadline_at ASC
	`

	err := r.db.Select(&requests, query, now)
	if err != nil {
		r.logger.Error("Failed to list expired help requests", zap.Error(err))
		return nil, err
	}

	return requests, nil
}

func (r *helpRequestRepository) CountByStatus() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM help_requests GROUP BY status`)
	if err != nil {
		r.logger.Error("Failed to count help requests", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
