package models

import "time"

// Help request lifecycle states. Transitions are one-directional:
// pending -> resolved or pending -> timed_out, never back.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
	StatusTimedOut = "timed_out"
)

// HelpRequest represents one escalated question stored in the 'help_requests' table.
type HelpRequest struct {
	ID                string     `db:"id" json:"id"`
	RequesterHandle   string     `db:"requester_handle" json:"requester_handle"` // may be empty until the requester shares contact info
	Question          string     `db:"question" json:"question"`
	Context           string     `db:"context" json:"context"`
	CorrelationID     string     `db:"correlation_id" json:"correlation_id"`
	Status            string     `db:"status" json:"status"`
	Answer            *string    `db:"answer" json:"answer,omitempty"`
	ResolverID        *string    `db:"resolver_id" json:"resolver_id,omitempty"`
	DeliveryConfirmed bool       `db:"delivery_confirmed" json:"delivery_confirmed"`
	LearnedEntryID    *string    `db:"learned_entry_id" json:"learned_entry_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	DeadlineAt        time.Time  `db:"deadline_at" json:"deadline_at"`
	ResolvedAt        *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsTerminal reports whether the request has left the pending state.
func (r *HelpRequest) IsTerminal() bool {
	return r.Status != StatusPending
}

// CreateHelpRequestInput represents input for creating a help request.
type CreateHelpRequestInput struct {
	RequesterHandle string `json:"requester_handle"`
	Question        string `json:"question" binding:"required"`
	Context         string `json:"context"`
	CorrelationID   string `json:"correlation_id" binding:"required"`
}

// ResolveHelpRequestInput represents input for resolving a help request.
type ResolveHelpRequestInput struct {
	Answer     string `json:"answer" binding:"required"`
	ResolverID string `json:"resolver_id"`
}

// AttachRequesterHandleInput represents input for recording the requester's
// contact handle after the request was created.
type AttachRequesterHandleInput struct {
	RequesterHandle string `json:"requester_handle" binding:"required"`
}

// RequestStats is the aggregate dashboard projection.
type RequestStats struct {
	Pending           int `json:"pending"`
	Resolved          int `json:"resolved"`
	TimedOut          int `json:"timed_out"`
	Total             int `json:"total"`
	KnowledgeBaseSize int `json:"knowledge_base_size"`
}
