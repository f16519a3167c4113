package models

import "time"

// Knowledge entry provenance values.
const (
	ProvenanceSeeded  = "seeded"
	ProvenanceLearned = "learned"
)

// KnowledgeEntry represents one known question/answer pair stored in the
// 'knowledge_entries' table. NormalizedKey is unique across the table; entries
// are soft-deleted via Active and never removed.
type KnowledgeEntry struct {
	ID              string    `db:"id" json:"id"`
	Question        string    `db:"question" json:"question"`
	NormalizedKey   string    `db:"normalized_key" json:"normalized_key"`
	Answer          string    `db:"answer" json:"answer"`
	Provenance      string    `db:"provenance" json:"provenance"`
	SourceRequestID *string   `db:"source_request_id" json:"source_request_id,omitempty"`
	UsageCount      int64     `db:"usage_count" json:"usage_count"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// SeedEntry is one pre-canned question/answer pair loaded at bootstrap.
type SeedEntry struct {
	Question string `yaml:"question" json:"question" binding:"required"`
	Answer   string `yaml:"answer" json:"answer" binding:"required"`
}

// KnowledgeMatch is a successful lookup result.
type KnowledgeMatch struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// SearchKnowledgeInput represents input for the knowledge search endpoint.
type SearchKnowledgeInput struct {
	Question string `json:"question" binding:"required"`
}
