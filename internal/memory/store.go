// Package memory provides the optional per-agent context store consumed by
// the coordination core. Absence of a real backend degrades gracefully: the
// no-op store accepts writes and returns empty results.
package memory

import (
	"context"
	"time"
)

// Entry is one persisted piece of agent context.
type Entry struct {
	// ID is the unique entry identifier.
	ID string `json:"id"`
	// AgentID is the agent this entry belongs to.
	AgentID string `json:"agent_id"`
	// TaskID is the orchestration task the entry was recorded under.
	TaskID string `json:"task_id"`
	// Kind labels the entry (e.g. "step_output", "introduction").
	Kind string `json:"kind"`
	// Content is the entry payload.
	Content string `json:"content"`
	// CreatedAt is when the entry was stored.
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects entries in Query. Zero-valued fields match everything.
type Filter struct {
	// AgentID filters by agent.
	AgentID string
	// TaskID filters by orchestration task.
	TaskID string
	// Kind filters by entry kind.
	Kind string
	// Limit caps the number of returned entries; 0 means no cap.
	Limit int
}

// Store is the minimal store/query capability the core consumes.
type Store interface {
	// Save persists one entry.
	Save(ctx context.Context, e Entry) error
	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Entry, error)
	// Close releases the store's resources.
	Close() error
}

// NopStore is the degraded store used when no backend is configured.
// Saves are discarded and queries return empty results.
type NopStore struct{}

// Save implements Store.
func (NopStore) Save(ctx context.Context, e Entry) error { return nil }

// Query implements Store.
func (NopStore) Query(ctx context.Context, f Filter) ([]Entry, error) { return nil, nil }

// Close implements Store.
func (NopStore) Close() error { return nil }
