package session

import (
	"context"
	"time"

	"github.com/mzanetti/aura/internal/plan"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one persisted conversational turn. Origin distinguishes turns
// typed by the user from synthetic dispatcher triggers.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Origin    string    `json:"origin,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata is the session-scoped JSON document. The pending plan survives
// across turns here; clearing the field clears the plan.
type Metadata struct {
	PendingPlan *plan.PendingPlan `json:"pending_plan,omitempty"`
}

// Store persists conversational turns and session metadata.
type Store interface {
	SaveMessage(ctx context.Context, msg Message) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	SearchMessages(ctx context.Context, sessionID, query string, limit int) ([]string, error)
	// HasSystemLog reports whether this exact system line was already
	// written to the session transcript.
	HasSystemLog(ctx context.Context, sessionID, content string) (bool, error)
	SaveMetadata(ctx context.Context, sessionID string, meta Metadata) error
	LoadMetadata(ctx context.Context, sessionID string) (Metadata, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
