package tasks

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusInProgress  Status = "in_progress"
	StatusWaitingUser Status = "waiting_user"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Type string

const (
	TypeResolveContradiction Type = "resolve_contradiction"
	TypeServiceAlert         Type = "service_alert"
	TypeFollowUp             Type = "follow_up"
)

// Task is a unit of background-originated work targeted at one session.
// It is owned by the Queue and mutated only through its update API; it
// belongs to exactly one session and never migrates.
type Task struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Origin    string          `json:"origin"`
	Priority  Priority        `json:"priority"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (t Task) Clone() Task {
	out := t
	if t.Payload != nil {
		out.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	return out
}

// SessionTask pairs a task with the session it belongs to; pollers yield these.
type SessionTask struct {
	SessionID string `json:"session_id"`
	Task      Task   `json:"task"`
}
