package notify

import (
	"encoding/json"
	"time"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Notification is a durable, acknowledgeable message surfaced to a session.
// Content is a tagged union keyed by Type; read-state is mutated only by
// client acknowledgement.
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Urgency   Urgency         `json:"urgency"`
	Content   json.RawMessage `json:"content,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
}

func (n Notification) Clone() Notification {
	out := n
	if n.Content != nil {
		out.Content = append(json.RawMessage(nil), n.Content...)
	}
	if n.ReadAt != nil {
		at := *n.ReadAt
		out.ReadAt = &at
	}
	return out
}

// AgentEvent is fire-and-forget telemetry about background agent activity.
// Events with no live subscriber are dropped.
type AgentEvent struct {
	Type      string    `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	TaskType  string    `json:"task_type,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

const (
	EventAgentStarted   = "agent_started"
	EventAgentCompleted = "agent_completed"
	EventTaskEnqueued   = "task_enqueued"
	EventDispatchBegan  = "dispatch_began"
	EventDispatchEnded  = "dispatch_ended"
	EventToolExecuted   = "tool_executed"
	EventPlanPaused     = "plan_paused"
	EventPlanResumed    = "plan_resumed"
	EventPlanCompleted  = "plan_completed"
	EventPlanAbandoned  = "plan_abandoned"
)
