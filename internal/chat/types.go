package chat

import (
	"context"

	"github.com/mzanetti/aura/internal/notify"
	"github.com/mzanetti/aura/internal/plan"
)

const (
	OriginUser   = "user"
	OriginSystem = "system"
)

// Message is one inbound conversational turn. System-originated messages are
// synthetic dispatcher triggers and are not shown verbatim to the user.
type Message struct {
	Text        string
	Origin      string
	UseMemory   bool
	ForceSearch bool
}

// Result is what one pipeline turn produced. Plan carries the new plan state:
// nil means no plan, an outstanding plan means the session is awaiting
// acknowledgement, a completed plan means the caller should clear metadata.
type Result struct {
	ResponseText       string
	Events             []notify.AgentEvent
	Plan               *plan.PendingPlan
	AssistantPersisted bool
}

// Pipeline turns one inbound message plus the session's pending plan into a
// response. Callers own persisting the returned plan state and broadcasting
// the returned events.
type Pipeline interface {
	Run(ctx context.Context, sessionID string, msg Message, pending *plan.PendingPlan) (Result, error)
}
