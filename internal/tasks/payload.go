package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrPayloadMismatch = errors.New("payload type mismatch")

// ContradictionPayload describes two memorized facts that disagree.
type ContradictionPayload struct {
	FactA     string   `json:"fact_a"`
	FactB     string   `json:"fact_b"`
	MemoryIDs []string `json:"memory_ids,omitempty"`
}

// ServiceAlertPayload describes an unhealthy monitored service.
type ServiceAlertPayload struct {
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
	Detail   string `json:"detail,omitempty"`
}

// FollowUpPayload carries the subject of a deferred follow-up.
type FollowUpPayload struct {
	Subject string `json:"subject"`
}

func NewContradictionTask(origin string, p ContradictionPayload) Task {
	return Task{
		Type:     TypeResolveContradiction,
		Origin:   origin,
		Priority: PriorityNormal,
		Payload:  mustMarshal(p),
	}
}

func NewServiceAlertTask(origin string, p ServiceAlertPayload) Task {
	return Task{
		Type:     TypeServiceAlert,
		Origin:   origin,
		Priority: PriorityHigh,
		Payload:  mustMarshal(p),
	}
}

func NewFollowUpTask(origin string, p FollowUpPayload) Task {
	return Task{
		Type:     TypeFollowUp,
		Origin:   origin,
		Priority: PriorityLow,
		Payload:  mustMarshal(p),
	}
}

// DecodeContradiction decodes the tagged payload of a resolve_contradiction task.
func DecodeContradiction(t Task) (ContradictionPayload, error) {
	var p ContradictionPayload
	if t.Type != TypeResolveContradiction {
		return p, fmt.Errorf("%w: task type %q", ErrPayloadMismatch, t.Type)
	}
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return p, fmt.Errorf("decode contradiction payload: %w", err)
	}
	return p, nil
}

// DecodeServiceAlert decodes the tagged payload of a service_alert task.
func DecodeServiceAlert(t Task) (ServiceAlertPayload, error) {
	var p ServiceAlertPayload
	if t.Type != TypeServiceAlert {
		return p, fmt.Errorf("%w: task type %q", ErrPayloadMismatch, t.Type)
	}
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return p, fmt.Errorf("decode service alert payload: %w", err)
	}
	return p, nil
}

// DecodeFollowUp decodes the tagged payload of a follow_up task.
func DecodeFollowUp(t Task) (FollowUpPayload, error) {
	var p FollowUpPayload
	if t.Type != TypeFollowUp {
		return p, fmt.Errorf("%w: task type %q", ErrPayloadMismatch, t.Type)
	}
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return p, fmt.Errorf("decode follow-up payload: %w", err)
	}
	return p, nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Payload structs contain only strings and slices; marshal cannot fail.
		return nil
	}
	return data
}
