package dispatch

import (
	"fmt"
	"strings"

	"github.com/mzanetti/aura/internal/tasks"
)

// TriggerConfig is the static per-task-type shape of the synthetic message a
// dispatch injects into the chat pipeline. SystemLog, when set, is written to
// the session transcript once irrespective of how many tasks of the type run.
type TriggerConfig struct {
	Text      string
	UseMemory bool
	SystemLog string
}

// DefaultTriggers covers every built-in task type.
func DefaultTriggers() map[tasks.Type]TriggerConfig {
	return map[tasks.Type]TriggerConfig{
		tasks.TypeResolveContradiction: {
			Text:      "Two things you remember about the user disagree. Surface the conflict and ask which is right.",
			UseMemory: true,
			SystemLog: "background: contradiction detected in stored memories",
		},
		tasks.TypeServiceAlert: {
			Text:      "A service the user relies on looks unhealthy. Let them know and suggest what to check.",
			UseMemory: false,
			SystemLog: "background: service health alert raised",
		},
		tasks.TypeFollowUp: {
			Text:      "A follow-up the user asked for earlier is due. Bring it up naturally.",
			UseMemory: true,
		},
	}
}

// buildTriggerText is the single consumption point for task payloads: the
// tagged union is decoded here and folded into the trigger message.
func buildTriggerText(cfg TriggerConfig, task tasks.Task) string {
	base := cfg.Text
	if strings.TrimSpace(base) == "" {
		base = fmt.Sprintf("Background work of type %q needs a conversational turn.", task.Type)
	}

	switch task.Type {
	case tasks.TypeResolveContradiction:
		p, err := tasks.DecodeContradiction(task)
		if err != nil {
			return base
		}
		return fmt.Sprintf("%s The conflicting notes: %q vs %q.", base, p.FactA, p.FactB)
	case tasks.TypeServiceAlert:
		p, err := tasks.DecodeServiceAlert(task)
		if err != nil {
			return base
		}
		detail := p.Detail
		if detail == "" {
			detail = "no further detail"
		}
		return fmt.Sprintf("%s Service %s (%s): %s.", base, p.Service, p.Endpoint, detail)
	case tasks.TypeFollowUp:
		p, err := tasks.DecodeFollowUp(task)
		if err != nil {
			return base
		}
		return fmt.Sprintf("%s Subject: %s.", base, p.Subject)
	default:
		return base
	}
}
