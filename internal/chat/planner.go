package chat

import (
	"strings"

	"github.com/mzanetti/aura/internal/plan"
	"github.com/mzanetti/aura/internal/policy"
)

var clauseConnectors = []string{
	" and then ", " then ", " after that ", " afterwards ", " followed by ", " and also ",
}

// BuildPlan turns a multi-step request into an ordered plan: one tool step
// per clause, a wait_user gate before the first outward-facing clause when
// the decision requires confirmation, and a trailing respond step.
func BuildPlan(sessionID, text string, d policy.OrchestrationDecision) *plan.PendingPlan {
	clauses := splitClauses(text)
	steps := make([]plan.Step, 0, len(clauses)+2)
	gated := false

	for _, clause := range clauses {
		if d.RequiresConfirmation && !gated && policy.IsOutwardFacing(clause) {
			steps = append(steps, plan.Step{
				Description: confirmationQuestion(clause),
				Action:      plan.ActionWaitUser,
			})
			gated = true
		}
		name, inputs := inferTool(sessionID, clause)
		steps = append(steps, plan.Step{
			Description: clause,
			Action:      plan.ActionTool,
			ToolName:    name,
			ToolInputs:  inputs,
		})
	}
	if d.RequiresConfirmation && !gated {
		// No single clause matched; gate the whole plan up front.
		steps = append([]plan.Step{{
			Description: confirmationQuestion(text),
			Action:      plan.ActionWaitUser,
		}}, steps...)
	}
	steps = append(steps, plan.Step{
		Description: "summarize the outcome",
		Action:      plan.ActionRespond,
	})

	return &plan.PendingPlan{
		Steps:  steps,
		Origin: strings.TrimSpace(text),
		Dirty:  true,
	}
}

func splitClauses(text string) []string {
	in := strings.TrimSpace(text)
	parts := []string{in}
	for _, conn := range clauseConnectors {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, conn)...)
		}
		parts = next
	}
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(p, ".!?,"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func confirmationQuestion(clause string) string {
	clause = strings.TrimSpace(strings.Trim(clause, ".!?,"))
	if clause == "" {
		return "Should I go ahead?"
	}
	return "Before I " + clause + ", should I go ahead?"
}

func inferTool(sessionID, clause string) (string, map[string]string) {
	in := strings.ToLower(clause)
	switch {
	case strings.Contains(in, "http://") || strings.Contains(in, "https://"):
		return "check_service", map[string]string{"url": extractURL(clause)}
	case strings.Contains(in, "what time") || strings.Contains(in, "current time"):
		return "current_time", nil
	default:
		return "search_memory", map[string]string{"session_id": sessionID, "query": clause}
	}
}

func extractURL(clause string) string {
	for _, f := range strings.Fields(clause) {
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			return strings.Trim(f, ".,)")
		}
	}
	return ""
}
