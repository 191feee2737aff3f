package policy

import "strings"

// OrchestrationDecision says whether a request needs a multi-step plan and
// whether that plan must pause for user confirmation before acting.
type OrchestrationDecision struct {
	NeedsPlan            bool
	RequiresConfirmation bool
	Reason               string
}

var (
	multiStepConnectors = []string{
		" and then ", " then ", " after that ", " afterwards ", " followed by ",
		" and also ", " once you ", " before you ",
	}
	actionKeywords = []string{
		"schedule", "book", "reserve", "send", "email", "remind", "draft",
		"look up", "search", "find", "check", "compare", "plan", "organize",
		"summarize", "collect",
	}
	confirmationKeywords = []string{
		"send", "email", "book", "reserve", "buy", "pay", "order",
		"delete", "remove", "cancel", "share", "post", "publish",
	}
)

// IsOutwardFacing reports whether a clause has an effect beyond the
// conversation (sending, booking, publishing) and so needs confirmation.
func IsOutwardFacing(text string) bool {
	in := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range confirmationKeywords {
		if strings.Contains(in, kw) {
			return true
		}
	}
	return false
}

// DecideOrchestration classifies a fresh user request. It is only consulted
// when no pending plan is outstanding (acknowledgement detection runs first).
func DecideOrchestration(text string) OrchestrationDecision {
	in := strings.ToLower(strings.TrimSpace(text))
	if in == "" {
		return OrchestrationDecision{}
	}

	multiStep := false
	for _, c := range multiStepConnectors {
		if strings.Contains(in, c) {
			multiStep = true
			break
		}
	}

	actionable := false
	for _, kw := range actionKeywords {
		if strings.Contains(in, kw) {
			actionable = true
			break
		}
	}

	if !multiStep && !actionable {
		return OrchestrationDecision{Reason: "direct answer suffices"}
	}
	if !multiStep && actionable {
		// A single actionable clause is still handled as a plan only when it
		// has an outward effect; otherwise answer directly.
		if IsOutwardFacing(in) {
			return OrchestrationDecision{
				NeedsPlan:            true,
				RequiresConfirmation: true,
				Reason:               "outward-facing action needs confirmation",
			}
		}
		return OrchestrationDecision{Reason: "single lookup, answer directly"}
	}

	d := OrchestrationDecision{NeedsPlan: true, Reason: "multi-step request"}
	if IsOutwardFacing(in) {
		d.RequiresConfirmation = true
		d.Reason = "multi-step request with outward-facing action"
	}
	return d
}
