package plan

type Action string

const (
	ActionTool     Action = "tool"
	ActionWaitUser Action = "wait_user"
	ActionRespond  Action = "respond"
)

// Step is one unit of a multi-step response plan. Result is filled in as the
// step executes so a trailing respond step can summarize the whole plan even
// across a pause.
type Step struct {
	Description string            `json:"description"`
	Action      Action            `json:"action"`
	ToolName    string            `json:"tool_name,omitempty"`
	ToolInputs  map[string]string `json:"tool_inputs,omitempty"`
	Result      string            `json:"result,omitempty"`
}

// PendingPlan is the externalized per-session plan state. Index points at the
// next unexecuted step; after a wait_user pause it already points past the
// wait, so acknowledgement resumes without re-running anything. Dirty is
// runtime-only and marks unsaved mutations.
type PendingPlan struct {
	Steps     []Step `json:"steps"`
	Index     int    `json:"index"`
	Origin    string `json:"origin"`
	Completed bool   `json:"completed"`
	Dirty     bool   `json:"-"`
}

func (p *PendingPlan) Clone() *PendingPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		out.Steps[i] = s
		if s.ToolInputs != nil {
			inputs := make(map[string]string, len(s.ToolInputs))
			for k, v := range s.ToolInputs {
				inputs[k] = v
			}
			out.Steps[i].ToolInputs = inputs
		}
	}
	return &out
}

// Outstanding reports whether the next user turn must be interpreted as
// acknowledgement-or-invalidation.
func (p *PendingPlan) Outstanding() bool {
	return p != nil && !p.Completed
}

// Results collects the non-empty results recorded so far, in step order.
func (p *PendingPlan) Results() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s.Result != "" {
			out = append(out, s.Result)
		}
	}
	return out
}
