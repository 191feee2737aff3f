package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mzanetti/aura/internal/notify"
)

var ErrNoPlan = errors.New("no plan to execute")

// ToolRunner executes one named tool invocation.
type ToolRunner interface {
	Run(ctx context.Context, name string, inputs map[string]string) (string, error)
}

// Completer produces free text from a prompt; used by respond steps.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Outcome reports how one execution pass ended. At most one pause is honored
// per pass: a plan cannot request a second confirmation without an
// intervening user turn.
type Outcome struct {
	Paused   bool
	Question string
	Response string
	Events   []notify.AgentEvent
}

// Executor advances a PendingPlan step by step, mutating it in place.
type Executor struct {
	tools     ToolRunner
	completer Completer
}

func NewExecutor(tools ToolRunner, completer Completer) *Executor {
	return &Executor{tools: tools, completer: completer}
}

// Run executes steps starting at p.Index. Tool steps record their result on
// the step; a wait_user step stops immediately with Index already advanced
// past it; a respond step summarizes every result gathered across the whole
// plan. When all steps have run the plan is marked completed.
func (e *Executor) Run(ctx context.Context, sessionID string, p *PendingPlan) (Outcome, error) {
	if p == nil || len(p.Steps) == 0 {
		return Outcome{}, ErrNoPlan
	}

	var out Outcome
	for p.Index < len(p.Steps) {
		step := &p.Steps[p.Index]
		switch step.Action {
		case ActionTool:
			if e.tools == nil {
				return out, fmt.Errorf("step %d: no tool runner configured", p.Index)
			}
			result, err := e.tools.Run(ctx, step.ToolName, step.ToolInputs)
			if err != nil {
				return out, fmt.Errorf("step %d tool %q: %w", p.Index, step.ToolName, err)
			}
			step.Result = result
			p.Index++
			p.Dirty = true
			out.Events = append(out.Events, notify.AgentEvent{
				Type:      notify.EventToolExecuted,
				SessionID: sessionID,
				Detail:    step.ToolName,
				At:        time.Now().UTC(),
			})

		case ActionWaitUser:
			p.Index++
			p.Dirty = true
			out.Paused = true
			out.Question = step.Description
			if strings.TrimSpace(out.Question) == "" {
				out.Question = "Should I go ahead with the rest of this?"
			}
			out.Events = append(out.Events, notify.AgentEvent{
				Type:      notify.EventPlanPaused,
				SessionID: sessionID,
				Detail:    out.Question,
				At:        time.Now().UTC(),
			})
			return out, nil

		case ActionRespond:
			text, err := e.respond(ctx, p)
			if err != nil {
				return out, fmt.Errorf("step %d respond: %w", p.Index, err)
			}
			step.Result = text
			out.Response = text
			p.Index++
			p.Dirty = true

		default:
			return out, fmt.Errorf("step %d: unknown action %q", p.Index, step.Action)
		}
	}

	p.Completed = true
	p.Dirty = true
	if out.Response == "" {
		out.Response = summarize(p.Results())
	}
	out.Events = append(out.Events, notify.AgentEvent{
		Type:      notify.EventPlanCompleted,
		SessionID: sessionID,
		Detail:    p.Origin,
		At:        time.Now().UTC(),
	})
	return out, nil
}

// respond summarizes results from every prior step, not just the last one.
func (e *Executor) respond(ctx context.Context, p *PendingPlan) (string, error) {
	results := p.Results()
	if e.completer == nil {
		return summarize(results), nil
	}

	var b strings.Builder
	b.WriteString("Summarize the outcome of this multi-step request for the user.\n")
	if p.Origin != "" {
		b.WriteString("Request: " + p.Origin + "\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "Step %d result: %s\n", i+1, r)
	}
	text, err := e.completer.Complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = summarize(results)
	}
	return text, nil
}

func summarize(results []string) string {
	if len(results) == 0 {
		return "Done."
	}
	return strings.Join(results, " ")
}
