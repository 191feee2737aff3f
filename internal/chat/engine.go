package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mzanetti/aura/internal/llm"
	"github.com/mzanetti/aura/internal/notify"
	"github.com/mzanetti/aura/internal/plan"
	"github.com/mzanetti/aura/internal/policy"
	"github.com/mzanetti/aura/internal/session"
)

const memoryContextLimit = 10

// Engine is the chat pipeline with the plan engine embedded. One Run call is
// one conversational turn: it resumes, abandons, creates, or bypasses a plan
// and produces the assistant's response.
type Engine struct {
	completer llm.Completer
	executor  *plan.Executor
	store     session.Store
}

func NewEngine(completer llm.Completer, executor *plan.Executor, store session.Store) *Engine {
	return &Engine{completer: completer, executor: executor, store: store}
}

func (e *Engine) Run(ctx context.Context, sessionID string, msg Message, pending *plan.PendingPlan) (Result, error) {
	var res Result
	p := pending.Clone()

	if e.store != nil {
		role := session.RoleUser
		if msg.Origin == OriginSystem {
			role = session.RoleSystem
		}
		if err := e.store.SaveMessage(ctx, session.Message{
			SessionID: sessionID,
			Role:      role,
			Origin:    msg.Origin,
			Content:   msg.Text,
		}); err != nil {
			return Result{}, fmt.Errorf("persist inbound message: %w", err)
		}
	}

	if p.Outstanding() {
		switch msg.Origin {
		case OriginUser:
			// Acknowledgement detection takes precedence over any request
			// flag on the same turn (e.g. a force-search flag).
			if policy.IsAcknowledgement(msg.Text) {
				res.Events = append(res.Events, notify.AgentEvent{
					Type:      notify.EventPlanResumed,
					SessionID: sessionID,
					Detail:    p.Origin,
					At:        time.Now().UTC(),
				})
				outcome, err := e.executor.Run(ctx, sessionID, p)
				if err != nil {
					return Result{}, err
				}
				return e.finish(ctx, sessionID, p, outcome, res)
			}
			// An unrelated message abandons the plan; the turn is then
			// classified from scratch.
			res.Events = append(res.Events, notify.AgentEvent{
				Type:      notify.EventPlanAbandoned,
				SessionID: sessionID,
				Detail:    p.Origin,
				At:        time.Now().UTC(),
			})
			p = nil

		case OriginSystem:
			// A dispatcher re-surfacing a stale confirmation: re-ask the
			// question instead of treating the trigger as a new request.
			res.ResponseText = reaskQuestion(p)
			res.Plan = p
			if err := e.persistAssistant(ctx, sessionID, &res); err != nil {
				return Result{}, err
			}
			return res, nil
		}
	}

	decision := policy.DecideOrchestration(msg.Text)
	if decision.NeedsPlan {
		p = BuildPlan(sessionID, msg.Text, decision)
		outcome, err := e.executor.Run(ctx, sessionID, p)
		if err != nil {
			return Result{}, err
		}
		return e.finish(ctx, sessionID, p, outcome, res)
	}

	text, err := e.directAnswer(ctx, sessionID, msg)
	if err != nil {
		return Result{}, err
	}
	res.ResponseText = text
	if err := e.persistAssistant(ctx, sessionID, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *Engine) finish(ctx context.Context, sessionID string, p *plan.PendingPlan, outcome plan.Outcome, res Result) (Result, error) {
	res.Events = append(res.Events, outcome.Events...)
	res.Plan = p
	if outcome.Paused {
		res.ResponseText = outcome.Question
	} else {
		res.ResponseText = outcome.Response
	}
	if err := e.persistAssistant(ctx, sessionID, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *Engine) directAnswer(ctx context.Context, sessionID string, msg Message) (string, error) {
	if e.completer == nil {
		return "I don't have an answer for that right now.", nil
	}
	req := llm.Request{SessionID: sessionID, Prompt: msg.Text}
	if (msg.UseMemory || msg.ForceSearch) && e.store != nil {
		recent, err := e.store.RecentMessages(ctx, sessionID, memoryContextLimit)
		if err != nil {
			return "", fmt.Errorf("load memory context: %w", err)
		}
		for _, m := range recent {
			req.Context = append(req.Context, m.Role+": "+m.Content)
		}
	}
	text, err := e.completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (e *Engine) persistAssistant(ctx context.Context, sessionID string, res *Result) error {
	if e.store == nil || res.ResponseText == "" {
		return nil
	}
	if err := e.store.SaveMessage(ctx, session.Message{
		SessionID: sessionID,
		Role:      session.RoleAssistant,
		Content:   res.ResponseText,
	}); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	res.AssistantPersisted = true
	return nil
}

// reaskQuestion recovers the confirmation prompt of a paused plan. Index
// already points past the wait step.
func reaskQuestion(p *plan.PendingPlan) string {
	if p != nil && p.Index > 0 && p.Index <= len(p.Steps) {
		step := p.Steps[p.Index-1]
		if step.Action == plan.ActionWaitUser && strings.TrimSpace(step.Description) != "" {
			return "Still waiting on you: " + step.Description
		}
	}
	return "I still have a plan waiting on your confirmation. Should I continue?"
}
