package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mzanetti/aura/internal/chat"
	"github.com/mzanetti/aura/internal/notify"
	"github.com/mzanetti/aura/internal/observability"
	"github.com/mzanetti/aura/internal/session"
	"github.com/mzanetti/aura/internal/tasks"
)

const (
	defaultStaleness = 5 * time.Minute
	defaultTimeout   = 2 * time.Minute
)

type Config struct {
	Queue         *tasks.Queue
	Pipeline      chat.Pipeline
	Store         session.Store
	Activity      *notify.ActivityStream
	Notifications *notify.Center
	Metrics       *observability.Metrics
	Staleness     time.Duration
	Timeout       time.Duration
	Triggers      map[tasks.Type]TriggerConfig
}

// Dispatcher turns "actionable work exists for session S" into exactly one
// conversational turn. A pending set collapses repeated schedule calls while
// a dispatch for the session is in flight; a per-session mutex serializes
// dispatches for one session while different sessions run in parallel.
type Dispatcher struct {
	queue         *tasks.Queue
	pipeline      chat.Pipeline
	store         session.Store
	activity      *notify.ActivityStream
	notifications *notify.Center
	metrics       *observability.Metrics
	staleness     time.Duration
	timeout       time.Duration
	triggers      map[tasks.Type]TriggerConfig

	mu      sync.Mutex
	pending map[string]struct{}
	locks   map[string]*sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func New(cfg Config) *Dispatcher {
	if cfg.Staleness <= 0 {
		cfg.Staleness = defaultStaleness
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Triggers == nil {
		cfg.Triggers = DefaultTriggers()
	}
	return &Dispatcher{
		queue:         cfg.Queue,
		pipeline:      cfg.Pipeline,
		store:         cfg.Store,
		activity:      cfg.Activity,
		notifications: cfg.Notifications,
		metrics:       cfg.Metrics,
		staleness:     cfg.Staleness,
		timeout:       cfg.Timeout,
		triggers:      cfg.Triggers,
		pending:       make(map[string]struct{}),
		locks:         make(map[string]*sync.Mutex),
	}
}

// ScheduleDispatch requests one dispatch for the session. It is idempotent
// while a dispatch for the same session is already pending and never blocks
// on the dispatch itself.
func (d *Dispatcher) ScheduleDispatch(sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if _, inFlight := d.pending[sessionID]; inFlight {
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.Dispatches.WithLabelValues("collapsed").Inc()
		}
		return
	}
	d.pending[sessionID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.pending, sessionID)
			d.mu.Unlock()
		}()
		d.run(sessionID)
	}()
}

// Shutdown stops accepting new dispatches and waits for in-flight ones.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) run(sessionID string) {
	lock := d.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	task, ok := d.selectAndClaim(sessionID)
	if !ok {
		if d.metrics != nil {
			d.metrics.Dispatches.WithLabelValues("noop").Inc()
		}
		return
	}

	start := time.Now()
	if d.activity != nil {
		d.activity.Publish(sessionID, notify.AgentEvent{
			Type:     notify.EventDispatchBegan,
			TaskID:   task.ID,
			TaskType: string(task.Type),
		})
	}

	err := d.runTurn(sessionID, task)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
		// The task is left in whatever status it was mutated to; the
		// scheduler's stuck sweep re-arms it after the recovery window.
		log.Printf("dispatch failed session=%s task=%s: %v", sessionID, task.ID, err)
	}
	if d.metrics != nil {
		d.metrics.Dispatches.WithLabelValues(outcome).Inc()
		d.metrics.ObserveDispatchLatency(time.Since(start))
	}
	if d.activity != nil {
		d.activity.Publish(sessionID, notify.AgentEvent{
			Type:     notify.EventDispatchEnded,
			TaskID:   task.ID,
			TaskType: string(task.Type),
			Detail:   outcome,
		})
	}
}

// selectAndClaim picks the session's actionable task and marks it in_progress
// before the pipeline runs, closing the window where a second tick could
// claim the same task.
func (d *Dispatcher) selectAndClaim(sessionID string) (tasks.Task, bool) {
	now := time.Now().UTC()

	task, ok := d.queue.FindTaskByStatus(sessionID, tasks.StatusQueued)
	if !ok {
		if _, busy := d.queue.FindTaskByStatus(sessionID, tasks.StatusInProgress); busy {
			// Re-entrancy guard: a turn for this session is already running.
			return tasks.Task{}, false
		}
		waiting, found := d.queue.FindTaskByStatus(sessionID, tasks.StatusWaitingUser)
		if !found || now.Sub(waiting.UpdatedAt) < d.staleness {
			return tasks.Task{}, false
		}
		// Explicit re-arm: the only permitted backward transition.
		rearmed, err := d.queue.UpdateTask(sessionID, waiting.ID, tasks.StatusQueued)
		if err != nil {
			return tasks.Task{}, false
		}
		task = rearmed
	}

	claimed, err := d.queue.UpdateTask(sessionID, task.ID, tasks.StatusInProgress)
	if err != nil {
		return tasks.Task{}, false
	}
	return claimed, true
}

func (d *Dispatcher) runTurn(sessionID string, task tasks.Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	cfg, ok := d.triggers[task.Type]
	if !ok {
		cfg = TriggerConfig{}
	}

	if cfg.SystemLog != "" && d.store != nil {
		exists, err := d.store.HasSystemLog(ctx, sessionID, cfg.SystemLog)
		if err != nil {
			return fmt.Errorf("check system log: %w", err)
		}
		if !exists {
			if err := d.store.SaveMessage(ctx, session.Message{
				SessionID: sessionID,
				Role:      session.RoleSystem,
				Origin:    chat.OriginSystem,
				Content:   cfg.SystemLog,
			}); err != nil {
				return fmt.Errorf("write system log: %w", err)
			}
		}
	}

	var meta session.Metadata
	if d.store != nil {
		var err error
		meta, err = d.store.LoadMetadata(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load metadata: %w", err)
		}
	}

	msg := chat.Message{
		Text:      buildTriggerText(cfg, task),
		Origin:    chat.OriginSystem,
		UseMemory: cfg.UseMemory,
	}
	res, err := d.pipeline.Run(ctx, sessionID, msg, meta.PendingPlan)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if d.store != nil {
		if !res.AssistantPersisted && res.ResponseText != "" {
			if err := d.store.SaveMessage(ctx, session.Message{
				SessionID: sessionID,
				Role:      session.RoleAssistant,
				Content:   res.ResponseText,
			}); err != nil {
				return fmt.Errorf("persist assistant message: %w", err)
			}
		}
		newMeta := session.Metadata{}
		if res.Plan.Outstanding() {
			newMeta.PendingPlan = res.Plan
		}
		if err := d.store.SaveMetadata(ctx, sessionID, newMeta); err != nil {
			return fmt.Errorf("save metadata: %w", err)
		}
	}

	status := tasks.StatusCompleted
	if res.Plan.Outstanding() {
		status = tasks.StatusWaitingUser
	}
	if _, err := d.queue.UpdateTask(sessionID, task.ID, status); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if d.metrics != nil {
		d.metrics.ObserveTaskEvent(string(status))
	}

	// Re-broadcast the pipeline's activity events so dispatcher-initiated
	// turns are observably identical to user-initiated ones.
	for _, ev := range res.Events {
		if d.activity != nil {
			d.activity.Publish(sessionID, ev)
		}
		if d.metrics != nil && strings.HasPrefix(ev.Type, "plan_") {
			d.metrics.PlanEvents.WithLabelValues(ev.Type).Inc()
		}
	}

	if status == tasks.StatusWaitingUser && d.notifications != nil {
		content, _ := json.Marshal(map[string]string{"question": res.ResponseText, "task_id": task.ID})
		d.notifications.Publish(notify.Notification{
			Type:      "confirmation_request",
			Urgency:   notify.UrgencyHigh,
			SessionID: sessionID,
			Content:   content,
		})
	}
	return nil
}

func (d *Dispatcher) sessionLock(sessionID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[sessionID] = lock
	}
	return lock
}
