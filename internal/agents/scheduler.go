package agents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mzanetti/aura/internal/notify"
	"github.com/mzanetti/aura/internal/observability"
	"github.com/mzanetti/aura/internal/tasks"
)

const (
	minTick            = 5 * time.Second
	defaultStaleness   = 5 * time.Minute
	defaultStuckWindow = 15 * time.Minute
	defaultPollTimeout = 30 * time.Second
)

var (
	ErrAgentExists  = errors.New("agents: agent already registered")
	ErrNoDispatcher = errors.New("agents: no dispatcher registered")
)

// Dispatcher is the downstream the scheduler hands sessions to once work
// exists for them.
type Dispatcher interface {
	ScheduleDispatch(sessionID string)
}

type Config struct {
	Queue       *tasks.Queue
	Activity    *notify.ActivityStream
	Metrics     *observability.Metrics
	Tick        time.Duration
	Staleness   time.Duration
	StuckWindow time.Duration
	PollTimeout time.Duration
}

type agentState struct {
	agent   ScheduledAgent
	lastRun time.Time
}

// Scheduler drives all registered agents from a single ticker loop. Each tick
// runs due pollers, enqueues whatever they produced, sweeps for stale
// confirmations and stuck dispatches, and requests exactly one dispatch per
// distinct session touched.
type Scheduler struct {
	queue       *tasks.Queue
	activity    *notify.ActivityStream
	metrics     *observability.Metrics
	tickEvery   time.Duration
	staleness   time.Duration
	stuckWindow time.Duration
	pollTimeout time.Duration

	mu         sync.Mutex
	agents     []*agentState
	names      map[string]struct{}
	dispatcher Dispatcher
}

func NewScheduler(cfg Config) *Scheduler {
	if cfg.Tick < minTick {
		cfg.Tick = minTick
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = defaultStaleness
	}
	if cfg.StuckWindow <= 0 {
		cfg.StuckWindow = defaultStuckWindow
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Scheduler{
		queue:       cfg.Queue,
		activity:    cfg.Activity,
		metrics:     cfg.Metrics,
		tickEvery:   cfg.Tick,
		staleness:   cfg.Staleness,
		stuckWindow: cfg.StuckWindow,
		pollTimeout: cfg.PollTimeout,
		names:       make(map[string]struct{}),
	}
}

// RegisterAgent adds an agent to the loop. Names are unique; the agent first
// polls one full interval after registration.
func (s *Scheduler) RegisterAgent(agent ScheduledAgent) error {
	name := strings.TrimSpace(agent.Name)
	if name == "" {
		return errors.New("agents: agent name is empty")
	}
	if agent.Poll == nil {
		return fmt.Errorf("agents: agent %q has no poller", name)
	}
	if agent.Interval <= 0 {
		return fmt.Errorf("agents: agent %q has non-positive interval", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("%w: %s", ErrAgentExists, name)
	}
	agent.Name = name
	s.names[name] = struct{}{}
	s.agents = append(s.agents, &agentState{agent: agent, lastRun: time.Now().UTC()})
	return nil
}

func (s *Scheduler) RegisterDispatcher(d Dispatcher) {
	s.mu.Lock()
	s.dispatcher = d
	s.mu.Unlock()
}

// RunForever ticks until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) error {
	s.mu.Lock()
	ready := s.dispatcher != nil
	s.mu.Unlock()
	if !ready {
		return ErrNoDispatcher
	}

	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	log.Printf("scheduler running, tick=%s agents=%d", s.tickEvery, len(s.agents))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now.UTC())
		}
	}
}

// tick is one pass of the loop: run due pollers, then the staleness and stuck
// sweeps, then one ScheduleDispatch per distinct touched session.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	touched := make(map[string]struct{})

	for _, st := range s.dueAgents(now) {
		produced, err := s.poll(ctx, st.agent)
		if err != nil {
			log.Printf("poller %s failed: %v", st.agent.Name, err)
			if s.metrics != nil {
				s.metrics.PollerRuns.WithLabelValues(st.agent.Name, "failed").Inc()
			}
			continue
		}
		if len(produced) == 0 {
			if s.metrics != nil {
				s.metrics.PollerRuns.WithLabelValues(st.agent.Name, "empty").Inc()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.PollerRuns.WithLabelValues(st.agent.Name, "produced").Inc()
		}

		// A poller that found nothing stays invisible; started/enqueued/
		// completed are published only on this branch.
		s.broadcast(notify.AgentEvent{Type: notify.EventAgentStarted, Agent: st.agent.Name})
		for _, item := range produced {
			if s.enqueue(st.agent.Name, item) {
				touched[item.SessionID] = struct{}{}
			}
		}
		s.broadcast(notify.AgentEvent{Type: notify.EventAgentCompleted, Agent: st.agent.Name})
	}

	for _, stale := range s.queue.StaleTasks(tasks.StatusWaitingUser, s.staleness, now) {
		touched[stale.SessionID] = struct{}{}
	}
	for _, stuck := range s.queue.StaleTasks(tasks.StatusInProgress, s.stuckWindow, now) {
		// A dispatch died mid-turn. Re-arm so the next dispatch can claim it.
		if _, err := s.queue.UpdateTask(stuck.SessionID, stuck.Task.ID, tasks.StatusQueued); err != nil {
			continue
		}
		log.Printf("re-armed stuck task session=%s task=%s", stuck.SessionID, stuck.Task.ID)
		touched[stuck.SessionID] = struct{}{}
	}

	s.mu.Lock()
	dispatcher := s.dispatcher
	s.mu.Unlock()
	for _, sessionID := range sortedKeys(touched) {
		dispatcher.ScheduleDispatch(sessionID)
	}
}

// dueAgents advances lastRun for every due agent before its poller runs, so a
// broken poller still waits out its interval instead of hot-looping.
func (s *Scheduler) dueAgents(now time.Time) []*agentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*agentState
	for _, st := range s.agents {
		if st.lastRun.Add(st.agent.Interval).After(now) {
			continue
		}
		st.lastRun = now
		due = append(due, st)
	}
	return due
}

func (s *Scheduler) poll(ctx context.Context, agent ScheduledAgent) ([]tasks.SessionTask, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()
	return agent.Poll(pollCtx)
}

// enqueue adds one produced task unless an equivalent live task already
// exists for the session. Reports whether the session needs a dispatch.
func (s *Scheduler) enqueue(agentName string, item tasks.SessionTask) bool {
	_, exists := s.queue.FindTaskByType(item.SessionID, item.Task.Type,
		tasks.StatusQueued, tasks.StatusInProgress, tasks.StatusWaitingUser)
	if exists {
		return false
	}

	stored := s.queue.Enqueue(item.SessionID, item.Task)
	if s.metrics != nil {
		s.metrics.TasksEnqueued.WithLabelValues(string(stored.Type)).Inc()
	}
	if s.activity != nil {
		s.activity.Publish(item.SessionID, notify.AgentEvent{
			Type:     notify.EventTaskEnqueued,
			Agent:    agentName,
			TaskID:   stored.ID,
			TaskType: string(stored.Type),
		})
	}
	return true
}

func (s *Scheduler) broadcast(ev notify.AgentEvent) {
	if s.activity != nil {
		s.activity.PublishToAllActiveSessions(ev)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
