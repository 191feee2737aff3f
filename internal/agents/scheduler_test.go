package agents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mzanetti/aura/internal/notify"
	"github.com/mzanetti/aura/internal/tasks"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	sessions []string
}

func (f *fakeDispatcher) ScheduleDispatch(sessionID string) {
	f.mu.Lock()
	f.sessions = append(f.sessions, sessionID)
	f.mu.Unlock()
}

func (f *fakeDispatcher) scheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func newTestScheduler(q *tasks.Queue, activity *notify.ActivityStream) (*Scheduler, *fakeDispatcher) {
	s := NewScheduler(Config{
		Queue:     q,
		Activity:  activity,
		Staleness: time.Minute,
	})
	d := &fakeDispatcher{}
	s.RegisterDispatcher(d)
	return s, d
}

func drainEvents(ch <-chan notify.AgentEvent) []notify.AgentEvent {
	var out []notify.AgentEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRegisterAgentRejectsDuplicates(t *testing.T) {
	s, _ := newTestScheduler(tasks.NewQueue(0), nil)
	agent := ScheduledAgent{
		Name:     "probe",
		Interval: time.Minute,
		Poll:     func(context.Context) ([]tasks.SessionTask, error) { return nil, nil },
	}
	if err := s.RegisterAgent(agent); err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}
	if err := s.RegisterAgent(agent); !errors.Is(err, ErrAgentExists) {
		t.Fatalf("RegisterAgent() duplicate error = %v, want ErrAgentExists", err)
	}
}

func TestRunForeverRequiresDispatcher(t *testing.T) {
	s := NewScheduler(Config{Queue: tasks.NewQueue(0)})
	if err := s.RunForever(context.Background()); !errors.Is(err, ErrNoDispatcher) {
		t.Fatalf("RunForever() error = %v, want ErrNoDispatcher", err)
	}
}

func TestEmptyPollerStaysInvisible(t *testing.T) {
	activity := notify.NewActivityStream()
	events, cancel := activity.Subscribe("s1")
	defer cancel()

	s, d := newTestScheduler(tasks.NewQueue(0), activity)
	polls := 0
	if err := s.RegisterAgent(ScheduledAgent{
		Name:     "probe",
		Interval: time.Minute,
		Poll: func(context.Context) ([]tasks.SessionTask, error) {
			polls++
			return nil, nil
		},
	}); err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}

	s.tick(context.Background(), time.Now().UTC().Add(2*time.Minute))
	if polls != 1 {
		t.Fatalf("polls = %d, want 1", polls)
	}
	if got := drainEvents(events); len(got) != 0 {
		t.Fatalf("empty poller published %d events, want 0", len(got))
	}
	if got := d.scheduled(); len(got) != 0 {
		t.Fatalf("empty poller scheduled dispatches %v, want none", got)
	}
}

func TestFailingPollerStillAdvancesInterval(t *testing.T) {
	s, _ := newTestScheduler(tasks.NewQueue(0), nil)
	polls := 0
	if err := s.RegisterAgent(ScheduledAgent{
		Name:     "broken",
		Interval: time.Minute,
		Poll: func(context.Context) ([]tasks.SessionTask, error) {
			polls++
			return nil, errors.New("upstream down")
		},
	}); err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}

	base := time.Now().UTC().Add(2 * time.Minute)
	s.tick(context.Background(), base)
	s.tick(context.Background(), base.Add(30*time.Second))
	if polls != 1 {
		t.Fatalf("polls after early re-tick = %d, want 1 (interval must advance on failure)", polls)
	}
	s.tick(context.Background(), base.Add(time.Minute))
	if polls != 2 {
		t.Fatalf("polls after full interval = %d, want 2", polls)
	}
}

func TestProducingPollerEnqueuesAndDispatchesOncePerSession(t *testing.T) {
	q := tasks.NewQueue(0)
	activity := notify.NewActivityStream()
	events, cancel := activity.Subscribe("s1")
	defer cancel()

	s, d := newTestScheduler(q, activity)
	if err := s.RegisterAgent(ScheduledAgent{
		Name:     "detector",
		Interval: time.Minute,
		Poll: func(context.Context) ([]tasks.SessionTask, error) {
			return []tasks.SessionTask{
				{SessionID: "s1", Task: tasks.NewFollowUpTask("detector", tasks.FollowUpPayload{Subject: "trip"})},
				{SessionID: "s1", Task: tasks.NewContradictionTask("detector", tasks.ContradictionPayload{FactA: "a", FactB: "b"})},
			}, nil
		},
	}); err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}

	s.tick(context.Background(), time.Now().UTC().Add(2*time.Minute))

	if got := len(q.ListBySession("s1")); got != 2 {
		t.Fatalf("queued tasks = %d, want 2", got)
	}
	if got := d.scheduled(); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("scheduled = %v, want exactly [s1]", got)
	}

	var types []string
	for _, ev := range drainEvents(events) {
		types = append(types, ev.Type)
	}
	want := []string{
		notify.EventAgentStarted,
		notify.EventTaskEnqueued,
		notify.EventTaskEnqueued,
		notify.EventAgentCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestSchedulerSuppressesDuplicateTasks(t *testing.T) {
	q := tasks.NewQueue(0)
	s, d := newTestScheduler(q, nil)
	if err := s.RegisterAgent(ScheduledAgent{
		Name:     "detector",
		Interval: time.Minute,
		Poll: func(context.Context) ([]tasks.SessionTask, error) {
			return []tasks.SessionTask{
				{SessionID: "s1", Task: tasks.NewFollowUpTask("detector", tasks.FollowUpPayload{Subject: "trip"})},
			}, nil
		},
	}); err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}

	base := time.Now().UTC().Add(2 * time.Minute)
	s.tick(context.Background(), base)
	s.tick(context.Background(), base.Add(time.Minute))

	if got := len(q.ListBySession("s1")); got != 1 {
		t.Fatalf("queued tasks = %d, want 1 (duplicate suppressed)", got)
	}
	if got := d.scheduled(); len(got) != 1 {
		t.Fatalf("scheduled = %v, want one dispatch", got)
	}
}

func TestStaleWaitingUserTriggersRedispatch(t *testing.T) {
	q := tasks.NewQueue(0)
	task := q.Enqueue("s1", tasks.Task{Type: tasks.TypeFollowUp})
	if _, err := q.UpdateTask("s1", task.ID, tasks.StatusWaitingUser); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	s, d := newTestScheduler(q, nil)
	now := time.Now().UTC()

	s.tick(context.Background(), now)
	if got := d.scheduled(); len(got) != 0 {
		t.Fatalf("fresh waiting task scheduled %v, want none", got)
	}

	s.tick(context.Background(), now.Add(2*time.Minute))
	if got := d.scheduled(); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("scheduled = %v, want [s1] after staleness window", got)
	}
	// Re-arming is the dispatcher's job; the sweep only requests dispatch.
	if _, ok := q.FindTaskByStatus("s1", tasks.StatusWaitingUser); !ok {
		t.Fatalf("sweep changed waiting task status")
	}
}

func TestStuckInProgressIsReArmed(t *testing.T) {
	q := tasks.NewQueue(0)
	task := q.Enqueue("s1", tasks.Task{Type: tasks.TypeFollowUp})
	if _, err := q.UpdateTask("s1", task.ID, tasks.StatusInProgress); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	s, d := newTestScheduler(q, nil)
	s.tick(context.Background(), time.Now().UTC().Add(defaultStuckWindow+time.Minute))

	if _, ok := q.FindTaskByStatus("s1", tasks.StatusQueued); !ok {
		t.Fatalf("stuck in_progress task was not re-armed to queued")
	}
	if got := d.scheduled(); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("scheduled = %v, want [s1]", got)
	}
}

func TestContradictionPollerDrainsLog(t *testing.T) {
	clog := NewContradictionLog()
	clog.Report("s1", tasks.ContradictionPayload{FactA: "likes tea", FactB: "hates tea"})
	poll := NewContradictionPoller(clog)

	out, err := poll(context.Background())
	if err != nil {
		t.Fatalf("poll error = %v", err)
	}
	if len(out) != 1 || out[0].SessionID != "s1" {
		t.Fatalf("poll produced %+v, want one task for s1", out)
	}
	p, err := tasks.DecodeContradiction(out[0].Task)
	if err != nil {
		t.Fatalf("DecodeContradiction() error = %v", err)
	}
	if p.FactA != "likes tea" || p.FactB != "hates tea" {
		t.Fatalf("payload = %+v", p)
	}

	again, err := poll(context.Background())
	if err != nil {
		t.Fatalf("second poll error = %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second poll produced %d tasks, want 0 (log drained)", len(again))
	}
}

type staticSessions []string

func (s staticSessions) ActiveSessionIDs() []string { return s }

func TestServiceHealthPollerAlertsActiveSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	poll := NewServiceHealthPoller(
		[]ServiceEndpoint{{Name: "calendar", URL: srv.URL}},
		staticSessions{"s1", "s2"},
		srv.Client(),
	)
	out, err := poll(context.Background())
	if err != nil {
		t.Fatalf("poll error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("poll produced %d tasks, want one per active session", len(out))
	}
	p, err := tasks.DecodeServiceAlert(out[0].Task)
	if err != nil {
		t.Fatalf("DecodeServiceAlert() error = %v", err)
	}
	if p.Service != "calendar" || p.Detail != "status 503" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestServiceHealthPollerSkipsHealthyAndIdle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	healthy := NewServiceHealthPoller(
		[]ServiceEndpoint{{Name: "calendar", URL: srv.URL}}, staticSessions{"s1"}, srv.Client())
	if out, err := healthy(context.Background()); err != nil || len(out) != 0 {
		t.Fatalf("healthy probe produced %v (err=%v), want nothing", out, err)
	}

	idle := NewServiceHealthPoller(
		[]ServiceEndpoint{{Name: "calendar", URL: "http://127.0.0.1:0"}}, staticSessions{}, nil)
	if out, err := idle(context.Background()); err != nil || len(out) != 0 {
		t.Fatalf("idle probe produced %v (err=%v), want nothing", out, err)
	}
}
