package agents

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mzanetti/aura/internal/tasks"
)

// Poller produces new work keyed by session. It is invoked on the scheduler's
// tick and must be safe to call repeatedly; duplicate suppression happens in
// the scheduler, not here.
type Poller func(ctx context.Context) ([]tasks.SessionTask, error)

// ScheduledAgent is a named poller with an interval. Registered once at
// startup; the scheduler owns all remaining state.
type ScheduledAgent struct {
	Name     string
	Interval time.Duration
	Poll     Poller
}

// ContradictionLog collects contradictions reported by the memory layer until
// the contradiction poller drains them into tasks.
type ContradictionLog struct {
	mu      sync.Mutex
	entries []contradictionEntry
}

type contradictionEntry struct {
	sessionID string
	payload   tasks.ContradictionPayload
}

func NewContradictionLog() *ContradictionLog {
	return &ContradictionLog{}
}

// Report records one detected contradiction for a session.
func (l *ContradictionLog) Report(sessionID string, p tasks.ContradictionPayload) {
	l.mu.Lock()
	l.entries = append(l.entries, contradictionEntry{sessionID: sessionID, payload: p})
	l.mu.Unlock()
}

func (l *ContradictionLog) drain() []contradictionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.entries
	l.entries = nil
	return out
}

// NewContradictionPoller turns pending contradiction reports into
// resolve_contradiction tasks.
func NewContradictionPoller(src *ContradictionLog) Poller {
	return func(_ context.Context) ([]tasks.SessionTask, error) {
		var out []tasks.SessionTask
		for _, e := range src.drain() {
			out = append(out, tasks.SessionTask{
				SessionID: e.sessionID,
				Task:      tasks.NewContradictionTask("contradiction_detector", e.payload),
			})
		}
		return out, nil
	}
}

// ServiceEndpoint is one HTTP target the health poller probes.
type ServiceEndpoint struct {
	Name string
	URL  string
}

// ActiveSessionLister tells the health poller which sessions should hear
// about an unhealthy service.
type ActiveSessionLister interface {
	ActiveSessionIDs() []string
}

// NewServiceHealthPoller probes each endpoint and emits one service_alert
// task per active session for every endpoint that is down. With no active
// session an unhealthy probe produces nothing; the next poll retries.
func NewServiceHealthPoller(endpoints []ServiceEndpoint, sessions ActiveSessionLister, client *http.Client) Poller {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context) ([]tasks.SessionTask, error) {
		active := sessions.ActiveSessionIDs()
		if len(active) == 0 {
			return nil, nil
		}

		var out []tasks.SessionTask
		for _, ep := range endpoints {
			detail, healthy := probe(ctx, client, ep.URL)
			if healthy {
				continue
			}
			payload := tasks.ServiceAlertPayload{Service: ep.Name, Endpoint: ep.URL, Detail: detail}
			for _, sid := range active {
				out = append(out, tasks.SessionTask{
					SessionID: sid,
					Task:      tasks.NewServiceAlertTask("health_monitor", payload),
				})
			}
		}
		return out, nil
	}
}

func probe(ctx context.Context, client *http.Client, url string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("bad endpoint: %v", err), false
	}
	resp, err := client.Do(req)
	if err != nil {
		return "unreachable", false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Sprintf("status %d", resp.StatusCode), false
	}
	return "", true
}
