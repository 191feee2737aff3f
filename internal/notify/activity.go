package notify

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// ActivityStream is a session-scoped pub/sub bus for agent telemetry.
// There is no buffering or replay: events published while a session has no
// subscriber are dropped.
type ActivityStream struct {
	mu          sync.RWMutex
	subscribers map[string]map[int]chan AgentEvent
	nextSubID   int
}

func NewActivityStream() *ActivityStream {
	return &ActivityStream{
		subscribers: make(map[string]map[int]chan AgentEvent),
	}
}

// Publish delivers the event to all live subscribers of one session.
func (s *ActivityStream) Publish(sessionID string, ev AgentEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if ev.SessionID == "" {
		ev.SessionID = sessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// PublishToAllActiveSessions broadcasts agent-level telemetry that is not
// tied to one session. "Active" means having at least one live subscriber.
func (s *ActivityStream) PublishToAllActiveSessions(ev AgentEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sid, subs := range s.subscribers {
		scoped := ev
		scoped.SessionID = sid
		for _, ch := range subs {
			select {
			case ch <- scoped:
			default:
			}
		}
	}
}

// Subscribe registers a live observer for one session.
func (s *ActivityStream) Subscribe(sessionID string) (<-chan AgentEvent, func()) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		ch := make(chan AgentEvent)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan AgentEvent, subscriberBuffer)
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	if _, ok := s.subscribers[sessionID]; !ok {
		s.subscribers[sessionID] = make(map[int]chan AgentEvent)
	}
	s.subscribers[sessionID][id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[sessionID]
		if subs == nil {
			return
		}
		if sub, ok := subs[id]; ok {
			delete(subs, id)
			close(sub)
		}
		if len(subs) == 0 {
			delete(s.subscribers, sessionID)
		}
	}
}

// ActiveSessions lists sessions with at least one live subscriber.
func (s *ActivityStream) ActiveSessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subscribers))
	for sid := range s.subscribers {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}
