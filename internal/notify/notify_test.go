package notify

import (
	"errors"
	"testing"
	"time"
)

func TestCenterPublishDeliversToSubscribers(t *testing.T) {
	c := NewCenter()
	ch, cancel := c.Subscribe("s1")
	defer cancel()
	other, cancelOther := c.Subscribe("s2")
	defer cancelOther()

	published := c.Publish(Notification{Type: "contradiction_found", SessionID: "s1", Urgency: UrgencyMedium})
	if published.ID == "" {
		t.Fatalf("Publish() returned empty id")
	}

	select {
	case got := <-ch:
		if got.ID != published.ID {
			t.Fatalf("delivered id = %q, want %q", got.ID, published.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber got no notification")
	}

	select {
	case got := <-other:
		t.Fatalf("session s2 subscriber received %+v, want nothing", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCenterMarkRead(t *testing.T) {
	c := NewCenter()
	n := c.Publish(Notification{Type: "service_alert", SessionID: "s1", Urgency: UrgencyHigh})

	read, err := c.MarkRead(n.ID)
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if !read.Read || read.ReadAt == nil {
		t.Fatalf("MarkRead() = %+v, want read with read_at set", read)
	}
	firstAt := *read.ReadAt

	again, err := c.MarkRead(n.ID)
	if err != nil {
		t.Fatalf("MarkRead() second error = %v", err)
	}
	if !again.ReadAt.Equal(firstAt) {
		t.Fatalf("second MarkRead() moved read_at from %v to %v", firstAt, again.ReadAt)
	}

	if _, err := c.MarkRead("missing"); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("MarkRead(missing) error = %v, want ErrNotificationNotFound", err)
	}

	unread := c.ListBySession("s1", true)
	if len(unread) != 0 {
		t.Fatalf("ListBySession(unread) = %d entries, want 0", len(unread))
	}
	all := c.ListBySession("s1", false)
	if len(all) != 1 {
		t.Fatalf("ListBySession(all) = %d entries, want 1", len(all))
	}
}

func TestActivityStreamScopedPublish(t *testing.T) {
	s := NewActivityStream()
	ch, cancel := s.Subscribe("s1")
	defer cancel()

	s.Publish("s1", AgentEvent{Type: EventTaskEnqueued, Agent: "health_monitor"})
	s.Publish("s2", AgentEvent{Type: EventTaskEnqueued, Agent: "health_monitor"})

	select {
	case ev := <-ch:
		if ev.SessionID != "s1" {
			t.Fatalf("ev.SessionID = %q, want s1", ev.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber got no event")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestActivityStreamBroadcast(t *testing.T) {
	s := NewActivityStream()
	a, cancelA := s.Subscribe("s1")
	defer cancelA()
	b, cancelB := s.Subscribe("s2")
	defer cancelB()

	if got := s.ActiveSessions(); len(got) != 2 {
		t.Fatalf("ActiveSessions() = %v, want 2 sessions", got)
	}

	s.PublishToAllActiveSessions(AgentEvent{Type: EventAgentStarted, Agent: "contradiction_detector"})

	for name, ch := range map[string]<-chan AgentEvent{"s1": a, "s2": b} {
		select {
		case ev := <-ch:
			if ev.SessionID != name {
				t.Fatalf("broadcast to %s carried session %q", name, ev.SessionID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s got no broadcast", name)
		}
	}
}

func TestActivityStreamUnsubscribeClosesChannel(t *testing.T) {
	s := NewActivityStream()
	ch, cancel := s.Subscribe("s1")
	cancel()
	if _, open := <-ch; open {
		t.Fatalf("channel still open after cancel")
	}
	if got := s.ActiveSessions(); len(got) != 0 {
		t.Fatalf("ActiveSessions() after cancel = %v, want empty", got)
	}
	// Publishing to a session with no subscribers drops the event.
	s.Publish("s1", AgentEvent{Type: EventAgentStarted})
}
