package notify

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotificationNotFound = errors.New("notification not found")

const subscriberBuffer = 256

// Center stores notifications per session and fans them out to live
// subscribers. Delivery is best-effort: a subscriber whose channel is full
// misses the event, and sessions without subscribers only get the stored
// record.
type Center struct {
	mu          sync.RWMutex
	byID        map[string]*Notification
	bySession   map[string][]string
	subscribers map[string]map[int]chan Notification
	nextSubID   int
}

func NewCenter() *Center {
	return &Center{
		byID:        make(map[string]*Notification),
		bySession:   make(map[string][]string),
		subscribers: make(map[string]map[int]chan Notification),
	}
}

// Publish stores the notification and delivers it to the session's
// subscribers. ID and CreatedAt are assigned when empty.
func (c *Center) Publish(n Notification) Notification {
	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Urgency == "" {
		n.Urgency = UrgencyLow
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stored := n.Clone()
	c.byID[n.ID] = &stored
	if n.SessionID != "" {
		c.bySession[n.SessionID] = append(c.bySession[n.SessionID], n.ID)
	}
	for _, ch := range c.subscribers[n.SessionID] {
		select {
		case ch <- n.Clone():
		default:
		}
	}
	return n
}

// ListBySession returns the session's notifications newest first.
func (c *Center) ListBySession(sessionID string, unreadOnly bool) []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.bySession[sessionID]
	out := make([]Notification, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		n, ok := c.byID[ids[i]]
		if !ok {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n.Clone())
	}
	return out
}

// MarkRead flips the read state once; re-acknowledging is a no-op.
func (c *Center) MarkRead(id string) (Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.byID[id]
	if !ok {
		return Notification{}, ErrNotificationNotFound
	}
	if !n.Read {
		now := time.Now().UTC()
		n.Read = true
		n.ReadAt = &now
	}
	return n.Clone(), nil
}

// Subscribe registers a live observer for one session. The returned cancel
// closes the channel and removes the subscription.
func (c *Center) Subscribe(sessionID string) (<-chan Notification, func()) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		ch := make(chan Notification)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Notification, subscriberBuffer)
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	if _, ok := c.subscribers[sessionID]; !ok {
		c.subscribers[sessionID] = make(map[int]chan Notification)
	}
	c.subscribers[sessionID][id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subscribers[sessionID]
		if subs == nil {
			return
		}
		if sub, ok := subs[id]; ok {
			delete(subs, id)
			close(sub)
		}
		if len(subs) == 0 {
			delete(c.subscribers, sessionID)
		}
	}
}
