package tasks

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrTaskNotFound = errors.New("task not found")

const defaultMaxPerSession = 128

// Queue stores tasks per session in insertion order. It is a pure data
// structure: the dispatcher's per-session lock serializes the claim path,
// the internal mutex only guards map access so independent sessions can
// be touched concurrently.
type Queue struct {
	mu            sync.RWMutex
	bySession     map[string][]*Task
	maxPerSession int
}

func NewQueue(maxPerSession int) *Queue {
	if maxPerSession <= 0 {
		maxPerSession = defaultMaxPerSession
	}
	return &Queue{
		bySession:     make(map[string][]*Task),
		maxPerSession: maxPerSession,
	}
}

// Enqueue appends a task with status queued, assigning an id and timestamps.
func (q *Queue) Enqueue(sessionID string, task Task) Task {
	now := time.Now().UTC()
	if strings.TrimSpace(task.ID) == "" {
		task.ID = uuid.NewString()
	}
	if task.Priority == "" {
		task.Priority = PriorityNormal
	}
	task.Status = StatusQueued
	task.CreatedAt = now
	task.UpdatedAt = now

	q.mu.Lock()
	defer q.mu.Unlock()
	t := task.Clone()
	q.bySession[sessionID] = append(q.bySession[sessionID], &t)
	q.evictLocked(sessionID)
	return task
}

// UpdateTask transitions a task in place and returns the updated snapshot.
func (q *Queue) UpdateTask(sessionID, taskID string, status Status) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.bySession[sessionID] {
		if t.ID == taskID {
			t.Status = status
			t.UpdatedAt = time.Now().UTC()
			return t.Clone(), nil
		}
	}
	return Task{}, ErrTaskNotFound
}

// FindTaskByStatus returns the first task with the given status in
// insertion order.
func (q *Queue) FindTaskByStatus(sessionID string, status Status) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, t := range q.bySession[sessionID] {
		if t.Status == status {
			return t.Clone(), true
		}
	}
	return Task{}, false
}

// FindTaskByType returns the first task of the given type whose status is in
// the allowed set. Used to suppress re-creation of the same logical task.
func (q *Queue) FindTaskByType(sessionID string, typ Type, statuses ...Status) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, t := range q.bySession[sessionID] {
		if t.Type != typ {
			continue
		}
		for _, s := range statuses {
			if t.Status == s {
				return t.Clone(), true
			}
		}
	}
	return Task{}, false
}

// ClearCompleted purges completed and failed entries for the session and
// reports how many were removed.
func (q *Queue) ClearCompleted(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.bySession[sessionID]
	if len(list) == 0 {
		return 0
	}
	kept := list[:0]
	removed := 0
	for _, t := range list {
		if t.Status.Terminal() {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		delete(q.bySession, sessionID)
		return removed
	}
	q.bySession[sessionID] = kept
	return removed
}

// ListBySession returns snapshots of all tasks for a session in insertion order.
func (q *Queue) ListBySession(sessionID string) []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	list := q.bySession[sessionID]
	out := make([]Task, 0, len(list))
	for _, t := range list {
		out = append(out, t.Clone())
	}
	return out
}

// StaleTasks returns every task across all sessions that has sat in the given
// status longer than olderThan, measured against its last transition time.
func (q *Queue) StaleTasks(status Status, olderThan time.Duration, now time.Time) []SessionTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []SessionTask
	for sid, list := range q.bySession {
		for _, t := range list {
			if t.Status != status {
				continue
			}
			if now.Sub(t.UpdatedAt) >= olderThan {
				out = append(out, SessionTask{SessionID: sid, Task: t.Clone()})
			}
		}
	}
	return out
}

// evictLocked enforces the per-session cap by dropping terminal entries
// oldest first. Live tasks are never evicted, even over the cap.
func (q *Queue) evictLocked(sessionID string) {
	list := q.bySession[sessionID]
	over := len(list) - q.maxPerSession
	if over <= 0 {
		return
	}
	kept := make([]*Task, 0, len(list))
	for _, t := range list {
		if over > 0 && t.Status.Terminal() {
			over--
			continue
		}
		kept = append(kept, t)
	}
	q.bySession[sessionID] = kept
}
