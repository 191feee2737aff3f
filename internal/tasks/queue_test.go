package tasks

import (
	"errors"
	"testing"
	"time"
)

func TestQueueEnqueueAssignsDefaults(t *testing.T) {
	q := NewQueue(0)
	task := q.Enqueue("s1", Task{Type: TypeFollowUp, Origin: "tester"})
	if task.ID == "" {
		t.Fatalf("Enqueue() returned empty id")
	}
	if task.Status != StatusQueued {
		t.Fatalf("task.Status = %q, want %q", task.Status, StatusQueued)
	}
	if task.Priority != PriorityNormal {
		t.Fatalf("task.Priority = %q, want %q", task.Priority, PriorityNormal)
	}
	if task.CreatedAt.IsZero() {
		t.Fatalf("task.CreatedAt is zero")
	}
}

func TestQueueUpdateTask(t *testing.T) {
	q := NewQueue(0)
	task := q.Enqueue("s1", Task{Type: TypeFollowUp})

	updated, err := q.UpdateTask("s1", task.ID, StatusInProgress)
	if err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Fatalf("updated.Status = %q, want %q", updated.Status, StatusInProgress)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
		t.Fatalf("UpdatedAt %v before CreatedAt %v", updated.UpdatedAt, updated.CreatedAt)
	}

	if _, err := q.UpdateTask("s1", "missing", StatusFailed); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("UpdateTask(missing) error = %v, want ErrTaskNotFound", err)
	}
	if _, err := q.UpdateTask("other", task.ID, StatusFailed); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("UpdateTask(wrong session) error = %v, want ErrTaskNotFound", err)
	}
}

func TestQueueFindTaskByStatusInsertionOrder(t *testing.T) {
	q := NewQueue(0)
	first := q.Enqueue("s1", Task{Type: TypeFollowUp})
	q.Enqueue("s1", Task{Type: TypeServiceAlert})

	found, ok := q.FindTaskByStatus("s1", StatusQueued)
	if !ok {
		t.Fatalf("FindTaskByStatus() found nothing")
	}
	if found.ID != first.ID {
		t.Fatalf("FindTaskByStatus() id = %q, want first enqueued %q", found.ID, first.ID)
	}
	if _, ok := q.FindTaskByStatus("s1", StatusFailed); ok {
		t.Fatalf("FindTaskByStatus(failed) found a task, want none")
	}
}

func TestQueueFindTaskByTypePermitsNewAfterCompletion(t *testing.T) {
	q := NewQueue(0)
	task := q.Enqueue("s1", Task{Type: TypeResolveContradiction})

	live := []Status{StatusQueued, StatusInProgress, StatusWaitingUser}
	if _, ok := q.FindTaskByType("s1", TypeResolveContradiction, live...); !ok {
		t.Fatalf("FindTaskByType() found nothing while queued")
	}

	if _, err := q.UpdateTask("s1", task.ID, StatusCompleted); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	if _, ok := q.FindTaskByType("s1", TypeResolveContradiction, live...); ok {
		t.Fatalf("FindTaskByType() found completed task, want none")
	}
}

func TestQueueClearCompletedLeavesLiveTasks(t *testing.T) {
	q := NewQueue(0)
	done := q.Enqueue("s1", Task{Type: TypeFollowUp})
	failed := q.Enqueue("s1", Task{Type: TypeServiceAlert})
	live := q.Enqueue("s1", Task{Type: TypeResolveContradiction})

	if _, err := q.UpdateTask("s1", done.ID, StatusCompleted); err != nil {
		t.Fatalf("UpdateTask(done) error = %v", err)
	}
	if _, err := q.UpdateTask("s1", failed.ID, StatusFailed); err != nil {
		t.Fatalf("UpdateTask(failed) error = %v", err)
	}

	if removed := q.ClearCompleted("s1"); removed != 2 {
		t.Fatalf("ClearCompleted() = %d, want 2", removed)
	}
	rest := q.ListBySession("s1")
	if len(rest) != 1 || rest[0].ID != live.ID {
		t.Fatalf("ListBySession() = %v, want only live task %q", rest, live.ID)
	}
}

func TestQueueStaleTasks(t *testing.T) {
	q := NewQueue(0)
	task := q.Enqueue("s1", Task{Type: TypeFollowUp})
	if _, err := q.UpdateTask("s1", task.ID, StatusWaitingUser); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	q.Enqueue("s2", Task{Type: TypeFollowUp})

	later := time.Now().UTC().Add(10 * time.Minute)
	stale := q.StaleTasks(StatusWaitingUser, 5*time.Minute, later)
	if len(stale) != 1 {
		t.Fatalf("StaleTasks() = %d entries, want 1", len(stale))
	}
	if stale[0].SessionID != "s1" || stale[0].Task.ID != task.ID {
		t.Fatalf("StaleTasks()[0] = %+v, want session s1 task %q", stale[0], task.ID)
	}

	fresh := q.StaleTasks(StatusWaitingUser, 5*time.Minute, time.Now().UTC())
	if len(fresh) != 0 {
		t.Fatalf("StaleTasks() before window = %d entries, want 0", len(fresh))
	}
}

func TestQueueEvictsOldestTerminalOverCap(t *testing.T) {
	q := NewQueue(2)
	a := q.Enqueue("s1", Task{Type: TypeFollowUp})
	if _, err := q.UpdateTask("s1", a.ID, StatusCompleted); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	b := q.Enqueue("s1", Task{Type: TypeFollowUp})
	c := q.Enqueue("s1", Task{Type: TypeFollowUp})

	list := q.ListBySession("s1")
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2 after eviction", len(list))
	}
	if list[0].ID != b.ID || list[1].ID != c.ID {
		t.Fatalf("eviction kept wrong tasks: %q %q", list[0].ID, list[1].ID)
	}
}

func TestQueuePayloadRoundTrip(t *testing.T) {
	q := NewQueue(0)
	in := ContradictionPayload{FactA: "lives in Rome", FactB: "lives in Milan", MemoryIDs: []string{"m1", "m2"}}
	task := q.Enqueue("s1", NewContradictionTask("contradiction_detector", in))

	got, err := DecodeContradiction(task)
	if err != nil {
		t.Fatalf("DecodeContradiction() error = %v", err)
	}
	if got.FactA != in.FactA || got.FactB != in.FactB || len(got.MemoryIDs) != 2 {
		t.Fatalf("DecodeContradiction() = %+v, want %+v", got, in)
	}

	if _, err := DecodeServiceAlert(task); !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("DecodeServiceAlert(wrong type) error = %v, want ErrPayloadMismatch", err)
	}
}
