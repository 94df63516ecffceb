package storage

import (
	"fmt"
	"testing"
	"time"
)

func pendingEvent(i int) PendingEvent {
	return PendingEvent{
		ID:          fmt.Sprintf("ev-%04d", i),
		Kind:        "start",
		PayloadJSON: fmt.Sprintf(`{"n":%d}`, i),
		CreatedAt:   time.Date(2026, 3, 1, 8, 0, i, 0, time.UTC),
	}
}

func TestAppendAndDrainOrder(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.AppendPending(pendingEvent(i)); err != nil {
			t.Fatalf("AppendPending(%d): %v", i, err)
		}
	}

	events, err := s.DrainPending()
	if err != nil {
		t.Fatalf("DrainPending: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("drained %d events, want 5", len(events))
	}
	for i, ev := range events {
		if want := fmt.Sprintf("ev-%04d", i); ev.ID != want {
			t.Errorf("event %d out of order: got %s, want %s", i, ev.ID, want)
		}
	}

	// Drain clears the queue.
	n, err := s.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 0 {
		t.Errorf("queue depth after drain = %d, want 0", n)
	}

	// Draining an empty queue is not an error.
	events, err = s.DrainPending()
	if err != nil {
		t.Fatalf("second DrainPending: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("second drain returned %d events, want 0", len(events))
	}
}

func TestQueueCapEvictsOldest(t *testing.T) {
	s := openTestStore(t)
	s.SetPendingCap(3)

	var evicted int
	for i := 0; i < 5; i++ {
		n, err := s.AppendPending(pendingEvent(i))
		if err != nil {
			t.Fatalf("AppendPending(%d): %v", i, err)
		}
		evicted += n
	}
	if evicted != 2 {
		t.Errorf("evicted %d events, want 2", evicted)
	}

	events, err := s.DrainPending()
	if err != nil {
		t.Fatalf("DrainPending: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("drained %d events, want 3", len(events))
	}
	if events[0].ID != "ev-0002" {
		t.Errorf("oldest surviving event = %s, want ev-0002 (oldest evicted first)", events[0].ID)
	}
}

func TestEventLogDedup(t *testing.T) {
	s := openTestStore(t)

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	ev := LoggedEvent{ID: "a", Kind: "park", OccurredAt: at, PayloadJSON: `{}`}
	dup := LoggedEvent{ID: "b", Kind: "park", OccurredAt: at, PayloadJSON: `{}`}

	n, err := s.LogEvents([]LoggedEvent{ev, dup})
	if err != nil {
		t.Fatalf("LogEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d events, want 1 (duplicate kind+occurred_at skipped)", n)
	}

	logged, err := s.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(logged) != 1 {
		t.Fatalf("event log has %d entries, want 1", len(logged))
	}
	if logged[0].ID != "a" {
		t.Errorf("logged event ID = %s, want a", logged[0].ID)
	}
	if !logged[0].OccurredAt.Equal(at) {
		t.Errorf("occurred_at = %v, want %v", logged[0].OccurredAt, at)
	}
}

func TestRecentEventsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var batch []LoggedEvent
	for i := 0; i < 3; i++ {
		batch = append(batch, LoggedEvent{
			ID:          fmt.Sprintf("log-%d", i),
			Kind:        "visit",
			OccurredAt:  base.Add(time.Duration(i) * time.Minute),
			PayloadJSON: `{}`,
		})
	}
	if _, err := s.LogEvents(batch); err != nil {
		t.Fatalf("LogEvents: %v", err)
	}

	logged, err := s.RecentEvents(2)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(logged) != 2 {
		t.Fatalf("got %d entries, want 2", len(logged))
	}
	if logged[0].ID != "log-2" || logged[1].ID != "log-1" {
		t.Errorf("unexpected order: %s, %s", logged[0].ID, logged[1].ID)
	}
}
