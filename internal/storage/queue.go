package storage

import (
	"fmt"
	"time"
)

// AppendPending appends an event to the pending queue. If the queue has grown
// past the configured cap (foreground agent never restarted to drain it), the
// oldest entries are evicted to make room; callers should log the eviction.
// Returns the number of evicted events.
func (s *Store) AppendPending(ev PendingEvent) (evicted int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO pending_events (id, kind, payload_json, created_at)
		VALUES (?, ?, ?, ?)`,
		ev.ID, ev.Kind, ev.PayloadJSON, createdAt.UTC().Format(time.RFC3339),
	); err != nil {
		return 0, fmt.Errorf("inserting pending event: %w", err)
	}

	res, err := tx.Exec(`
		DELETE FROM pending_events WHERE seq NOT IN (
			SELECT seq FROM pending_events ORDER BY seq DESC LIMIT ?
		)`, s.pendingCap)
	if err != nil {
		return 0, fmt.Errorf("enforcing queue cap: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing append: %w", err)
	}
	return int(n), nil
}

// DrainPending reads the whole pending queue in emission order and clears it
// as a single transaction. Intended to be called once per foreground-agent
// startup.
func (s *Store) DrainPending() ([]PendingEvent, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning drain transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT seq, id, kind, payload_json, created_at FROM pending_events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying pending events: %w", err)
	}

	var events []PendingEvent
	for rows.Next() {
		var ev PendingEvent
		var createdAt string
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Kind, &ev.PayloadJSON, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning pending event: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing created_at for event %s: %w", ev.ID, err)
		}
		ev.CreatedAt = t
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating pending events: %w", err)
	}
	rows.Close()

	if len(events) > 0 {
		// Delete only up to the highest seq read, so an event appended in the
		// same instant by a racing writer survives to the next drain.
		maxSeq := events[len(events)-1].Seq
		if _, err := tx.Exec(`DELETE FROM pending_events WHERE seq <= ?`, maxSeq); err != nil {
			return nil, fmt.Errorf("clearing pending events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing drain: %w", err)
	}
	return events, nil
}

// PendingCount returns the number of queued events awaiting drain.
func (s *Store) PendingCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM pending_events").Scan(&count)
	return count, err
}
