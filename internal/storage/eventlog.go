package storage

import (
	"fmt"
	"time"
)

// LogEvents writes drained events into the durable event log. Duplicates of
// an already-logged (kind, occurred_at) pair are skipped; these arise when a
// racy double-invocation enqueued the same transition twice. Returns the
// number of events actually inserted.
func (s *Store) LogEvents(events []LoggedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning log transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO event_log (id, kind, occurred_at, payload_json, logged_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, occurred_at) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing log statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, ev := range events {
		res, err := stmt.Exec(ev.ID, ev.Kind, ev.OccurredAt.UTC().Format(time.RFC3339Nano), ev.PayloadJSON, now)
		if err != nil {
			return 0, fmt.Errorf("logging event %s: %w", ev.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing log: %w", err)
	}
	return inserted, nil
}

// RecentEvents returns the most recent logged events, newest first.
func (s *Store) RecentEvents(limit int) ([]LoggedEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, occurred_at, payload_json, logged_at
		FROM event_log ORDER BY occurred_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LoggedEvent
	for rows.Next() {
		var ev LoggedEvent
		var occurredAt, loggedAt string
		if err := rows.Scan(&ev.ID, &ev.Kind, &occurredAt, &ev.PayloadJSON, &loggedAt); err != nil {
			return nil, err
		}
		if ev.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at for event %s: %w", ev.ID, err)
		}
		if ev.LoggedAt, err = time.Parse(time.RFC3339, loggedAt); err != nil {
			return nil, fmt.Errorf("parsing logged_at for event %s: %w", ev.ID, err)
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}
