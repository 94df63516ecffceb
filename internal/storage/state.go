package storage

import (
	"database/sql"
	"time"
)

// GetState returns the value stored under key, or ErrNotFound if the record
// has never been written.
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM engine_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// PutState upserts the value stored under key.
func (s *Store) PutState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO engine_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// CompareAndSwapState atomically replaces the value under key only if the
// current value equals old. An empty old means "insert only if the key is
// absent". Returns whether the swap happened.
func (s *Store) CompareAndSwapState(key, old, value string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if old == "" {
		res, err := s.db.Exec(`
			INSERT INTO engine_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO NOTHING`,
			key, value, now,
		)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n == 1, err
	}

	res, err := s.db.Exec(`UPDATE engine_state SET value = ?, updated_at = ? WHERE key = ? AND value = ?`,
		value, now, key, old)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteState removes the record under key. Deleting a missing key is not an
// error; the engine treats absence as default state.
func (s *Store) DeleteState(key string) error {
	_, err := s.db.Exec("DELETE FROM engine_state WHERE key = ?", key)
	return err
}
