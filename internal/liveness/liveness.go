// Package liveness decides which execution context owns sample processing.
// The foreground agent heartbeats into the shared store; a transient
// background invocation checks the heartbeat and stands down while it is
// fresh.
package liveness

import (
	"errors"
	"fmt"
	"time"

	"github.com/avolkov/driveline/internal/storage"
)

// DefaultAliveWindow is how long after the last heartbeat the foreground
// agent is still considered alive.
const DefaultAliveWindow = 2 * time.Minute

// Store is the heartbeat persistence surface. Implemented by storage.Store.
type Store interface {
	GetState(key string) (string, error)
	PutState(key, value string) error
}

// Coordinator reads and writes the shared heartbeat record.
type Coordinator struct {
	store  Store
	window time.Duration
}

// New creates a Coordinator. A non-positive window uses DefaultAliveWindow.
func New(store Store, window time.Duration) *Coordinator {
	if window <= 0 {
		window = DefaultAliveWindow
	}
	return &Coordinator{store: store, window: window}
}

// MarkAlive records the foreground agent's heartbeat. Called on startup and
// on a fixed period while the agent runs.
func (c *Coordinator) MarkAlive(now time.Time) error {
	if err := c.store.PutState(storage.KeyHeartbeat, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("writing heartbeat: %w", err)
	}
	return nil
}

// ForegroundAlive reports whether the foreground agent heartbeated within
// the liveness window. A missing record means "not alive".
func (c *Coordinator) ForegroundAlive(now time.Time) (bool, error) {
	last, ok, err := c.LastAlive()
	if err != nil || !ok {
		return false, err
	}
	return now.Sub(last) < c.window, nil
}

// LastAlive returns the most recent heartbeat instant, ok=false if none was
// ever recorded.
func (c *Coordinator) LastAlive() (time.Time, bool, error) {
	value, err := c.store.GetState(storage.KeyHeartbeat)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading heartbeat: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		// A corrupt heartbeat must not wedge the background path; treat it
		// as absent so processing proceeds.
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Window returns the configured liveness window.
func (c *Coordinator) Window() time.Duration {
	return c.window
}
