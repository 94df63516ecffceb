package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Well-known engine_state keys. Every persisted record the two agents share
// lives under one of these fixed names; a missing key means the record has
// never been written and callers default-initialize.
const (
	KeyDrivingState = "driving_state"
	KeyVisitState   = "visit_state"
	KeyVehicleLoc   = "vehicle_location"
	KeyHeartbeat    = "foreground_heartbeat"
)

// PendingEvent is a queued event awaiting the foreground drain.
// Payloads are opaque to the queue.
type PendingEvent struct {
	Seq         int64
	ID          string
	Kind        string
	PayloadJSON string
	CreatedAt   time.Time
}

// LoggedEvent is a drained event recorded in the durable event log.
type LoggedEvent struct {
	ID          string
	Kind        string
	OccurredAt  time.Time
	PayloadJSON string
	LoggedAt    time.Time
}
