package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/avolkov/driveline/internal/geo"
)

// EventKind tags the event union.
type EventKind string

const (
	KindStart EventKind = "start"
	KindPark  EventKind = "park"
	KindVisit EventKind = "visit"
)

// Event is an emitted transition. Start and Park use At (Park optionally
// carries the parking location); Visit uses StartedAt/EndedAt and always
// carries its anchor as Location.
type Event struct {
	ID        string     `json:"id,omitempty"`
	Kind      EventKind  `json:"kind"`
	At        time.Time  `json:"at,omitempty"`
	Location  *geo.Point `json:"location,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// OccurredAt is the event's dedup timestamp: the transition instant for
// Start/Park, the dwell end for Visit.
func (e Event) OccurredAt() time.Time {
	if e.Kind == KindVisit && e.EndedAt != nil {
		return *e.EndedAt
	}
	return e.At
}

// EncodePayload serializes the event for the store boundary.
func (e Event) EncodePayload() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encoding %s event: %w", e.Kind, err)
	}
	return string(data), nil
}

// DecodePayload deserializes an event payload read back from the store.
func DecodePayload(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decoding event payload: %w", err)
	}
	return e, nil
}

// Notification renders the user-facing notification for Start and Park.
// Visits are silent; callers must not notify for them.
func (e Event) Notification() (title, body string) {
	switch e.Kind {
	case KindStart:
		return "Drive started", fmt.Sprintf("Started driving at %s", e.At.Local().Format(time.Kitchen))
	case KindPark:
		if e.Location != nil {
			return "Parked", fmt.Sprintf("Parked at %.5f, %.5f", e.Location.Lat, e.Location.Lon)
		}
		return "Parked", "Parked (location unavailable)"
	default:
		return "", ""
	}
}
