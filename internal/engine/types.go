package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/avolkov/driveline/internal/geo"
)

// Activity is a motion classification reported by the platform's activity
// recognizer.
type Activity string

const (
	ActivityInVehicle Activity = "in_vehicle"
	ActivityStill     Activity = "still"
	ActivityOnFoot    Activity = "on_foot"
	ActivityWalking   Activity = "walking"
	ActivityOther     Activity = "other"
)

// ParseActivity maps a wire/CLI string onto an Activity. Unrecognized values
// parse as ActivityOther, which the engine ignores.
func ParseActivity(s string) (Activity, error) {
	switch Activity(strings.ToLower(strings.TrimSpace(s))) {
	case ActivityInVehicle:
		return ActivityInVehicle, nil
	case ActivityStill:
		return ActivityStill, nil
	case ActivityOnFoot:
		return ActivityOnFoot, nil
	case ActivityWalking:
		return ActivityWalking, nil
	case ActivityOther, "":
		return ActivityOther, nil
	default:
		return ActivityOther, fmt.Errorf("unknown activity %q", s)
	}
}

// stationary reports whether the activity counts toward a stop or a visit.
func (a Activity) stationary() bool {
	return a == ActivityStill || a == ActivityOnFoot || a == ActivityWalking
}

// Sample is one classification observation. Samples are ephemeral; they are
// never persisted.
type Sample struct {
	Activity   Activity
	Confidence int // 0..100
	ObservedAt time.Time
}

// DrivingState is the persisted trip machine state. A missing record means
// the zero value: not driving, no streaks.
type DrivingState struct {
	IsDriving     bool       `json:"is_driving"`
	VehicleStreak int        `json:"vehicle_streak"`
	StillStreak   int        `json:"still_streak"`
	StillSince    *time.Time `json:"still_since,omitempty"`
}

// VisitState is the persisted visit machine state. All pointer fields are
// non-nil exactly when Active is true.
type VisitState struct {
	Active     bool       `json:"active"`
	Anchor     *geo.Point `json:"anchor,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// LocationSnapshot records the last device location observed during an
// in-vehicle sample, so a park event is tagged with where the car actually
// stopped.
type LocationSnapshot struct {
	Point      geo.Point `json:"point"`
	CapturedAt time.Time `json:"captured_at"`
}

// Params are the engine tunables. They are configuration, not invariants,
// but Validate enforces the relative ordering the guards rely on.
type Params struct {
	MinConfidence     int
	DebounceCount     int
	MinStillDuration  time.Duration
	VisitRadiusMeters float64
	VisitThreshold    time.Duration
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		MinConfidence:     75,
		DebounceCount:     2,
		MinStillDuration:  90 * time.Second,
		VisitRadiusMeters: 150,
		VisitThreshold:    10 * time.Minute,
	}
}

// Validate rejects tunings that break the detection guards.
func (p Params) Validate() error {
	if p.MinConfidence < 0 || p.MinConfidence > 100 {
		return fmt.Errorf("min confidence %d out of range 0..100", p.MinConfidence)
	}
	if p.DebounceCount < 1 {
		return fmt.Errorf("debounce count must be at least 1, got %d", p.DebounceCount)
	}
	if p.MinStillDuration <= 0 {
		return fmt.Errorf("min still duration must be positive, got %v", p.MinStillDuration)
	}
	if p.VisitRadiusMeters <= 0 {
		return fmt.Errorf("visit radius must be positive, got %v", p.VisitRadiusMeters)
	}
	if p.VisitThreshold <= p.MinStillDuration {
		return fmt.Errorf("visit threshold %v must exceed min still duration %v", p.VisitThreshold, p.MinStillDuration)
	}
	return nil
}
