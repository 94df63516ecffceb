package engine

import (
	"time"

	"github.com/avolkov/driveline/internal/geo"
)

// stepVisit advances the visit state by one qualifying sample. The returned
// event, when non-nil, is a finished Visit (ID unassigned; the processor
// fills it in).
//
// Stationary samples without a resolvable location are invisible to this
// machine. In-vehicle samples finalize any open visit and reset to NONE:
// getting into a vehicle always ends a visit, regardless of distance moved.
func stepVisit(p Params, vs VisitState, s Sample, loc *geo.Point) (VisitState, *Event) {
	if s.Activity == ActivityInVehicle {
		return finalizeVisit(p, vs)
	}
	if !s.Activity.stationary() || loc == nil {
		return vs, nil
	}

	now := s.ObservedAt
	if !vs.Active {
		return newCandidateVisit(*loc, now), nil
	}

	if geo.DistanceMeters(*vs.Anchor, *loc) <= p.VisitRadiusMeters {
		// Same place. The anchor stays put so noisy GPS cannot walk it away.
		vs.LastSeenAt = &now
		return vs, nil
	}

	// Moved away: emit if the dwell qualified, then anchor a new candidate.
	ev := dwellEvent(p, vs)
	return newCandidateVisit(*loc, now), ev
}

// finalizeVisit closes an open visit using the dwell-threshold rule and
// resets the machine.
func finalizeVisit(p Params, vs VisitState) (VisitState, *Event) {
	if !vs.Active {
		return VisitState{}, nil
	}
	return VisitState{}, dwellEvent(p, vs)
}

// dwellEvent returns a Visit event if the dwell met the threshold, nil if it
// was transit.
func dwellEvent(p Params, vs VisitState) *Event {
	if vs.LastSeenAt.Sub(*vs.StartedAt) < p.VisitThreshold {
		return nil
	}
	started, ended, anchor := *vs.StartedAt, *vs.LastSeenAt, *vs.Anchor
	return &Event{
		Kind:      KindVisit,
		StartedAt: &started,
		EndedAt:   &ended,
		Location:  &anchor,
	}
}

func newCandidateVisit(anchor geo.Point, now time.Time) VisitState {
	started, seen := now, now
	return VisitState{
		Active:     true,
		Anchor:     &anchor,
		StartedAt:  &started,
		LastSeenAt: &seen,
	}
}
