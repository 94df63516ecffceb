package engine

// tripAction is the transition the trip machine wants emitted, if any.
type tripAction int

const (
	tripNone tripAction = iota
	tripStart
	tripPark
)

// stepTrip advances the driving state by one qualifying sample. The caller
// has already filtered out low-confidence samples; ActivityOther leaves the
// state untouched.
//
// Entering DRIVING requires DebounceCount consecutive in-vehicle samples.
// Leaving it requires both a still streak of DebounceCount and at least
// MinStillDuration of elapsed still time, so a stop at a red light never
// reads as parking.
func stepTrip(p Params, st DrivingState, s Sample) (DrivingState, tripAction) {
	switch {
	case s.Activity == ActivityInVehicle:
		st.VehicleStreak++
		// A moving vehicle cancels any pending stop.
		st.StillStreak = 0
		st.StillSince = nil
		if !st.IsDriving && st.VehicleStreak >= p.DebounceCount {
			st.IsDriving = true
			return st, tripStart
		}

	case s.Activity.stationary():
		st.VehicleStreak = 0
		st.StillStreak++
		if st.StillSince == nil {
			t := s.ObservedAt
			st.StillSince = &t
		}
		if st.IsDriving && st.StillStreak >= p.DebounceCount && s.ObservedAt.Sub(*st.StillSince) >= p.MinStillDuration {
			st = DrivingState{}
			return st, tripPark
		}
	}

	return st, tripNone
}
