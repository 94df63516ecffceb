package engine

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/avolkov/driveline/internal/geo"
	"github.com/avolkov/driveline/internal/storage"
)

// TestReplayDeterminism feeds one random sample sequence through two
// independent stores and checks that the outcome is identical: the engine
// keeps no hidden instance state, so replaying a sequence from scratch must
// reproduce the same transitions and the same final persisted state.
func TestReplayDeterminism(t *testing.T) {
	places := []geo.Point{
		{Lat: 52.5200, Lon: 13.4050},
		{Lat: 52.5205, Lon: 13.4055}, // within visit radius of the first
		{Lat: 52.5300, Lon: 13.4200}, // well outside it
	}
	activities := []Activity{ActivityInVehicle, ActivityStill, ActivityOnFoot, ActivityWalking, ActivityOther}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(rt, "num_samples")
		clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

		var steps []step
		for i := 0; i < n; i++ {
			clock = clock.Add(time.Duration(rapid.IntRange(5, 300).Draw(rt, "gap_sec")) * time.Second)
			s := Sample{
				Activity:   activities[rapid.IntRange(0, len(activities)-1).Draw(rt, "activity")],
				Confidence: rapid.IntRange(0, 100).Draw(rt, "confidence"),
				ObservedAt: clock,
			}
			var loc *geo.Point
			if rapid.Bool().Draw(rt, "has_location") {
				loc = &places[rapid.IntRange(0, len(places)-1).Draw(rt, "place")]
			}
			steps = append(steps, step{s, loc})
		}

		run := func() ([]Event, map[string]string) {
			store, err := storage.Open(":memory:")
			if err != nil {
				rt.Fatalf("Open(:memory:) failed: %v", err)
			}
			defer store.Close()

			p := NewProcessor(store, nil, testParams, nil)
			var events []Event
			for i, st := range steps {
				evs, err := p.Process(st.s, st.loc)
				if err != nil {
					rt.Fatalf("Process step %d: %v", i, err)
				}
				events = append(events, evs...)
			}

			final := map[string]string{}
			for _, key := range []string{storage.KeyDrivingState, storage.KeyVisitState, storage.KeyVehicleLoc} {
				if v, err := store.GetState(key); err == nil {
					final[key] = v
				}
			}
			return events, final
		}

		eventsA, finalA := run()
		eventsB, finalB := run()

		if len(eventsA) != len(eventsB) {
			rt.Fatalf("replay produced %d events, original %d", len(eventsB), len(eventsA))
		}
		for i := range eventsA {
			a, b := eventsA[i], eventsB[i]
			if a.Kind != b.Kind || !a.OccurredAt().Equal(b.OccurredAt()) {
				rt.Fatalf("event %d diverged: %s@%v vs %s@%v",
					i, a.Kind, a.OccurredAt(), b.Kind, b.OccurredAt())
			}
		}
		for key, v := range finalA {
			if finalB[key] != v {
				rt.Fatalf("final state for %s diverged:\n%s\nvs\n%s", key, v, finalB[key])
			}
		}
	})
}
