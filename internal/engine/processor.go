package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/driveline/internal/geo"
	"github.com/avolkov/driveline/internal/notify"
	"github.com/avolkov/driveline/internal/storage"
)

// StateStore is the durable surface the processor needs. Implemented by
// storage.Store.
type StateStore interface {
	GetState(key string) (string, error)
	PutState(key, value string) error
	AppendPending(ev storage.PendingEvent) (int, error)
}

// StateReader is the read-only subset used by status surfaces.
type StateReader interface {
	GetState(key string) (string, error)
}

// Processor runs both state machines against the shared store. It holds no
// state of its own between calls: every Process is a full read-mutate-write
// cycle, which is what lets a transient background invocation and the
// foreground agent share one pipeline.
type Processor struct {
	store    StateStore
	notifier notify.Notifier
	params   Params
	logger   *slog.Logger
}

// NewProcessor creates a Processor. A nil notifier suppresses notifications;
// a nil logger uses slog.Default().
func NewProcessor(store StateStore, notifier notify.Notifier, params Params, logger *slog.Logger) *Processor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, notifier: notifier, params: params, logger: logger}
}

// Process applies one classification sample. location is the platform's
// best-effort last-known device location, nil when unavailable. It returns
// the events emitted by this sample, already enqueued for the foreground
// drain.
func (p *Processor) Process(sample Sample, location *geo.Point) ([]Event, error) {
	if sample.Confidence < p.params.MinConfidence {
		p.logger.Debug("discarding low-confidence sample",
			"activity", sample.Activity, "confidence", sample.Confidence)
		return nil, nil
	}
	if sample.Activity == ActivityOther {
		return nil, nil
	}

	ds, err := LoadDrivingState(p.store)
	if err != nil {
		return nil, fmt.Errorf("loading driving state: %w", err)
	}
	vs, err := LoadVisitState(p.store)
	if err != nil {
		return nil, fmt.Errorf("loading visit state: %w", err)
	}

	var events []Event

	if sample.Activity == ActivityInVehicle {
		if location != nil {
			if err := p.saveSnapshot(*location, sample.ObservedAt); err != nil {
				return nil, err
			}
		}

		// The visit machine gets first chance to finalize, so a closing
		// Visit precedes the Start it triggered.
		var visitEv *Event
		vs, visitEv = stepVisit(p.params, vs, sample, location)
		if visitEv != nil {
			events = append(events, *visitEv)
		}

		var action tripAction
		ds, action = stepTrip(p.params, ds, sample)
		if action == tripStart {
			events = append(events, Event{Kind: KindStart, At: sample.ObservedAt})
		}
	} else {
		var action tripAction
		ds, action = stepTrip(p.params, ds, sample)
		if action == tripPark {
			events = append(events, p.parkEvent(sample.ObservedAt))
		}

		var visitEv *Event
		vs, visitEv = stepVisit(p.params, vs, sample, location)
		if visitEv != nil {
			events = append(events, *visitEv)
		}
	}

	for i := range events {
		events[i].ID = uuid.New().String()
		if err := p.enqueue(events[i]); err != nil {
			return nil, err
		}
	}

	if err := p.saveStates(ds, vs); err != nil {
		return nil, err
	}

	for _, ev := range events {
		p.logger.Info("event emitted", "kind", ev.Kind, "at", ev.OccurredAt())
		if ev.Kind == KindStart || ev.Kind == KindPark {
			title, body := ev.Notification()
			p.notifier.Notify(title, body)
		}
	}

	return events, nil
}

// parkEvent builds a Park tagged with the last in-vehicle location snapshot,
// or without a location when no snapshot was ever captured.
func (p *Processor) parkEvent(at time.Time) Event {
	ev := Event{Kind: KindPark, At: at}
	snap, err := LoadSnapshot(p.store)
	if err != nil {
		p.logger.Warn("reading location snapshot", "error", err)
		return ev
	}
	if snap != nil {
		pt := snap.Point
		ev.Location = &pt
	}
	return ev
}

func (p *Processor) saveSnapshot(pt geo.Point, at time.Time) error {
	data, err := json.Marshal(LocationSnapshot{Point: pt, CapturedAt: at})
	if err != nil {
		return fmt.Errorf("encoding location snapshot: %w", err)
	}
	if err := p.store.PutState(storage.KeyVehicleLoc, string(data)); err != nil {
		return fmt.Errorf("saving location snapshot: %w", err)
	}
	return nil
}

func (p *Processor) saveStates(ds DrivingState, vs VisitState) error {
	dsData, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encoding driving state: %w", err)
	}
	if err := p.store.PutState(storage.KeyDrivingState, string(dsData)); err != nil {
		return fmt.Errorf("saving driving state: %w", err)
	}

	vsData, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encoding visit state: %w", err)
	}
	if err := p.store.PutState(storage.KeyVisitState, string(vsData)); err != nil {
		return fmt.Errorf("saving visit state: %w", err)
	}
	return nil
}

func (p *Processor) enqueue(ev Event) error {
	payload, err := ev.EncodePayload()
	if err != nil {
		return err
	}
	evicted, err := p.store.AppendPending(storage.PendingEvent{
		ID:          ev.ID,
		Kind:        string(ev.Kind),
		PayloadJSON: payload,
		CreatedAt:   ev.OccurredAt(),
	})
	if err != nil {
		return fmt.Errorf("enqueueing %s event: %w", ev.Kind, err)
	}
	if evicted > 0 {
		p.logger.Warn("pending queue over cap, oldest events evicted",
			"evicted", evicted, "kind", ev.Kind)
	}
	return nil
}

// LoadDrivingState reads the persisted trip machine state; a missing record
// default-initializes.
func LoadDrivingState(store StateReader) (DrivingState, error) {
	var ds DrivingState
	if err := loadJSON(store, storage.KeyDrivingState, &ds); err != nil {
		return DrivingState{}, err
	}
	return ds, nil
}

// LoadVisitState reads the persisted visit machine state; a missing record
// default-initializes.
func LoadVisitState(store StateReader) (VisitState, error) {
	var vs VisitState
	if err := loadJSON(store, storage.KeyVisitState, &vs); err != nil {
		return VisitState{}, err
	}
	return vs, nil
}

// LoadSnapshot reads the last in-vehicle location snapshot, nil if never
// captured.
func LoadSnapshot(store StateReader) (*LocationSnapshot, error) {
	var snap LocationSnapshot
	value, err := store.GetState(storage.KeyVehicleLoc)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(value), &snap); err != nil {
		return nil, fmt.Errorf("decoding location snapshot: %w", err)
	}
	return &snap, nil
}

func loadJSON(store StateReader, key string, out any) error {
	value, err := store.GetState(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// StateDeleter is the subset of the store needed to reset the engine.
type StateDeleter interface {
	DeleteState(key string) error
}

// Reset clears all persisted engine state (logout / reinstall-equivalent).
// The pending queue and event log are left untouched.
func Reset(store StateDeleter) error {
	for _, key := range []string{storage.KeyDrivingState, storage.KeyVisitState, storage.KeyVehicleLoc} {
		if err := store.DeleteState(key); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}
	return nil
}
