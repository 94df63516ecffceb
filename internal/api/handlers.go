package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avolkov/driveline/internal/engine"
	"github.com/avolkov/driveline/internal/geo"
	"github.com/avolkov/driveline/internal/liveness"
	"github.com/avolkov/driveline/internal/storage"
)

const maxSampleBodySize = 64 << 10 // 64KB

// SampleRequest is one classification observation pushed by the platform
// bridge. Location is the best-effort last-known device position at the time
// of the sample, omitted when unavailable.
type SampleRequest struct {
	Activity   string     `json:"activity"`
	Confidence int        `json:"confidence"`
	ObservedAt time.Time  `json:"observed_at"`
	Location   *geo.Point `json:"location,omitempty"`
}

// Deps holds dependencies for the HTTP API.
type Deps struct {
	Store     *storage.Store
	Processor *engine.Processor
	Liveness  *liveness.Coordinator
	Token     string
}

// NewHandler builds the foreground agent's HTTP surface.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/samples", handleSample(deps))
		r.Post("/v1/heartbeat", handleHeartbeat(deps))
		r.Get("/v1/status", handleStatus(deps))
		r.Get("/v1/events", handleEvents(deps))
	})

	return r
}

func handleSample(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSampleBodySize)
		defer r.Body.Close()

		var req SampleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ObservedAt.IsZero() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "observed_at is required")
			return
		}
		if req.Confidence < 0 || req.Confidence > 100 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "confidence %d out of range 0..100", req.Confidence)
			return
		}

		activity, err := engine.ParseActivity(req.Activity)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		sample := engine.Sample{
			Activity:   activity,
			Confidence: req.Confidence,
			ObservedAt: req.ObservedAt,
		}
		events, err := deps.Processor.Process(sample, req.Location)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing sample: %v", err)
			return
		}

		// Receiving a sample proves the foreground pipeline is running.
		if err := deps.Liveness.MarkAlive(time.Now()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "refreshing heartbeat: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"accepted": true,
			"events":   events,
		})
	}
}

func handleHeartbeat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		if err := deps.Liveness.MarkAlive(now); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "writing heartbeat: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"alive_at": now.UTC().Format(time.RFC3339Nano),
		})
	}
}

// StatusResponse summarizes the engine for the status endpoint and CLI.
type StatusResponse struct {
	Driving         bool       `json:"driving"`
	VisitActive     bool       `json:"visit_active"`
	VisitSince      *time.Time `json:"visit_since,omitempty"`
	LastVehicleLoc  *geo.Point `json:"last_vehicle_location,omitempty"`
	PendingEvents   int        `json:"pending_events"`
	ForegroundAlive bool       `json:"foreground_alive"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := BuildStatus(deps.Store, deps.Liveness)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// BuildStatus assembles a StatusResponse from the shared store. Shared with
// the status CLI command.
func BuildStatus(store *storage.Store, coord *liveness.Coordinator) (StatusResponse, error) {
	var resp StatusResponse

	ds, err := engine.LoadDrivingState(store)
	if err != nil {
		return resp, fmt.Errorf("loading driving state: %w", err)
	}
	resp.Driving = ds.IsDriving

	vs, err := engine.LoadVisitState(store)
	if err != nil {
		return resp, fmt.Errorf("loading visit state: %w", err)
	}
	resp.VisitActive = vs.Active
	resp.VisitSince = vs.StartedAt

	snap, err := engine.LoadSnapshot(store)
	if err != nil {
		return resp, fmt.Errorf("loading location snapshot: %w", err)
	}
	if snap != nil {
		pt := snap.Point
		resp.LastVehicleLoc = &pt
	}

	if resp.PendingEvents, err = store.PendingCount(); err != nil {
		return resp, fmt.Errorf("counting pending events: %w", err)
	}

	if resp.ForegroundAlive, err = coord.ForegroundAlive(time.Now()); err != nil {
		return resp, fmt.Errorf("reading heartbeat: %w", err)
	}
	if last, ok, err := coord.LastAlive(); err == nil && ok {
		resp.LastHeartbeat = &last
	}

	return resp, nil
}

func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 1000 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", v)
				return
			}
			limit = n
		}

		logged, err := deps.Store.RecentEvents(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing events: %v", err)
			return
		}

		events := make([]engine.Event, 0, len(logged))
		for _, entry := range logged {
			ev, err := engine.DecodePayload(entry.PayloadJSON)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "decoding event %s: %v", entry.ID, err)
				return
			}
			events = append(events, ev)
		}

		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
