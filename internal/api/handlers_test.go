package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avolkov/driveline/internal/engine"
	"github.com/avolkov/driveline/internal/liveness"
	"github.com/avolkov/driveline/internal/storage"
)

const testToken = "test-token-12345"

func setupHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	coord := liveness.New(store, 2*time.Minute)
	processor := engine.NewProcessor(store, nil, engine.DefaultParams(), nil)

	handler := NewHandler(Deps{
		Store:     store,
		Processor: processor,
		Liveness:  coord,
		Token:     testToken,
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func sampleBody(activity string, confidence int, at time.Time) string {
	return fmt.Sprintf(`{"activity":%q,"confidence":%d,"observed_at":%q,"location":{"lat":52.52,"lon":13.405}}`,
		activity, confidence, at.Format(time.RFC3339))
}

func TestHealthOpenWithoutAuth(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	h, _ := setupHandler(t)

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "wrong-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/status", "", tc.token))
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func TestPostSampleEmitsStart(t *testing.T) {
	h, _ := setupHandler(t)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/samples", sampleBody("in_vehicle", 90, base), testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("first sample: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/samples", sampleBody("in_vehicle", 90, base.Add(30*time.Second)), testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("second sample: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Accepted bool           `json:"accepted"`
		Events   []engine.Event `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Accepted {
		t.Error("accepted = false")
	}
	if len(resp.Events) != 1 || resp.Events[0].Kind != engine.KindStart {
		t.Fatalf("events = %+v, want one start", resp.Events)
	}
}

func TestPostSampleValidation(t *testing.T) {
	h, _ := setupHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing observed_at", `{"activity":"still","confidence":80}`},
		{"confidence out of range", `{"activity":"still","confidence":150,"observed_at":"2026-03-01T08:00:00Z"}`},
		{"unknown activity", `{"activity":"teleporting","confidence":80,"observed_at":"2026-03-01T08:00:00Z"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/samples", tc.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestHeartbeatAndStatus(t *testing.T) {
	h, _ := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/status", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var before StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &before); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if before.ForegroundAlive {
		t.Error("foreground alive before any heartbeat")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/heartbeat", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("heartbeat: status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/status", "", testToken))
	var after StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &after); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !after.ForegroundAlive {
		t.Error("foreground not alive after heartbeat")
	}
	if after.LastHeartbeat == nil {
		t.Error("last heartbeat missing after heartbeat")
	}
}

func TestEventsEndpoint(t *testing.T) {
	h, store := setupHandler(t)

	occurred := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ev := engine.Event{ID: "ev-1", Kind: engine.KindStart, At: occurred}
	payload, err := ev.EncodePayload()
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	if _, err := store.LogEvents([]storage.LoggedEvent{{
		ID: ev.ID, Kind: string(ev.Kind), OccurredAt: occurred, PayloadJSON: payload,
	}}); err != nil {
		t.Fatalf("LogEvents: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/events?limit=10", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Events []engine.Event `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].ID != "ev-1" {
		t.Fatalf("events = %+v, want the logged start event", resp.Events)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/events?limit=0", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("limit=0: status = %d, want 400", rr.Code)
	}
}
