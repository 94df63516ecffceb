package config

import (
	"strings"
	"testing"
	"time"
)

// fakeBackend is an in-memory ConfigBackend for tests.
type fakeBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (b *fakeBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *fakeBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *fakeBackend) SetString(key, val string) error { b.strings[key] = val; return nil }
func (b *fakeBackend) SetInt(key string, val int) error { b.ints[key] = val; return nil }
func (b *fakeBackend) Delete(key string) error          { return nil }

func emptyBackend() *fakeBackend {
	return &fakeBackend{strings: map[string]string{}, ints: map[string]int{}}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(emptyBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Engine.DebounceCount != 2 {
		t.Errorf("Engine.DebounceCount = %d, want 2", cfg.Engine.DebounceCount)
	}
	if cfg.Queue.MaxPending != 500 {
		t.Errorf("Queue.MaxPending = %d, want 500", cfg.Queue.MaxPending)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendOverridesDefaults(t *testing.T) {
	b := emptyBackend()
	b.ints["engine.min_confidence"] = 60
	b.strings["engine.visit_threshold"] = "15m"
	b.strings["engine.visit_radius_meters"] = "200"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Engine.MinConfidence != 60 {
		t.Errorf("MinConfidence = %d, want 60", cfg.Engine.MinConfidence)
	}
	if cfg.Engine.VisitThreshold != "15m" {
		t.Errorf("VisitThreshold = %q, want 15m", cfg.Engine.VisitThreshold)
	}
	if cfg.Engine.VisitRadiusMeters != 200 {
		t.Errorf("VisitRadiusMeters = %v, want 200", cfg.Engine.VisitRadiusMeters)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	b := emptyBackend()
	b.ints["server.port"] = 5000

	t.Setenv("DRIVELINE_SERVER_PORT", "6000")
	t.Setenv("DRIVELINE_LIVENESS_ALIVE_WINDOW", "5m")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want env override 6000", cfg.Server.Port)
	}
	if cfg.Liveness.AliveWindow != "5m" {
		t.Errorf("Liveness.AliveWindow = %q, want 5m", cfg.Liveness.AliveWindow)
	}
}

func TestParseTuning(t *testing.T) {
	cfg, err := loadWith(emptyBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	tuning, err := ParseTuning(cfg)
	if err != nil {
		t.Fatalf("ParseTuning on defaults: %v", err)
	}
	if tuning.MinStillDuration != 90*time.Second {
		t.Errorf("MinStillDuration = %v, want 90s", tuning.MinStillDuration)
	}
	if tuning.VisitThreshold != 10*time.Minute {
		t.Errorf("VisitThreshold = %v, want 10m", tuning.VisitThreshold)
	}
}

func TestParseTuningRejectsBadDuration(t *testing.T) {
	cfg, _ := loadWith(emptyBackend())
	cfg.Engine.MinStillDuration = "ninety seconds"

	if _, err := ParseTuning(cfg); err == nil {
		t.Fatal("ParseTuning accepted an unparseable duration")
	}
}

func TestParseTuningRejectsHeartbeatSlowerThanWindow(t *testing.T) {
	cfg, _ := loadWith(emptyBackend())
	cfg.Liveness.HeartbeatPeriod = "3m"
	cfg.Liveness.AliveWindow = "2m"

	_, err := ParseTuning(cfg)
	if err == nil {
		t.Fatal("ParseTuning accepted heartbeat period >= alive window")
	}
	if !strings.Contains(err.Error(), "heartbeat_period") {
		t.Errorf("error %q does not name the offending key", err)
	}
}

func TestShowAllOmitsSecrets(t *testing.T) {
	cfg, _ := loadWith(emptyBackend())
	cfg.Server.APIToken = "super-secret"

	for _, info := range ShowAll(cfg) {
		if info.Key == "server.api_token" || info.Value == "super-secret" {
			t.Fatalf("secret leaked via ShowAll: %+v", info)
		}
	}
}
