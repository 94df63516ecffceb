package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Engine   EngineConfig
	Liveness LivenessConfig
	Queue    QueueConfig
	Notify   NotifyConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
	MaxConns int
}

type StorageConfig struct {
	DataDir string
}

// EngineConfig holds the detection tunables. Durations are strings in
// time.ParseDuration syntax; ParseTuning validates them together with the
// relative ordering the guards rely on.
type EngineConfig struct {
	MinConfidence     int
	DebounceCount     int
	MinStillDuration  string
	VisitRadiusMeters float64
	VisitThreshold    string
}

type LivenessConfig struct {
	AliveWindow     string
	HeartbeatPeriod string
}

type QueueConfig struct {
	MaxPending int
}

type NotifyConfig struct {
	// Command is an external notifier binary invoked as `cmd <title> <body>`
	// (e.g. notify-send). Empty means notifications go to the log.
	Command string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4600,
			MaxConns: 16,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Engine: EngineConfig{
			MinConfidence:     75,
			DebounceCount:     2,
			MinStillDuration:  "90s",
			VisitRadiusMeters: 150,
			VisitThreshold:    "10m",
		},
		Liveness: LivenessConfig{
			AliveWindow:     "2m",
			HeartbeatPeriod: "1m",
		},
		Queue: QueueConfig{
			MaxPending: 500,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/driveline/config.json), then applies DRIVELINE_*
// environment overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// Tuning is EngineConfig and LivenessConfig with durations parsed.
type Tuning struct {
	MinStillDuration time.Duration
	VisitThreshold   time.Duration
	AliveWindow      time.Duration
	HeartbeatPeriod  time.Duration
}

// ParseTuning parses and cross-validates the duration fields.
func ParseTuning(cfg Config) (Tuning, error) {
	var t Tuning
	var err error
	if t.MinStillDuration, err = time.ParseDuration(cfg.Engine.MinStillDuration); err != nil {
		return Tuning{}, fmt.Errorf("invalid engine.min_still_duration: %w", err)
	}
	if t.VisitThreshold, err = time.ParseDuration(cfg.Engine.VisitThreshold); err != nil {
		return Tuning{}, fmt.Errorf("invalid engine.visit_threshold: %w", err)
	}
	if t.AliveWindow, err = time.ParseDuration(cfg.Liveness.AliveWindow); err != nil {
		return Tuning{}, fmt.Errorf("invalid liveness.alive_window: %w", err)
	}
	if t.HeartbeatPeriod, err = time.ParseDuration(cfg.Liveness.HeartbeatPeriod); err != nil {
		return Tuning{}, fmt.Errorf("invalid liveness.heartbeat_period: %w", err)
	}
	if t.HeartbeatPeriod >= t.AliveWindow {
		return Tuning{}, fmt.Errorf("liveness.heartbeat_period %v must be shorter than liveness.alive_window %v",
			t.HeartbeatPeriod, t.AliveWindow)
	}
	return t, nil
}
