package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DRIVELINE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "DRIVELINE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "server.max_conns", typ: kInt, env: "DRIVELINE_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DRIVELINE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "engine.min_confidence", typ: kInt, env: "DRIVELINE_ENGINE_MIN_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Engine.MinConfidence = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.MinConfidence },
	},
	{
		key: "engine.debounce_count", typ: kInt, env: "DRIVELINE_ENGINE_DEBOUNCE_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Engine.DebounceCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.DebounceCount },
	},
	{
		key: "engine.min_still_duration", typ: kString, env: "DRIVELINE_ENGINE_MIN_STILL_DURATION",
		apply:   func(cfg *Config, v any) { cfg.Engine.MinStillDuration = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.MinStillDuration },
	},
	{
		key: "engine.visit_radius_meters", typ: kFloat, env: "DRIVELINE_ENGINE_VISIT_RADIUS_METERS",
		apply:   func(cfg *Config, v any) { cfg.Engine.VisitRadiusMeters = v.(float64) },
		extract: func(cfg Config) any { return cfg.Engine.VisitRadiusMeters },
	},
	{
		key: "engine.visit_threshold", typ: kString, env: "DRIVELINE_ENGINE_VISIT_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Engine.VisitThreshold = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.VisitThreshold },
	},
	{
		key: "liveness.alive_window", typ: kString, env: "DRIVELINE_LIVENESS_ALIVE_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Liveness.AliveWindow = v.(string) },
		extract: func(cfg Config) any { return cfg.Liveness.AliveWindow },
	},
	{
		key: "liveness.heartbeat_period", typ: kString, env: "DRIVELINE_LIVENESS_HEARTBEAT_PERIOD",
		apply:   func(cfg *Config, v any) { cfg.Liveness.HeartbeatPeriod = v.(string) },
		extract: func(cfg Config) any { return cfg.Liveness.HeartbeatPeriod },
	},
	{
		key: "queue.max_pending", typ: kInt, env: "DRIVELINE_QUEUE_MAX_PENDING",
		apply:   func(cfg *Config, v any) { cfg.Queue.MaxPending = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.MaxPending },
	},
	{
		key: "notify.command", typ: kString, env: "DRIVELINE_NOTIFY_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Notify.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.Command },
	},
	{
		key: "log.level", typ: kString, env: "DRIVELINE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if fv, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, fv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, v)
		case kInt:
			if iv, err := strconv.Atoi(v); err == nil {
				s.apply(cfg, iv)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse int from %s=%q: %v. Using default value.\n", s.env, v, err)
			}
		case kFloat:
			if fv, err := strconv.ParseFloat(v, 64); err == nil {
				s.apply(cfg, fv)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from %s=%q: %v. Using default value.\n", s.env, v, err)
			}
		}
	}
}
