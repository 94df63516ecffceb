package main

import (
	"strings"
	"testing"

	"github.com/avolkov/driveline/internal/config"
	"github.com/avolkov/driveline/internal/notify"
)

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestSampleCommand_MissingActivity(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"sample"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --activity")
	}
	if !strings.Contains(err.Error(), "activity") {
		t.Errorf("error = %q, want it to mention 'activity'", err.Error())
	}
}

func TestBuildParamsFromConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.Engine.MinConfidence = 80
	cfg.Engine.DebounceCount = 3
	cfg.Engine.MinStillDuration = "60s"
	cfg.Engine.VisitRadiusMeters = 200
	cfg.Engine.VisitThreshold = "15m"
	cfg.Liveness.AliveWindow = "2m"
	cfg.Liveness.HeartbeatPeriod = "1m"

	tuning, err := config.ParseTuning(cfg)
	if err != nil {
		t.Fatalf("ParseTuning: %v", err)
	}

	params, err := buildParams(cfg, tuning)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.MinConfidence != 80 || params.DebounceCount != 3 {
		t.Errorf("params = %+v, want confidence 80 debounce 3", params)
	}
	if params.VisitThreshold <= params.MinStillDuration {
		t.Errorf("visit threshold %v not above min still duration %v", params.VisitThreshold, params.MinStillDuration)
	}
}

func TestBuildParamsRejectsInvertedThresholds(t *testing.T) {
	cfg := config.Config{}
	cfg.Engine.MinConfidence = 75
	cfg.Engine.DebounceCount = 2
	cfg.Engine.MinStillDuration = "10m"
	cfg.Engine.VisitRadiusMeters = 150
	cfg.Engine.VisitThreshold = "90s"
	cfg.Liveness.AliveWindow = "2m"
	cfg.Liveness.HeartbeatPeriod = "1m"

	tuning, err := config.ParseTuning(cfg)
	if err != nil {
		t.Fatalf("ParseTuning: %v", err)
	}

	if _, err := buildParams(cfg, tuning); err == nil {
		t.Fatal("expected error for visit threshold below min still duration")
	}
}

func TestBuildNotifier(t *testing.T) {
	cfg := config.Config{}
	if _, ok := buildNotifier(cfg).(notify.LogNotifier); !ok {
		t.Error("empty command should use the log notifier")
	}

	cfg.Notify.Command = "notify-send"
	execN, ok := buildNotifier(cfg).(notify.ExecNotifier)
	if !ok {
		t.Fatal("non-empty command should use the exec notifier")
	}
	if execN.Command != "notify-send" {
		t.Errorf("command = %q, want notify-send", execN.Command)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Engine.VisitThreshold = "10m"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}
