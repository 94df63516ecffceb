package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avolkov/driveline/internal/api"
	"github.com/avolkov/driveline/internal/config"
	"github.com/avolkov/driveline/internal/engine"
	"github.com/avolkov/driveline/internal/geo"
	"github.com/avolkov/driveline/internal/liveness"
	"github.com/avolkov/driveline/internal/notify"
	"github.com/avolkov/driveline/internal/storage"
)

var (
	sampleActivity   string
	sampleConfidence int
	sampleLat        float64
	sampleLon        float64
	sampleAt         string

	eventsLimit int
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Process one classification sample (background path)",
	Long: `Process a single motion-classification sample against the shared store
and exit. This is the background path: when the foreground agent is alive it
owns the pipeline, so the invocation stands down without touching state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		tuning, err := config.ParseTuning(cfg)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		coord := liveness.New(store, tuning.AliveWindow)
		alive, err := coord.ForegroundAlive(time.Now())
		if err != nil {
			return fmt.Errorf("checking foreground liveness: %w", err)
		}
		if alive {
			printStep("foreground agent is alive, standing down")
			return nil
		}

		activity, err := engine.ParseActivity(sampleActivity)
		if err != nil {
			return err
		}
		if sampleConfidence < 0 || sampleConfidence > 100 {
			return fmt.Errorf("confidence %d out of range 0..100", sampleConfidence)
		}

		observedAt := time.Now()
		if sampleAt != "" {
			observedAt, err = time.Parse(time.RFC3339, sampleAt)
			if err != nil {
				return fmt.Errorf("invalid --at timestamp: %w", err)
			}
		}

		var location *geo.Point
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			location = &geo.Point{Lat: sampleLat, Lon: sampleLon}
		}

		params, err := buildParams(cfg, tuning)
		if err != nil {
			return err
		}

		processor := engine.NewProcessor(store, buildNotifier(cfg), params, slog.Default())
		events, err := processor.Process(engine.Sample{
			Activity:   activity,
			Confidence: sampleConfidence,
			ObservedAt: observedAt,
		}, location)
		if err != nil {
			return fmt.Errorf("processing sample: %w", err)
		}

		for _, ev := range events {
			printSuccess("%s at %s", ev.Kind, ev.OccurredAt().Format(time.RFC3339))
		}
		if len(events) == 0 {
			printStep("sample processed, no transition")
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		tuning, err := config.ParseTuning(cfg)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		status, err := api.BuildStatus(store, liveness.New(store, tuning.AliveWindow))
		if err != nil {
			return err
		}

		printStatus("Driving", "%v", status.Driving)
		if status.VisitActive && status.VisitSince != nil {
			printStatus("Visit", "active since %s", status.VisitSince.Format(time.RFC3339))
		} else {
			printStatus("Visit", "none")
		}
		if status.LastVehicleLoc != nil {
			printStatus("Vehicle location", "%.5f, %.5f", status.LastVehicleLoc.Lat, status.LastVehicleLoc.Lon)
		} else {
			printStatus("Vehicle location", "unknown")
		}
		printStatus("Pending events", "%d", status.PendingEvents)
		if status.ForegroundAlive && status.LastHeartbeat != nil {
			printStatus("Foreground", "alive (last heartbeat %s)", status.LastHeartbeat.Format(time.RFC3339))
		} else {
			printStatus("Foreground", "not running")
		}
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent drive and visit events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if eventsLimit < 1 {
			return fmt.Errorf("limit must be at least 1, got %d", eventsLimit)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		logged, err := store.RecentEvents(eventsLimit)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if len(logged) == 0 {
			printStep("no events recorded")
			return nil
		}

		for _, entry := range logged {
			ev, err := engine.DecodePayload(entry.PayloadJSON)
			if err != nil {
				printWarning("skipping undecodable event %s: %v", entry.ID, err)
				continue
			}
			line := fmt.Sprintf("%s  %s", ev.OccurredAt().Format(time.RFC3339), ev.Kind)
			if ev.Location != nil {
				line += fmt.Sprintf("  (%.5f, %.5f)", ev.Location.Lat, ev.Location.Lon)
			}
			if ev.Kind == engine.KindVisit && ev.StartedAt != nil && ev.EndedAt != nil {
				line += fmt.Sprintf("  dwell %s", ev.EndedAt.Sub(*ev.StartedAt).Round(time.Second))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear persisted engine state",
	Long: `Clear the trip machine, visit machine, and location snapshot. The
pending queue and event log are preserved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := engine.Reset(store); err != nil {
			return err
		}
		printSuccess("engine state cleared")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			fmt.Printf("%-28s %-32s %s\n", info.Key, info.Value, info.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			printError("%v", err)
			fmt.Fprintf(os.Stderr, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}
		printSuccess("%s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	sampleCmd.Flags().StringVar(&sampleActivity, "activity", "", "activity classification (in_vehicle, still, on_foot, walking, other)")
	sampleCmd.Flags().IntVar(&sampleConfidence, "confidence", 100, "classification confidence 0..100")
	sampleCmd.Flags().Float64Var(&sampleLat, "lat", 0, "last-known latitude")
	sampleCmd.Flags().Float64Var(&sampleLon, "lon", 0, "last-known longitude")
	sampleCmd.Flags().StringVar(&sampleAt, "at", "", "observation time, RFC 3339 (default now)")
	sampleCmd.MarkFlagRequired("activity")

	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum number of events")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func setupLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	store.SetPendingCap(cfg.Queue.MaxPending)
	return store, nil
}

func buildParams(cfg config.Config, tuning config.Tuning) (engine.Params, error) {
	params := engine.Params{
		MinConfidence:     cfg.Engine.MinConfidence,
		DebounceCount:     cfg.Engine.DebounceCount,
		MinStillDuration:  tuning.MinStillDuration,
		VisitRadiusMeters: cfg.Engine.VisitRadiusMeters,
		VisitThreshold:    tuning.VisitThreshold,
	}
	if err := params.Validate(); err != nil {
		return engine.Params{}, fmt.Errorf("invalid engine tuning: %w", err)
	}
	return params, nil
}

func buildNotifier(cfg config.Config) notify.Notifier {
	if cfg.Notify.Command != "" {
		return notify.ExecNotifier{Command: cfg.Notify.Command}
	}
	return notify.LogNotifier{}
}
