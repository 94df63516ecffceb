package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/avolkov/driveline/internal/api"
	"github.com/avolkov/driveline/internal/config"
	"github.com/avolkov/driveline/internal/engine"
	"github.com/avolkov/driveline/internal/liveness"
	"github.com/avolkov/driveline/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the foreground agent",
	Long: `Run the foreground agent: drain events queued by background invocations,
heartbeat into the shared store, and serve the local HTTP API for the platform
bridge. Also exposes read-only MCP tools over stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running foreground agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "driveline.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "driveline version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	tuning, err := config.ParseTuning(cfg)
	if err != nil {
		return err
	}
	params, err := buildParams(cfg, tuning)
	if err != nil {
		return err
	}

	apiToken, err := config.EnsureAPIToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if the agent is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("driveline is already running (PID %d)", pid)
			return fmt.Errorf("agent already running (PID %d)", pid)
		}
		printWarning("driveline is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("agent already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	if err := drainPending(store); err != nil {
		return err
	}

	coord := liveness.New(store, tuning.AliveWindow)
	if err := coord.MarkAlive(time.Now()); err != nil {
		return fmt.Errorf("writing initial heartbeat: %w", err)
	}

	processor := engine.NewProcessor(store, buildNotifier(cfg), params, slog.Default())

	handler := api.NewHandler(api.Deps{
		Store:     store,
		Processor: processor,
		Liveness:  coord,
		Token:     apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.Server.MaxConns)
	}

	// MCP server on stdio, for the assistant's LLM tooling.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Liveness: coord})
	stdioSrv := mcpserver.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "driveline listening on %s\n", addr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(tuning.HeartbeatPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if err := coord.MarkAlive(now); err != nil {
					slog.Warn("heartbeat write failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// drainPending moves events queued by background invocations into the durable
// event log. The unique index on (kind, occurred_at) drops duplicates from
// overlapping background runs.
func drainPending(store *storage.Store) error {
	pending, err := store.DrainPending()
	if err != nil {
		return fmt.Errorf("draining pending events: %w", err)
	}
	if len(pending) == 0 {
		slog.Info("pending queue empty")
		return nil
	}

	logged := make([]storage.LoggedEvent, 0, len(pending))
	for _, ev := range pending {
		logged = append(logged, storage.LoggedEvent{
			ID:          ev.ID,
			Kind:        ev.Kind,
			OccurredAt:  ev.CreatedAt,
			PayloadJSON: ev.PayloadJSON,
		})
	}
	inserted, err := store.LogEvents(logged)
	if err != nil {
		return fmt.Errorf("logging drained events: %w", err)
	}
	slog.Info("drained pending events", "drained", len(pending), "logged", inserted, "duplicates", len(pending)-inserted)
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("driveline is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop driveline (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to driveline (PID %d)", pid)
	return nil
}
