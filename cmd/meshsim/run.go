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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gomesh/internal/config"
	"github.com/dantte-lp/gomesh/internal/mesh"
	"github.com/dantte-lp/gomesh/internal/meshmetrics"
	"github.com/dantte-lp/gomesh/internal/sim"
	appversion "github.com/dantte-lp/gomesh/internal/version"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a simulated mesh swarm to completion and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSwarm(configPath)
		},
	}
}

func runSwarm(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("meshsim starting",
		slog.String("version", appversion.Version),
		slog.Int("node_count", cfg.Swarm.NodeCount),
		slog.Int64("duration_ms", cfg.Swarm.DurationMs),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := meshmetrics.NewCollector(reg)

	swarm, err := sim.New(toSimConfig(cfg), collector, logger)
	if err != nil {
		return fmt.Errorf("build swarm: %w", err)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(signalCtx)
	runCtx, cancelRun := context.WithCancel(gCtx)
	defer cancelRun()

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(runCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		// cancelRun stops the metrics server once the swarm finishes,
		// whether that is a natural completion or an external signal.
		defer cancelRun()
		return swarm.Run(gCtx, cfg.Swarm.DurationMs)
	})

	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	printSummary(swarm.Snapshot())

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("meshsim run: %w", runErr)
	}
	logger.Info("meshsim stopped")
	return nil
}

func toSimConfig(cfg *config.Config) sim.Config {
	return sim.Config{
		NodeCount:           cfg.Swarm.NodeCount,
		AreaWidthM:          cfg.Swarm.AreaWidthM,
		AreaHeightM:         cfg.Swarm.AreaHeightM,
		Mobility: sim.MobilityConfig{
			Enabled:  cfg.Swarm.Mobility.Enabled,
			MaxStepM: cfg.Swarm.Mobility.MaxStepM,
		},
		SlotDurationMs:      cfg.Swarm.SlotDurationMs,
		InitialTTL:          cfg.Swarm.InitialTTL,
		ProximityThresholdM: cfg.Swarm.ProximityThresholdM,
		Seed:                cfg.Swarm.Seed,
	}
}

// printSummary prints a final tabular report over the swarm's node
// snapshots: node count, clusterhead count, average cluster size, and
// total messages forwarded,
// grounded on the teacher's gobfdctl tabular ListSessions-style reporting.
func printSummary(views []mesh.NodeView) {
	var churn uint64
	for _, v := range views {
		churn += v.MessagesForwarded
	}

	clusterheads := countClusterheads(views)

	avg := 0.0
	if clusterheads > 0 {
		avg = float64(len(views)) / float64(clusterheads)
	}

	fmt.Printf("\nmeshsim summary\n")
	fmt.Printf("  nodes:         %d\n", len(views))
	fmt.Printf("  clusterheads:  %d\n", clusterheads)
	fmt.Printf("  avg cluster size: %.1f\n", avg)
	fmt.Printf("  messages forwarded (total): %d\n", churn)
}

func countClusterheads(views []mesh.NodeView) int {
	var n int
	for _, v := range views {
		if v.State == mesh.StateClusterhead {
			n++
		}
	}
	return n
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}
