package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pthm-cable/squadsim/config"
	"github.com/pthm-cable/squadsim/debugview"
	"github.com/pthm-cable/squadsim/game"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = run until one side is wiped out)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, snapshots and config")
	logFormat := flag.String("log-format", "json", "Log format: json or text")
	debugAddr := flag.String("debug-addr", "", "Serve the websocket debug view on this address (e.g. :8080)")
	soldiers := flag.Int("soldiers-per-team", 0, "Override scenario.soldiers_per_team (0 = use config)")
	logStats := flag.Bool("log-stats", false, "Log combat and perf stats every window")

	flag.Parse()

	logger, err := newLogger(*logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)
	game.SetLogWriter(os.Stderr)

	if err := config.Init(*configPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *soldiers > 0 {
		cfg.Scenario.SoldiersPerTeam = *soldiers
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, runFlags{
		seed:      rngSeed,
		maxTicks:  *maxTicks,
		outputDir: *outputDir,
		debugAddr: *debugAddr,
		logStats:  *logStats,
	}); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

type runFlags struct {
	seed      int64
	maxTicks  int64
	outputDir string
	debugAddr string
	logStats  bool
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, f runFlags) error {
	opts := game.Options{
		Config:    cfg,
		Seed:      f.seed,
		MaxTicks:  f.maxTicks,
		OutputDir: f.outputDir,
		LogStats:  f.logStats,
		Logger:    logger,
	}

	var g *game.Game
	var hub *debugview.Hub
	if f.debugAddr != "" {
		hub = debugview.NewHub(logger, cfg.Debug.ClientBuffer, func(name string, value bool) error {
			return g.QueueToggle(name, value)
		})
		opts.OnSnapshot = hub.Publish
	}

	g, err := game.NewGame(opts)
	if err != nil {
		return fmt.Errorf("creating game: %w", err)
	}
	defer g.Close()

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	serveErr := make(chan error, 1)
	if hub != nil {
		go func() { serveErr <- hub.ListenAndServe(serveCtx, f.debugAddr) }()
	}

	logger.Info("starting simulation",
		"seed", f.seed,
		"max_ticks", f.maxTicks,
		"soldiers_per_team", cfg.Scenario.SoldiersPerTeam,
		"debug_addr", f.debugAddr,
	)

	start := time.Now()
	err = g.Run(ctx)
	logger.Info("simulation finished",
		"tick", g.Tick(),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if hub != nil {
		cancelServe()
		return <-serveErr
	}
	return nil
}

// newLogger builds the process logger. Text output goes through the
// charmbracelet handler for readable terminal logs.
func newLogger(format string) (*slog.Logger, error) {
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, nil)), nil
	case "text":
		handler := log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Level:           log.InfoLevel,
		})
		return slog.New(handler), nil
	default:
		return nil, fmt.Errorf("unknown --log-format %q (want json or text)", format)
	}
}
