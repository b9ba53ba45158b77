// Command detect runs the detection rules without the HTTP surface: either
// continuously at each rule's cadence, or as a one-shot pass with --once or
// --full-scan. --rule narrows the run to named detectors.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sentra/siem/internal/config"
	"github.com/sentra/siem/internal/livefeed"
	"github.com/sentra/siem/internal/metrics"
	"github.com/sentra/siem/internal/runtime"
	"github.com/sentra/siem/internal/sink"
	"github.com/sentra/siem/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config (optional)")
	ruleFilter := flag.String("rule", "", "comma-separated detector names to run (default all)")
	once := flag.Bool("once", false, "run one incremental pass per detector and exit")
	fullScan := flag.Bool("full-scan", false, "replay the entire event history and exit")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Database.URL, cfg.Database.OperationTimeout.Std())
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	feed := livefeed.New(logger)
	var redisOut sink.RedisOut
	if cfg.Redis.URL != "" {
		pub, err := livefeed.NewRedisPublisher(cfg.Redis.URL, cfg.Redis.Channel, logger)
		if err != nil {
			logger.Error("redis misconfigured", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		redisOut = pub
	}
	alertSink := sink.New(st, feed, redisOut, m, logger)

	runner := runtime.NewRunner(st, alertSink, cfg.Detection.CursorDir, m, logger)
	detectors, err := runtime.DefaultDetectors(cfg)
	if err != nil {
		logger.Error("detector setup failed", "error", err)
		os.Exit(1)
	}
	detectors = runtime.FilterByName(detectors, *ruleFilter)
	if len(detectors) == 0 {
		logger.Error("no detectors match the --rule selector", "selector", *ruleFilter)
		os.Exit(1)
	}
	runner.Register(detectors...)

	switch {
	case *fullScan:
		if oldest, err := st.OldestEventTime(ctx); err == nil && !oldest.IsZero() {
			logger.Info("replaying event history", "from", oldest)
		}
		for _, d := range runner.Detectors() {
			n, err := runner.FullScan(ctx, d)
			if err != nil {
				logger.Error("full scan failed", "detector", d.Name(), "error", err)
				os.Exit(1)
			}
			logger.Info("full scan complete", "detector", d.Name(), "alerts", n)
		}
	case *once:
		for _, d := range runner.Detectors() {
			if err := runner.ScanOnce(ctx, d); err != nil {
				logger.Error("scan failed", "detector", d.Name(), "error", err)
				os.Exit(1)
			}
		}
	default:
		go func() {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan
			logger.Info("shutdown signal received")
			cancel()
		}()
		runner.Run(ctx)
	}
}
