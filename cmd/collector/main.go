// Command collector runs the full pipeline in one process: tail and push
// ingest, the detection runner, and the HTTP API serving alerts, the live
// SSE stream, health and metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentra/siem/internal/api"
	"github.com/sentra/siem/internal/config"
	"github.com/sentra/siem/internal/ingest"
	"github.com/sentra/siem/internal/livefeed"
	"github.com/sentra/siem/internal/metrics"
	"github.com/sentra/siem/internal/middleware"
	"github.com/sentra/siem/internal/normalize"
	"github.com/sentra/siem/internal/report"
	"github.com/sentra/siem/internal/runtime"
	"github.com/sentra/siem/internal/sink"
	"github.com/sentra/siem/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config (optional)")
	noDetect := flag.Bool("no-detect", false, "serve ingest and API only, without the detection runner")
	flag.Parse()

	// .env is optional, env vars win either way.
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

	enricher := normalize.NewEnricher(cfg.Enrich.GeoIPDBPath, logger)
	defer enricher.Close()
	normalizer := normalize.New(enricher, logger)
	pipeline := ingest.NewPipeline(normalizer, st, m, logger)

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
		logger.Info("redis fan-out enabled", "channel", cfg.Redis.Channel)
	}

	alertSink := sink.New(st, feed, redisOut, m, logger)

	if !*noDetect {
		runner := runtime.NewRunner(st, alertSink, cfg.Detection.CursorDir, m, logger)
		detectors, err := runtime.DefaultDetectors(cfg)
		if err != nil {
			logger.Error("detector setup failed", "error", err)
			os.Exit(1)
		}
		runner.Register(detectors...)
		go runner.Run(ctx)
	}

	tailer := ingest.NewTailer(cfg.Ingest.LogFiles, pipeline, logger)
	go func() {
		if err := tailer.Run(ctx); err != nil {
			logger.Error("tailer stopped", "error", err)
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.Logging(logger))

	limiter := middleware.NewRateLimiter(cfg.Server.PushRateLimit, logger)
	apiServer := api.New(st, report.New(st), feed, logger)
	router.Handle("/collect", limiter.Wrap(ingest.NewPushHandler(pipeline, logger))).Methods("POST")
	router.HandleFunc("/alerts", apiServer.Alerts).Methods("GET")
	router.HandleFunc("/alerts/stream", apiServer.AlertStream).Methods("GET")
	router.HandleFunc("/events", apiServer.Events).Methods("GET")
	router.HandleFunc("/health", apiServer.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("forced shutdown", "error", err)
		}
	}()

	logger.Info("collector listening", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
