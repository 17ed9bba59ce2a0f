// Command walkrotated runs the walk rotation daemon: on a fixed schedule it
// scans the active walks, re-pairs the checked-in participants of every walk
// whose rotation is due, and publishes pairing notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/torch-to-flame/walkmate"
	"github.com/torch-to-flame/walkmate/internal/logging"
	"github.com/torch-to-flame/walkmate/internal/metrics"
	"github.com/torch-to-flame/walkmate/notify"
	"github.com/torch-to-flame/walkmate/types"
	"github.com/torch-to-flame/walkmate/walkstore"
)

const (
	// A failed scan is retried a few times with doubling delays before the
	// schedule takes over again.
	maxScanRetries  = 3
	maxRetryBackoff = 60 * time.Second
)

func main() {
	var (
		configPath  string
		natsURL     string
		metricsAddr string
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&natsURL, "nats", nats.DefaultURL, "NATS server URL")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9105", "Prometheus metrics listen address, empty to disable")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := logging.NewSlog(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))

	cfg := walkmate.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = walkmate.LoadConfig(configPath)
		if err != nil {
			logger.Fatal("failed to load config", "path", configPath, "error", err)
		}
	}

	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Fatal("failed to connect to NATS", "url", natsURL, "error", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		logger.Fatal("failed to create JetStream context", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	store, err := walkstore.Open(ctx, js, cfg.KVBuckets.WalkBucket)
	if err != nil {
		cancel()
		logger.Fatal("failed to open walk store", "bucket", cfg.KVBuckets.WalkBucket, "error", err)
	}

	dir, err := notify.OpenKVDirectory(ctx, js, cfg.KVBuckets.UserBucket)
	cancel()
	if err != nil {
		logger.Fatal("failed to open user directory", "bucket", cfg.KVBuckets.UserBucket, "error", err)
	}

	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "walkmate")
	store.SetMetrics(collector)

	notifier := notify.New(nc, dir, cfg.Notify.Subject,
		notify.WithLogger(logger),
		notify.WithMetrics(collector),
	)

	orch, err := walkmate.New(cfg, store, notifier,
		walkmate.WithLogger(logger),
		walkmate.WithMetrics(collector),
	)
	if err != nil {
		logger.Fatal("failed to create orchestrator", "error", err)
	}

	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A scan outlasting the interval (slow store, retry backoff) must not
	// stack a second concurrent scan on top of itself.
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	spec := fmt.Sprintf("@every %s", cfg.CheckInterval)
	if _, err := scheduler.AddFunc(spec, func() {
		scanWithRetry(runCtx, orch, logger)
	}); err != nil {
		logger.Fatal("failed to schedule rotation scan", "spec", spec, "error", err)
	}

	scheduler.Start()
	logger.Info("walkrotated started",
		"nats", natsURL,
		"check_interval", cfg.CheckInterval,
		"walk_bucket", cfg.KVBuckets.WalkBucket,
	)

	<-runCtx.Done()
	logger.Info("shutting down")

	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("timed out waiting for in-flight scan")
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	if err := nc.Drain(); err != nil {
		logger.Warn("failed to drain NATS connection", "error", err)
	}
}

// scanWithRetry runs one rotation scan, retrying transient failures with
// doubling backoff. Per-walk failures are handled inside the scan; only a
// whole-invocation failure, such as an unreachable KV bucket, lands here.
func scanWithRetry(ctx context.Context, orch *walkmate.Orchestrator, logger types.Logger) {
	backoff := 5 * time.Second

	for attempt := 1; ; attempt++ {
		err := orch.RunOnce(ctx)
		if err == nil {
			return
		}

		if attempt >= maxScanRetries {
			logger.Error("rotation scan failed, giving up until next schedule",
				"attempts", attempt, "error", err)
			return
		}

		logger.Warn("rotation scan failed, retrying",
			"attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}
