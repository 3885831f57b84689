package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/app"
	"github.com/hamed0406/uptimeticks/internal/config"
	"github.com/hamed0406/uptimeticks/internal/httpapi"
	apimw "github.com/hamed0406/uptimeticks/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeticks/internal/live"
	"github.com/hamed0406/uptimeticks/internal/logging"
	"github.com/hamed0406/uptimeticks/internal/observability"
	"github.com/hamed0406/uptimeticks/internal/probe"
	"github.com/hamed0406/uptimeticks/internal/query"
	"github.com/hamed0406/uptimeticks/internal/scheduler"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("backends_open_failed", zap.Error(err))
	}
	defer backends.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	api := httpapi.NewServer(logger, backends.Registry, query.NewService(backends.Series, logger), probe.NewHTTPChecker(cfg.ProbeTimeout))
	api.ProbeTimeout = cfg.ProbeTimeout
	api.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	// closed when the embedded worker has drained; nil when not embedded
	var workerDone <-chan struct{}
	if cfg.EmbedWorker {
		hub := live.NewHub(64)
		api.Hub = hub
		exec := app.NewExecutor(cfg, logger, backends, metrics, hub)
		sched := scheduler.NewScheduler(logger, backends.Registry, exec, cfg.CheckInterval)
		workerDone = sched.Start(ctx)
		logger.Info("worker_embedded", zap.Duration("interval", cfg.CheckInterval), zap.Int("concurrency", cfg.MaxConcurrent))
	}

	keys := apimw.KeysFromConfig(cfg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, httpapi.Limits{PublicRPM: cfg.PublicRPM, PublicBurst: cfg.PublicBurst, AdminRPM: cfg.AdminRPM, AdminBurst: cfg.AdminBurst}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listen", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_listen_failed", zap.Error(err))
	}
	<-serverDone
	if workerDone != nil {
		// backends are closed by the deferred Close only after the last
		// round's writes and publishes are done
		<-workerDone
	}
	logger.Info("api_stopped")
}
