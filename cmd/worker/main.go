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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/app"
	"github.com/hamed0406/uptimeticks/internal/config"
	"github.com/hamed0406/uptimeticks/internal/logging"
	"github.com/hamed0406/uptimeticks/internal/observability"
	"github.com/hamed0406/uptimeticks/internal/scheduler"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	once := flag.Bool("once", false, "run a single round and exit")
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

	exec := app.NewExecutor(cfg, logger, backends, metrics, nil)
	sched := scheduler.NewScheduler(logger, backends.Registry, exec, cfg.CheckInterval)

	if *once {
		if _, err := sched.RunOnce(ctx); err != nil {
			logger.Error("round_failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics_listen", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_listen_failed", zap.Error(err))
		}
	}()

	logger.Info("worker_start",
		zap.Duration("interval", cfg.CheckInterval),
		zap.Int("concurrency", cfg.MaxConcurrent),
		zap.String("region", cfg.RegionID),
	)
	sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("worker_stopped")
}
