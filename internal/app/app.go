package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/alert"
	"github.com/hamed0406/uptimeticks/internal/config"
	"github.com/hamed0406/uptimeticks/internal/live"
	"github.com/hamed0406/uptimeticks/internal/observability"
	"github.com/hamed0406/uptimeticks/internal/probe"
	"github.com/hamed0406/uptimeticks/internal/registry"
	regmem "github.com/hamed0406/uptimeticks/internal/registry/memory"
	"github.com/hamed0406/uptimeticks/internal/registry/postgres"
	"github.com/hamed0406/uptimeticks/internal/scheduler"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
	"github.com/hamed0406/uptimeticks/internal/tsdb/influx"
	tsmem "github.com/hamed0406/uptimeticks/internal/tsdb/memory"
	"github.com/hamed0406/uptimeticks/internal/tsdb/timescale"
)

const timescaleTable = "uptime_ticks"

// Backends are the external collaborators selected by configuration.
type Backends struct {
	Registry registry.Store
	Series   tsdb.Store
	Alerts   alert.Publisher

	redis   *redis.Client
	closers []func()
}

func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects the registry, the time-series store and the alert
// channels. On error everything opened so far is closed again.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		b.closers = append(b.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("registry schema: %w", err)
		}
		b.Registry = pg
		log.Info("registry_postgres")
	} else {
		b.Registry = regmem.New()
		log.Info("registry_memory")
	}

	switch cfg.TSDB.Backend {
	case config.BackendInflux:
		st := influx.New(influx.Config{
			URL:     cfg.TSDB.InfluxURL,
			Token:   cfg.TSDB.InfluxToken,
			Org:     cfg.TSDB.InfluxOrg,
			Bucket:  cfg.TSDB.InfluxBucket,
			Timeout: cfg.WriteTimeout,
		})
		b.closers = append(b.closers, st.Close)
		if err := st.Ping(ctx); err != nil {
			// the store may come up later; writes fail and are dropped meanwhile
			log.Warn("influx_unreachable", zap.String("url", cfg.TSDB.InfluxURL), zap.Error(err))
		}
		b.Series = st
	case config.BackendTimescale:
		st, err := timescale.Open(ctx, cfg.TSDB.TimescaleURL, timescaleTable)
		if err != nil {
			return nil, fmt.Errorf("tsdb: %w", err)
		}
		b.closers = append(b.closers, func() { _ = st.Close() })
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("tsdb schema: %w", err)
		}
		b.Series = st
	default:
		b.Series = tsmem.New()
	}
	log.Info("tsdb_backend", zap.String("backend", cfg.TSDB.Backend))

	b.Alerts, err = openAlerts(cfg.Alert, log, b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func openAlerts(cfg config.Alert, log *zap.Logger, b *Backends) (alert.Publisher, error) {
	var chans []alert.Publisher
	if cfg.RedisURL != "" {
		rs, client, err := alert.NewRedisStream(alert.RedisConfig{
			URL:        cfg.RedisURL,
			Stream:     cfg.Stream,
			MaxLen:     cfg.StreamMaxLen,
			MaxRetries: cfg.RedisMaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("alerts: %w", err)
		}
		b.redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })
		chans = append(chans, rs)
		log.Info("alerts_redis_stream", zap.String("stream", cfg.Stream))
	}
	if sl := alert.NewSlack(cfg.SlackWebhook); sl != nil {
		chans = append(chans, sl)
		log.Info("alerts_slack")
	}
	if len(chans) == 0 {
		log.Warn("alerts_disabled")
		return alert.Nop{}, nil
	}
	return alert.RetryEach(cfg.RetryAttempts, cfg.RetryBackoff, chans...), nil
}

// NewExecutor builds the probe executor from configuration. metrics and
// hub may be nil.
func NewExecutor(cfg config.Config, log *zap.Logger, b *Backends, metrics *observability.Metrics, hub *live.Hub) *scheduler.Executor {
	e := scheduler.NewExecutor(log, probe.NewHTTPChecker(cfg.ProbeTimeout), b.Series, b.Alerts, scheduler.ExecutorConfig{
		Concurrency:    cfg.MaxConcurrent,
		ProbeTimeout:   cfg.ProbeTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PublishTimeout: cfg.Alert.PublishTimeout,
		DefaultRegion:  cfg.RegionID,
		DNSDiagnostics: cfg.DNSDiagnostic,
	})
	e.Metrics = metrics
	if hub != nil {
		e.Feed = hub
	}
	return e
}
