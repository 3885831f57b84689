package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/uptimeticks/internal/alert"
	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/observability"
	"github.com/hamed0406/uptimeticks/internal/probe"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

// Feed receives every probe result of every round.
type Feed interface {
	Broadcast(domain.ProbeResult)
}

type ExecutorConfig struct {
	Concurrency    int           // K: probes allowed in flight at once
	ProbeTimeout   time.Duration // upper bound on a single probe
	WriteTimeout   time.Duration
	PublishTimeout time.Duration
	DefaultRegion  string // used when a target has no region of its own
	DNSDiagnostics bool
}

func (c *ExecutorConfig) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

// Executor runs one probe per target with bounded concurrency and hands
// each result to the metric writer and, when Down, the alert publisher.
type Executor struct {
	log       *zap.Logger
	checker   probe.Checker
	writer    tsdb.Writer
	publisher alert.Publisher
	cfg       ExecutorConfig

	Metrics  *observability.Metrics
	Feed     Feed
	Resolver probe.Resolver

	now func() time.Time
}

func NewExecutor(
	logger *zap.Logger,
	checker probe.Checker,
	writer tsdb.Writer,
	publisher alert.Publisher,
	cfg ExecutorConfig,
) *Executor {
	cfg.applyDefaults()
	if publisher == nil {
		publisher = alert.Nop{}
	}
	return &Executor{
		log:       logger,
		checker:   checker,
		writer:    writer,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RunRound probes every target once and returns after all probes, writes
// and publishes of the round have finished. Results are in target order.
// If ctx ends before every target got a slot, the remaining targets are
// skipped and only completed results are returned.
func (e *Executor) RunRound(ctx context.Context, targets []domain.Target) []domain.ProbeResult {
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	results := make([]domain.ProbeResult, len(targets))
	done := make([]bool, len(targets))
	var wg sync.WaitGroup

	for i := range targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			e.log.Warn("round_interrupted",
				zap.Int("probed", i),
				zap.Int("targets", len(targets)),
				zap.Error(err),
			)
			break
		}
		wg.Add(1)
		go func(i int, t domain.Target) {
			defer wg.Done()
			res, out, ok := e.probe(ctx, sem, t)
			if !ok {
				e.log.Info("check_abandoned", zap.String("target_id", string(t.ID)))
				return
			}
			results[i] = res
			done[i] = true
			e.dispatch(ctx, t, res, out)
		}(i, targets[i])
	}
	wg.Wait()

	out := make([]domain.ProbeResult, 0, len(targets))
	for i, ok := range done {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

// probe holds a concurrency slot only for the duration of the check.
// ok is false when the round itself was cancelled before the check could
// succeed; such a check says nothing about the target and yields no result.
func (e *Executor) probe(ctx context.Context, sem *semaphore.Weighted, t domain.Target) (res domain.ProbeResult, out probe.Outcome, ok bool) {
	defer sem.Release(1)
	e.Metrics.ProbeStarted()

	pctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	observedAt := e.now().UTC()
	out = e.check(pctx, t.URL)
	if out.Status != domain.StatusUp {
		if ctx.Err() != nil {
			e.Metrics.CheckAbandoned()
			return res, out, false
		}
		out.Status = domain.StatusDown
	}
	if out.LatencyMS < 0 {
		out.LatencyMS = 0
	}

	region := t.RegionID
	if region == "" {
		region = e.cfg.DefaultRegion
	}
	res = domain.ProbeResult{
		TargetID:   t.ID,
		RegionID:   region,
		Status:     out.Status,
		LatencyMS:  out.LatencyMS,
		ObservedAt: observedAt,
	}
	e.Metrics.ProbeFinished(res)
	return res, out, true
}

func (e *Executor) check(ctx context.Context, url string) (out probe.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = probe.Outcome{Status: domain.StatusDown, Reason: fmt.Sprintf("probe panic: %v", p)}
		}
	}()
	return e.checker.Check(ctx, url)
}

// dispatch runs the write path and the alert path side by side. Neither
// waits on, retries or undoes the other.
func (e *Executor) dispatch(ctx context.Context, t domain.Target, res domain.ProbeResult, out probe.Outcome) {
	// results observed before shutdown are still persisted, bounded by
	// their own timeouts
	base := context.WithoutCancel(ctx)

	e.log.Debug("probe_done",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.String("status", string(res.Status)),
		zap.Int("http_status", out.StatusCode),
		zap.Int64("latency_ms", res.LatencyMS),
		zap.String("reason", out.Reason),
	)

	var wg sync.WaitGroup
	e.goSafe(&wg, t, "write", func() { e.write(base, res) })
	if n, ok := domain.NotificationFromResult(res); ok {
		e.goSafe(&wg, t, "publish", func() { e.publish(base, n) })
		if e.cfg.DNSDiagnostics && out.TransportFailure() {
			e.goSafe(&wg, t, "dns", func() { e.diagnose(base, t) })
		}
	}
	if e.Feed != nil {
		e.Feed.Broadcast(res)
	}
	wg.Wait()
}

func (e *Executor) write(ctx context.Context, res domain.ProbeResult) {
	wctx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()
	if err := e.writer.Write(wctx, domain.SampleFromResult(res)); err != nil {
		e.Metrics.WriteFailed()
		e.log.Warn("metric_write_failed",
			zap.String("target_id", string(res.TargetID)),
			zap.Time("observed_at", res.ObservedAt),
			zap.Error(err),
		)
	}
}

func (e *Executor) publish(ctx context.Context, n domain.DowntimeNotification) {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pctx, n); err != nil {
		e.Metrics.PublishFailed()
		e.log.Warn("alert_publish_failed",
			zap.String("target_id", string(n.TargetID)),
			zap.Time("observed_at", n.ObservedAt),
			zap.Error(err),
		)
	}
}

func (e *Executor) diagnose(ctx context.Context, t domain.Target) {
	dns := probe.DiagnoseURL(ctx, e.Resolver, t.URL)
	e.log.Info("dns_check",
		zap.String("target_id", string(t.ID)),
		zap.String("domain", dns.Domain),
		zap.String("class", dns.Class),
		zap.Bool("has_a_or_aaaa", dns.HasAOrAAAA),
		zap.Strings("nameservers", dns.Nameservers),
		zap.String("cname", dns.CNAME),
		zap.String("resolver_error", dns.ResolverError),
	)
}

// goSafe runs fn on its own goroutine; a panic is logged and contained to
// this target.
func (e *Executor) goSafe(wg *sync.WaitGroup, t domain.Target, stage string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if p := recover(); p != nil {
				e.log.Error("target_stage_panic",
					zap.String("target_id", string(t.ID)),
					zap.String("stage", stage),
					zap.Any("panic", p),
				)
			}
		}()
		fn()
	}()
}
