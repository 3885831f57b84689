package alert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// streamAdder is the part of the redis client the stream publisher needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends notifications to a Redis stream. Entries for a
// single target keep their order; nothing is promised across targets.
type RedisStream struct {
	client streamAdder
	stream string
	maxLen int64
}

type RedisConfig struct {
	URL        string
	Stream     string
	MaxLen     int64
	MaxRetries int
}

// NewRedisStream dials nothing; go-redis connects lazily and retries
// failed commands MaxRetries times on its own.
func NewRedisStream(cfg RedisConfig) (*RedisStream, *redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	c := redis.NewClient(opts)
	return newRedisStream(c, cfg.Stream, cfg.MaxLen), c, nil
}

func newRedisStream(c streamAdder, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = "notifications"
	}
	return &RedisStream{client: c, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Publish(ctx context.Context, n domain.DowntimeNotification) error {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"target_id":   string(n.TargetID),
			"region_id":   n.RegionID,
			"status":      string(n.Status),
			"latency_ms":  strconv.FormatInt(n.LatencyMS, 10),
			"observed_at": strconv.FormatInt(n.ObservedAt.UnixMilli(), 10),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// DecodeNotification is the inverse of the stream entry layout written by Publish.
func DecodeNotification(values map[string]any) (domain.DowntimeNotification, error) {
	str := func(k string) string {
		v, _ := values[k].(string)
		return v
	}
	status, ok := domain.ParseStatus(str("status"))
	if !ok {
		return domain.DowntimeNotification{}, fmt.Errorf("bad status %q", str("status"))
	}
	lat, err := strconv.ParseInt(str("latency_ms"), 10, 64)
	if err != nil {
		return domain.DowntimeNotification{}, fmt.Errorf("bad latency: %w", err)
	}
	ms, err := strconv.ParseInt(str("observed_at"), 10, 64)
	if err != nil {
		return domain.DowntimeNotification{}, fmt.Errorf("bad observed_at: %w", err)
	}
	return domain.DowntimeNotification{
		TargetID:   domain.TargetID(str("target_id")),
		RegionID:   str("region_id"),
		Status:     status,
		LatencyMS:  lat,
		ObservedAt: time.UnixMilli(ms).UTC(),
	}, nil
}
