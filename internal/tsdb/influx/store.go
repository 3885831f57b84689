package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// Store writes samples as points and reads them back with Flux.
type Store struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	reader api.QueryAPI
	bucket string
}

func New(cfg Config) *Store {
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		secs := uint(cfg.Timeout / time.Second)
		if secs == 0 {
			secs = 1
		}
		opts.SetHTTPRequestTimeout(secs)
	}
	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	return &Store{
		client: c,
		writer: c.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		reader: c.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
	}
}

func (s *Store) Write(ctx context.Context, m domain.MetricSample) error {
	fields := make(map[string]interface{}, len(m.Fields))
	for k, v := range m.Fields {
		fields[k] = v
	}
	p := influxdb2.NewPoint(m.Measurement, m.Tags, fields, m.Timestamp)
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, f tsdb.Filter) ([]tsdb.Row, error) {
	res, err := s.reader.Query(ctx, RenderFlux(s.bucket, f))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	var rows []tsdb.Row
	for res.Next() {
		vals := res.Record().Values()
		row := make(tsdb.Row, len(vals))
		for k, v := range vals {
			row[k] = v
		}
		rows = append(rows, row)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx read: %w", err)
	}
	return rows, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influx ping: not ready")
	}
	return nil
}

func (s *Store) Close() { s.client.Close() }

var _ tsdb.Store = (*Store)(nil)
