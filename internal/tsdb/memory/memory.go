package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

type point struct {
	measurement string
	field       string
	tags        map[string]string
	value       int64
	at          time.Time
}

// Store is an append-only in-process time-series store. It backs local
// development and tests; rows come back in insertion order.
type Store struct {
	mu     sync.RWMutex
	points []point
	now    func() time.Time
}

func New() *Store {
	return &Store{
		points: make([]point, 0, 1024),
		now:    time.Now,
	}
}

// WithClock replaces the clock used to compute the lookback lower bound.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Write(ctx context.Context, m domain.MetricSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tags := make(map[string]string, len(m.Tags))
	for k, v := range m.Tags {
		tags[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for f, v := range m.Fields {
		s.points = append(s.points, point{
			measurement: m.Measurement,
			field:       f,
			tags:        tags,
			value:       v,
			at:          m.Timestamp,
		})
	}
	return nil
}

func (s *Store) Query(ctx context.Context, f tsdb.Filter) ([]tsdb.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := s.now().Add(-f.Lookback)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []tsdb.Row
	var last *point
	for i := range s.points {
		p := &s.points[i]
		if p.at.Before(start) || !matches(p, f.Predicates) {
			continue
		}
		if f.Last {
			if last == nil || p.at.After(last.at) {
				last = p
			}
			continue
		}
		out = append(out, toRow(p))
	}
	if last != nil {
		out = append(out, toRow(last))
	}
	return out, nil
}

// Len reports how many field values have been stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func matches(p *point, preds []tsdb.Predicate) bool {
	for _, pr := range preds {
		switch pr.Key {
		case tsdb.KeyMeasurement:
			if p.measurement != pr.Value {
				return false
			}
		case tsdb.KeyField:
			if p.field != pr.Value {
				return false
			}
		default:
			if p.tags[pr.Key] != pr.Value {
				return false
			}
		}
	}
	return true
}

func toRow(p *point) tsdb.Row {
	r := tsdb.Row{
		tsdb.KeyTime:        p.at,
		tsdb.KeyValue:       p.value,
		tsdb.KeyField:       p.field,
		tsdb.KeyMeasurement: p.measurement,
	}
	for k, v := range p.tags {
		r[k] = v
	}
	return r
}

var _ tsdb.Store = (*Store)(nil)
