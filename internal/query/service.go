package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

const (
	lastDowntimeWindow = 30 * 24 * time.Hour
	latestWindow       = time.Hour
)

// LookbackDays maps a requested window to one of 1, 7 or 30 days. Anything
// else means one day.
func LookbackDays(days int) time.Duration {
	switch days {
	case 1, 7, 30:
		return time.Duration(days) * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Service answers historical health queries against the time-series store.
// It never writes.
type Service struct {
	q   tsdb.Querier
	log *zap.Logger
}

func NewService(q tsdb.Querier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{q: q, log: log}
}

// Range returns the Up samples of a target within the lookback window,
// ascending by time.
func (s *Service) Range(ctx context.Context, targetID domain.TargetID, regionID string, days int) ([]domain.TimeSeriesPoint, error) {
	return s.byStatus(ctx, targetID, regionID, domain.StatusUp, LookbackDays(days))
}

// DowntimeRange is Range restricted to Down samples.
func (s *Service) DowntimeRange(ctx context.Context, targetID domain.TargetID, regionID string, days int) ([]domain.TimeSeriesPoint, error) {
	return s.byStatus(ctx, targetID, regionID, domain.StatusDown, LookbackDays(days))
}

// LastDowntime returns the most recent Down sample of the last 30 days, or
// nil when there is none.
func (s *Service) LastDowntime(ctx context.Context, targetID domain.TargetID, regionID string) (*domain.TimeSeriesPoint, error) {
	f, err := baseFilter(targetID, regionID).
		Tag(domain.TagStatus, string(domain.StatusDown)).
		Since(lastDowntimeWindow).
		Last().
		Build()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("last downtime %s: %w", targetID, err)
	}
	pts := s.mapRows(rows)
	if len(pts) == 0 {
		return nil, nil
	}
	// Grouped backends may return one last row per series.
	p := pts[len(pts)-1]
	return &p, nil
}

// Latest returns the most recent sample of a target within the last hour,
// whatever its status. ok is false when the target has not been probed.
func (s *Service) Latest(ctx context.Context, targetID domain.TargetID) (st domain.TargetStatus, ok bool, err error) {
	f, err := baseFilter(targetID, "").Since(latestWindow).Last().Build()
	if err != nil {
		return st, false, err
	}
	rows, err := s.q.Query(ctx, f)
	if err != nil {
		return st, false, fmt.Errorf("latest %s: %w", targetID, err)
	}
	for _, r := range rows {
		at, v, good := parseRow(r)
		if !good {
			continue
		}
		status, good := domain.ParseStatus(tagOf(r, domain.TagStatus))
		if !good || (ok && !at.After(st.Time)) {
			continue
		}
		st = domain.TargetStatus{
			TargetID:  targetID,
			RegionID:  tagOf(r, domain.TagRegionID),
			Status:    status,
			LatencyMS: v,
			Time:      at,
		}
		ok = true
	}
	return st, ok, nil
}

func (s *Service) byStatus(ctx context.Context, targetID domain.TargetID, regionID string, status domain.Status, lookback time.Duration) ([]domain.TimeSeriesPoint, error) {
	f, err := baseFilter(targetID, regionID).
		Tag(domain.TagStatus, string(status)).
		Since(lookback).
		Build()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("range %s %s: %w", status, targetID, err)
	}
	return s.mapRows(rows), nil
}

// baseFilter fixes the predicate order shared by every read: measurement,
// field, target, then region when one is requested.
func baseFilter(targetID domain.TargetID, regionID string) *tsdb.Builder {
	return tsdb.Select(domain.Measurement).
		Field(domain.FieldLatency).
		Tag(domain.TagTargetID, string(targetID)).
		TagIf(domain.TagRegionID, regionID)
}

// mapRows keeps rows that carry a usable (time, value) pair and sorts them
// ascending by time.
func (s *Service) mapRows(rows []tsdb.Row) []domain.TimeSeriesPoint {
	out := make([]domain.TimeSeriesPoint, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		at, v, ok := parseRow(r)
		if !ok {
			skipped++
			continue
		}
		out = append(out, domain.TimeSeriesPoint{Time: at, Value: v})
	}
	if skipped > 0 {
		s.log.Debug("rows_skipped", zap.Int("skipped", skipped), zap.Int("rows", len(rows)))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func parseRow(r tsdb.Row) (time.Time, float64, bool) {
	at, ok := parseTime(r[tsdb.KeyTime])
	if !ok {
		return time.Time{}, 0, false
	}
	v, ok := parseValue(r[tsdb.KeyValue])
	if !ok {
		return time.Time{}, 0, false
	}
	return at, v, true
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		at, err := time.Parse(time.RFC3339Nano, t)
		return at, err == nil
	default:
		return time.Time{}, false
	}
}

func parseValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func tagOf(r tsdb.Row, key string) string {
	s, _ := r[key].(string)
	return s
}
