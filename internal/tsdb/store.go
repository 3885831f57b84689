package tsdb

import (
	"context"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Row is one untyped record as returned by a store. Keys follow the
// Influx conventions: "_time", "_value", "_field", "_measurement" and one
// key per tag.
type Row map[string]any

const (
	KeyTime        = "_time"
	KeyValue       = "_value"
	KeyField       = "_field"
	KeyMeasurement = "_measurement"
)

// Writer appends samples. Implementations never update or delete.
type Writer interface {
	Write(ctx context.Context, s domain.MetricSample) error
}

// Querier evaluates a Filter and returns raw rows in whatever order the
// backend produces them.
type Querier interface {
	Query(ctx context.Context, f Filter) ([]Row, error)
}

type Store interface {
	Writer
	Querier
}
