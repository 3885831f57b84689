package timescale

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

// Schema is the minimal table layout the store expects. One row per field value.
const Schema = `
CREATE TABLE IF NOT EXISTS %[1]s (
  measurement TEXT        NOT NULL,
  field       TEXT        NOT NULL,
  ts          TIMESTAMPTZ NOT NULL,
  tags        JSONB       NOT NULL,
  value       BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_ts ON %[1]s (measurement, ts DESC);
`

var tableRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// Open connects through the pgx database/sql driver.
func Open(ctx context.Context, dsn, table string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping timescale: %w", err)
	}
	return NewStore(db, table)
}

func NewStore(db *sql.DB, table string) (*Store, error) {
	if !tableRe.MatchString(table) {
		return nil, fmt.Errorf("%w: table %q", domain.ErrInvalidIdentifier, table)
	}
	return &Store{db: db, table: table, now: time.Now}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(Schema, s.table))
	return err
}

func (s *Store) Write(ctx context.Context, m domain.MetricSample) error {
	if len(m.Fields) == 0 {
		return nil
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	names := make([]string, 0, len(m.Fields))
	for f := range m.Fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.table)
	b.WriteString(" (measurement, field, ts, tags, value) VALUES ")
	args := make([]any, 0, len(names)*5)
	for i, f := range names {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, m.Measurement, f, m.Timestamp, tags, m.Fields[f])
	}

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// RenderSQL builds a parameterised SELECT for f. Tag keys are bound as
// parameters as well, so no caller-supplied text reaches the statement.
func RenderSQL(table string, f tsdb.Filter, since time.Time) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT ts, value, field, measurement, tags FROM %s WHERE ts >= $1", table)
	args := []any{since}
	for _, p := range f.Predicates {
		switch p.Key {
		case tsdb.KeyMeasurement:
			args = append(args, p.Value)
			fmt.Fprintf(&b, " AND measurement = $%d", len(args))
		case tsdb.KeyField:
			args = append(args, p.Value)
			fmt.Fprintf(&b, " AND field = $%d", len(args))
		default:
			args = append(args, p.Key, p.Value)
			fmt.Fprintf(&b, " AND tags->>$%d = $%d", len(args)-1, len(args))
		}
	}
	if f.Last {
		b.WriteString(" ORDER BY ts DESC LIMIT 1")
	} else {
		b.WriteString(" ORDER BY ts ASC")
	}
	return b.String(), args
}

func (s *Store) Query(ctx context.Context, f tsdb.Filter) ([]tsdb.Row, error) {
	q, args := RenderSQL(s.table, f, s.now().Add(-f.Lookback))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []tsdb.Row
	for rows.Next() {
		var (
			ts          time.Time
			value       int64
			field       string
			measurement string
			rawTags     []byte
		)
		if err := rows.Scan(&ts, &value, &field, &measurement, &rawTags); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		row := tsdb.Row{
			tsdb.KeyTime:        ts,
			tsdb.KeyValue:       value,
			tsdb.KeyField:       field,
			tsdb.KeyMeasurement: measurement,
		}
		var tags map[string]string
		if err := json.Unmarshal(rawTags, &tags); err == nil {
			for k, v := range tags {
				row[k] = v
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

var _ tsdb.Store = (*Store)(nil)
