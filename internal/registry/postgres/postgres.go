package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/registry"
)

// Schema creates the metadata tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS regions (
  id   TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS targets (
  id         TEXT PRIMARY KEY,
  url        TEXT NOT NULL UNIQUE,
  name       TEXT NOT NULL DEFAULT '',
  region_id  TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var _ registry.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// ---- targets ----

func (s *Store) AddTarget(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (id, url, name, region_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		string(t.ID), t.URL, t.Name, t.RegionID, t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

// ListTargets is the pipeline's snapshot read. Any failure is reported as
// domain.ErrRegistryUnavailable.
func (s *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, name, region_id, created_at
		   FROM targets
		  ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, registry.Unavailable(fmt.Errorf("list targets: %w", err))
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			t  domain.Target
			id string
		)
		if err := rows.Scan(&id, &t.URL, &t.Name, &t.RegionID, &t.CreatedAt); err != nil {
			return nil, registry.Unavailable(fmt.Errorf("scan target: %w", err))
		}
		t.ID = domain.TargetID(id)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, registry.Unavailable(err)
	}
	return out, nil
}

func (s *Store) GetTarget(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT url, name, region_id, created_at FROM targets WHERE id = $1`, string(id))
	t := domain.Target{ID: id}
	if err := row.Scan(&t.URL, &t.Name, &t.RegionID, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get target: %w", err)
	}
	return &t, nil
}

func (s *Store) DeleteTarget(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- regions ----

func (s *Store) AddRegion(ctx context.Context, r *domain.Region) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO regions (id, name) VALUES ($1, $2)`, r.ID, r.Name)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert region: %w", err)
	}
	return nil
}

func (s *Store) ListRegions(ctx context.Context) ([]domain.Region, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM regions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()
	var out []domain.Region
	for rows.Next() {
		var r domain.Region
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
