package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

func TestPostgresStore_TargetLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	// Use a unique URL per run to avoid UNIQUE(url) collisions with previous runs.
	uniqueURL := fmt.Sprintf("https://example.com/test-%d", time.Now().UTC().UnixNano())
	tgt := &domain.Target{URL: uniqueURL, Name: "it", RegionID: "europe"}
	if err := store.AddTarget(ctx, tgt); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	defer store.DeleteTarget(ctx, tgt.ID)

	list, err := store.ListTargets(ctx)
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	found := false
	for _, x := range list {
		if x.ID == tgt.ID && x.RegionID == "europe" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("added target not found in list; got %d rows", len(list))
	}

	got, err := store.GetTarget(ctx, tgt.ID)
	if err != nil || got.URL != uniqueURL {
		t.Fatalf("GetTarget: %+v %v", got, err)
	}
	if _, err := store.GetTarget(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ListFailureIsUnavailable(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx := context.Background()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	store.Close()

	if _, err := store.ListTargets(ctx); !errors.Is(err, domain.ErrRegistryUnavailable) {
		t.Fatalf("want ErrRegistryUnavailable, got %v", err)
	}
}
