//go:build integration

// Integration tests for the Postgres content store.
//
// Run with: go test -tags=integration -v ./internal/content/...
//
// A throwaway PostgreSQL container is started with testcontainers and the
// schema from migrations/ is applied on startup. Docker must be available.
package content

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	schema, err := filepath.Abs(filepath.Join("..", "..", "migrations", "000001_content_schema.up.sql"))
	if err != nil {
		t.Fatalf("resolve schema path: %v", err)
	}

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("contentrank"),
		postgres.WithUsername("contentrank"),
		postgres.WithPassword("contentrank"),
		postgres.WithInitScripts(schema),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresRepository_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx, `
		INSERT INTO content_items (id, title, body, tags, type, source, created_at, view_count, like_count, labels)
		VALUES
			('fresh', 'Cursor Tutorial', 'learn the editor', '{editors}', 'article', 'blog', $1, 50, 10, '{}'),
			('hidden', 'Cursor spam', 'buy now', '{editors}', 'article', 'blog', $1, 5000, 0, '{spam}'),
			('stale', 'Cursor history', 'old', '{editors}', 'article', 'blog', $2, 10, 1, '{}')`,
		now.Add(-time.Hour), now.Add(-40*24*time.Hour))
	if err != nil {
		t.Fatalf("seed content: %v", err)
	}

	repo := NewPostgresRepository(db)

	recent, err := repo.ListRecent(ctx, ListOptions{Since: now.Add(-24 * time.Hour)})
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "fresh" {
		t.Errorf("ListRecent() = %v, want only fresh (hidden labels excluded)", recent)
	}

	found, err := repo.Search(ctx, SearchOptions{Variants: []string{"cursor"}, Filters: Filters{Tags: []string{"Editors"}}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Search() returned %d items, want 2", len(found))
	}
}
