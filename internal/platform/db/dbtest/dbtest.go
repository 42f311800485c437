// Package dbtest opens a migrated Postgres pool for repository tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fynity/fynity/internal/platform/db"
)

// EnvDSN names the variable that enables Postgres backed tests.
const EnvDSN = "FYNITY_TEST_PG_DSN"

// Open connects to the database named by FYNITY_TEST_PG_DSN, applies the
// migrations and empties every table. The test is skipped when the
// variable is unset.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, db.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE audit_logs, refresh_tokens, profiles, accounts, colleges RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}
