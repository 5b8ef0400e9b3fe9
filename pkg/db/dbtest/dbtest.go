// Package dbtest connects tests to a throwaway Postgres database named by
// VIDQ_TEST_POSTGRES_URL. Tests skip when it is unset.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// EnvURL names the variable holding the test database URL.
const EnvURL = "VIDQ_TEST_POSTGRES_URL"

// URL returns the test database URL or skips the test.
func URL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	u := os.Getenv(EnvURL)
	if u == "" {
		t.Skipf("%s not set", EnvURL)
	}
	return u
}

// Pool opens a pool to the test database and closes it when the test ends.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	u := URL(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, u)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)
	return pool
}
