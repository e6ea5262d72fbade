package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up a disposable PostgreSQL container. Requires a
// container runtime; skipped in -short runs.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fluxtrader_test"),
		postgres.WithUsername("fluxtrader"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestStore_SchemaAndWritesAgainstRealPostgres(t *testing.T) {
	connStr := startPostgres(t)
	ctx := context.Background()

	journal, err := NewJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)

	s, err := New(ctx, connStr, journal)
	require.NoError(t, err)
	defer s.Close()

	// Schema creation is idempotent.
	require.NoError(t, s.ensureSchema(ctx))

	pos := testPosition()
	require.NoError(t, s.SavePosition(ctx, pos))
	// Upsert: same position again must not conflict.
	pos.RealizedPnL = 41.2
	require.NoError(t, s.SavePosition(ctx, pos))

	var pnl float64
	err = s.pool.QueryRow(ctx, "SELECT realized_pnl FROM positions WHERE id = $1", pos.ID).Scan(&pnl)
	require.NoError(t, err)
	assert.InDelta(t, 41.2, pnl, 1e-9)

	n, err := journal.Len()
	require.NoError(t, err)
	assert.Zero(t, n, "healthy database must not journal")
}
