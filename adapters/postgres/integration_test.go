//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestIntegration_AppendWithinLimitAcrossConnections(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("creditmeter_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(dsn, PoolConfig{MaxOpenConns: 10}, zerolog.Nop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)

	migrator, err := NewMigrator(sqlDB, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Up(), "second Up should be a no-op")

	store := NewUsageStore(db)
	start, end := usage.MonthBounds(april)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "e" + string(rune('a'+i))
			_, _ = store.AppendWithinLimit(ctx, usageEvent(id, "org-1", "u1", "x", 10, april.Add(time.Minute)), start, end, 100)
		}(i)
	}
	wg.Wait()

	total, err := store.SumCredits(ctx, "org-1", start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)

	events, err := store.ListEvents(ctx, "org-1", start, end)
	require.NoError(t, err)
	assert.Len(t, events, 10)

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, store.Append(ctx, usageEvent(id, "org-2", "u1", "x", 5, april)))
	}
	events, err = store.ListEvents(ctx, "org-2", start, end)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "t3", events[0].ID, "equal timestamps list the last insert first")
	assert.Equal(t, "t1", events[2].ID)
}
