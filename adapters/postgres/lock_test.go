package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockUsageStore(t *testing.T) (*UsageStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := gormpostgres.New(gormpostgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewUsageStore(gormDB), mock, mockDB
}

func TestUsageStore_AppendWithinLimit_TakesAdvisoryLock(t *testing.T) {
	store, mock, mockDB := newMockUsageStore(t)
	defer mockDB.Close()

	start, end := usage.MonthBounds(april)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(credits_consumed\), 0\) FROM "usage_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(95))
	mock.ExpectRollback()

	used, err := store.AppendWithinLimit(context.Background(), usageEvent("e1", "org-1", "u1", "x", 10, april), start, end, 100)

	assert.ErrorIs(t, err, ports.ErrLimitExceeded)
	assert.Equal(t, int64(95), used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageStore_ListEvents_BreaksTimeTiesByInsertion(t *testing.T) {
	store, mock, mockDB := newMockUsageStore(t)
	defer mockDB.Close()

	start, end := usage.MonthBounds(april)

	mock.ExpectQuery(`SELECT \* FROM "usage_events" WHERE .* ORDER BY created_at DESC, seq DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "user_id", "event_type", "credits_consumed", "created_at", "seq"}).
			AddRow("e2", "org-1", "u1", "basic", 5, april, 2).
			AddRow("e1", "org-1", "u1", "complex", 5, april, 1))

	events, err := store.ListEvents(context.Background(), "org-1", start, end)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
