package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupGormTestDB runs the stores against SQLite through the same GORM models.
func setupGormTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gorm.db")), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

var april = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func usageEvent(id, org, user, typ string, credits int64, at time.Time) usage.Event {
	return usage.Event{
		ID:              id,
		OrganizationID:  org,
		UserID:          user,
		EventType:       typ,
		EventData:       event.Data{"calculatedCredits": credits, "echo": true},
		CreditsConsumed: credits,
		CreatedAt:       at,
	}
}

func TestUsageStore_AppendSumList(t *testing.T) {
	db := setupGormTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()
	start, end := usage.MonthBounds(april)

	t.Run("appends and sums within the window", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, usageEvent("e1", "org-1", "u1", "visuals_sketch", 12, april.Add(time.Hour))))
		require.NoError(t, store.Append(ctx, usageEvent("e2", "org-1", "u2", "structuring_diagnose", 25, april.Add(48*time.Hour))))
		require.NoError(t, store.Append(ctx, usageEvent("e3", "org-1", "u1", "visuals_sketch", 99, end.Add(time.Hour))))

		total, err := store.SumCredits(ctx, "org-1", start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(37), total)
	})

	t.Run("lists newest first with event data", func(t *testing.T) {
		events, err := store.ListEvents(ctx, "org-1", start, end)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "e2", events[0].ID)
		assert.Equal(t, true, events[0].EventData["echo"])
		assert.Equal(t, int64(25), events[0].CreditsConsumed)
	})

	t.Run("unknown organization sums to zero", func(t *testing.T) {
		total, err := store.SumCredits(ctx, "org-x", start, end)
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestUsageStore_Query(t *testing.T) {
	db := setupGormTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	session := int64(3)
	for i := 0; i < 6; i++ {
		e := usageEvent(string(rune('a'+i)), "org-1", []string{"u1", "u2", "u3"}[i%3], "visuals_sketch", int64(i+1), april.Add(time.Duration(i)*time.Hour))
		if i < 2 {
			e.SessionID = &session
		}
		require.NoError(t, store.Append(ctx, e))
	}

	page, err := store.Query(ctx, usage.Query{OrganizationID: "org-1", Limit: 4, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, usage.Summary{TotalCredits: 21, TotalEvents: 6, UniqueUsers: 3}, page.Summary)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "b", page.Events[0].ID)
	assert.Equal(t, 2, page.TotalPages())

	bySession, err := store.Query(ctx, usage.Query{OrganizationID: "org-1", SessionID: &session})
	require.NoError(t, err)
	assert.Equal(t, int64(2), bySession.Summary.TotalEvents)
	require.NotNil(t, bySession.Events[0].SessionID)
	assert.Equal(t, int64(3), *bySession.Events[0].SessionID)
}

func TestUsageStore_AppendWithinLimit(t *testing.T) {
	db := setupGormTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()
	start, end := usage.MonthBounds(april)

	used, err := store.AppendWithinLimit(ctx, usageEvent("a", "org-1", "u1", "x", 90, april), start, end, 100)
	require.NoError(t, err)
	assert.Zero(t, used)

	used, err = store.AppendWithinLimit(ctx, usageEvent("b", "org-1", "u1", "x", 20, april), start, end, 100)
	assert.ErrorIs(t, err, ports.ErrLimitExceeded)
	assert.Equal(t, int64(90), used)

	_, err = store.AppendWithinLimit(ctx, usageEvent("c", "org-1", "u1", "x", 20, april), start, end, plan.Unlimited)
	assert.NoError(t, err)
}

func TestOrganizationStore(t *testing.T) {
	db := setupGormTestDB(t)
	store := NewOrganizationStore(db)
	ctx := context.Background()

	org := ports.Organization{
		ID:          "org-1",
		Name:        "Acme",
		PlanType:    "starter",
		UsageLimits: map[string]int64{plan.LimitKeyAICalls: 750, "pdf_exports_per_month": -1},
	}
	require.NoError(t, store.Create(ctx, org))

	got, err := store.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "starter", got.PlanType)
	assert.Equal(t, int64(750), got.UsageLimits[plan.LimitKeyAICalls])
	assert.Equal(t, int64(-1), got.UsageLimits["pdf_exports_per_month"])

	assert.ErrorIs(t, store.Create(ctx, org), ports.ErrAlreadyExists)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestUserStore(t *testing.T) {
	db := setupGormTestDB(t)
	store := NewUserStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, usage.User{ID: "u1", FullName: "Ada"}))
	require.NoError(t, store.Upsert(ctx, usage.User{ID: "u1", FullName: "Ada Lovelace", Email: "ada@example.com"}))

	users, err := store.Lookup(ctx, []string{"u1", "u9"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ada Lovelace", users["u1"].FullName)
}

func TestCatalogStores(t *testing.T) {
	db := setupGormTestDB(t)
	ctx := context.Background()

	t.Run("event definitions round trip", func(t *testing.T) {
		store := NewEventDefinitionStore(db)
		def := event.Definition{
			EventType:   "structuring_diagnose",
			BaseCredits: 10,
			Description: "Diagnose",
			Category:    "structuring",
			Multipliers: event.Multipliers{
				Complexity: &event.ComplexityRange{Min: 1, Max: 3},
				Features:   map[string]float64{"echo": 5},
			},
			Schema: map[string]event.FieldKind{"complexity": event.KindNumber},
		}
		require.NoError(t, store.Upsert(ctx, def))
		def.Description = "Diagnose a problem"
		require.NoError(t, store.Upsert(ctx, def))

		defs, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, "Diagnose a problem", defs[0].Description)
		require.NotNil(t, defs[0].Multipliers.Complexity)
		assert.Equal(t, 3.0, defs[0].Multipliers.Complexity.Max)
		assert.Equal(t, 5.0, defs[0].Multipliers.Features["echo"])
		assert.Equal(t, event.KindNumber, defs[0].Schema["complexity"])

		require.NoError(t, store.Delete(ctx, "structuring_diagnose"))
		assert.ErrorIs(t, store.Delete(ctx, "structuring_diagnose"), ports.ErrNotFound)
	})

	t.Run("plans round trip sorted by price", func(t *testing.T) {
		store := NewPlanDefinitionStore(db)
		require.NoError(t, store.Upsert(ctx, plan.Definition{
			PlanType:       "professional",
			DisplayName:    "Professional",
			MonthlyCredits: 2500,
			Pricing:        plan.Pricing{Monthly: decimal.RequireFromString("29.99")},
			Limits:         plan.Limits{AICallsPerMonth: 2500},
			Features:       []string{"All AI tools"},
		}))
		require.NoError(t, store.Upsert(ctx, plan.Definition{PlanType: "free", DisplayName: "Free", MonthlyCredits: 100}))

		plans, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 2)
		assert.Equal(t, "free", plans[0].PlanType)
		assert.NotNil(t, plans[0].Features)
		assert.True(t, plans[1].Pricing.Monthly.Equal(decimal.RequireFromString("29.99")))
		assert.Equal(t, []string{"All AI tools"}, plans[1].Features)
		assert.Equal(t, int64(2500), plans[1].Limits.AICallsPerMonth)
	})
}
