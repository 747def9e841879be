package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nexastudio/creditmeter/adapters/sqlite"
	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "creditmeter-test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var april = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func ev(id, org, user, typ string, credits int64, at time.Time) usage.Event {
	return usage.Event{
		ID:              id,
		OrganizationID:  org,
		UserID:          user,
		EventType:       typ,
		EventData:       event.Data{"calculatedCredits": credits},
		CreditsConsumed: credits,
		CreatedAt:       at,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
}

// -----------------------------------------------------------------------------
// UsageStore Tests
// -----------------------------------------------------------------------------

func TestUsageStore_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	session := int64(42)
	first := ev("e1", "org-1", "u1", "visuals_sketch", 12, april.Add(time.Hour))
	first.SessionID = &session
	first.EventData["prompt"] = "draw a cat"

	for _, e := range []usage.Event{
		first,
		ev("e2", "org-1", "u2", "structuring_diagnose", 25, april.Add(26*time.Hour)),
		ev("e3", "org-2", "u1", "visuals_sketch", 99, april.Add(2*time.Hour)),
	} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append(%s) failed: %v", e.ID, err)
		}
	}

	start, end := usage.MonthBounds(april)
	events, err := store.ListEvents(ctx, "org-1", start, end)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "e2" {
		t.Errorf("events[0] = %s, want e2 (newest first)", events[0].ID)
	}

	got := events[1]
	if got.SessionID == nil || *got.SessionID != 42 {
		t.Errorf("SessionID = %v, want 42", got.SessionID)
	}
	if got.EventData["prompt"] != "draw a cat" {
		t.Errorf("EventData = %v, want prompt preserved", got.EventData)
	}
	if !got.CreatedAt.Equal(april.Add(time.Hour)) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, april.Add(time.Hour))
	}
}

func TestUsageStore_SumCreditsInclusiveWindow(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	start, end := usage.MonthBounds(april)
	store.Append(ctx, ev("a", "org-1", "u1", "x", 10, start))
	store.Append(ctx, ev("b", "org-1", "u1", "x", 5, end))
	store.Append(ctx, ev("c", "org-1", "u1", "x", 100, end.Add(time.Nanosecond)))
	store.Append(ctx, ev("d", "org-1", "u1", "x", 100, start.Add(-time.Nanosecond)))

	total, err := store.SumCredits(ctx, "org-1", start, end)
	if err != nil {
		t.Fatalf("SumCredits failed: %v", err)
	}
	if total != 15 {
		t.Errorf("SumCredits = %d, want 15", total)
	}

	empty, _ := store.SumCredits(ctx, "org-unknown", start, end)
	if empty != 0 {
		t.Errorf("SumCredits(unknown) = %d, want 0", empty)
	}
}

func TestUsageStore_Query(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		typ := "visuals_sketch"
		if i%3 == 0 {
			typ = "push_sow_to_loe"
		}
		store.Append(ctx, ev(string(rune('a'+i)), "org-1", []string{"u1", "u2"}[i%2], typ, int64(10+i), april.Add(time.Duration(i)*time.Hour)))
	}

	page, err := store.Query(ctx, usage.Query{OrganizationID: "org-1", EventType: "visuals_sketch", Limit: 2, Page: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if page.Summary.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", page.Summary.TotalEvents)
	}
	if page.Summary.TotalCredits != 11+12+14+15 {
		t.Errorf("TotalCredits = %d, want 52", page.Summary.TotalCredits)
	}
	if page.Summary.UniqueUsers != 2 {
		t.Errorf("UniqueUsers = %d, want 2", page.Summary.UniqueUsers)
	}
	if len(page.Events) != 2 || page.Events[0].ID != "f" {
		t.Errorf("page events = %+v, want f first", page.Events)
	}

	minCredits := int64(15)
	filtered, err := store.Query(ctx, usage.Query{
		OrganizationID: "org-1",
		EventTypes:     []string{"visuals_sketch", "push_sow_to_loe"},
		MinCredits:     &minCredits,
		UserID:         "u1",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	// u1 owns a, c, e, g with credits 10, 12, 14, 16
	if filtered.Summary.TotalEvents != 1 || filtered.Events[0].ID != "g" {
		t.Errorf("filtered = %+v, want only g", filtered.Events)
	}
}

func TestUsageStore_AppendWithinLimit(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()
	start, end := usage.MonthBounds(april)

	used, err := store.AppendWithinLimit(ctx, ev("a", "org-1", "u1", "x", 70, april), start, end, 100)
	if err != nil || used != 0 {
		t.Fatalf("first append = %d, %v", used, err)
	}

	used, err = store.AppendWithinLimit(ctx, ev("b", "org-1", "u1", "x", 40, april), start, end, 100)
	if !errors.Is(err, ports.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if used != 70 {
		t.Errorf("used = %d, want 70", used)
	}

	total, _ := store.SumCredits(ctx, "org-1", start, end)
	if total != 70 {
		t.Errorf("total = %d, want 70 after rejection", total)
	}
}

func TestUsageStore_AppendWithinLimitConcurrent(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()
	start, end := usage.MonthBounds(april)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.AppendWithinLimit(ctx, ev(string(rune('a'+i)), "org-1", "u1", "x", 25, april), start, end, 100)
		}(i)
	}
	wg.Wait()

	total, _ := store.SumCredits(ctx, "org-1", start, end)
	if total > 100 {
		t.Errorf("total = %d, exceeded limit of 100", total)
	}
}

// -----------------------------------------------------------------------------
// OrganizationStore / UserStore Tests
// -----------------------------------------------------------------------------

func TestOrganizationStore_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewOrganizationStore(db)
	ctx := context.Background()

	org := ports.Organization{
		ID:          "org-1",
		Name:        "Acme",
		PlanType:    "professional",
		UsageLimits: map[string]int64{plan.LimitKeyAICalls: 2500},
		CreatedAt:   april,
	}
	if err := store.Create(ctx, org); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "org-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PlanType != "professional" || got.UsageLimits[plan.LimitKeyAICalls] != 2500 {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(april) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, april)
	}

	if err := store.Create(ctx, org); !errors.Is(err, ports.ErrAlreadyExists) {
		t.Errorf("duplicate Create = %v, want ErrAlreadyExists", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestUserStore_UpsertAndLookup(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUserStore(db)
	ctx := context.Background()

	store.Upsert(ctx, usage.User{ID: "u1", FullName: "Ada", Email: "ada@example.com"})
	store.Upsert(ctx, usage.User{ID: "u1", FullName: "Ada Lovelace", Email: "ada@example.com"})
	store.Upsert(ctx, usage.User{ID: "u2", Email: "bob@example.com"})

	users, err := store.Lookup(ctx, []string{"u1", "u2", "ghost"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users["u1"].FullName != "Ada Lovelace" {
		t.Errorf("u1 = %+v, want updated name", users["u1"])
	}

	none, err := store.Lookup(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("Lookup(nil) = %v, %v", none, err)
	}
}

// -----------------------------------------------------------------------------
// Catalog Store Tests
// -----------------------------------------------------------------------------

func TestEventDefinitionStore_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewEventDefinitionStore(db)
	ctx := context.Background()

	def := event.Definition{
		EventType:   "structuring_diagnose",
		BaseCredits: 10,
		Description: "Diagnose a business problem",
		Category:    "structuring",
		Endpoint:    "/api/structuring/diagnose",
		Multipliers: event.Multipliers{
			Complexity: &event.ComplexityRange{Min: 1, Max: 2.5},
			Features:   map[string]float64{"echo": 5},
		},
		Schema: map[string]event.FieldKind{"complexity": event.KindNumber},
	}
	if err := store.Upsert(ctx, def); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	def.BaseCredits = 12
	if err := store.Upsert(ctx, def); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	defs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	got := defs[0]
	if got.BaseCredits != 12 {
		t.Errorf("BaseCredits = %v, want 12", got.BaseCredits)
	}
	if got.Multipliers.Complexity == nil || got.Multipliers.Complexity.Max != 2.5 {
		t.Errorf("Complexity = %+v", got.Multipliers.Complexity)
	}
	if got.Multipliers.Features["echo"] != 5 {
		t.Errorf("Features = %v", got.Multipliers.Features)
	}
	if got.Schema["complexity"] != event.KindNumber {
		t.Errorf("Schema = %v", got.Schema)
	}

	if err := store.Delete(ctx, "structuring_diagnose"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "structuring_diagnose"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestPlanDefinitionStore_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewPlanDefinitionStore(db)
	ctx := context.Background()

	pro := plan.Definition{
		PlanType:       "professional",
		DisplayName:    "Professional",
		MonthlyCredits: 2500,
		Pricing:        plan.Pricing{Monthly: decimal.RequireFromString("29.99"), Annual: decimal.RequireFromString("299.99")},
		Limits:         plan.Limits{AICallsPerMonth: 2500, Sessions: -1},
		Features:       []string{"All AI tools"},
		OverageRate:    decimal.RequireFromString("0.01"),
	}
	free := plan.Definition{PlanType: "free", DisplayName: "Free", MonthlyCredits: 100}

	store.Upsert(ctx, pro)
	store.Upsert(ctx, free)

	plans, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(plans) != 2 || plans[0].PlanType != "free" {
		t.Fatalf("plans = %+v, want free first", plans)
	}
	if plans[0].Features == nil {
		t.Error("Features should default to empty, not nil")
	}

	got := plans[1]
	if !got.Pricing.Monthly.Equal(decimal.RequireFromString("29.99")) {
		t.Errorf("Monthly = %s, want 29.99", got.Pricing.Monthly)
	}
	if !got.OverageRate.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("OverageRate = %s, want 0.01", got.OverageRate)
	}
	if got.Limits.Sessions != -1 || got.Limits.AICallsPerMonth != 2500 {
		t.Errorf("Limits = %+v", got.Limits)
	}
}
