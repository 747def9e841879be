package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nexastudio/creditmeter/adapters/clock"
	"github.com/nexastudio/creditmeter/adapters/memory"
	"github.com/nexastudio/creditmeter/app"
	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/ports"
)

var testNow = time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)

// countingEventStore counts List calls and can be made to fail.
type countingEventStore struct {
	*memory.EventDefinitionStore
	mu    sync.Mutex
	lists int
	err   error
}

func (s *countingEventStore) List(ctx context.Context) ([]event.Definition, error) {
	s.mu.Lock()
	s.lists++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.EventDefinitionStore.List(ctx)
}

func (s *countingEventStore) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func (s *countingEventStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// recordingInvalidator implements ports.CatalogInvalidator for testing.
type recordingInvalidator struct {
	mu   sync.Mutex
	msgs []ports.CatalogMessage
}

func (r *recordingInvalidator) Publish(ctx context.Context, msg ports.CatalogMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingInvalidator) Subscribe(ctx context.Context, fn func(ports.CatalogMessage)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *recordingInvalidator) Close() error { return nil }

func (r *recordingInvalidator) published() []ports.CatalogMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.CatalogMessage(nil), r.msgs...)
}

func testEvents() []event.Definition {
	return []event.Definition{
		{EventType: "basic", BaseCredits: 10, Description: "Basic action", Category: "misc"},
		{
			EventType:   "complex",
			BaseCredits: 5,
			Description: "Complex action",
			Category:    "ai_analysis",
			Multipliers: event.Multipliers{
				Complexity: &event.ComplexityRange{Min: 1, Max: 3},
				Features:   map[string]float64{"echo": 4},
			},
		},
		{
			EventType:   "typed",
			BaseCredits: 1,
			Description: "Typed action",
			Category:    "ai_analysis",
			Schema:      map[string]event.FieldKind{"complexity": event.KindNumber},
		},
	}
}

func testPlans() []plan.Definition {
	return []plan.Definition{
		{
			PlanType:       "enterprise",
			DisplayName:    "Enterprise",
			MonthlyCredits: 5000,
			Pricing:        plan.Pricing{Monthly: decimal.NewFromInt(99)},
			Limits:         plan.Limits{AICallsPerMonth: plan.Unlimited},
		},
		{
			PlanType:       "starter",
			DisplayName:    "Starter",
			MonthlyCredits: 100,
			Pricing:        plan.Pricing{Monthly: decimal.NewFromInt(19)},
			Limits:         plan.Limits{AICallsPerMonth: 500},
		},
		{
			PlanType:       "pro",
			DisplayName:    "Pro",
			MonthlyCredits: 1000,
			Pricing:        plan.Pricing{Monthly: decimal.NewFromInt(49)},
			Limits:         plan.Limits{AICallsPerMonth: 2000},
		},
	}
}

func newEventRegistry(t *testing.T, cfg app.RegistryConfig) (*app.EventRegistry, *countingEventStore, *clock.Fake) {
	t.Helper()
	store := &countingEventStore{EventDefinitionStore: memory.NewEventDefinitionStore(testEvents()...)}
	clk := clock.NewFake(testNow)
	return app.NewEventRegistry(store, clk, zerolog.Nop(), cfg), store, clk
}

func TestEventRegistry_LazyLoad(t *testing.T) {
	reg, store, _ := newEventRegistry(t, app.RegistryConfig{})
	ctx := context.Background()

	if store.listCalls() != 0 {
		t.Fatalf("store listed before first lookup")
	}

	def, ok := reg.Get(ctx, "basic")
	if !ok {
		t.Fatal("basic not found")
	}
	if def.BaseCredits != 10 {
		t.Errorf("BaseCredits = %v, want 10", def.BaseCredits)
	}

	reg.Get(ctx, "complex")
	reg.Exists(ctx, "typed")
	if store.listCalls() != 1 {
		t.Errorf("List called %d times, want 1", store.listCalls())
	}
}

func TestEventRegistry_SkipsInvalidAndDisabled(t *testing.T) {
	store := memory.NewEventDefinitionStore(
		event.Definition{EventType: "ok", BaseCredits: 1, Description: "Fine", Category: "misc"},
		event.Definition{EventType: "no_desc", BaseCredits: 1, Category: "misc"},
		event.Definition{EventType: "negative", BaseCredits: -3, Description: "Bad", Category: "misc"},
		event.Definition{EventType: "off", BaseCredits: 1, Description: "Off", Category: "misc", Disabled: true},
	)
	reg := app.NewEventRegistry(store, clock.NewFake(testNow), zerolog.Nop(), app.RegistryConfig{})

	all := reg.All(context.Background())
	if len(all) != 1 || all[0].EventType != "ok" {
		t.Errorf("All = %+v, want only ok", all)
	}
	if reg.Exists(context.Background(), "off") {
		t.Error("disabled definition should not be served")
	}
}

func TestEventRegistry_TTL(t *testing.T) {
	reg, store, clk := newEventRegistry(t, app.RegistryConfig{TTL: time.Minute})
	ctx := context.Background()

	reg.Get(ctx, "basic")
	store.Upsert(ctx, event.Definition{EventType: "late", BaseCredits: 2, Description: "Late", Category: "misc"})

	if reg.Exists(ctx, "late") {
		t.Error("fresh snapshot should not see the new definition yet")
	}
	if info := reg.CacheInfo(); info.IsStale {
		t.Error("cache reported stale before TTL")
	}

	clk.Advance(time.Minute)
	if !reg.CacheInfo().IsStale {
		t.Error("cache should be stale after TTL")
	}
	if !reg.Exists(ctx, "late") {
		t.Error("stale snapshot should refresh on access")
	}
	if store.listCalls() != 2 {
		t.Errorf("List called %d times, want 2", store.listCalls())
	}
}

func TestEventRegistry_FailedRefreshKeepsSnapshot(t *testing.T) {
	reg, store, clk := newEventRegistry(t, app.RegistryConfig{TTL: time.Minute})
	ctx := context.Background()

	if err := reg.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	boom := errors.New("db down")
	store.fail(boom)
	if err := reg.Refresh(ctx); !errors.Is(err, boom) {
		t.Errorf("Refresh error = %v, want %v", err, boom)
	}

	clk.Advance(2 * time.Minute)
	if !reg.Exists(ctx, "basic") {
		t.Error("previous snapshot should keep serving after a failed refresh")
	}
}

func TestEventRegistry_LookupWhenStoreUnavailable(t *testing.T) {
	reg, store, _ := newEventRegistry(t, app.RegistryConfig{})
	store.fail(errors.New("db down"))

	if _, ok := reg.Get(context.Background(), "basic"); ok {
		t.Error("expected miss when nothing could be loaded")
	}
	if info := reg.CacheInfo(); info.Size != 0 || !info.IsStale {
		t.Errorf("CacheInfo = %+v, want empty and stale", info)
	}
}

func TestEventRegistry_ByCategory(t *testing.T) {
	reg, _, _ := newEventRegistry(t, app.RegistryConfig{})
	ctx := context.Background()

	defs := reg.ByCategory(ctx, "ai_analysis")
	if len(defs) != 2 || defs[0].EventType != "complex" || defs[1].EventType != "typed" {
		t.Errorf("ByCategory = %+v, want complex, typed", defs)
	}

	types := reg.TypesInCategory(ctx, "nothing")
	if len(types) != 0 {
		t.Errorf("TypesInCategory(nothing) = %v, want empty", types)
	}
}

func TestEventRegistry_UpsertAndDelete(t *testing.T) {
	inv := &recordingInvalidator{}
	reg, _, _ := newEventRegistry(t, app.RegistryConfig{Invalidator: inv, Origin: "replica-a"})
	ctx := context.Background()

	bad := event.Definition{EventType: "bad", BaseCredits: 1}
	if err := reg.Upsert(ctx, bad); err == nil {
		t.Error("expected validation error")
	}

	def := event.Definition{EventType: "new", BaseCredits: 3, Description: "New", Category: "misc"}
	if err := reg.Upsert(ctx, def); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !reg.Exists(ctx, "new") {
		t.Error("upserted definition not visible")
	}

	if err := reg.Delete(ctx, "new"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if reg.Exists(ctx, "new") {
		t.Error("deleted definition still visible")
	}
	if err := reg.Delete(ctx, "new"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Delete missing = %v, want ErrNotFound", err)
	}

	msgs := inv.published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].Action != app.ActionUpsert || msgs[0].Key != "new" || msgs[0].Origin != "replica-a" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Action != app.ActionDelete || msgs[1].Catalog != ports.CatalogEvents {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestEventRegistry_CacheInfo(t *testing.T) {
	reg, _, _ := newEventRegistry(t, app.RegistryConfig{})
	reg.Refresh(context.Background())

	info := reg.CacheInfo()
	if info.Size != 3 {
		t.Errorf("Size = %d, want 3", info.Size)
	}
	if !info.LastUpdate.Equal(testNow) {
		t.Errorf("LastUpdate = %v, want %v", info.LastUpdate, testNow)
	}
	if info.IsStale || info.IsRefreshing {
		t.Errorf("CacheInfo = %+v, want fresh and idle", info)
	}
}

func TestPlanRegistry(t *testing.T) {
	store := memory.NewPlanDefinitionStore(testPlans()...)
	reg := app.NewPlanRegistry(store, clock.NewFake(testNow), zerolog.Nop(), app.RegistryConfig{})
	ctx := context.Background()

	sorted := reg.SortedByPrice(ctx)
	if len(sorted) != 3 || sorted[0].PlanType != "starter" || sorted[2].PlanType != "enterprise" {
		t.Errorf("SortedByPrice = %v", planTypes(sorted))
	}

	mid := reg.InPriceRange(ctx, decimal.NewFromInt(20), decimal.NewFromInt(60))
	if len(mid) != 1 || mid[0].PlanType != "pro" {
		t.Errorf("InPriceRange = %v, want [pro]", planTypes(mid))
	}

	rec := reg.UpgradeRecommendation(ctx, "starter", 85)
	if !rec.ShouldUpgrade || rec.RecommendedPlan != "pro" {
		t.Errorf("UpgradeRecommendation = %+v, want pro", rec)
	}
	wantReason := "You're using 85.0% of your credits. Upgrade to Pro for 1000 monthly credits."
	if rec.Reason != wantReason {
		t.Errorf("Reason = %q, want %q", rec.Reason, wantReason)
	}

	if p, ok := reg.Get(ctx, "pro"); !ok || p.Features == nil {
		t.Errorf("Get(pro) = %+v, %v; want normalized plan", p, ok)
	}
}

func TestPlanRegistry_Allotment(t *testing.T) {
	store := memory.NewPlanDefinitionStore(testPlans()...)
	reg := app.NewPlanRegistry(store, clock.NewFake(testNow), zerolog.Nop(), app.RegistryConfig{})
	ctx := context.Background()

	tests := []struct {
		name string
		org  ports.Organization
		want int64
	}{
		{"plan default", ports.Organization{PlanType: "starter"}, 100},
		{"unlimited plan", ports.Organization{PlanType: "enterprise"}, plan.Unlimited},
		{"org limit wins", ports.Organization{PlanType: "starter", UsageLimits: map[string]int64{plan.LimitKeyAICalls: 20}}, 20},
		{"org unlimited", ports.Organization{PlanType: "starter", UsageLimits: map[string]int64{plan.LimitKeyAICalls: -1}}, plan.Unlimited},
		{"unknown plan", ports.Organization{PlanType: "gold"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.Allotment(ctx, tt.org); got != tt.want {
				t.Errorf("Allotment = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCatalogSync_Handle(t *testing.T) {
	events, store, _ := newEventRegistry(t, app.RegistryConfig{})
	plans := app.NewPlanRegistry(memory.NewPlanDefinitionStore(testPlans()...), clock.NewFake(testNow), zerolog.Nop(), app.RegistryConfig{})
	cs := app.NewCatalogSync(events, plans, nil, "replica-a", zerolog.Nop())
	ctx := context.Background()

	cs.Handle(ctx, ports.CatalogMessage{Catalog: ports.CatalogEvents, Action: app.ActionUpsert, Origin: "replica-a"})
	if store.listCalls() != 0 {
		t.Error("own message should be ignored")
	}

	cs.Handle(ctx, ports.CatalogMessage{Catalog: ports.CatalogEvents, Action: app.ActionUpsert, Origin: "replica-b"})
	if store.listCalls() != 1 {
		t.Errorf("List called %d times, want 1", store.listCalls())
	}

	cs.Handle(ctx, ports.CatalogMessage{Catalog: "widgets", Origin: "replica-b"})
	if store.listCalls() != 1 {
		t.Error("unknown catalog should not refresh events")
	}
}

func TestCatalogSync_RefreshAll(t *testing.T) {
	inv := &recordingInvalidator{}
	events, _, _ := newEventRegistry(t, app.RegistryConfig{})
	plans := app.NewPlanRegistry(memory.NewPlanDefinitionStore(testPlans()...), clock.NewFake(testNow), zerolog.Nop(), app.RegistryConfig{})
	cs := app.NewCatalogSync(events, plans, inv, "replica-a", zerolog.Nop())

	if err := cs.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}

	msgs := inv.published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Action != app.ActionRefresh || m.Origin != "replica-a" {
			t.Errorf("message = %+v", m)
		}
	}

	info := cs.Info()
	if info[ports.CatalogEvents].Size != 3 || info[ports.CatalogPlans].Size != 3 {
		t.Errorf("Info = %+v", info)
	}
}

func TestCatalogSync_RunWithoutInvalidator(t *testing.T) {
	events, _, _ := newEventRegistry(t, app.RegistryConfig{})
	plans := app.NewPlanRegistry(memory.NewPlanDefinitionStore(), clock.NewFake(testNow), zerolog.Nop(), app.RegistryConfig{})
	cs := app.NewCatalogSync(events, plans, nil, "replica-a", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cs.Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
}

func planTypes(plans []plan.Definition) []string {
	out := make([]string, len(plans))
	for i, p := range plans {
		out[i] = p.PlanType
	}
	return out
}
