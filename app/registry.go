package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/ports"
)

// Catalog actions carried by invalidation messages.
const (
	ActionUpsert  = "upsert"
	ActionDelete  = "delete"
	ActionRefresh = "refresh"
)

// RegistryConfig contains configuration for the catalog registries.
type RegistryConfig struct {
	TTL time.Duration // Snapshot lifetime; 0 means DefaultCatalogTTL

	// Invalidator, when set, announces local catalog writes to other replicas.
	Invalidator ports.CatalogInvalidator
	Origin      string // Identifies this replica in invalidation messages

	Metrics Metrics
}

func (c RegistryConfig) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultCatalogTTL
	}
	return c.TTL
}

func announce(ctx context.Context, cfg RegistryConfig, logger zerolog.Logger, msg ports.CatalogMessage) {
	if cfg.Invalidator == nil {
		return
	}
	msg.Origin = cfg.Origin
	if err := cfg.Invalidator.Publish(ctx, msg); err != nil {
		logger.Warn().Err(err).Str("catalog", msg.Catalog).Msg("failed to announce catalog change")
	}
}

// EventRegistry serves event cost definitions from a cached snapshot.
type EventRegistry struct {
	store  ports.EventDefinitionStore
	cfg    RegistryConfig
	logger zerolog.Logger
	cache  *catalogCache[event.Definition]
}

// NewEventRegistry creates an event registry. The first lookup loads the catalog.
func NewEventRegistry(store ports.EventDefinitionStore, clock ports.Clock, logger zerolog.Logger, cfg RegistryConfig) *EventRegistry {
	logger = logger.With().Str("service", "event_registry").Logger()
	return &EventRegistry{
		store:  store,
		cfg:    cfg,
		logger: logger,
		cache: &catalogCache[event.Definition]{
			name:     ports.CatalogEvents,
			load:     store.List,
			key:      func(d event.Definition) string { return d.EventType },
			validate: event.Validate,
			skip:     func(d event.Definition) bool { return d.Disabled },
			clock:    clock,
			ttl:      cfg.ttl(),
			logger:   logger,
			metrics:  metricsOrNop(cfg.Metrics),
		},
	}
}

// Get returns the definition for eventType.
func (r *EventRegistry) Get(ctx context.Context, eventType string) (event.Definition, bool) {
	d, ok := r.cache.current(ctx).index[eventType]
	return d, ok
}

// Exists reports whether eventType is defined.
func (r *EventRegistry) Exists(ctx context.Context, eventType string) bool {
	_, ok := r.Get(ctx, eventType)
	return ok
}

// All returns every active definition, sorted by event type.
func (r *EventRegistry) All(ctx context.Context) []event.Definition {
	items := r.cache.current(ctx).items
	out := make([]event.Definition, len(items))
	copy(out, items)
	event.SortByType(out)
	return out
}

// ByCategory returns the active definitions in category.
func (r *EventRegistry) ByCategory(ctx context.Context, category string) []event.Definition {
	return event.FilterByCategory(r.cache.current(ctx).items, category)
}

// TypesInCategory returns the event types in category.
func (r *EventRegistry) TypesInCategory(ctx context.Context, category string) []string {
	defs := r.ByCategory(ctx, category)
	types := make([]string, len(defs))
	for i, d := range defs {
		types[i] = d.EventType
	}
	return types
}

// Upsert validates and stores a definition, then refreshes the cache.
func (r *EventRegistry) Upsert(ctx context.Context, d event.Definition) error {
	if err := event.Validate(d); err != nil {
		return err
	}
	if err := r.store.Upsert(ctx, d); err != nil {
		return fmt.Errorf("store event definition: %w", err)
	}
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	announce(ctx, r.cfg, r.logger, ports.CatalogMessage{Catalog: ports.CatalogEvents, Key: d.EventType, Action: ActionUpsert})
	return nil
}

// Delete removes a definition, then refreshes the cache.
func (r *EventRegistry) Delete(ctx context.Context, eventType string) error {
	if err := r.store.Delete(ctx, eventType); err != nil {
		return fmt.Errorf("delete event definition: %w", err)
	}
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	announce(ctx, r.cfg, r.logger, ports.CatalogMessage{Catalog: ports.CatalogEvents, Key: eventType, Action: ActionDelete})
	return nil
}

// Refresh reloads the catalog from storage.
func (r *EventRegistry) Refresh(ctx context.Context) error {
	return r.cache.refresh(ctx)
}

// CacheInfo reports the cache state.
func (r *EventRegistry) CacheInfo() CacheInfo {
	return r.cache.info()
}

// PlanRegistry serves plan definitions from a cached snapshot.
type PlanRegistry struct {
	store  ports.PlanDefinitionStore
	cfg    RegistryConfig
	logger zerolog.Logger
	cache  *catalogCache[plan.Definition]
}

// NewPlanRegistry creates a plan registry. The first lookup loads the catalog.
func NewPlanRegistry(store ports.PlanDefinitionStore, clock ports.Clock, logger zerolog.Logger, cfg RegistryConfig) *PlanRegistry {
	logger = logger.With().Str("service", "plan_registry").Logger()
	return &PlanRegistry{
		store:  store,
		cfg:    cfg,
		logger: logger,
		cache: &catalogCache[plan.Definition]{
			name: ports.CatalogPlans,
			load: func(ctx context.Context) ([]plan.Definition, error) {
				plans, err := store.List(ctx)
				for i := range plans {
					plans[i] = plan.Normalize(plans[i])
				}
				return plans, err
			},
			key:      func(p plan.Definition) string { return p.PlanType },
			validate: plan.Validate,
			skip:     func(p plan.Definition) bool { return p.Disabled },
			clock:    clock,
			ttl:      cfg.ttl(),
			logger:   logger,
			metrics:  metricsOrNop(cfg.Metrics),
		},
	}
}

// Get returns the plan for planType.
func (r *PlanRegistry) Get(ctx context.Context, planType string) (plan.Definition, bool) {
	p, ok := r.cache.current(ctx).index[planType]
	return p, ok
}

// All returns every active plan, cheapest first.
func (r *PlanRegistry) All(ctx context.Context) []plan.Definition {
	return r.SortedByPrice(ctx)
}

// SortedByPrice returns every active plan ordered by monthly price.
func (r *PlanRegistry) SortedByPrice(ctx context.Context) []plan.Definition {
	return plan.SortByPrice(r.cache.current(ctx).items)
}

// InPriceRange returns the plans whose monthly price lies in [lo, hi].
func (r *PlanRegistry) InPriceRange(ctx context.Context, lo, hi decimal.Decimal) []plan.Definition {
	return plan.InPriceRange(r.cache.current(ctx).items, lo, hi)
}

// UpgradeRecommendation suggests a larger plan once usage nears the current plan's credits.
func (r *PlanRegistry) UpgradeRecommendation(ctx context.Context, planType string, usedCredits int64) plan.Recommendation {
	return plan.Recommend(r.cache.current(ctx).items, planType, usedCredits)
}

// Allotment resolves an organization's monthly allotment.
func (r *PlanRegistry) Allotment(ctx context.Context, org ports.Organization) int64 {
	p, ok := r.Get(ctx, org.PlanType)
	return plan.ResolveAllotment(org.UsageLimits, p, ok)
}

// Upsert validates and stores a plan, then refreshes the cache.
func (r *PlanRegistry) Upsert(ctx context.Context, p plan.Definition) error {
	p = plan.Normalize(p)
	if err := plan.Validate(p); err != nil {
		return err
	}
	if err := r.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("store plan definition: %w", err)
	}
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	announce(ctx, r.cfg, r.logger, ports.CatalogMessage{Catalog: ports.CatalogPlans, Key: p.PlanType, Action: ActionUpsert})
	return nil
}

// Delete removes a plan, then refreshes the cache.
func (r *PlanRegistry) Delete(ctx context.Context, planType string) error {
	if err := r.store.Delete(ctx, planType); err != nil {
		return fmt.Errorf("delete plan definition: %w", err)
	}
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	announce(ctx, r.cfg, r.logger, ports.CatalogMessage{Catalog: ports.CatalogPlans, Key: planType, Action: ActionDelete})
	return nil
}

// Refresh reloads the catalog from storage.
func (r *PlanRegistry) Refresh(ctx context.Context) error {
	return r.cache.refresh(ctx)
}

// CacheInfo reports the cache state.
func (r *PlanRegistry) CacheInfo() CacheInfo {
	return r.cache.info()
}
