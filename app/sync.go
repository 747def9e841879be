package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/ports"
)

// CatalogSync refreshes local registries when another replica changes a catalog.
type CatalogSync struct {
	events *EventRegistry
	plans  *PlanRegistry
	inv    ports.CatalogInvalidator
	origin string
	logger zerolog.Logger
}

// NewCatalogSync creates a catalog sync. inv may be nil for single-replica setups.
func NewCatalogSync(events *EventRegistry, plans *PlanRegistry, inv ports.CatalogInvalidator, origin string, logger zerolog.Logger) *CatalogSync {
	return &CatalogSync{
		events: events,
		plans:  plans,
		inv:    inv,
		origin: origin,
		logger: logger.With().Str("service", "catalog_sync").Logger(),
	}
}

// Run consumes invalidation messages until ctx is done.
func (s *CatalogSync) Run(ctx context.Context) error {
	if s.inv == nil {
		<-ctx.Done()
		return nil
	}
	err := s.inv.Subscribe(ctx, func(msg ports.CatalogMessage) {
		s.Handle(ctx, msg)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle applies one invalidation message. Messages from this replica are ignored.
func (s *CatalogSync) Handle(ctx context.Context, msg ports.CatalogMessage) {
	if msg.Origin != "" && msg.Origin == s.origin {
		return
	}

	var err error
	switch msg.Catalog {
	case ports.CatalogEvents:
		err = s.events.Refresh(ctx)
	case ports.CatalogPlans:
		err = s.plans.Refresh(ctx)
	default:
		s.logger.Warn().Str("catalog", msg.Catalog).Msg("ignoring invalidation for unknown catalog")
		return
	}

	if err != nil {
		s.logger.Error().Err(err).Str("catalog", msg.Catalog).Msg("failed to apply invalidation")
		return
	}
	s.logger.Info().
		Str("catalog", msg.Catalog).
		Str("key", msg.Key).
		Str("action", msg.Action).
		Str("origin", msg.Origin).
		Msg("catalog invalidated")
}

// RefreshAll reloads both catalogs and tells other replicas to do the same.
func (s *CatalogSync) RefreshAll(ctx context.Context) error {
	if err := errors.Join(s.events.Refresh(ctx), s.plans.Refresh(ctx)); err != nil {
		return err
	}
	if s.inv == nil {
		return nil
	}
	for _, name := range []string{ports.CatalogEvents, ports.CatalogPlans} {
		msg := ports.CatalogMessage{Catalog: name, Action: ActionRefresh, Origin: s.origin}
		if err := s.inv.Publish(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Str("catalog", name).Msg("failed to announce refresh")
		}
	}
	return nil
}

// Info reports the cache state of both registries.
func (s *CatalogSync) Info() map[string]CacheInfo {
	return map[string]CacheInfo{
		ports.CatalogEvents: s.events.CacheInfo(),
		ports.CatalogPlans:  s.plans.CacheInfo(),
	}
}
