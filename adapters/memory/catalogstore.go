package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/ports"
)

// EventDefinitionStore is an in-memory implementation of ports.EventDefinitionStore.
type EventDefinitionStore struct {
	mu   sync.RWMutex
	defs map[string]event.Definition
}

// NewEventDefinitionStore creates a store seeded with defs.
func NewEventDefinitionStore(defs ...event.Definition) *EventDefinitionStore {
	s := &EventDefinitionStore{defs: make(map[string]event.Definition, len(defs))}
	for _, d := range defs {
		s.defs[d.EventType] = d
	}
	return s
}

var _ ports.EventDefinitionStore = (*EventDefinitionStore)(nil)

// List returns all definitions ordered by event type.
func (s *EventDefinitionStore) List(ctx context.Context) ([]event.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	event.SortByType(out)
	return out, nil
}

// Upsert creates or replaces a definition.
func (s *EventDefinitionStore) Upsert(ctx context.Context, d event.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defs[d.EventType] = d
	return nil
}

// Delete removes a definition.
func (s *EventDefinitionStore) Delete(ctx context.Context, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.defs[eventType]; !ok {
		return ports.ErrNotFound
	}
	delete(s.defs, eventType)
	return nil
}

// PlanDefinitionStore is an in-memory implementation of ports.PlanDefinitionStore.
type PlanDefinitionStore struct {
	mu    sync.RWMutex
	plans map[string]plan.Definition
}

// NewPlanDefinitionStore creates a store seeded with plans.
func NewPlanDefinitionStore(plans ...plan.Definition) *PlanDefinitionStore {
	s := &PlanDefinitionStore{plans: make(map[string]plan.Definition, len(plans))}
	for _, p := range plans {
		s.plans[p.PlanType] = p
	}
	return s
}

var _ ports.PlanDefinitionStore = (*PlanDefinitionStore)(nil)

// List returns all plans ordered by monthly price.
func (s *PlanDefinitionStore) List(ctx context.Context) ([]plan.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]plan.Definition, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanType < out[j].PlanType })
	return plan.SortByPrice(out), nil
}

// Upsert creates or replaces a plan.
func (s *PlanDefinitionStore) Upsert(ctx context.Context, p plan.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[p.PlanType] = p
	return nil
}

// Delete removes a plan.
func (s *PlanDefinitionStore) Delete(ctx context.Context, planType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[planType]; !ok {
		return ports.ErrNotFound
	}
	delete(s.plans, planType)
	return nil
}
