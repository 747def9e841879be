package memory

import (
	"context"
	"sync"

	"github.com/nexastudio/creditmeter/ports"
)

// OrganizationStore is an in-memory implementation of ports.OrganizationStore.
type OrganizationStore struct {
	mu   sync.RWMutex
	orgs map[string]ports.Organization
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		orgs: make(map[string]ports.Organization),
	}
}

var _ ports.OrganizationStore = (*OrganizationStore)(nil)

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, id string) (ports.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orgs[id]
	if !ok {
		return ports.Organization{}, ports.ErrNotFound
	}
	return copyOrg(o), nil
}

// Create stores a new organization.
func (s *OrganizationStore) Create(ctx context.Context, o ports.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[o.ID]; exists {
		return ports.ErrAlreadyExists
	}
	s.orgs[o.ID] = copyOrg(o)
	return nil
}

func copyOrg(o ports.Organization) ports.Organization {
	if o.UsageLimits != nil {
		limits := make(map[string]int64, len(o.UsageLimits))
		for k, v := range o.UsageLimits {
			limits[k] = v
		}
		o.UsageLimits = limits
	}
	return o
}
