package memory

import (
	"context"
	"sync"

	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
)

// UserStore is an in-memory implementation of ports.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]usage.User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]usage.User),
	}
}

var _ ports.UserStore = (*UserStore)(nil)

// Lookup returns the known users among ids.
func (s *UserStore) Lookup(ctx context.Context, ids []string) (map[string]usage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]usage.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

// Upsert creates or replaces a user.
func (s *UserStore) Upsert(ctx context.Context, u usage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.ID] = u
	return nil
}
