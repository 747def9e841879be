// Package memory provides in-memory store implementations for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexastudio/creditmeter/domain/usage"
	"github.com/nexastudio/creditmeter/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
// It also implements ports.AtomicAppender.
type UsageStore struct {
	mu     sync.RWMutex
	events []usage.Event
}

// NewUsageStore creates a new in-memory usage ledger.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		events: make([]usage.Event, 0),
	}
}

var (
	_ ports.UsageStore     = (*UsageStore)(nil)
	_ ports.AtomicAppender = (*UsageStore)(nil)
)

// Append stores a new event.
func (s *UsageStore) Append(ctx context.Context, e usage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
	return nil
}

// AppendWithinLimit appends e only if it fits under limit.
func (s *UsageStore) AppendWithinLimit(ctx context.Context, e usage.Event, start, end time.Time, limit int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.sumLocked(e.OrganizationID, start, end)
	if limit >= 0 && used+e.CreditsConsumed > limit {
		return used, ports.ErrLimitExceeded
	}
	s.events = append(s.events, e)
	return used, nil
}

// SumCredits totals an organization's credits within [start, end].
func (s *UsageStore) SumCredits(ctx context.Context, orgID string, start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sumLocked(orgID, start, end), nil
}

func (s *UsageStore) sumLocked(orgID string, start, end time.Time) int64 {
	var total int64
	for _, e := range s.events {
		if e.OrganizationID == orgID && usage.InWindow(e.CreatedAt, start, end) {
			total += e.CreditsConsumed
		}
	}
	return total
}

// ListEvents returns an organization's events within [start, end], newest first.
func (s *UsageStore) ListEvents(ctx context.Context, orgID string, start, end time.Time) ([]usage.Event, error) {
	return s.filter(usage.Query{OrganizationID: orgID, Start: start, End: end}), nil
}

// Query returns one page of matching events and a summary of all matches.
func (s *UsageStore) Query(ctx context.Context, q usage.Query) (usage.Page, error) {
	q = q.Normalize()
	matching := s.filter(q)

	page := usage.Page{
		Page:    q.Page,
		Limit:   q.Limit,
		Summary: usage.Summarize(matching),
		Events:  []usage.Event{},
	}

	off := q.Offset()
	if off < len(matching) {
		end := off + q.Limit
		if end > len(matching) {
			end = len(matching)
		}
		page.Events = matching[off:end]
	}
	return page, nil
}

// filter returns copies of matching events, newest first.
// Events with equal timestamps come latest-appended first.
func (s *UsageStore) filter(q usage.Query) []usage.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]usage.Event, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if e := s.events[i]; q.Matches(e) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Len returns the number of stored events.
func (s *UsageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
