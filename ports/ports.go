// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/nexastudio/creditmeter/domain/event"
	"github.com/nexastudio/creditmeter/domain/plan"
	"github.com/nexastudio/creditmeter/domain/usage"
)

// ErrNotFound is returned when an entity is not found.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating an entity whose ID is taken.
var ErrAlreadyExists = errors.New("already exists")

// ErrLimitExceeded is returned by AtomicAppender when a charge would exceed the limit.
var ErrLimitExceeded = errors.New("credit limit exceeded")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Random provides random bytes.
type Random interface {
	Bytes(n int) ([]byte, error)
}

// KeyHasher hashes and verifies service keys.
type KeyHasher interface {
	Hash(key string) ([]byte, error)
	Compare(hash []byte, key string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// UsageStore is the append-only usage ledger.
type UsageStore interface {
	// Append stores a new event. Events are never updated or deleted.
	Append(ctx context.Context, e usage.Event) error

	// SumCredits totals credits for an organization within [start, end].
	SumCredits(ctx context.Context, orgID string, start, end time.Time) (int64, error)

	// ListEvents returns an organization's events within [start, end], newest first.
	ListEvents(ctx context.Context, orgID string, start, end time.Time) ([]usage.Event, error)

	// Query returns one page of filtered events plus a summary of the whole filtered set.
	Query(ctx context.Context, q usage.Query) (usage.Page, error)
}

// AtomicAppender is implemented by ledgers that can check and append in one step.
type AtomicAppender interface {
	// AppendWithinLimit appends e only if the credits already used in
	// [start, end] plus e's credits stay within limit. It returns the credits
	// used before the append, and ErrLimitExceeded when e was rejected.
	AppendWithinLimit(ctx context.Context, e usage.Event, start, end time.Time, limit int64) (int64, error)
}

// Organization is the read-side view of a tenant.
type Organization struct {
	ID          string
	Name        string
	PlanType    string
	UsageLimits map[string]int64 // e.g. ai_calls_per_month, -1 = unlimited
	CreatedAt   time.Time
}

// OrganizationStore reads organizations.
type OrganizationStore interface {
	Get(ctx context.Context, id string) (Organization, error)
	Create(ctx context.Context, o Organization) error
}

// UserStore resolves user display identities.
type UserStore interface {
	// Lookup returns the known users among ids. Unknown IDs are omitted.
	Lookup(ctx context.Context, ids []string) (map[string]usage.User, error)
	Upsert(ctx context.Context, u usage.User) error
}

// EventDefinitionStore persists the event cost catalog.
type EventDefinitionStore interface {
	List(ctx context.Context) ([]event.Definition, error)
	Upsert(ctx context.Context, d event.Definition) error
	Delete(ctx context.Context, eventType string) error
}

// PlanDefinitionStore persists the plan catalog.
type PlanDefinitionStore interface {
	List(ctx context.Context) ([]plan.Definition, error)
	Upsert(ctx context.Context, p plan.Definition) error
	Delete(ctx context.Context, planType string) error
}

// -----------------------------------------------------------------------------
// Cache Invalidation Ports
// -----------------------------------------------------------------------------

// Catalog names used in invalidation messages.
const (
	CatalogEvents = "events"
	CatalogPlans  = "plans"
)

// CatalogMessage announces that a catalog changed.
type CatalogMessage struct {
	Catalog   string `json:"catalog"`
	Key       string `json:"key,omitempty"`
	Action    string `json:"action"` // upsert, delete, refresh
	Origin    string `json:"origin,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// CatalogInvalidator fans catalog changes out to other replicas.
type CatalogInvalidator interface {
	Publish(ctx context.Context, msg CatalogMessage) error
	// Subscribe blocks, invoking fn for each message until ctx is done.
	Subscribe(ctx context.Context, fn func(CatalogMessage)) error
	Close() error
}
