package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/ports"
)

// DefaultCatalogTTL is how long a catalog snapshot is served before a lazy refresh.
const DefaultCatalogTTL = 5 * time.Minute

// CacheInfo describes the state of a registry cache.
type CacheInfo struct {
	Size         int       `json:"size"`
	LastUpdate   time.Time `json:"lastUpdate"`
	IsStale      bool      `json:"isStale"`
	IsRefreshing bool      `json:"isRefreshing"`
}

// snapshot is an immutable view of one catalog.
type snapshot[T any] struct {
	items    []T
	index    map[string]T
	loadedAt time.Time
}

// catalogCache serves a catalog from an atomically swapped snapshot.
// Refreshes are serialized; readers keep the previous snapshot meanwhile.
type catalogCache[T any] struct {
	name     string
	load     func(ctx context.Context) ([]T, error)
	key      func(T) string
	validate func(T) error
	skip     func(T) bool

	clock   ports.Clock
	ttl     time.Duration
	logger  zerolog.Logger
	metrics Metrics

	snap       atomic.Pointer[snapshot[T]]
	mu         sync.Mutex
	refreshing atomic.Bool
}

func (c *catalogCache[T]) refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *catalogCache[T]) refreshLocked(ctx context.Context) error {
	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	items, err := c.load(ctx)
	if err != nil {
		c.metrics.ObserveRefresh(c.name, 0, err)
		return fmt.Errorf("load %s catalog: %w", c.name, err)
	}

	s := &snapshot[T]{
		items:    make([]T, 0, len(items)),
		index:    make(map[string]T, len(items)),
		loadedAt: c.clock.Now(),
	}
	for _, it := range items {
		if err := c.validate(it); err != nil {
			c.logger.Warn().Err(err).Str("catalog", c.name).Msg("skipping invalid definition")
			continue
		}
		if c.skip != nil && c.skip(it) {
			continue
		}
		s.items = append(s.items, it)
		s.index[c.key(it)] = it
	}
	c.snap.Store(s)

	c.metrics.ObserveRefresh(c.name, len(s.items), nil)
	c.logger.Debug().
		Str("catalog", c.name).
		Int("entries", len(s.items)).
		Msg("catalog refreshed")

	return nil
}

func (c *catalogCache[T]) stale(s *snapshot[T]) bool {
	return !c.clock.Now().Before(s.loadedAt.Add(c.ttl))
}

// current returns the snapshot to serve, refreshing it first when missing or stale.
// A failed refresh keeps the previous snapshot.
func (c *catalogCache[T]) current(ctx context.Context) *snapshot[T] {
	s := c.snap.Load()
	if s != nil && !c.stale(s) {
		return s
	}

	if s == nil {
		// Nothing to serve yet, so wait for the in-flight load.
		c.mu.Lock()
		if c.snap.Load() == nil {
			if err := c.refreshLocked(ctx); err != nil {
				c.logger.Error().Err(err).Msg("initial catalog load failed")
			}
		}
		c.mu.Unlock()
	} else if c.mu.TryLock() {
		if cur := c.snap.Load(); cur == nil || c.stale(cur) {
			if err := c.refreshLocked(ctx); err != nil {
				c.logger.Error().Err(err).Msg("catalog refresh failed, serving stale snapshot")
			}
		}
		c.mu.Unlock()
	}

	if s = c.snap.Load(); s == nil {
		return &snapshot[T]{index: map[string]T{}}
	}
	return s
}

func (c *catalogCache[T]) info() CacheInfo {
	info := CacheInfo{IsRefreshing: c.refreshing.Load(), IsStale: true}
	if s := c.snap.Load(); s != nil {
		info.Size = len(s.items)
		info.LastUpdate = s.loadedAt
		info.IsStale = c.stale(s)
	}
	return info
}
