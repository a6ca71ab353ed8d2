// Package snapshot holds the published incident snapshot and the refresh pipeline behind it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey = "refresh"
	defaultTTL = 5 * time.Minute
)

// ErrNoSnapshot is returned when no refresh has ever succeeded.
var ErrNoSnapshot = errors.New("no snapshot available")

// Refresher builds a new snapshot from the previous one.
type Refresher interface {
	Refresh(ctx context.Context, previous *domain.Snapshot) (*domain.Snapshot, error)
}

type entry struct {
	snapshot    *domain.Snapshot
	publishedAt time.Time
}

// Cache serves the current snapshot and refreshes it when stale.
// At most one refresh runs at a time; concurrent triggers share its result.
type Cache struct {
	refresher Refresher
	ttl       time.Duration
	now       func() time.Time

	current atomic.Pointer[entry]
	group   singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new snapshot cache.
func NewCache(refresher Refresher, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	c := &Cache{
		refresher: refresher,
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current snapshot, refreshing first if it is stale.
func (c *Cache) Get(ctx context.Context) (*domain.Snapshot, error) {
	if snap, ok := c.fresh(); ok {
		return snap, nil
	}
	return c.refresh(ctx, false)
}

// Refresh forces a refresh, joining one already in flight.
func (c *Cache) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	return c.refresh(ctx, true)
}

// Current returns the last published snapshot without triggering a refresh.
// It returns nil before the first successful refresh.
func (c *Cache) Current() *domain.Snapshot {
	if e := c.current.Load(); e != nil {
		return e.snapshot
	}
	return nil
}

// IsFresh reports whether the current snapshot is within its TTL.
func (c *Cache) IsFresh() bool {
	_, ok := c.fresh()
	return ok
}

func (c *Cache) fresh() (*domain.Snapshot, bool) {
	e := c.current.Load()
	if e == nil {
		return nil, false
	}
	if c.now().Sub(e.publishedAt) > c.ttl {
		return e.snapshot, false
	}
	return e.snapshot, true
}

func (c *Cache) refresh(ctx context.Context, force bool) (*domain.Snapshot, error) {
	// The refresh outlives a caller that stops waiting.
	refreshCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		// A stale read may arrive just after another refresh published.
		if !force {
			if snap, ok := c.fresh(); ok {
				return snap, nil
			}
		}
		return c.run(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if prev := c.Current(); prev != nil {
				ctxlog.FromContext(ctx).Warn("refresh failed, serving previous snapshot", "error", res.Err)
				return prev, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, res.Err)
		}
		return res.Val.(*domain.Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) run(ctx context.Context) (*domain.Snapshot, error) {
	previous := c.Current()

	next, err := c.refresher.Refresh(ctx, previous)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, errors.New("refresher returned no snapshot")
	}

	c.current.Store(&entry{snapshot: next, publishedAt: c.now()})
	return next, nil
}
