// Package aggregator keeps the client's view of the user's finances: the
// category list, the selected transaction page, the current budget and the
// dashboard stats. Reads go through generation-guarded caches; mutations
// validate, write, and invalidate what they touched before returning.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/session"
)

const (
	DefaultCacheTTL  = 5 * time.Minute
	DefaultCacheSize = 128

	keyCategories = "all"
)

type Config struct {
	CacheTTL  time.Duration
	CacheSize int
}

// SessionSource is the part of the session manager the aggregator follows.
type SessionSource interface {
	Epoch() uint64
	OnChange(func(session.Snapshot))
}

type Aggregator struct {
	backend  backend.Backend
	notifier notify.Notifier
	logger   *log.Logger
	now      func() time.Time
	epoch    func() uint64

	group        singleflight.Group
	categories   *cache.LRUCache[[]core.Category]
	transactions *cache.LRUCache[core.TransactionPage]
	budgets      *cache.LRUCache[*core.Budget]
	stats        *cache.LRUCache[core.DashboardStats]
	caches       *cache.Manager

	mu        sync.Mutex
	filters   core.TransactionFilters
	page      int
	month     core.Month
	visible   *visiblePage
	lastEpoch uint64
	resets    uint64
}

type visiblePage struct {
	key   string
	page  core.TransactionPage
	stale bool
}

type Option func(*Aggregator)

func WithLogger(l *log.Logger) Option {
	return func(a *Aggregator) { a.logger = l.WithComponent(log.ComponentAggregator) }
}

func WithNotifier(n notify.Notifier) Option {
	return func(a *Aggregator) { a.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(b backend.Backend, cfg Config, opts ...Option) *Aggregator {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	a := &Aggregator{
		backend:  b,
		notifier: notify.Discard,
		logger:   log.Discard(),
		now:      time.Now,
		epoch:    func() uint64 { return 0 },
		page:     1,
	}
	for _, opt := range opts {
		opt(a)
	}
	clock := cache.WithClock(a.now)
	a.categories = cache.NewLRUCache[[]core.Category](1, cfg.CacheTTL, clock)
	a.transactions = cache.NewLRUCache[core.TransactionPage](cfg.CacheSize, cfg.CacheTTL, clock)
	a.budgets = cache.NewLRUCache[*core.Budget](4, cfg.CacheTTL, clock)
	a.stats = cache.NewLRUCache[core.DashboardStats](cfg.CacheSize, cfg.CacheTTL, clock)
	a.caches = cache.NewManager(a.logger)
	a.caches.Register(a.categories, a.transactions, a.budgets, a.stats)
	a.month = core.MonthOf(a.now())
	return a
}

// BindSession resets the aggregator whenever a session begins or ends and
// stops cache fills started under a previous session from landing.
func (a *Aggregator) BindSession(s SessionSource) {
	a.mu.Lock()
	a.epoch = s.Epoch
	a.lastEpoch = s.Epoch()
	a.mu.Unlock()

	s.OnChange(func(snap session.Snapshot) {
		a.mu.Lock()
		changed := snap.Epoch != a.lastEpoch
		a.lastEpoch = snap.Epoch
		a.mu.Unlock()
		if changed {
			a.Reset()
		}
	})
}

// StartCacheCleanup sweeps expired entries every interval until Close.
func (a *Aggregator) StartCacheCleanup(interval time.Duration) {
	a.caches.StartCleanup(interval)
}

func (a *Aggregator) Close() {
	a.caches.Stop()
}

// Reset drops every cache and the visible state. The filters and page go
// back to their defaults; the selected month is kept.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.resets++
	a.filters = core.TransactionFilters{}
	a.page = 1
	a.visible = nil
	a.mu.Unlock()
	a.caches.ClearAll()
	a.logger.Debug("Aggregator state reset")
}

func (a *Aggregator) currentEpoch() uint64 {
	a.mu.Lock()
	fn := a.epoch
	a.mu.Unlock()
	return fn()
}

// fetch reads key from c, loading and caching it on a miss. Concurrent
// misses for the same key, generation and epoch share one load. The result
// is cached only if neither the generation nor the epoch moved while it
// loaded.
func fetch[T any](ctx context.Context, a *Aggregator, c *cache.LRUCache[T], name, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	gen := c.Generation()
	epoch := a.currentEpoch()

	flightKey := fmt.Sprintf("%s|%s|%d|%d", name, key, gen, epoch)
	v, err, _ := a.group.Do(flightKey, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if a.currentEpoch() == epoch && c.SetIfGeneration(key, v, gen) {
			a.logger.DebugContext(ctx, "Cached", log.FieldCacheKey, name+":"+key)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
