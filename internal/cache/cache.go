// Package cache holds the read-through caches of fetched backend data.
//
// Every cache carries an invalidation generation. A fetch captures the
// generation before it starts and stores its result with SetIfGeneration,
// so a result that raced with an invalidation is dropped instead of
// resurrecting stale data.
package cache

import (
	"sync"
	"time"

	"fintrack/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	// SetIfGeneration stores data only while the cache is still at gen.
	SetIfGeneration(key string, data T, gen uint64) bool
	Generation() uint64
	// Invalidate removes key and moves the generation on.
	Invalidate(key string)
	InvalidatePrefix(prefix string) int
	Clear()
	Size() int
}

// Cleaner is a cache the Manager can sweep and reset.
type Cleaner interface {
	CleanExpired() int
	Clear()
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	mu          sync.Mutex
	caches      []Cleaner
	logger      *log.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
	started     bool
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{
		logger:      logger.WithComponent(log.ComponentCache),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(caches ...Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, caches...)
}

// ClearAll empties every registered cache.
func (m *Manager) ClearAll() {
	for _, c := range m.registered() {
		c.Clear()
	}
}

func (m *Manager) registered() []Cleaner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Cleaner(nil), m.caches...)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			total := 0
			for _, c := range m.registered() {
				total += c.CleanExpired()
			}
			if total > 0 {
				m.logger.Debug("Expired cache entries removed", "count", total)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.cleanupDone
		}
	})
}
