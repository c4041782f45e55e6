package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/quantmind-br/docgate/internal/utils"
	"golang.org/x/sync/singleflight"
)

// Default capacities and TTLs of the gateway caches
const (
	DefaultMenuCapacity  = 10
	DefaultDocCapacity   = 300
	DefaultImageCapacity = 500

	DefaultMenuTTL  = 5 * time.Minute
	DefaultDocTTL   = 5 * time.Minute
	DefaultImageTTL = 24 * time.Hour
)

// RefreshFunc computes the value of a key on a miss or expiry
type RefreshFunc[V any] func(ctx context.Context, key string) (V, error)

// MemoOptions configures a Memo
type MemoOptions struct {
	Name       string
	Capacity   int
	TTL        time.Duration
	AllowStale bool
	// NoCache collapses the TTL to zero and disables stale serving
	NoCache bool
	Logger  *utils.Logger
	Now     func() time.Time
}

// Stats is a snapshot of Memo counters
type Stats struct {
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	StaleServes     uint64 `json:"stale_serves"`
	Refreshes       uint64 `json:"refreshes"`
	RefreshFailures uint64 `json:"refresh_failures"`
	Entries         int    `json:"entries"`
}

// Memo is a bounded LRU memoization layer with per-key single flight.
//
// A fresh entry is returned directly. An expired entry is returned as is
// while exactly one background refresh runs, when stale serving is enabled.
// A failed refresh never replaces an existing value: callers holding a
// previous value get it back, and only callers without one see the error.
type Memo[V any] struct {
	refresh    RefreshFunc[V]
	ttl        time.Duration
	allowStale bool
	now        func() time.Time
	logger     *utils.Logger

	mu      sync.Mutex
	entries *simplelru.LRU[string, *Entry[V]]
	pending map[string]struct{}

	group      singleflight.Group
	background sync.WaitGroup

	hits, misses, staleServes, refreshes, failures atomic.Uint64
}

// NewMemo creates a memo backed by refresh
func NewMemo[V any](refresh RefreshFunc[V], opts MemoOptions) (*Memo[V], error) {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 1
	}

	entries, err := simplelru.NewLRU[string, *Entry[V]](capacity, nil)
	if err != nil {
		return nil, err
	}

	m := &Memo[V]{
		refresh:    refresh,
		ttl:        opts.TTL,
		allowStale: opts.AllowStale,
		now:        opts.Now,
		entries:    entries,
		pending:    make(map[string]struct{}),
	}
	if opts.NoCache {
		m.ttl = 0
		m.allowStale = false
	}
	if m.now == nil {
		m.now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	m.logger = logger.WithCache(opts.Name)

	return m, nil
}

// Fetch returns the value of key, computing it when absent or expired
func (m *Memo[V]) Fetch(ctx context.Context, key string) (V, error) {
	m.mu.Lock()
	prev, ok := m.entries.Get(key)
	m.mu.Unlock()

	if ok {
		if prev.State(m.now()) == Fresh {
			m.hits.Add(1)
			m.logger.Debug().Str("key", key).Dur("ttl", prev.TTL(m.now())).Msg("Cache hit")
			return prev.Value, nil
		}
		if m.allowStale {
			m.staleServes.Add(1)
			m.logger.Debug().Str("key", key).Msg("Serving stale entry")
			m.refreshInBackground(key)
			return prev.Value, nil
		}
	}

	m.misses.Add(1)
	m.logger.Debug().Str("key", key).Msg("Cache miss")

	value, err := m.load(ctx, key)
	if err != nil {
		if ok {
			m.logger.Warn().Err(err).Str("key", key).Msg("Refresh failed, keeping previous value")
			return prev.Value, nil
		}
		var zero V
		return zero, err
	}
	return value, nil
}

// load runs one refresh per key at a time. The refresh itself is detached
// from ctx; ctx only bounds how long this caller waits for it.
func (m *Memo[V]) load(ctx context.Context, key string) (V, error) {
	var zero V

	ch := m.group.DoChan(key, func() (any, error) {
		// a flight that finished just before this one may have stored it
		m.mu.Lock()
		e, ok := m.entries.Peek(key)
		m.mu.Unlock()
		if ok && e.State(m.now()) == Fresh {
			return e.Value, nil
		}

		m.refreshes.Add(1)
		start := m.now()

		value, err := m.refresh(context.WithoutCancel(ctx), key)
		if err != nil {
			m.failures.Add(1)
			return nil, err
		}

		m.store(key, value)
		m.logger.Info().
			Str("key", key).
			Dur("took", m.now().Sub(start)).
			Msg("Refreshed entry")
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (m *Memo[V]) store(key string, value V) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Add(key, &Entry[V]{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(m.ttl),
	})
}

// refreshInBackground starts a refresh of key unless one is already pending
func (m *Memo[V]) refreshInBackground(key string) {
	m.mu.Lock()
	if _, busy := m.pending[key]; busy {
		m.mu.Unlock()
		return
	}
	m.pending[key] = struct{}{}
	m.mu.Unlock()

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer func() {
			m.mu.Lock()
			delete(m.pending, key)
			m.mu.Unlock()
		}()

		if _, err := m.load(context.Background(), key); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("Background refresh failed")
		}
	}()
}

// Wait blocks until all background refreshes have finished
func (m *Memo[V]) Wait() {
	m.background.Wait()
}

// Len returns the number of stored entries
func (m *Memo[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Purge drops every stored entry
func (m *Memo[V]) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Purge()
}

// Stats returns a snapshot of the counters
func (m *Memo[V]) Stats() Stats {
	return Stats{
		Hits:            m.hits.Load(),
		Misses:          m.misses.Load(),
		StaleServes:     m.staleServes.Load(),
		Refreshes:       m.refreshes.Load(),
		RefreshFailures: m.failures.Load(),
		Entries:         m.Len(),
	}
}
