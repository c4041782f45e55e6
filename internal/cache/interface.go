package cache

import (
	"time"

	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/utils"
)

// Ensure BadgerCache implements domain.Cache
var _ domain.Cache = (*BadgerCache)(nil)

// Freshness is the state of a memoized entry
type Freshness int

const (
	// Fresh entries are served without refreshing
	Fresh Freshness = iota
	// Stale entries are past their TTL but may still be served
	Stale
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// Entry is a memoized value with its storage time
type Entry[V any] struct {
	Value     V
	StoredAt  time.Time
	ExpiresAt time.Time
}

// State returns the freshness of the entry at now
func (e *Entry[V]) State(now time.Time) Freshness {
	if now.Before(e.ExpiresAt) {
		return Fresh
	}
	return Stale
}

// TTL returns the remaining time-to-live
func (e *Entry[V]) TTL(now time.Time) time.Duration {
	remaining := e.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Options contains persistent cache configuration options
type Options struct {
	Directory string
	InMemory  bool
	Logger    *utils.Logger
}
