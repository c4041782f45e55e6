package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/utils"
)

const gcInterval = 5 * time.Minute

// BadgerCache is a persistent cache implementation using BadgerDB
type BadgerCache struct {
	db   *badger.DB
	stop chan struct{}
}

// NewBadgerCache creates a new BadgerDB cache
func NewBadgerCache(opts Options) (*BadgerCache, error) {
	var badgerOpts badger.Options

	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Directory == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			opts.Directory = filepath.Join(homeDir, ".docgate", "cache")
		}

		if err := utils.EnsureDir(opts.Directory); err != nil {
			return nil, err
		}

		badgerOpts = badger.DefaultOptions(utils.ExpandPath(opts.Directory))
	}

	// Badger logs only through an explicitly supplied logger
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(&badgerLogger{l: opts.Logger.WithComponent("badger")})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	c := &BadgerCache{db: db, stop: make(chan struct{})}
	if !opts.InMemory {
		go c.runGC()
	}

	return c, nil
}

func (c *BadgerCache) runGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			_ = c.db.RunValueLogGC(0.5)
		}
	}
}

// Get retrieves a value from cache
func (c *BadgerCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(StorageKey(key)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrCacheMiss
			}
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores a value in cache with TTL. A zero TTL never expires.
func (c *BadgerCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(StorageKey(key)), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Has checks if a key exists in cache
func (c *BadgerCache) Has(ctx context.Context, key string) bool {
	if ctx.Err() != nil {
		return false
	}

	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(StorageKey(key)))
		return err
	})

	return err == nil
}

// Delete removes a key from cache
func (c *BadgerCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(StorageKey(key)))
	})
}

// Close stops garbage collection and releases cache resources
func (c *BadgerCache) Close() error {
	close(c.stop)
	return c.db.Close()
}

// Clear removes all entries from the cache
func (c *BadgerCache) Clear() error {
	return c.db.DropAll()
}

// Size returns the number of live entries in the cache
func (c *BadgerCache) Size() int64 {
	var count int64
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}

// Stats returns cache statistics
func (c *BadgerCache) Stats() map[string]any {
	lsm, vlog := c.db.Size()
	return map[string]any{
		"entries":   c.Size(),
		"lsm_size":  lsm,
		"vlog_size": vlog,
	}
}

// badgerLogger routes badger's internal logging through zerolog
type badgerLogger struct {
	l *utils.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.l.Error().Msgf(format, args...)
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn().Msgf(format, args...)
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.l.Debug().Msgf(format, args...)
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.l.Trace().Msgf(format, args...)
}
