package domain

//go:generate mockgen -source=interfaces.go -destination=../mocks/domain.go -package=mocks

import (
	"context"
	"io"
	"time"
)

// ArchiveFetcher returns the source tree of a repository at a ref as a
// gzip-or-plain tar stream with a single top-level directory.
type ArchiveFetcher interface {
	FetchArchive(ctx context.Context, repo, ref string) (io.ReadCloser, error)
}

// FileFetcher returns the raw bytes of exactly one file.
// A missing file yields an error matching ErrNotFound.
type FileFetcher interface {
	FetchFile(ctx context.Context, repo, ref, path string) ([]byte, error)
}

// RefLister lists the tags and branches of a repository
type RefLister interface {
	ListRefs(ctx context.Context, repo string) (RefSet, error)
}

// Source is a documentation source provider
type Source interface {
	ArchiveFetcher
	FileFetcher
	RefLister
	// Name returns the provider name
	Name() string
}

// Cache defines the interface for persistent key/value caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Has checks if a key exists in cache
	Has(ctx context.Context, key string) bool
	// Delete removes a key from cache
	Delete(ctx context.Context, key string) error
	// Close releases cache resources
	Close() error
}
