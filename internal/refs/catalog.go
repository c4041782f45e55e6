package refs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/quantmind-br/docgate/internal/cache"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/utils"
	"golang.org/x/sync/singleflight"
)

// DefaultCatalogTTL is how long a ref listing is reused
const DefaultCatalogTTL = 5 * time.Minute

// CatalogOptions configures a Catalog
type CatalogOptions struct {
	TTL    time.Duration
	Logger *utils.Logger
}

// Catalog lists repository refs through a RefLister and keeps the result in
// a persistent cache. A nil store disables persistence.
type Catalog struct {
	lister domain.RefLister
	store  domain.Cache
	ttl    time.Duration
	logger *utils.Logger
	group  singleflight.Group
}

// NewCatalog creates a new ref catalog
func NewCatalog(lister domain.RefLister, store domain.Cache, opts CatalogOptions) *Catalog {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Catalog{
		lister: lister,
		store:  store,
		ttl:    ttl,
		logger: logger.WithComponent("refs"),
	}
}

// Refs returns the tags and branches of repo
func (c *Catalog) Refs(ctx context.Context, repo string) (domain.RefSet, error) {
	key := cache.RefsKey(repo)

	if set, ok := c.load(ctx, key); ok {
		return set, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		set, err := c.lister.ListRefs(ctx, repo)
		if err != nil {
			return domain.RefSet{}, err
		}
		c.save(ctx, key, set)
		c.logger.Info().
			Str("repo", repo).
			Int("tags", len(set.Tags)).
			Int("branches", len(set.Branches)).
			Msg("Listed refs")
		return set, nil
	})
	if err != nil {
		return domain.RefSet{}, err
	}
	return v.(domain.RefSet), nil
}

// Resolve lists the refs of repo and resolves p against them
func (c *Catalog) Resolve(ctx context.Context, repo string, p Params, defaultLang string) (string, bool, error) {
	set, err := c.Refs(ctx, repo)
	if err != nil {
		return "", false, err
	}
	return ResolveRedirect(set, p, defaultLang)
}

// Invalidate drops the stored listing of repo
func (c *Catalog) Invalidate(ctx context.Context, repo string) error {
	if c.store == nil {
		return nil
	}
	return c.store.Delete(ctx, cache.RefsKey(repo))
}

func (c *Catalog) load(ctx context.Context, key string) (domain.RefSet, bool) {
	if c.store == nil {
		return domain.RefSet{}, false
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to read ref cache")
		}
		return domain.RefSet{}, false
	}

	var set domain.RefSet
	if err := json.Unmarshal(data, &set); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Discarding corrupt ref cache entry")
		return domain.RefSet{}, false
	}
	return set, true
}

func (c *Catalog) save(ctx context.Context, key string, set domain.RefSet) {
	if c.store == nil {
		return
	}

	data, err := json.Marshal(set)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to encode refs")
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store refs")
	}
}
