package clients

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sophiahq/sophia/internal/log"
)

const (
	// DefaultTTL bounds how stale a cached client profile can be.
	// Cadence rules change rarely; five minutes is plenty fresh for
	// scheduling decisions.
	DefaultTTL = 5 * time.Minute

	defaultCleanupInterval = 15 * time.Minute
)

// cachedRepository is a read-through cache in front of another
// Repository. Scheduler fires hit GetCadence on every scheduling
// decision; caching keeps that off the database's single write
// connection.
type cachedRepository struct {
	inner Repository
	cache *gocache.Cache
	ttl   time.Duration
}

// NewCachedRepository wraps inner with a TTL read-through cache.
func NewCachedRepository(inner Repository, ttl time.Duration) Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &cachedRepository{
		inner: inner,
		cache: gocache.New(ttl, defaultCleanupInterval),
		ttl:   ttl,
	}
}

func (r *cachedRepository) Get(clientID string) (*Client, error) {
	if v, found := r.cache.Get(clientID); found {
		if c, ok := v.(*Client); ok {
			log.Debug(log.CatClients, "cache hit", "client", clientID)
			return c, nil
		}
	}

	c, err := r.inner.Get(clientID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(clientID, c, r.ttl)
	return c, nil
}

func (r *cachedRepository) GetCadence(clientID string) (Cadence, error) {
	c, err := r.Get(clientID)
	if err != nil {
		return Cadence{}, err
	}
	return c.Cadence, nil
}

func (r *cachedRepository) GetPlatformAccounts(clientID string) (PlatformAccounts, error) {
	c, err := r.Get(clientID)
	if err != nil {
		return PlatformAccounts{}, err
	}
	return c.Accounts, nil
}
