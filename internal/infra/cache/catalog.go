// Package cache holds process-local and memcached-backed caches.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/karlseguin/ccache/v3"

	"bookingengine/internal/domain/listings"
)

// Remote is the subset of the memcache client the catalog cache uses.
type Remote interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

// Catalog puts a local ccache and an optional shared memcached in front of
// another catalog. Unknown listings are never cached.
type Catalog struct {
	next   listings.Catalog
	local  *ccache.Cache[*listings.Listing]
	remote Remote
	ttl    time.Duration
	logger *slog.Logger
}

func NewCatalog(next listings.Catalog, remote Remote, ttl time.Duration, logger *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		next:   next,
		local:  ccache.New(ccache.Configure[*listings.Listing]().MaxSize(1000)),
		remote: remote,
		ttl:    ttl,
		logger: logger,
	}
}

func catalogKey(id listings.ListingID) string {
	return "listing:" + string(id)
}

func (c *Catalog) ByID(ctx context.Context, id listings.ListingID) (*listings.Listing, error) {
	key := catalogKey(id)
	if item := c.local.Get(key); item != nil && !item.Expired() {
		cp := *item.Value()
		return &cp, nil
	}
	if l, ok := c.fromRemote(ctx, key); ok {
		c.local.Set(key, l, c.ttl)
		cp := *l
		return &cp, nil
	}
	l, err := c.next.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, l)
	cp := *l
	return &cp, nil
}

// Invalidate drops a listing from both levels.
func (c *Catalog) Invalidate(ctx context.Context, id listings.ListingID) {
	key := catalogKey(id)
	c.local.Delete(key)
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		c.logger.WarnContext(ctx, "catalog cache delete failed", "key", key, "error", err)
	}
}

func (c *Catalog) Stop() {
	c.local.Stop()
}

func (c *Catalog) fromRemote(ctx context.Context, key string) (*listings.Listing, bool) {
	if c.remote == nil {
		return nil, false
	}
	item, err := c.remote.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			c.logger.WarnContext(ctx, "catalog cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var l listings.Listing
	if err := json.Unmarshal(item.Value, &l); err != nil {
		c.logger.WarnContext(ctx, "catalog cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	return &l, true
}

func (c *Catalog) store(ctx context.Context, key string, l *listings.Listing) {
	cp := *l
	c.local.Set(key, &cp, c.ttl)
	if c.remote == nil {
		return
	}
	body, err := json.Marshal(l)
	if err != nil {
		return
	}
	// memcached takes relative expirations in seconds
	if err := c.remote.Set(&memcache.Item{Key: key, Value: body, Expiration: int32(c.ttl / time.Second)}); err != nil {
		c.logger.WarnContext(ctx, "catalog cache set failed", "key", key, "error", err)
	}
}

var _ listings.Catalog = (*Catalog)(nil)
