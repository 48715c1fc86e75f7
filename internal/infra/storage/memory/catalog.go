package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"bookingengine/internal/domain/listings"
)

// Catalog is a listing catalog held in memory, optionally seeded from a JSON fixture file.
type Catalog struct {
	mu    sync.RWMutex
	items map[listings.ListingID]listings.Listing
}

func NewCatalog(items ...listings.Listing) *Catalog {
	c := &Catalog{items: make(map[listings.ListingID]listings.Listing)}
	for _, l := range items {
		c.Put(l)
	}
	return c
}

func (c *Catalog) Put(l listings.Listing) {
	c.mu.Lock()
	c.items[l.ID] = l
	c.mu.Unlock()
}

func (c *Catalog) ByID(_ context.Context, id listings.ListingID) (*listings.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.items[id]
	if !ok {
		return nil, listings.ErrListingNotFound.With("listing_id", string(id))
	}
	return &l, nil
}

// All returns the listings sorted by id.
func (c *Catalog) All() []listings.Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]listings.Listing, 0, len(c.items))
	for _, l := range c.items {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadFixtures reads a JSON array of listings into the catalog.
func (c *Catalog) LoadFixtures(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("memory catalog: read fixtures: %w", err)
	}
	var items []listings.Listing
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("memory catalog: decode fixtures: %w", err)
	}
	for _, l := range items {
		c.Put(l)
	}
	return len(items), nil
}

var _ listings.Catalog = (*Catalog)(nil)
