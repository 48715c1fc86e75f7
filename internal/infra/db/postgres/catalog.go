package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookingengine/internal/domain/listings"
)

// Catalog reads listings from the listings table.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) ByID(ctx context.Context, id listings.ListingID) (*listings.Listing, error) {
	var (
		l           listings.Listing
		lid, hostID string
	)
	err := c.pool.QueryRow(ctx,
		`SELECT id, host_id, title, capacity, max_guests FROM listings WHERE id = $1`, string(id),
	).Scan(&lid, &hostID, &l.Title, &l.Capacity, &l.MaxGuests)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, listings.ErrListingNotFound.With("id", string(id))
		}
		return nil, err
	}
	l.ID = listings.ListingID(lid)
	l.Host = listings.HostID(hostID)
	return &l, nil
}

// Upsert seeds or refreshes a listing, used when loading fixtures.
func (c *Catalog) Upsert(ctx context.Context, l listings.Listing) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO listings (id, host_id, title, capacity, max_guests) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET host_id = EXCLUDED.host_id, title = EXCLUDED.title,
		     capacity = EXCLUDED.capacity, max_guests = EXCLUDED.max_guests`,
		string(l.ID), string(l.Host), l.Title, l.Capacity, l.MaxGuests,
	)
	return err
}

var _ listings.Catalog = (*Catalog)(nil)
