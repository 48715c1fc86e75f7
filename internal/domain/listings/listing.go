// Package listings is the read-only view of the listing catalog this engine needs.
package listings

import (
	"context"

	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/shared/failure"
)

var ErrListingNotFound = failure.NotFound("LISTING_NOT_FOUND", "listing not found")

type ListingID string
type HostID string

type Listing struct {
	ID        ListingID       `json:"id" bson:"_id"`
	Host      HostID          `json:"host_id" bson:"host_id"`
	Title     string          `json:"title" bson:"title"`
	Capacity  capacity.Limits `json:"capacity" bson:"capacity"`
	MaxGuests int             `json:"max_guests" bson:"max_guests"`
}

// Validate checks a party against this listing's occupancy limits.
func (l *Listing) Validate(g capacity.Guests) error {
	return capacity.Validate(g, l.Capacity, l.MaxGuests)
}

// Catalog looks listings up by id; implementations return ErrListingNotFound for unknown ids.
type Catalog interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
}
