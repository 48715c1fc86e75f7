package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
)

const (
	upsertKey       = "inventory.upsert"
	blockKey        = "inventory.block"
	removeKey       = "inventory.remove"
	reconcileKey    = "inventory.reconcile"
	summaryKey      = "inventory.summary"
	calendarKey     = "inventory.calendar"
	availabilityKey = "inventory.availability"
	blockedDatesKey = "inventory.blocked_dates"
)

var (
	ErrNotHost         = failure.Forbidden("FORBIDDEN", "only the listing host can manage its inventory")
	ErrListingRequired = failure.Validation("LISTING_REQUIRED", "listing id is required")
	ErrInvalidMonth    = failure.Validation("INVALID_MONTH", "month must be between 1 and 12")
)

var (
	openStart = time.Unix(0, 0).UTC()
	openEnd   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

type Deps struct {
	UoW     uow.Factory
	Catalog listings.Catalog
	Now     func() time.Time
	Logger  *slog.Logger
	// Mirror lets reconciliation recreate missing fully_booked mirrors.
	Mirror bool
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// hostedListing loads the listing and checks hostID owns it.
func (d Deps) hostedListing(ctx context.Context, listingID, hostID string) (*listings.Listing, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return nil, ErrListingRequired
	}
	if d.Catalog == nil {
		return nil, listings.ErrListingNotFound
	}
	listing, err := d.Catalog.ByID(ctx, listings.ListingID(listingID))
	if err != nil {
		return nil, err
	}
	if hostID == "" || string(listing.Host) != hostID {
		return nil, ErrNotHost
	}
	return listing, nil
}

// window builds a half-open filter range where either end may be open.
func window(from, to *time.Time) (*daterange.DateRange, error) {
	if from == nil && to == nil {
		return nil, nil
	}
	dr := daterange.DateRange{CheckIn: openStart, CheckOut: openEnd}
	if from != nil {
		dr.CheckIn = daterange.Day(*from)
	}
	if to != nil {
		dr.CheckOut = daterange.Day(*to)
	}
	if err := dr.Validate(); err != nil {
		return nil, failure.Validation("INVALID_DATES", "range end must be after its start").Wrap(err)
	}
	return &dr, nil
}
