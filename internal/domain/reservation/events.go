package reservation

import (
	"time"

	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/events"
)

const (
	EventRequested           = "reservation.requested"
	EventAccepted            = "reservation.accepted"
	EventRejected            = "reservation.rejected"
	EventCancelled           = "reservation.cancelled"
	EventUpdated             = "reservation.updated"
	EventDeleted             = "reservation.deleted"
	EventLedgerReleaseFailed = "reservation.ledger_release_failed"
)

type Requested struct {
	events.Base
	ListingID   string          `json:"listing_id"`
	RequesterID string          `json:"requester_id"`
	CheckIn     string          `json:"check_in"`
	CheckOut    string          `json:"check_out"`
	Guests      capacity.Guests `json:"guests"`
}

type Accepted struct {
	events.Base
	ListingID string `json:"listing_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
}

type Rejected struct {
	events.Base
	ListingID string `json:"listing_id"`
	Reason    string `json:"reason,omitempty"`
}

type Cancelled struct {
	events.Base
	ListingID   string `json:"listing_id"`
	Reason      string `json:"reason,omitempty"`
	WasAccepted bool   `json:"was_accepted"`
}

type Updated struct {
	events.Base
	ListingID string          `json:"listing_id"`
	CheckIn   string          `json:"check_in"`
	CheckOut  string          `json:"check_out"`
	Guests    capacity.Guests `json:"guests"`
	Dates     bool            `json:"dates_changed"`
}

type Deleted struct {
	events.Base
	ListingID string `json:"listing_id"`
	Actor     string `json:"actor"`
	Status    string `json:"status"`
}

type LedgerReleaseFailed struct {
	events.Base
	ListingID string `json:"listing_id"`
	Error     string `json:"error"`
}

func newRequested(r *Reservation, at time.Time) Requested {
	return Requested{
		Base:        events.NewBase(EventRequested, string(r.ID), at),
		ListingID:   string(r.ListingID),
		RequesterID: r.RequesterID,
		CheckIn:     r.Range.CheckIn.Format(daterange.Layout),
		CheckOut:    r.Range.CheckOut.Format(daterange.Layout),
		Guests:      r.Guests,
	}
}

func newAccepted(r *Reservation, at time.Time) Accepted {
	return Accepted{
		Base:      events.NewBase(EventAccepted, string(r.ID), at),
		ListingID: string(r.ListingID),
		CheckIn:   r.Range.CheckIn.Format(daterange.Layout),
		CheckOut:  r.Range.CheckOut.Format(daterange.Layout),
	}
}
