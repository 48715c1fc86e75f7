package dto

import (
	"time"

	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
)

type Guests struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
	Pets     int `json:"pets"`
}

func (g Guests) Domain() capacity.Guests {
	return capacity.Guests{Adults: g.Adults, Children: g.Children, Infants: g.Infants, Pets: g.Pets}
}

func MapGuests(g capacity.Guests) Guests {
	return Guests{Adults: g.Adults, Children: g.Children, Infants: g.Infants, Pets: g.Pets}
}

type Reservation struct {
	ID                 string    `json:"id"`
	ListingID          string    `json:"listing_id"`
	HostID             string    `json:"host_id"`
	RequesterID        string    `json:"requester_id"`
	CheckIn            string    `json:"check_in"`
	CheckOut           string    `json:"check_out"`
	Nights             int       `json:"nights"`
	Guests             Guests    `json:"guests"`
	Message            string    `json:"message,omitempty"`
	Status             string    `json:"status"`
	RejectionReason    string    `json:"rejection_reason,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	PaymentID          string    `json:"payment_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ReservationCollection struct {
	Items []Reservation `json:"items"`
}

type ReservationHistory struct {
	Upcoming []Reservation `json:"upcoming"`
	Past     []Reservation `json:"past"`
}

func MapReservation(r *reservation.Reservation) Reservation {
	return Reservation{
		ID:                 string(r.ID),
		ListingID:          string(r.ListingID),
		HostID:             string(r.HostID),
		RequesterID:        r.RequesterID,
		CheckIn:            r.Range.CheckIn.Format(daterange.Layout),
		CheckOut:           r.Range.CheckOut.Format(daterange.Layout),
		Nights:             r.Range.Nights(),
		Guests:             MapGuests(r.Guests),
		Message:            r.Message,
		Status:             string(r.Status),
		RejectionReason:    r.RejectionReason,
		CancellationReason: r.CancellationReason,
		PaymentID:          r.PaymentID,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func MapReservations(list []*reservation.Reservation) []Reservation {
	out := make([]Reservation, 0, len(list))
	for _, r := range list {
		out = append(out, MapReservation(r))
	}
	return out
}
