package reservations

import (
	"context"
	"time"

	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/support"
	"bookingengine/internal/app/queries"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
)

var ErrInvalidStatusFilter = failure.Validation("INVALID_STATUS", "unknown reservation status")

var (
	openStart = time.Unix(0, 0).UTC()
	openEnd   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

type GetQuery struct {
	ReservationID string
	ViewerID      string
	Admin         bool
}

func (GetQuery) Key() string { return getKey }

type GetHandler struct {
	Deps
}

// Handle returns the reservation to its requester, its host or an admin.
func (h *GetHandler) Handle(ctx context.Context, q GetQuery) (*dto.Reservation, error) {
	id, err := reservation.ParseID(q.ReservationID)
	if err != nil {
		return nil, err
	}
	var view dto.Reservation
	err = support.ReadOnly(ctx, h.UoW, func(ctx context.Context, unit uow.UnitOfWork) error {
		r, err := unit.Reservations().ByID(ctx, id)
		if err != nil {
			return err
		}
		if !q.Admin && !r.IsRequestedBy(q.ViewerID) && !r.IsHostedBy(q.ViewerID) {
			return reservation.ErrForbidden
		}
		view = dto.MapReservation(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListQuery filters reservations. HostID is the "assigned to" filter. From and
// To select reservations overlapping [From, To); either may be open.
type ListQuery struct {
	ViewerID    string
	Admin       bool
	Status      string
	ListingID   string
	RequesterID string
	HostID      string
	From        *time.Time
	To          *time.Time
	Limit       int
}

func (ListQuery) Key() string { return listKey }

type ListHandler struct {
	Deps
}

func (h *ListHandler) Handle(ctx context.Context, q ListQuery) (dto.ReservationCollection, error) {
	filter, err := h.filter(q)
	if err != nil {
		return dto.ReservationCollection{}, err
	}
	var out dto.ReservationCollection
	err = support.ReadOnly(ctx, h.UoW, func(ctx context.Context, unit uow.UnitOfWork) error {
		list, err := unit.Reservations().List(ctx, filter)
		if err != nil {
			return err
		}
		out.Items = dto.MapReservations(list)
		return nil
	})
	return out, err
}

func (h *ListHandler) filter(q ListQuery) (reservation.Filter, error) {
	f := reservation.Filter{
		ListingID:   listings.ListingID(q.ListingID),
		RequesterID: q.RequesterID,
		HostID:      listings.HostID(q.HostID),
		Limit:       q.Limit,
	}
	if !q.Admin {
		if f.RequesterID == "" && f.HostID == "" {
			f.RequesterID = q.ViewerID
		}
		if (f.RequesterID != "" && f.RequesterID != q.ViewerID) || (f.HostID != "" && string(f.HostID) != q.ViewerID) {
			return reservation.Filter{}, reservation.ErrForbidden
		}
	}
	if q.Status != "" {
		s, ok := reservation.ParseStatus(q.Status)
		if !ok {
			return reservation.Filter{}, ErrInvalidStatusFilter.With("status", q.Status)
		}
		f.Statuses = []reservation.Status{s}
	}
	if q.From != nil || q.To != nil {
		window := daterange.DateRange{CheckIn: openStart, CheckOut: openEnd}
		if q.From != nil {
			window.CheckIn = daterange.Day(*q.From)
		}
		if q.To != nil {
			window.CheckOut = daterange.Day(*q.To)
		}
		if err := window.Validate(); err != nil {
			return reservation.Filter{}, reservation.ErrInvalidDates.Wrap(err)
		}
		f.Range = &window
	}
	return f, nil
}

type HistoryQuery struct {
	RequesterID string
}

func (HistoryQuery) Key() string { return historyKey }

type HistoryHandler struct {
	Deps
}

func (h *HistoryHandler) Handle(ctx context.Context, q HistoryQuery) (dto.ReservationHistory, error) {
	if q.RequesterID == "" {
		return dto.ReservationHistory{}, reservation.ErrRequesterRequired
	}
	var out dto.ReservationHistory
	err := support.ReadOnly(ctx, h.UoW, func(ctx context.Context, unit uow.UnitOfWork) error {
		list, err := unit.Reservations().List(ctx, reservation.Filter{RequesterID: q.RequesterID})
		if err != nil {
			return err
		}
		hist := reservation.Partition(list, h.now())
		out.Upcoming = dto.MapReservations(hist.Upcoming)
		out.Past = dto.MapReservations(hist.Past)
		return nil
	})
	return out, err
}

var _ queries.Handler[GetQuery, *dto.Reservation] = (*GetHandler)(nil)
var _ queries.Handler[ListQuery, dto.ReservationCollection] = (*ListHandler)(nil)
var _ queries.Handler[HistoryQuery, dto.ReservationHistory] = (*HistoryHandler)(nil)
