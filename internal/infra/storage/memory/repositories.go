package memory

import (
	"context"
	"sort"

	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
)

type reservationRepo struct {
	st *state
}

func (r *reservationRepo) ByID(_ context.Context, id reservation.ID) (*reservation.Reservation, error) {
	item, ok := r.st.reservations[id]
	if !ok {
		return nil, reservation.ErrNotFound.With("id", string(id))
	}
	return item.Clone(), nil
}

func (r *reservationRepo) Save(_ context.Context, res *reservation.Reservation) error {
	current, exists := r.st.reservations[res.ID]
	switch {
	case res.Version == 0 && exists:
		return reservation.ErrConcurrentUpdate
	case res.Version != 0 && (!exists || current.Version != res.Version):
		return reservation.ErrConcurrentUpdate
	}
	res.Version++
	r.st.reservations[res.ID] = res.Clone()
	return nil
}

func (r *reservationRepo) Delete(_ context.Context, id reservation.ID) error {
	if _, ok := r.st.reservations[id]; !ok {
		return reservation.ErrNotFound.With("id", string(id))
	}
	delete(r.st.reservations, id)
	return nil
}

func (r *reservationRepo) Overlapping(_ context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...reservation.Status) ([]*reservation.Reservation, error) {
	f := reservation.Filter{ListingID: listingID, Statuses: statuses, Range: &dr}
	var out []*reservation.Reservation
	for _, item := range r.st.reservations {
		if f.Matches(item) {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.CheckIn.Before(out[j].Range.CheckIn) })
	return out, nil
}

func (r *reservationRepo) List(_ context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	out := make([]*reservation.Reservation, 0)
	for _, item := range r.st.reservations {
		if f.Matches(item) {
			out = append(out, item.Clone())
		}
	}
	reservation.SortByUpdatedDesc(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type ledgerRepo struct {
	st *state
}

func (r *ledgerRepo) ByID(_ context.Context, id inventory.EntryID) (*inventory.Entry, error) {
	e, ok := r.st.entries[id]
	if !ok {
		return nil, inventory.ErrEntryNotFound.With("id", string(id))
	}
	return e.Clone(), nil
}

func (r *ledgerRepo) FindExact(_ context.Context, listingID listings.ListingID, dr daterange.DateRange) (*inventory.Entry, error) {
	for _, e := range r.sorted(listingID) {
		if !e.Derived() && e.Range.Equal(dr) {
			return e.Clone(), nil
		}
	}
	return nil, inventory.ErrEntryNotFound
}

func (r *ledgerRepo) Save(_ context.Context, e *inventory.Entry) error {
	r.st.entries[e.ID] = e.Clone()
	return nil
}

func (r *ledgerRepo) Delete(_ context.Context, id inventory.EntryID) error {
	if _, ok := r.st.entries[id]; !ok {
		return inventory.ErrEntryNotFound.With("id", string(id))
	}
	delete(r.st.entries, id)
	return nil
}

func (r *ledgerRepo) DeleteByReservation(_ context.Context, reservationID string) (int, error) {
	removed := 0
	for id, e := range r.st.entries {
		if e.ReservationID == reservationID {
			delete(r.st.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (r *ledgerRepo) MirrorOf(_ context.Context, reservationID string) (*inventory.Entry, error) {
	for _, e := range r.st.entries {
		if e.ReservationID == reservationID {
			return e.Clone(), nil
		}
	}
	return nil, inventory.ErrEntryNotFound
}

func (r *ledgerRepo) Overlapping(_ context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...inventory.Status) ([]*inventory.Entry, error) {
	var out []*inventory.Entry
	for _, e := range r.sorted(listingID) {
		if !e.Range.Overlaps(dr) || !statusIn(e.Status, statuses) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

func (r *ledgerRepo) List(_ context.Context, listingID listings.ListingID, window *daterange.DateRange) ([]*inventory.Entry, error) {
	out := make([]*inventory.Entry, 0)
	for _, e := range r.sorted(listingID) {
		if window != nil && !e.Range.Overlaps(*window) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

func (r *ledgerRepo) Mirrors(_ context.Context, listingID listings.ListingID) ([]*inventory.Entry, error) {
	out := make([]*inventory.Entry, 0)
	for _, e := range r.sorted(listingID) {
		if e.Derived() {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// sorted returns the listing's entries (all entries when listingID is empty) by check-in.
func (r *ledgerRepo) sorted(listingID listings.ListingID) []*inventory.Entry {
	out := make([]*inventory.Entry, 0)
	for _, e := range r.st.entries {
		if listingID == "" || e.ListingID == listingID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Range.CheckIn.Equal(out[j].Range.CheckIn) {
			return out[i].ID < out[j].ID
		}
		return out[i].Range.CheckIn.Before(out[j].Range.CheckIn)
	})
	return out
}

func statusIn(s inventory.Status, set []inventory.Status) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type paymentRepo struct {
	st *state
}

func (r *paymentRepo) Save(_ context.Context, rec *payments.Record) error {
	cp := *rec
	r.st.payments[rec.ID] = &cp
	return nil
}

func (r *paymentRepo) ByReservation(_ context.Context, reservationID string) ([]*payments.Record, error) {
	out := make([]*payments.Record, 0)
	for _, rec := range r.st.payments {
		if rec.ReservationID == reservationID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
