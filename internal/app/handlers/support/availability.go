package support

import (
	"context"

	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/availability"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
)

// Blocking is the status set that occupies a listing's nights: accepted
// reservations and fully_booked, maintenance or blocked ledger entries.
var Blocking = availability.NewStatusSet(
	string(reservation.StatusAccepted),
	string(inventory.StatusFullyBooked),
	string(inventory.StatusMaintenance),
	string(inventory.StatusBlocked),
)

// CheckWindow evaluates dr against everything blocking the listing, read
// through unit so the answer holds for the rest of the transaction. The
// excluded reservation and its own ledger mirror are ignored.
func CheckWindow(ctx context.Context, unit uow.UnitOfWork, listingID listings.ListingID, dr daterange.DateRange, exclude reservation.ID) (availability.Result, error) {
	accepted, err := unit.Reservations().Overlapping(ctx, listingID, dr, reservation.StatusAccepted)
	if err != nil {
		return availability.Result{}, err
	}
	entries, err := unit.Ledger().Overlapping(ctx, listingID, dr, inventory.BlockingStatuses...)
	if err != nil {
		return availability.Result{}, err
	}
	candidates := make([]availability.Interval, 0, len(accepted)+len(entries))
	for _, r := range accepted {
		if exclude != "" && r.ID == exclude {
			continue
		}
		candidates = append(candidates, r.Interval())
	}
	for _, e := range entries {
		if exclude != "" && e.ReservationID == string(exclude) {
			continue
		}
		candidates = append(candidates, e.Interval())
	}
	return availability.Check(dr, candidates, Blocking), nil
}
