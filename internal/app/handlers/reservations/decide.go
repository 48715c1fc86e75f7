package reservations

import (
	"context"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/support"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/reservation"
)

type AcceptCommand struct {
	ReservationID string
	HostID        string
}

func (AcceptCommand) Key() string { return acceptKey }

func (c AcceptCommand) ActorID() string { return c.HostID }

type RejectCommand struct {
	ReservationID string
	HostID        string
	Reason        string
}

func (RejectCommand) Key() string { return rejectKey }

func (c RejectCommand) ActorID() string { return c.HostID }

// AcceptHandler confirms a pending reservation after re-checking its dates
// inside the same transaction that writes the blocking state.
type AcceptHandler struct {
	Deps
}

func (h *AcceptHandler) Handle(ctx context.Context, cmd AcceptCommand) (*dto.Reservation, error) {
	id, err := reservation.ParseID(cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	var accepted *reservation.Reservation
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		r, err := unit.Reservations().ByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsHostedBy(cmd.HostID) {
			return reservation.ErrForbidden
		}
		if err := unit.LockListing(ctx, r.ListingID); err != nil {
			return err
		}
		if err := r.Accept(h.now()); err != nil {
			return err
		}
		res, err := support.CheckWindow(ctx, unit, r.ListingID, r.Range, r.ID)
		if err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			return err
		}
		if err := h.persist(ctx, unit, r); err != nil {
			return err
		}
		if err := h.writeMirror(ctx, unit, r); err != nil {
			return err
		}
		accepted = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger().InfoContext(ctx, "reservation accepted", "reservation_id", accepted.ID, "listing_id", accepted.ListingID)
	view := dto.MapReservation(accepted)
	return &view, nil
}

type RejectHandler struct {
	Deps
}

func (h *RejectHandler) Handle(ctx context.Context, cmd RejectCommand) (*dto.Reservation, error) {
	id, err := reservation.ParseID(cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	var rejected *reservation.Reservation
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		r, err := unit.Reservations().ByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsHostedBy(cmd.HostID) {
			return reservation.ErrForbidden
		}
		if err := r.Reject(cmd.Reason, h.now()); err != nil {
			return err
		}
		if err := h.persist(ctx, unit, r); err != nil {
			return err
		}
		rejected = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger().InfoContext(ctx, "reservation rejected", "reservation_id", rejected.ID, "reason", rejected.RejectionReason)
	view := dto.MapReservation(rejected)
	return &view, nil
}

var _ commands.Handler[AcceptCommand, *dto.Reservation] = (*AcceptHandler)(nil)
var _ commands.Handler[RejectCommand, *dto.Reservation] = (*RejectHandler)(nil)
