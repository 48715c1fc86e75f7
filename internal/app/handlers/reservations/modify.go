package reservations

import (
	"context"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/support"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/failure"
)

var ErrEmptyPatch = failure.Validation("EMPTY_PATCH", "patch does not change anything")

type UpdateCommand struct {
	ReservationID string
	RequesterID   string
	Patch         reservation.Patch
}

func (UpdateCommand) Key() string { return updateKey }

func (c UpdateCommand) ActorID() string { return c.RequesterID }

type CancelCommand struct {
	ReservationID string
	RequesterID   string
	Reason        string
}

func (CancelCommand) Key() string { return cancelKey }

func (c CancelCommand) ActorID() string { return c.RequesterID }

type DeleteCommand struct {
	ReservationID string
	Actor         string
}

func (DeleteCommand) Key() string { return deleteKey }

func (c DeleteCommand) ActorID() string { return c.Actor }

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// UpdateHandler applies a requester's patch. Date or party changes are
// re-validated against capacity and against every other blocking interval;
// the reservation's own window and ledger mirror are excluded.
type UpdateHandler struct {
	Deps
}

func (h *UpdateHandler) Handle(ctx context.Context, cmd UpdateCommand) (*dto.Reservation, error) {
	id, err := reservation.ParseID(cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	if cmd.Patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	var updated *reservation.Reservation
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		r, err := unit.Reservations().ByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsRequestedBy(cmd.RequesterID) {
			return reservation.ErrForbidden
		}
		changes, err := r.Preview(cmd.Patch)
		if err != nil {
			return err
		}
		if changes.Party {
			listing, err := h.listing(ctx, r.ListingID)
			if err != nil {
				return err
			}
			if err := listing.Validate(changes.Guests); err != nil {
				return err
			}
		}
		if changes.Dates || changes.Party {
			if err := unit.LockListing(ctx, r.ListingID); err != nil {
				return err
			}
			res, err := support.CheckWindow(ctx, unit, r.ListingID, changes.Range, r.ID)
			if err != nil {
				return err
			}
			if err := res.Err(); err != nil {
				return err
			}
		}
		if _, err := r.Apply(cmd.Patch, h.now()); err != nil {
			return err
		}
		if err := h.persist(ctx, unit, r); err != nil {
			return err
		}
		if changes.Dates && r.Blocking() {
			if err := h.writeMirror(ctx, unit, r); err != nil {
				return err
			}
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger().InfoContext(ctx, "reservation updated", "reservation_id", updated.ID, "range", updated.Range.String())
	view := dto.MapReservation(updated)
	return &view, nil
}

type CancelHandler struct {
	Deps
}

func (h *CancelHandler) Handle(ctx context.Context, cmd CancelCommand) (*dto.Reservation, error) {
	id, err := reservation.ParseID(cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	var cancelled *reservation.Reservation
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		r, err := unit.Reservations().ByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsRequestedBy(cmd.RequesterID) {
			return reservation.ErrForbidden
		}
		wasBlocking := r.Blocking()
		if err := r.Cancel(cmd.Reason, h.now()); err != nil {
			return err
		}
		if wasBlocking {
			h.releaseMirror(ctx, unit, r)
		}
		if err := h.persist(ctx, unit, r); err != nil {
			return err
		}
		cancelled = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger().InfoContext(ctx, "reservation cancelled", "reservation_id", cancelled.ID)
	view := dto.MapReservation(cancelled)
	return &view, nil
}

// DeleteHandler hard-deletes a reservation for its requester or host. An
// accepted reservation first releases its ledger mirror on a best-effort basis.
type DeleteHandler struct {
	Deps
}

func (h *DeleteHandler) Handle(ctx context.Context, cmd DeleteCommand) (*DeleteResult, error) {
	id, err := reservation.ParseID(cmd.ReservationID)
	if err != nil {
		return nil, err
	}
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		r, err := unit.Reservations().ByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsRequestedBy(cmd.Actor) && !r.IsHostedBy(cmd.Actor) {
			return reservation.ErrForbidden
		}
		if r.Blocking() {
			h.releaseMirror(ctx, unit, r)
		}
		r.MarkDeleted(cmd.Actor, h.now())
		if err := unit.Reservations().Delete(ctx, r.ID); err != nil {
			return err
		}
		return h.flushEvents(ctx, unit, r)
	})
	if err != nil {
		return nil, err
	}
	h.logger().InfoContext(ctx, "reservation deleted", "reservation_id", id, "actor", cmd.Actor)
	return &DeleteResult{ID: string(id), Deleted: true}, nil
}

var _ commands.Handler[UpdateCommand, *dto.Reservation] = (*UpdateHandler)(nil)
var _ commands.Handler[CancelCommand, *dto.Reservation] = (*CancelHandler)(nil)
var _ commands.Handler[DeleteCommand, *DeleteResult] = (*DeleteHandler)(nil)
