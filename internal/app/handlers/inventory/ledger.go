package inventory

import (
	"context"
	"errors"
	"time"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/support"
	"bookingengine/internal/app/uow"
	domain "bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/shared/daterange"
)

type UpsertWindowCommand struct {
	ListingID  string
	HostID     string
	CheckIn    time.Time
	CheckOut   time.Time
	TotalUnits int
	Notes      string
}

func (UpsertWindowCommand) Key() string { return upsertKey }

func (c UpsertWindowCommand) ActorID() string { return c.HostID }

// UpsertWindowHandler updates the notes of the entry covering exactly the
// given range, or opens a new available window.
type UpsertWindowHandler struct {
	Deps
}

func (h *UpsertWindowHandler) Handle(ctx context.Context, cmd UpsertWindowCommand) (*dto.LedgerEntry, error) {
	dr, err := daterange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, domain.ErrInvalidDates.Wrap(err)
	}
	var saved *domain.Entry
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := h.hostedListing(ctx, cmd.ListingID, cmd.HostID)
		if err != nil {
			return err
		}
		entry, err := unit.Ledger().FindExact(ctx, listing.ID, dr)
		switch {
		case err == nil:
			if err := entry.UpdateNotes(cmd.Notes, cmd.TotalUnits, h.now()); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrEntryNotFound):
			entry, err = domain.NewWindow(listing.ID, dr, cmd.TotalUnits, cmd.Notes, h.now())
			if err != nil {
				return err
			}
		default:
			return err
		}
		if err := unit.Ledger().Save(ctx, entry); err != nil {
			return err
		}
		saved = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := dto.MapLedgerEntry(saved)
	return &view, nil
}

type BlockDatesCommand struct {
	ListingID string
	HostID    string
	CheckIn   time.Time
	CheckOut  time.Time
	Status    string
	Notes     string
}

func (BlockDatesCommand) Key() string { return blockKey }

func (c BlockDatesCommand) ActorID() string { return c.HostID }

// BlockDatesHandler closes a range for maintenance or a host block. The range
// must not overlap an accepted reservation or another blocking entry.
type BlockDatesHandler struct {
	Deps
}

func (h *BlockDatesHandler) Handle(ctx context.Context, cmd BlockDatesCommand) (*dto.LedgerEntry, error) {
	dr, err := daterange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, domain.ErrInvalidDates.Wrap(err)
	}
	status := domain.StatusBlocked
	if cmd.Status != "" {
		if status, err = domain.ParseStatus(cmd.Status); err != nil {
			return nil, err
		}
	}
	var saved *domain.Entry
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := h.hostedListing(ctx, cmd.ListingID, cmd.HostID)
		if err != nil {
			return err
		}
		entry, err := domain.NewBlock(listing.ID, dr, status, cmd.Notes, h.now())
		if err != nil {
			return err
		}
		if err := unit.LockListing(ctx, listing.ID); err != nil {
			return err
		}
		res, err := support.CheckWindow(ctx, unit, listing.ID, dr, "")
		if err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			return err
		}
		if err := unit.Ledger().Save(ctx, entry); err != nil {
			return err
		}
		saved = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger().InfoContext(ctx, "dates blocked", "listing_id", saved.ListingID, "status", saved.Status, "range", saved.Range.String())
	view := dto.MapLedgerEntry(saved)
	return &view, nil
}

type RemoveEntryCommand struct {
	ListingID string
	HostID    string
	EntryID   string
}

func (RemoveEntryCommand) Key() string { return removeKey }

func (c RemoveEntryCommand) ActorID() string { return c.HostID }

type RemoveEntryResult struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// RemoveEntryHandler deletes a window or host block. Reservation mirrors are
// owned by their reservation and cannot be removed here.
type RemoveEntryHandler struct {
	Deps
}

func (h *RemoveEntryHandler) Handle(ctx context.Context, cmd RemoveEntryCommand) (*RemoveEntryResult, error) {
	id, err := domain.ParseEntryID(cmd.EntryID)
	if err != nil {
		return nil, err
	}
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := h.hostedListing(ctx, cmd.ListingID, cmd.HostID)
		if err != nil {
			return err
		}
		entry, err := unit.Ledger().ByID(ctx, id)
		if err != nil {
			return err
		}
		if entry.ListingID != listing.ID {
			return domain.ErrEntryNotFound.With("id", string(id))
		}
		if entry.Derived() {
			return domain.ErrDerivedEntry
		}
		return unit.Ledger().Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &RemoveEntryResult{ID: string(id), Removed: true}, nil
}

var _ commands.Handler[UpsertWindowCommand, *dto.LedgerEntry] = (*UpsertWindowHandler)(nil)
var _ commands.Handler[BlockDatesCommand, *dto.LedgerEntry] = (*BlockDatesHandler)(nil)
var _ commands.Handler[RemoveEntryCommand, *RemoveEntryResult] = (*RemoveEntryHandler)(nil)
