package reservations

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/support"
	"bookingengine/internal/app/middleware"
	"bookingengine/internal/app/policies"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
	"bookingengine/internal/domain/shared/money"
)

var (
	ErrListingRequired = failure.Validation("LISTING_REQUIRED", "listing id is required")
	ErrInvalidAmount   = failure.Validation("INVALID_AMOUNT", "amount must be a non-negative integer in minor units")
	ErrChargerMissing  = errors.New("reservations: charge collaborator not configured")
)

type CreateCommand struct {
	ListingID       string
	RequesterID     string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          capacity.Guests
	Message         string
	Instant         bool
	AmountCents     int64
	IdempotencyKeyV string
}

func (CreateCommand) Key() string { return createKey }

func (c CreateCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (CreateCommand) ResultPrototype() any { return &dto.Reservation{} }

func (c CreateCommand) ActorID() string { return c.RequesterID }

func (c CreateCommand) Validate() error {
	if strings.TrimSpace(c.ListingID) == "" {
		return ErrListingRequired
	}
	if strings.TrimSpace(c.RequesterID) == "" {
		return reservation.ErrRequesterRequired
	}
	if c.AmountCents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CreateHandler validates dates, party and availability, charges the requester
// and inserts the reservation, all in one unit of work.
type CreateHandler struct {
	Deps
	Charger  policies.Charger
	Currency string
}

func (h *CreateHandler) Handle(ctx context.Context, cmd CreateCommand) (*dto.Reservation, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	dr, err := daterange.New(cmd.CheckIn, cmd.CheckOut)
	if err != nil {
		return nil, reservation.ErrInvalidDates.Wrap(err)
	}
	if err := cmd.Guests.Validate(); err != nil {
		return nil, err
	}
	if h.Charger == nil {
		return nil, ErrChargerMissing
	}
	amount, err := money.New(cmd.AmountCents, h.currency())
	if err != nil {
		return nil, ErrInvalidAmount.Wrap(err)
	}

	var created *reservation.Reservation
	err = uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := h.listing(ctx, listings.ListingID(strings.TrimSpace(cmd.ListingID)))
		if err != nil {
			return err
		}
		if err := listing.Validate(cmd.Guests); err != nil {
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

		r, err := reservation.New(reservation.CreateParams{
			ListingID:   listing.ID,
			HostID:      listing.Host,
			RequesterID: cmd.RequesterID,
			Range:       dr,
			Guests:      cmd.Guests,
			Message:     cmd.Message,
			Instant:     cmd.Instant,
			CreatedAt:   h.now(),
		})
		if err != nil {
			return err
		}
		payment, err := h.Charger.Charge(ctx, unit, policies.ChargeRequest{
			RequesterID:   r.RequesterID,
			ReservationID: string(r.ID),
			Amount:        amount,
		})
		if err != nil {
			return err
		}
		r.AttachPayment(payment.ID)
		if err := h.persist(ctx, unit, r); err != nil {
			return err
		}
		if r.Blocking() {
			if err := h.writeMirror(ctx, unit, r); err != nil {
				return err
			}
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger().InfoContext(ctx, "reservation created",
		"reservation_id", created.ID,
		"listing_id", created.ListingID,
		"status", created.Status,
		"range", created.Range.String(),
	)
	view := dto.MapReservation(created)
	return &view, nil
}

func (h *CreateHandler) currency() string {
	if h.Currency != "" {
		return h.Currency
	}
	return "USD"
}

var _ commands.Handler[CreateCommand, *dto.Reservation] = (*CreateHandler)(nil)
var _ middleware.IdempotentCommand = CreateCommand{}
