// Package payments records charges in the caller's unit of work. There is no
// external processor; a charge either records a payment or is declined.
package payments

import (
	"context"
	"time"

	"bookingengine/internal/app/policies"
	"bookingengine/internal/app/uow"
	domain "bookingengine/internal/domain/payments"
)

type Recorder struct {
	// MaxAmount declines charges above it, in minor units; zero means no limit.
	MaxAmount int64
	Now       func() time.Time
}

func (r Recorder) Charge(ctx context.Context, unit uow.UnitOfWork, req policies.ChargeRequest) (*domain.Record, error) {
	if r.MaxAmount > 0 && req.Amount.Amount > r.MaxAmount {
		return nil, domain.ErrChargeDeclined.With("amount", req.Amount.Amount)
	}
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	rec := domain.NewRecord(req.RequesterID, req.ReservationID, req.Amount, now)
	if err := unit.Payments().Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

var _ policies.Charger = Recorder{}
