package policies

import (
	"context"

	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/shared/money"
)

type ChargeRequest struct {
	RequesterID   string
	ReservationID string
	Amount        money.Money
}

// Charger collects payment for a reservation. It must write through the
// given unit of work so a rolled back reservation leaves no payment behind.
type Charger interface {
	Charge(ctx context.Context, unit uow.UnitOfWork, req ChargeRequest) (*payments.Record, error)
}
