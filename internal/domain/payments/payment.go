// Package payments holds the records left by the charge collaborator.
package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookingengine/internal/domain/shared/failure"
	"bookingengine/internal/domain/shared/money"
)

var (
	ErrPaymentNotFound = failure.NotFound("PAYMENT_NOT_FOUND", "payment not found")
	ErrChargeDeclined  = failure.Validation("PAYMENT_DECLINED", "payment was declined")
)

type Record struct {
	ID            string
	RequesterID   string
	ReservationID string
	Amount        money.Money
	CreatedAt     time.Time
}

func NewRecord(requesterID, reservationID string, amount money.Money, now time.Time) *Record {
	return &Record{
		ID:            uuid.NewString(),
		RequesterID:   requesterID,
		ReservationID: reservationID,
		Amount:        amount,
		CreatedAt:     now.UTC(),
	}
}

type Repository interface {
	Save(ctx context.Context, rec *Record) error
	ByReservation(ctx context.Context, reservationID string) ([]*Record, error)
}
