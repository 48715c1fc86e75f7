package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/handlers/inventory"
	"bookingengine/internal/domain/reservation"
)

// Inbox remembers which events a consumer has already handled.
type Inbox interface {
	// Seen records eventID and reports whether it had been recorded before.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Forget drops eventID so a redelivery is handled again.
	Forget(ctx context.Context, eventID string) error
}

type cloudEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type releaseFailed struct {
	ListingID string `json:"listing_id"`
}

// RepairHandler reconciles a listing's ledger when a reservation could not
// release its mirror. Other event types on the topic are acknowledged and ignored.
type RepairHandler struct {
	Bus    commands.Bus
	Inbox  Inbox
	Logger *slog.Logger
}

func (h *RepairHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt cloudEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger().WarnContext(ctx, "dropping undecodable event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if evt.Type != reservation.EventLedgerReleaseFailed+".v1" {
		return nil
	}
	if h.Inbox != nil && evt.ID != "" {
		seen, err := h.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	var data releaseFailed
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		h.logger().WarnContext(ctx, "dropping malformed release failure", "event_id", evt.ID, "error", err)
		return nil
	}
	if _, err := h.Bus.Dispatch(ctx, inventory.ReconcileCommand{ListingID: data.ListingID, Reason: "ledger release failed"}); err != nil {
		if h.Inbox != nil && evt.ID != "" {
			_ = h.Inbox.Forget(ctx, evt.ID)
		}
		return err
	}
	return nil
}

func (h *RepairHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = (*RepairHandler)(nil)
