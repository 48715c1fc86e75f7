package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/uow"
	domain "bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/reservation"
)

// ReportSink stores a finished reconciliation report and returns where it lives.
type ReportSink interface {
	Upload(ctx context.Context, name string, body []byte) (string, error)
}

type ReconcileCommand struct {
	// ListingID limits the pass to one listing; empty means every listing.
	ListingID string
	Reason    string
}

func (ReconcileCommand) Key() string { return reconcileKey }

// ReconcileHandler repairs ledger mirrors from the canonical reservation
// status: mirrors of missing or non-accepted reservations are removed,
// mirrors whose range drifted are moved, and accepted reservations without a
// mirror get one when mirroring is enabled.
type ReconcileHandler struct {
	Deps
	Reports ReportSink
}

func (h *ReconcileHandler) Handle(ctx context.Context, cmd ReconcileCommand) (*dto.ReconcileReport, error) {
	report := &dto.ReconcileReport{
		ListingID:      cmd.ListingID,
		RemovedOrphans: []string{},
		CreatedMirrors: []string{},
		MovedMirrors:   []string{},
		RanAt:          h.now(),
	}
	listingID := listings.ListingID(cmd.ListingID)
	err := uow.Run(ctx, h.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		mirrors, err := unit.Ledger().Mirrors(ctx, listingID)
		if err != nil {
			return err
		}
		mirrored := make(map[string]bool, len(mirrors))
		for _, m := range mirrors {
			report.Checked++
			r, err := unit.Reservations().ByID(ctx, reservation.ID(m.ReservationID))
			if err != nil && !errors.Is(err, reservation.ErrNotFound) {
				return err
			}
			if r == nil || !r.Blocking() || mirrored[m.ReservationID] {
				if err := unit.Ledger().Delete(ctx, m.ID); err != nil {
					return err
				}
				report.RemovedOrphans = append(report.RemovedOrphans, string(m.ID))
				continue
			}
			mirrored[m.ReservationID] = true
			if !m.Range.Equal(r.Range) {
				m.Move(r.Range, h.now())
				if err := unit.Ledger().Save(ctx, m); err != nil {
					return err
				}
				report.MovedMirrors = append(report.MovedMirrors, string(m.ID))
			}
		}
		if !h.Mirror {
			return nil
		}
		accepted, err := unit.Reservations().List(ctx, reservation.Filter{
			ListingID: listingID,
			Statuses:  []reservation.Status{reservation.StatusAccepted},
		})
		if err != nil {
			return err
		}
		for _, r := range accepted {
			report.Checked++
			if mirrored[string(r.ID)] {
				continue
			}
			entry, err := domain.NewMirror(r.ListingID, r.Range, string(r.ID), h.now())
			if err != nil {
				return err
			}
			if err := unit.Ledger().Save(ctx, entry); err != nil {
				return err
			}
			report.CreatedMirrors = append(report.CreatedMirrors, string(entry.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger().InfoContext(ctx, "ledger reconciled",
		"listing_id", cmd.ListingID,
		"reason", cmd.Reason,
		"checked", report.Checked,
		"removed", len(report.RemovedOrphans),
		"created", len(report.CreatedMirrors),
		"moved", len(report.MovedMirrors),
	)
	if h.Reports != nil && (len(report.RemovedOrphans)+len(report.CreatedMirrors)+len(report.MovedMirrors)) > 0 {
		h.upload(ctx, report)
	}
	return report, nil
}

// upload is best effort: the repair is already committed.
func (h *ReconcileHandler) upload(ctx context.Context, report *dto.ReconcileReport) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		h.logger().WarnContext(ctx, "reconcile report encode failed", "error", err)
		return
	}
	scope := report.ListingID
	if scope == "" {
		scope = "all"
	}
	name := fmt.Sprintf("reconcile/%s/%s.json", scope, report.RanAt.Format("20060102T150405Z"))
	url, err := h.Reports.Upload(ctx, name, body)
	if err != nil {
		h.logger().WarnContext(ctx, "reconcile report upload failed", "error", err)
		return
	}
	report.ReportURL = url
}

var _ commands.Handler[ReconcileCommand, *dto.ReconcileReport] = (*ReconcileHandler)(nil)
