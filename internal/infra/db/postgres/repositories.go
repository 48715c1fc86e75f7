package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/money"
)

// where accumulates AND-ed predicates with numbered placeholders.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(format string, args ...any) {
	placeholders := make([]any, len(args))
	for i := range args {
		w.args = append(w.args, args[i])
		placeholders[i] = fmt.Sprintf("$%d", len(w.args))
	}
	w.clauses = append(w.clauses, fmt.Sprintf(format, placeholders...))
}

// overlap matches half-open ranges that intersect dr.
func (w *where) overlap(dr daterange.DateRange) {
	w.add("check_in < %s", dr.CheckOut)
	w.add("check_out > %s", dr.CheckIn)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func utcDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const reservationColumns = `id, listing_id, host_id, requester_id, check_in, check_out, guests, message,
	status, rejection_reason, cancellation_reason, payment_id, created_at, updated_at, version`

type reservationRepo struct {
	tx pgx.Tx
}

func scanReservation(row pgx.Row) (*reservation.Reservation, error) {
	var (
		r                            reservation.Reservation
		id, listingID, hostID, state string
		checkIn, checkOut            time.Time
	)
	err := row.Scan(&id, &listingID, &hostID, &r.RequesterID, &checkIn, &checkOut, &r.Guests, &r.Message,
		&state, &r.RejectionReason, &r.CancellationReason, &r.PaymentID, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	r.ID = reservation.ID(id)
	r.ListingID = listings.ListingID(listingID)
	r.HostID = listings.HostID(hostID)
	r.Status = reservation.Status(state)
	r.Range = daterange.DateRange{CheckIn: utcDay(checkIn), CheckOut: utcDay(checkOut)}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func (r *reservationRepo) ByID(ctx context.Context, id reservation.ID) (*reservation.Reservation, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, string(id))
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reservation.ErrNotFound.With("id", string(id))
		}
		return nil, mapPgErr(err)
	}
	return res, nil
}

// Save inserts version 1 for new aggregates and otherwise updates only when
// the stored version still matches.
func (r *reservationRepo) Save(ctx context.Context, res *reservation.Reservation) error {
	next := res.Version + 1
	if res.Version == 0 {
		_, err := r.tx.Exec(ctx,
			`INSERT INTO reservations (`+reservationColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			string(res.ID), string(res.ListingID), string(res.HostID), res.RequesterID,
			res.Range.CheckIn, res.Range.CheckOut, res.Guests, res.Message,
			string(res.Status), res.RejectionReason, res.CancellationReason, res.PaymentID,
			res.CreatedAt.UTC(), res.UpdatedAt.UTC(), next,
		)
		if err != nil {
			return mapPgErr(err)
		}
		res.Version = next
		return nil
	}
	tag, err := r.tx.Exec(ctx,
		`UPDATE reservations
		 SET check_in = $3, check_out = $4, guests = $5, message = $6, status = $7,
		     rejection_reason = $8, cancellation_reason = $9, payment_id = $10,
		     updated_at = $11, version = $12
		 WHERE id = $1 AND version = $2`,
		string(res.ID), res.Version,
		res.Range.CheckIn, res.Range.CheckOut, res.Guests, res.Message, string(res.Status),
		res.RejectionReason, res.CancellationReason, res.PaymentID,
		res.UpdatedAt.UTC(), next,
	)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return reservation.ErrConcurrentUpdate
	}
	res.Version = next
	return nil
}

func (r *reservationRepo) Delete(ctx context.Context, id reservation.ID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, string(id))
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return reservation.ErrNotFound.With("id", string(id))
	}
	return nil
}

func (r *reservationRepo) Overlapping(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...reservation.Status) ([]*reservation.Reservation, error) {
	w := reservationWhere(reservation.Filter{ListingID: listingID, Statuses: statuses, Range: &dr})
	return r.query(ctx, `SELECT `+reservationColumns+` FROM reservations`+w.String()+` ORDER BY check_in`, w.args)
}

func (r *reservationRepo) List(ctx context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	w := reservationWhere(f)
	sql := `SELECT ` + reservationColumns + ` FROM reservations` + w.String() + ` ORDER BY updated_at DESC, id`
	if f.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return r.query(ctx, sql, w.args)
}

func (r *reservationRepo) query(ctx context.Context, sql string, args []any) ([]*reservation.Reservation, error) {
	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	out := make([]*reservation.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, mapPgErr(rows.Err())
}

func reservationWhere(f reservation.Filter) *where {
	w := &where{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		w.add("status = ANY(%s)", statuses)
	}
	if f.ListingID != "" {
		w.add("listing_id = %s", string(f.ListingID))
	}
	if f.RequesterID != "" {
		w.add("requester_id = %s", f.RequesterID)
	}
	if f.HostID != "" {
		w.add("host_id = %s", string(f.HostID))
	}
	if f.Range != nil {
		w.overlap(*f.Range)
	}
	return w
}

const ledgerColumns = `id, listing_id, check_in, check_out, status, total_units, notes, reservation_id, created_at, updated_at`

type ledgerRepo struct {
	tx pgx.Tx
}

func scanEntry(row pgx.Row) (*inventory.Entry, error) {
	var (
		e                     inventory.Entry
		id, listingID, status string
		checkIn, checkOut     time.Time
	)
	err := row.Scan(&id, &listingID, &checkIn, &checkOut, &status, &e.TotalUnits, &e.Notes, &e.ReservationID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.ID = inventory.EntryID(id)
	e.ListingID = listings.ListingID(listingID)
	e.Status = inventory.Status(status)
	e.Range = daterange.DateRange{CheckIn: utcDay(checkIn), CheckOut: utcDay(checkOut)}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (r *ledgerRepo) ByID(ctx context.Context, id inventory.EntryID) (*inventory.Entry, error) {
	w := &where{}
	w.add("id = %s", string(id))
	return r.queryOne(ctx, w)
}

// FindExact only considers host-managed entries; mirrors are never matched.
func (r *ledgerRepo) FindExact(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) (*inventory.Entry, error) {
	w := &where{}
	w.add("listing_id = %s", string(listingID))
	w.add("check_in = %s", dr.CheckIn)
	w.add("check_out = %s", dr.CheckOut)
	w.add("reservation_id = ''")
	return r.queryOne(ctx, w)
}

func (r *ledgerRepo) Save(ctx context.Context, e *inventory.Entry) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO ledger_entries (`+ledgerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		     check_in = EXCLUDED.check_in, check_out = EXCLUDED.check_out, status = EXCLUDED.status,
		     total_units = EXCLUDED.total_units, notes = EXCLUDED.notes,
		     reservation_id = EXCLUDED.reservation_id, updated_at = EXCLUDED.updated_at`,
		string(e.ID), string(e.ListingID), e.Range.CheckIn, e.Range.CheckOut, string(e.Status),
		e.TotalUnits, e.Notes, e.ReservationID, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	return mapPgErr(err)
}

func (r *ledgerRepo) Delete(ctx context.Context, id inventory.EntryID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM ledger_entries WHERE id = $1`, string(id))
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrEntryNotFound.With("id", string(id))
	}
	return nil
}

// DeleteByReservation runs inside a savepoint so a failed release leaves the
// surrounding transaction usable.
func (r *ledgerRepo) DeleteByReservation(ctx context.Context, reservationID string) (int, error) {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return 0, mapPgErr(err)
	}
	tag, err := sp.Exec(ctx, `DELETE FROM ledger_entries WHERE reservation_id = $1`, reservationID)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, mapPgErr(err)
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, mapPgErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ledgerRepo) MirrorOf(ctx context.Context, reservationID string) (*inventory.Entry, error) {
	w := &where{}
	w.add("reservation_id = %s", reservationID)
	return r.queryOne(ctx, w)
}

func (r *ledgerRepo) Overlapping(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...inventory.Status) ([]*inventory.Entry, error) {
	w := &where{}
	w.add("listing_id = %s", string(listingID))
	w.overlap(dr)
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, s := range statuses {
			names = append(names, string(s))
		}
		w.add("status = ANY(%s)", names)
	}
	return r.query(ctx, w)
}

func (r *ledgerRepo) List(ctx context.Context, listingID listings.ListingID, window *daterange.DateRange) ([]*inventory.Entry, error) {
	w := &where{}
	w.add("listing_id = %s", string(listingID))
	if window != nil {
		w.overlap(*window)
	}
	return r.query(ctx, w)
}

func (r *ledgerRepo) Mirrors(ctx context.Context, listingID listings.ListingID) ([]*inventory.Entry, error) {
	w := &where{}
	w.add("reservation_id <> ''")
	if listingID != "" {
		w.add("listing_id = %s", string(listingID))
	}
	return r.query(ctx, w)
}

func (r *ledgerRepo) queryOne(ctx context.Context, w *where) (*inventory.Entry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries`+w.String()+` LIMIT 1`, w.args...)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrEntryNotFound
		}
		return nil, mapPgErr(err)
	}
	return e, nil
}

func (r *ledgerRepo) query(ctx context.Context, w *where) ([]*inventory.Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries`+w.String()+` ORDER BY check_in, id`, w.args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	out := make([]*inventory.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, mapPgErr(rows.Err())
}

type paymentRepo struct {
	tx pgx.Tx
}

func (r *paymentRepo) Save(ctx context.Context, rec *payments.Record) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO payments (id, requester_id, reservation_id, amount, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.RequesterID, rec.ReservationID, rec.Amount.Amount, rec.Amount.Currency, rec.CreatedAt.UTC(),
	)
	return mapPgErr(err)
}

func (r *paymentRepo) ByReservation(ctx context.Context, reservationID string) ([]*payments.Record, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id, requester_id, reservation_id, amount, currency, created_at
		 FROM payments WHERE reservation_id = $1 ORDER BY created_at`,
		reservationID,
	)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()
	out := make([]*payments.Record, 0)
	for rows.Next() {
		var rec payments.Record
		var amount money.Money
		if err := rows.Scan(&rec.ID, &rec.RequesterID, &rec.ReservationID, &amount.Amount, &amount.Currency, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		rec.Amount = amount
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

var (
	_ reservation.Repository = (*reservationRepo)(nil)
	_ inventory.Repository   = (*ledgerRepo)(nil)
	_ payments.Repository    = (*paymentRepo)(nil)
)
