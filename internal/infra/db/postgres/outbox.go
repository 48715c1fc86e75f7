package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookingengine/internal/app/outbox"
)

const (
	statusNew     = "NEW"
	statusClaimed = "CLAIMED"
	statusSent    = "SENT"
	statusFailed  = "FAILED"
)

// unitOutbox inserts through the unit's transaction so records commit with the state change.
type unitOutbox struct {
	tx pgx.Tx
}

func (o *unitOutbox) Add(ctx context.Context, rec outbox.EventRecord) error {
	headers := rec.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := o.tx.Exec(ctx,
		`INSERT INTO outbox (id, name, payload, occurred_at, aggregate, headers, status, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $4)`,
		rec.ID, rec.Name, rec.Payload, rec.OccurredAt.UTC(), rec.Aggregate, headers, statusNew,
	)
	return mapPgErr(err)
}

// Relay claims rows with SKIP LOCKED so parallel workers never pick the same
// record. A claim older than Lease is handed out again.
type Relay struct {
	pool  *pgxpool.Pool
	Lease time.Duration
	Now   func() time.Time
}

func NewRelay(pool *pgxpool.Pool) *Relay {
	return &Relay{pool: pool, Lease: time.Minute}
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

const claimSQL = `UPDATE outbox SET status = $1, claimed_by = $2, claimed_at = $3, attempts = attempts + 1
WHERE id = (
	SELECT id FROM outbox
	WHERE status = $4
	   OR (status = $5 AND next_attempt_at <= $3)
	   OR (status = $1 AND claimed_at <= $6)
	ORDER BY occurred_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, name, payload, occurred_at, aggregate, headers, attempts`

func (r *Relay) Claim(ctx context.Context, workerID string) (*outbox.Pending, error) {
	now := r.now()
	var p outbox.Pending
	err := r.pool.QueryRow(ctx, claimSQL,
		statusClaimed, workerID, now, statusNew, statusFailed, now.Add(-r.Lease),
	).Scan(&p.ID, &p.Name, &p.Payload, &p.OccurredAt, &p.Aggregate, &p.Headers, &p.Attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.OccurredAt = p.OccurredAt.UTC()
	return &p, nil
}

func (r *Relay) MarkSent(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET status = $2, sent_at = $3 WHERE id = $1`, id, statusSent, r.now())
	return err
}

func (r *Relay) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox SET status = $2, next_attempt_at = $3, last_error = $4, claimed_by = '' WHERE id = $1`,
		id, statusFailed, next.UTC(), errMsg,
	)
	return err
}

var (
	_ outbox.Outbox = (*unitOutbox)(nil)
	_ outbox.Relay  = (*Relay)(nil)
)
