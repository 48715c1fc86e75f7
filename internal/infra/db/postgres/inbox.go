package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Inbox deduplicates consumed events per consumer on the (event_id, consumer) key.
type Inbox struct {
	pool     *pgxpool.Pool
	consumer string
}

func NewInbox(pool *pgxpool.Pool, consumer string) *Inbox {
	return &Inbox{pool: pool, consumer: consumer}
}

// Seen records eventID and reports whether it had been recorded before.
func (i *Inbox) Seen(ctx context.Context, eventID string) (bool, error) {
	tag, err := i.pool.Exec(ctx,
		`INSERT INTO inbox (event_id, consumer) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		eventID, i.consumer,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (i *Inbox) Forget(ctx context.Context, eventID string) error {
	_, err := i.pool.Exec(ctx, `DELETE FROM inbox WHERE event_id = $1 AND consumer = $2`, eventID, i.consumer)
	return err
}
