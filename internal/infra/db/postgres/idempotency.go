package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookingengine/internal/app/middleware"
)

// IdempotencyStore keeps command outcomes in the idempotency table. Rows older
// than TTL read as missing; Purge deletes them.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	TTL  time.Duration
}

func NewIdempotencyStore(pool *pgxpool.Pool, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, TTL: ttl}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	rec := middleware.IdempotencyRecord{Key: key}
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint, payload, error_kind, error_code, error_message, occurred_at, created_at FROM idempotency WHERE key = $1`,
		key,
	).Scan(&rec.Fingerprint, &rec.Payload, &rec.ErrorKind, &rec.ErrorCode, &rec.ErrorMessage, &rec.OccurredAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	if s.TTL > 0 && time.Since(createdAt) > s.TTL {
		return middleware.IdempotencyRecord{}, false, nil
	}
	rec.OccurredAt = rec.OccurredAt.UTC()
	return rec, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency (key, fingerprint, payload, error_kind, error_code, error_message, occurred_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (key) DO UPDATE SET
		     fingerprint = EXCLUDED.fingerprint, payload = EXCLUDED.payload, error_kind = EXCLUDED.error_kind, error_code = EXCLUDED.error_code,
		     error_message = EXCLUDED.error_message, occurred_at = EXCLUDED.occurred_at, created_at = now()`,
		rec.Key, rec.Fingerprint, rec.Payload, rec.ErrorKind, rec.ErrorCode, rec.ErrorMessage, rec.OccurredAt.UTC(),
	)
	return err
}

// Purge removes expired rows and reports how many were deleted.
func (s *IdempotencyStore) Purge(ctx context.Context) (int64, error) {
	if s.TTL <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency WHERE created_at < $1`, time.Now().UTC().Add(-s.TTL))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
