package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bookingengine/internal/app/middleware"
)

// IdempotencyStore keeps command outcomes; a TTL index expires them.
type IdempotencyStore struct {
	col *mongo.Collection
}

func NewIdempotencyStore(ctx context.Context, db *mongo.Database, ttl time.Duration) (*IdempotencyStore, error) {
	col := db.Collection(colIdempotency)
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
	}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &IdempotencyStore{col: col}, nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var doc idempotencyDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	return doc.toRecord(), true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	doc := idempotencyDocument{
		Key:          rec.Key,
		Fingerprint:  rec.Fingerprint,
		Payload:      rec.Payload,
		ErrorKind:    rec.ErrorKind,
		ErrorCode:    rec.ErrorCode,
		ErrorMessage: rec.ErrorMessage,
		OccurredAt:   rec.OccurredAt,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": rec.Key}, doc, options.Replace().SetUpsert(true))
	return err
}

type idempotencyDocument struct {
	Key          string    `bson:"_id"`
	Fingerprint  string    `bson:"fingerprint,omitempty"`
	Payload      []byte    `bson:"payload,omitempty"`
	ErrorKind    string    `bson:"error_kind,omitempty"`
	ErrorCode    string    `bson:"error_code,omitempty"`
	ErrorMessage string    `bson:"error_message,omitempty"`
	OccurredAt   time.Time `bson:"occurred_at"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (d idempotencyDocument) toRecord() middleware.IdempotencyRecord {
	return middleware.IdempotencyRecord{
		Key:          d.Key,
		Fingerprint:  d.Fingerprint,
		Payload:      d.Payload,
		ErrorKind:    d.ErrorKind,
		ErrorCode:    d.ErrorCode,
		ErrorMessage: d.ErrorMessage,
		OccurredAt:   d.OccurredAt,
	}
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
