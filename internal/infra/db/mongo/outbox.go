package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bookingengine/internal/app/outbox"
)

const (
	statusNew     = "NEW"
	statusClaimed = "CLAIMED"
	statusSent    = "SENT"
	statusFailed  = "FAILED"
)

type outboxDocument struct {
	ID            string            `bson:"_id"`
	Name          string            `bson:"name"`
	Payload       []byte            `bson:"payload"`
	OccurredAt    time.Time         `bson:"occurred_at"`
	Aggregate     string            `bson:"aggregate"`
	Headers       map[string]string `bson:"headers,omitempty"`
	Status        string            `bson:"status"`
	Attempts      int               `bson:"attempts"`
	NextAttemptAt time.Time         `bson:"next_attempt_at"`
	ClaimedBy     string            `bson:"claimed_by,omitempty"`
	ClaimedAt     time.Time         `bson:"claimed_at,omitempty"`
	LastError     string            `bson:"last_error,omitempty"`
	SentAt        time.Time         `bson:"sent_at,omitempty"`
}

// unitOutbox writes records through the unit's session so they commit with the state change.
type unitOutbox struct {
	col *mongo.Collection
}

func (o *unitOutbox) Add(ctx context.Context, rec outbox.EventRecord) error {
	_, err := o.col.InsertOne(ctx, outboxDocument{
		ID:            rec.ID,
		Name:          rec.Name,
		Payload:       rec.Payload,
		OccurredAt:    rec.OccurredAt.UTC(),
		Aggregate:     rec.Aggregate,
		Headers:       rec.Headers,
		Status:        statusNew,
		NextAttemptAt: rec.OccurredAt.UTC(),
	})
	return mapWriteErr(err)
}

// Relay is the worker side of the outbox collection. A claim older than
// Lease is handed out again, covering workers that died mid-publish.
type Relay struct {
	col   *mongo.Collection
	Lease time.Duration
	Now   func() time.Time
}

func NewRelay(db *mongo.Database) *Relay {
	return &Relay{col: db.Collection(colOutbox), Lease: time.Minute}
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Relay) Claim(ctx context.Context, workerID string) (*outbox.Pending, error) {
	now := r.now()
	filter := bson.M{"$or": bson.A{
		bson.M{"status": statusNew},
		bson.M{"status": statusFailed, "next_attempt_at": bson.M{"$lte": now}},
		bson.M{"status": statusClaimed, "claimed_at": bson.M{"$lte": now.Add(-r.Lease)}},
	}}
	update := bson.M{
		"$set": bson.M{"status": statusClaimed, "claimed_by": workerID, "claimed_at": now},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}}).
		SetReturnDocument(options.After)
	var doc outboxDocument
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &outbox.Pending{
		EventRecord: outbox.EventRecord{
			ID:         doc.ID,
			Name:       doc.Name,
			Payload:    doc.Payload,
			OccurredAt: doc.OccurredAt.UTC(),
			Aggregate:  doc.Aggregate,
			Headers:    doc.Headers,
		},
		Attempts: doc.Attempts,
	}, nil
}

func (r *Relay) MarkSent(ctx context.Context, id string) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"status": statusSent, "sent_at": r.now()}})
	return err
}

func (r *Relay) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":          statusFailed,
		"next_attempt_at": next.UTC(),
		"last_error":      errMsg,
		"claimed_by":      "",
	}})
	return err
}

var (
	_ outbox.Outbox = (*unitOutbox)(nil)
	_ outbox.Relay  = (*Relay)(nil)
)
