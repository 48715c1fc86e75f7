package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colReservations = "reservations"
	colLedger       = "ledger_entries"
	colPayments     = "payments"
	colTimelines    = "listing_timelines"
	colOutbox       = "app_outbox"
	colIdempotency  = "app_idempotency"
	colInbox        = "app_inbox"
	colListings     = "listings"
)

type Client struct {
	DB *mongo.Database
}

// New connects and pings; transactions need a replica set or sharded cluster.
func New(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Ping(ctx, nil); err != nil {
		_ = m.Disconnect(context.Background())
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes every query path relies on. Collections
// are created up front because they cannot be created inside a transaction
// on older servers.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	existing, err := c.DB.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}
	for _, name := range []string{colReservations, colLedger, colPayments, colTimelines, colOutbox, colIdempotency, colInbox, colListings} {
		if have[name] {
			continue
		}
		if err := c.DB.CreateCollection(ctx, name); err != nil {
			return err
		}
	}

	specs := map[string][]mongo.IndexModel{
		colReservations: {
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "status", Value: 1}, {Key: "range.check_in", Value: 1}}},
			{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "updated_at", Value: -1}}},
			{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
		colLedger: {
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "range.check_in", Value: 1}}},
			{Keys: bson.D{{Key: "reservation_id", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "reservation_id", Value: 1}}},
		},
		colOutbox: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}, {Key: "occurred_at", Value: 1}}},
		},
		colInbox: {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
