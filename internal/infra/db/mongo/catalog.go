package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bookingengine/internal/domain/listings"
)

// Catalog reads listings from the listings collection.
type Catalog struct {
	col *mongo.Collection
}

func NewCatalog(db *mongo.Database) *Catalog {
	return &Catalog{col: db.Collection(colListings)}
}

func (c *Catalog) ByID(ctx context.Context, id listings.ListingID) (*listings.Listing, error) {
	var l listings.Listing
	if err := c.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, listings.ErrListingNotFound.With("id", string(id))
		}
		return nil, err
	}
	return &l, nil
}

// Upsert seeds or refreshes a listing, used when loading fixtures.
func (c *Catalog) Upsert(ctx context.Context, l listings.Listing) error {
	_, err := c.col.ReplaceOne(ctx, bson.M{"_id": string(l.ID)}, l, options.Replace().SetUpsert(true))
	return err
}

var _ listings.Catalog = (*Catalog)(nil)
