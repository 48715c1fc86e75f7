package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/payments"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/money"
)

type rangeDocument struct {
	CheckIn  int64 `bson:"check_in"`
	CheckOut int64 `bson:"check_out"`
}

func newRangeDocument(dr daterange.DateRange) rangeDocument {
	return rangeDocument{CheckIn: dr.CheckIn.UnixMilli(), CheckOut: dr.CheckOut.UnixMilli()}
}

func (d rangeDocument) toRange() daterange.DateRange {
	return daterange.DateRange{CheckIn: timestampToTime(d.CheckIn), CheckOut: timestampToTime(d.CheckOut)}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// overlapFilter matches half-open ranges that intersect dr.
func overlapFilter(dr daterange.DateRange) bson.M {
	return bson.M{
		"range.check_in":  bson.M{"$lt": dr.CheckOut.UnixMilli()},
		"range.check_out": bson.M{"$gt": dr.CheckIn.UnixMilli()},
	}
}

type reservationRepo struct {
	col *mongo.Collection
}

type reservationDocument struct {
	ID                 string          `bson:"_id"`
	ListingID          string          `bson:"listing_id"`
	HostID             string          `bson:"host_id"`
	RequesterID        string          `bson:"requester_id"`
	Range              rangeDocument   `bson:"range"`
	Guests             capacity.Guests `bson:"guests"`
	Message            string          `bson:"message,omitempty"`
	Status             string          `bson:"status"`
	RejectionReason    string          `bson:"rejection_reason,omitempty"`
	CancellationReason string          `bson:"cancellation_reason,omitempty"`
	PaymentID          string          `bson:"payment_id,omitempty"`
	CreatedAt          int64           `bson:"created_at"`
	UpdatedAt          int64           `bson:"updated_at"`
	Version            int64           `bson:"version"`
}

func newReservationDocument(r *reservation.Reservation) reservationDocument {
	return reservationDocument{
		ID:                 string(r.ID),
		ListingID:          string(r.ListingID),
		HostID:             string(r.HostID),
		RequesterID:        r.RequesterID,
		Range:              newRangeDocument(r.Range),
		Guests:             r.Guests,
		Message:            r.Message,
		Status:             string(r.Status),
		RejectionReason:    r.RejectionReason,
		CancellationReason: r.CancellationReason,
		PaymentID:          r.PaymentID,
		CreatedAt:          r.CreatedAt.UnixMilli(),
		UpdatedAt:          r.UpdatedAt.UnixMilli(),
		Version:            r.Version,
	}
}

func (d reservationDocument) toAggregate() *reservation.Reservation {
	return &reservation.Reservation{
		ID:                 reservation.ID(d.ID),
		ListingID:          listings.ListingID(d.ListingID),
		HostID:             listings.HostID(d.HostID),
		RequesterID:        d.RequesterID,
		Range:              d.Range.toRange(),
		Guests:             d.Guests,
		Message:            d.Message,
		Status:             reservation.Status(d.Status),
		RejectionReason:    d.RejectionReason,
		CancellationReason: d.CancellationReason,
		PaymentID:          d.PaymentID,
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
		Version:            d.Version,
	}
}

func (r *reservationRepo) ByID(ctx context.Context, id reservation.ID) (*reservation.Reservation, error) {
	var doc reservationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservation.ErrNotFound.With("id", string(id))
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save inserts version 1 for new aggregates and otherwise updates only when
// the stored version still matches.
func (r *reservationRepo) Save(ctx context.Context, res *reservation.Reservation) error {
	doc := newReservationDocument(res)
	doc.Version = res.Version + 1
	if res.Version == 0 {
		if _, err := r.col.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return reservation.ErrConcurrentUpdate.Wrap(err)
			}
			return mapWriteErr(err)
		}
		res.Version = doc.Version
		return nil
	}
	out, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": res.Version}, doc)
	if err != nil {
		return mapWriteErr(err)
	}
	if out.MatchedCount == 0 {
		return reservation.ErrConcurrentUpdate
	}
	res.Version = doc.Version
	return nil
}

func (r *reservationRepo) Delete(ctx context.Context, id reservation.ID) error {
	out, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return mapWriteErr(err)
	}
	if out.DeletedCount == 0 {
		return reservation.ErrNotFound.With("id", string(id))
	}
	return nil
}

func (r *reservationRepo) Overlapping(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...reservation.Status) ([]*reservation.Reservation, error) {
	filter := reservationFilter(reservation.Filter{ListingID: listingID, Statuses: statuses, Range: &dr})
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "range.check_in", Value: 1}}))
}

func (r *reservationRepo) List(ctx context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return r.find(ctx, reservationFilter(f), opts)
}

func (r *reservationRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*reservation.Reservation, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []reservationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*reservation.Reservation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func reservationFilter(f reservation.Filter) bson.M {
	filter := bson.M{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if f.ListingID != "" {
		filter["listing_id"] = string(f.ListingID)
	}
	if f.RequesterID != "" {
		filter["requester_id"] = f.RequesterID
	}
	if f.HostID != "" {
		filter["host_id"] = string(f.HostID)
	}
	if f.Range != nil {
		for k, v := range overlapFilter(*f.Range) {
			filter[k] = v
		}
	}
	return filter
}

type ledgerRepo struct {
	col *mongo.Collection
}

type ledgerDocument struct {
	ID            string        `bson:"_id"`
	ListingID     string        `bson:"listing_id"`
	Range         rangeDocument `bson:"range"`
	Status        string        `bson:"status"`
	TotalUnits    int           `bson:"total_units"`
	Notes         string        `bson:"notes,omitempty"`
	ReservationID string        `bson:"reservation_id"`
	CreatedAt     int64         `bson:"created_at"`
	UpdatedAt     int64         `bson:"updated_at"`
}

func newLedgerDocument(e *inventory.Entry) ledgerDocument {
	return ledgerDocument{
		ID:            string(e.ID),
		ListingID:     string(e.ListingID),
		Range:         newRangeDocument(e.Range),
		Status:        string(e.Status),
		TotalUnits:    e.TotalUnits,
		Notes:         e.Notes,
		ReservationID: e.ReservationID,
		CreatedAt:     e.CreatedAt.UnixMilli(),
		UpdatedAt:     e.UpdatedAt.UnixMilli(),
	}
}

func (d ledgerDocument) toEntry() *inventory.Entry {
	return &inventory.Entry{
		ID:            inventory.EntryID(d.ID),
		ListingID:     listings.ListingID(d.ListingID),
		Range:         d.Range.toRange(),
		Status:        inventory.Status(d.Status),
		TotalUnits:    d.TotalUnits,
		Notes:         d.Notes,
		ReservationID: d.ReservationID,
		CreatedAt:     timestampToTime(d.CreatedAt),
		UpdatedAt:     timestampToTime(d.UpdatedAt),
	}
}

var ledgerOrder = bson.D{{Key: "range.check_in", Value: 1}, {Key: "_id", Value: 1}}

func (r *ledgerRepo) ByID(ctx context.Context, id inventory.EntryID) (*inventory.Entry, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

// FindExact only considers host-managed entries; mirrors are never matched.
func (r *ledgerRepo) FindExact(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) (*inventory.Entry, error) {
	rd := newRangeDocument(dr)
	return r.findOne(ctx, bson.M{
		"listing_id":      string(listingID),
		"range.check_in":  rd.CheckIn,
		"range.check_out": rd.CheckOut,
		"reservation_id":  "",
	})
}

func (r *ledgerRepo) Save(ctx context.Context, e *inventory.Entry) error {
	doc := newLedgerDocument(e)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return mapWriteErr(err)
}

func (r *ledgerRepo) Delete(ctx context.Context, id inventory.EntryID) error {
	out, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return mapWriteErr(err)
	}
	if out.DeletedCount == 0 {
		return inventory.ErrEntryNotFound.With("id", string(id))
	}
	return nil
}

// DeleteByReservation runs inside the session. A server error here aborts the
// whole transaction, so the caller's commit fails too.
func (r *ledgerRepo) DeleteByReservation(ctx context.Context, reservationID string) (int, error) {
	out, err := r.col.DeleteMany(ctx, bson.M{"reservation_id": reservationID})
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return int(out.DeletedCount), nil
}

func (r *ledgerRepo) MirrorOf(ctx context.Context, reservationID string) (*inventory.Entry, error) {
	return r.findOne(ctx, bson.M{"reservation_id": reservationID})
}

func (r *ledgerRepo) Overlapping(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...inventory.Status) ([]*inventory.Entry, error) {
	filter := overlapFilter(dr)
	filter["listing_id"] = string(listingID)
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, s := range statuses {
			names = append(names, string(s))
		}
		filter["status"] = bson.M{"$in": names}
	}
	return r.find(ctx, filter)
}

func (r *ledgerRepo) List(ctx context.Context, listingID listings.ListingID, window *daterange.DateRange) ([]*inventory.Entry, error) {
	filter := bson.M{}
	if window != nil {
		filter = overlapFilter(*window)
	}
	filter["listing_id"] = string(listingID)
	return r.find(ctx, filter)
}

func (r *ledgerRepo) Mirrors(ctx context.Context, listingID listings.ListingID) ([]*inventory.Entry, error) {
	filter := bson.M{"reservation_id": bson.M{"$ne": ""}}
	if listingID != "" {
		filter["listing_id"] = string(listingID)
	}
	return r.find(ctx, filter)
}

func (r *ledgerRepo) findOne(ctx context.Context, filter bson.M) (*inventory.Entry, error) {
	var doc ledgerDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, inventory.ErrEntryNotFound
		}
		return nil, err
	}
	return doc.toEntry(), nil
}

func (r *ledgerRepo) find(ctx context.Context, filter bson.M) ([]*inventory.Entry, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(ledgerOrder))
	if err != nil {
		return nil, err
	}
	var docs []ledgerDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*inventory.Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEntry())
	}
	return out, nil
}

type paymentRepo struct {
	col *mongo.Collection
}

type paymentDocument struct {
	ID            string      `bson:"_id"`
	RequesterID   string      `bson:"requester_id"`
	ReservationID string      `bson:"reservation_id"`
	Amount        money.Money `bson:"amount"`
	CreatedAt     time.Time   `bson:"created_at"`
}

func (r *paymentRepo) Save(ctx context.Context, rec *payments.Record) error {
	_, err := r.col.InsertOne(ctx, paymentDocument{
		ID:            rec.ID,
		RequesterID:   rec.RequesterID,
		ReservationID: rec.ReservationID,
		Amount:        rec.Amount,
		CreatedAt:     rec.CreatedAt,
	})
	return mapWriteErr(err)
}

func (r *paymentRepo) ByReservation(ctx context.Context, reservationID string) ([]*payments.Record, error) {
	cur, err := r.col.Find(ctx, bson.M{"reservation_id": reservationID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []paymentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*payments.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, &payments.Record{
			ID:            d.ID,
			RequesterID:   d.RequesterID,
			ReservationID: d.ReservationID,
			Amount:        d.Amount,
			CreatedAt:     d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

var (
	_ reservation.Repository = (*reservationRepo)(nil)
	_ inventory.Repository   = (*ledgerRepo)(nil)
	_ payments.Repository    = (*paymentRepo)(nil)
)
