package reservation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookingengine/internal/domain/availability"
	"bookingengine/internal/domain/capacity"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/events"
	"bookingengine/internal/domain/shared/failure"
)

var (
	ErrNotFound          = failure.NotFound("RESERVATION_NOT_FOUND", "reservation not found")
	ErrAlreadyProcessed  = failure.Validation("ALREADY_PROCESSED", "reservation has already been processed")
	ErrInvalidDates      = failure.Validation("INVALID_DATES", "check-out must be after check-in")
	ErrForbidden         = failure.Forbidden("FORBIDDEN", "not allowed to act on this reservation")
	ErrRequesterRequired = failure.Validation("REQUESTER_REQUIRED", "requester id is required")
	ErrConcurrentUpdate  = failure.Conflict("CONCURRENT_UPDATE", "reservation was modified concurrently, retry")
)

type ID string

// ParseID accepts only canonical UUIDs; anything else cannot name a reservation.
func ParseID(raw string) (ID, error) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrNotFound.With("id", raw)
	}
	return ID(u.String()), nil
}

func NewID() ID {
	return ID(uuid.NewString())
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled:
		return s, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

type Reservation struct {
	ID                 ID
	ListingID          listings.ListingID
	HostID             listings.HostID
	RequesterID        string
	Range              daterange.DateRange
	Guests             capacity.Guests
	Message            string
	Status             Status
	RejectionReason    string
	CancellationReason string
	PaymentID          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
	events.EventRecorder
}

type CreateParams struct {
	ID          ID
	ListingID   listings.ListingID
	HostID      listings.HostID
	RequesterID string
	Range       daterange.DateRange
	Guests      capacity.Guests
	Message     string
	Instant     bool
	CreatedAt   time.Time
}

func New(p CreateParams) (*Reservation, error) {
	if strings.TrimSpace(p.RequesterID) == "" {
		return nil, ErrRequesterRequired
	}
	if err := p.Range.Validate(); err != nil {
		return nil, ErrInvalidDates.Wrap(err)
	}
	if err := p.Guests.Validate(); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = NewID()
	}
	now := p.CreatedAt.UTC()
	r := &Reservation{
		ID:          p.ID,
		ListingID:   p.ListingID,
		HostID:      p.HostID,
		RequesterID: p.RequesterID,
		Range:       p.Range,
		Guests:      p.Guests,
		Message:     strings.TrimSpace(p.Message),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.Record(newRequested(r, now))
	if p.Instant {
		r.Status = StatusAccepted
		r.Record(newAccepted(r, now))
	}
	return r, nil
}

// Accept moves a pending reservation to accepted.
func (r *Reservation) Accept(now time.Time) error {
	if r.Status != StatusPending {
		return ErrAlreadyProcessed.With("status", string(r.Status))
	}
	r.Status = StatusAccepted
	r.touch(now)
	r.Record(newAccepted(r, r.UpdatedAt))
	return nil
}

func (r *Reservation) Reject(reason string, now time.Time) error {
	if r.Status != StatusPending {
		return ErrAlreadyProcessed.With("status", string(r.Status))
	}
	r.Status = StatusRejected
	r.RejectionReason = strings.TrimSpace(reason)
	r.touch(now)
	r.Record(Rejected{Base: events.NewBase(EventRejected, string(r.ID), r.UpdatedAt), ListingID: string(r.ListingID), Reason: r.RejectionReason})
	return nil
}

// Cancel withdraws a pending or accepted reservation.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if r.Status.Terminal() {
		return ErrAlreadyProcessed.With("status", string(r.Status))
	}
	wasAccepted := r.Status == StatusAccepted
	r.Status = StatusCancelled
	r.CancellationReason = strings.TrimSpace(reason)
	r.touch(now)
	r.Record(Cancelled{Base: events.NewBase(EventCancelled, string(r.ID), r.UpdatedAt), ListingID: string(r.ListingID), Reason: r.CancellationReason, WasAccepted: wasAccepted})
	return nil
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	CheckIn  *time.Time
	CheckOut *time.Time
	Guests   *capacity.Guests
	Message  *string
}

func (p Patch) IsEmpty() bool {
	return p.CheckIn == nil && p.CheckOut == nil && p.Guests == nil && p.Message == nil
}

// Changes describes what a patch would alter.
type Changes struct {
	Range  daterange.DateRange
	Guests capacity.Guests
	Dates  bool
	Party  bool
}

// Preview resolves a patch against the current state without mutating it.
func (r *Reservation) Preview(p Patch) (Changes, error) {
	if r.Status.Terminal() {
		return Changes{}, ErrAlreadyProcessed.With("status", string(r.Status))
	}
	ch := Changes{Range: r.Range, Guests: r.Guests}
	if p.CheckIn != nil || p.CheckOut != nil {
		in, out := r.Range.CheckIn, r.Range.CheckOut
		if p.CheckIn != nil {
			in = *p.CheckIn
		}
		if p.CheckOut != nil {
			out = *p.CheckOut
		}
		dr, err := daterange.New(in, out)
		if err != nil {
			return Changes{}, ErrInvalidDates.Wrap(err)
		}
		ch.Range = dr
		ch.Dates = !dr.Equal(r.Range)
	}
	if p.Guests != nil {
		if err := p.Guests.Validate(); err != nil {
			return Changes{}, err
		}
		ch.Guests = *p.Guests
		ch.Party = *p.Guests != r.Guests
	}
	return ch, nil
}

// Apply commits a previewed patch.
func (r *Reservation) Apply(p Patch, now time.Time) (Changes, error) {
	ch, err := r.Preview(p)
	if err != nil {
		return Changes{}, err
	}
	r.Range = ch.Range
	r.Guests = ch.Guests
	if p.Message != nil {
		r.Message = strings.TrimSpace(*p.Message)
	}
	r.touch(now)
	r.Record(Updated{
		Base:      events.NewBase(EventUpdated, string(r.ID), r.UpdatedAt),
		ListingID: string(r.ListingID),
		CheckIn:   r.Range.CheckIn.Format(daterange.Layout),
		CheckOut:  r.Range.CheckOut.Format(daterange.Layout),
		Guests:    r.Guests,
		Dates:     ch.Dates,
	})
	return ch, nil
}

func (r *Reservation) AttachPayment(paymentID string) {
	r.PaymentID = paymentID
}

// MarkDeleted records the hard delete; the repository removes the row.
func (r *Reservation) MarkDeleted(actor string, now time.Time) {
	r.Record(Deleted{Base: events.NewBase(EventDeleted, string(r.ID), now), ListingID: string(r.ListingID), Actor: actor, Status: string(r.Status)})
}

// MarkLedgerReleaseFailed records that the ledger mirror could not be removed and needs reconciliation.
func (r *Reservation) MarkLedgerReleaseFailed(cause error, now time.Time) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	r.Record(LedgerReleaseFailed{Base: events.NewBase(EventLedgerReleaseFailed, string(r.ID), now), ListingID: string(r.ListingID), Error: msg})
}

func (r *Reservation) IsRequestedBy(userID string) bool {
	return userID != "" && r.RequesterID == userID
}

func (r *Reservation) IsHostedBy(userID string) bool {
	return userID != "" && string(r.HostID) == userID
}

// Blocking reports whether the reservation occupies its dates.
func (r *Reservation) Blocking() bool {
	return r.Status == StatusAccepted
}

func (r *Reservation) Interval() availability.Interval {
	return availability.Interval{Source: availability.SourceReservation, ID: string(r.ID), Status: string(r.Status), Range: r.Range}
}

// Clone copies the state without pending events.
func (r *Reservation) Clone() *Reservation {
	cp := *r
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}

func (r *Reservation) touch(now time.Time) {
	r.UpdatedAt = now.UTC()
}

// Filter narrows List results. Zero fields match everything; Range matches by half-open overlap.
type Filter struct {
	Statuses    []Status
	ListingID   listings.ListingID
	RequesterID string
	HostID      listings.HostID
	Range       *daterange.DateRange
	Limit       int
}

func (f Filter) Matches(r *Reservation) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ListingID != "" && r.ListingID != f.ListingID {
		return false
	}
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if f.HostID != "" && r.HostID != f.HostID {
		return false
	}
	if f.Range != nil && !r.Range.Overlaps(*f.Range) {
		return false
	}
	return true
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Reservation, error)
	// Save inserts when Version is zero, otherwise updates only if the stored version matches.
	Save(ctx context.Context, r *Reservation) error
	Delete(ctx context.Context, id ID) error
	// Overlapping returns reservations of the listing in one of statuses whose range overlaps dr.
	Overlapping(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...Status) ([]*Reservation, error)
	// List returns matches ordered by UpdatedAt descending.
	List(ctx context.Context, f Filter) ([]*Reservation, error)
}
