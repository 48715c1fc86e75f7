// Package inventory models the per-listing ledger of availability windows,
// host blocks and reservation mirrors.
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookingengine/internal/domain/availability"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
)

var (
	ErrEntryNotFound = failure.NotFound("LEDGER_ENTRY_NOT_FOUND", "ledger entry not found")
	ErrInvalidStatus = failure.Validation("INVALID_STATUS", "unsupported ledger status")
	ErrInvalidUnits  = failure.Validation("INVALID_UNITS", "total units must not be negative")
	ErrDerivedEntry  = failure.Validation("DERIVED_ENTRY", "entry belongs to a reservation and cannot be changed directly")
	ErrInvalidDates  = failure.Validation("INVALID_DATES", "check-out must be after check-in")
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusFullyBooked Status = "fully_booked"
	StatusMaintenance Status = "maintenance"
	StatusBlocked     Status = "blocked"
)

// BlockingStatuses make a window unavailable.
var BlockingStatuses = []Status{StatusFullyBooked, StatusMaintenance, StatusBlocked}

func (s Status) Blocking() bool {
	switch s {
	case StatusFullyBooked, StatusMaintenance, StatusBlocked:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusAvailable, StatusFullyBooked, StatusMaintenance, StatusBlocked:
		return s, nil
	}
	return "", ErrInvalidStatus.With("status", raw)
}

type EntryID string

func ParseEntryID(raw string) (EntryID, error) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrEntryNotFound.With("id", raw)
	}
	return EntryID(u.String()), nil
}

type Entry struct {
	ID            EntryID
	ListingID     listings.ListingID
	Range         daterange.DateRange
	Status        Status
	TotalUnits    int
	Notes         string
	ReservationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newEntry(listingID listings.ListingID, dr daterange.DateRange, status Status, now time.Time) (*Entry, error) {
	if err := dr.Validate(); err != nil {
		return nil, ErrInvalidDates.Wrap(err)
	}
	now = now.UTC()
	return &Entry{
		ID:        EntryID(uuid.NewString()),
		ListingID: listingID,
		Range:     dr,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewWindow opens an availability window.
func NewWindow(listingID listings.ListingID, dr daterange.DateRange, units int, notes string, now time.Time) (*Entry, error) {
	if units < 0 {
		return nil, ErrInvalidUnits
	}
	e, err := newEntry(listingID, dr, StatusAvailable, now)
	if err != nil {
		return nil, err
	}
	e.TotalUnits = units
	e.Notes = strings.TrimSpace(notes)
	return e, nil
}

// NewBlock is a host-initiated closure of maintenance or blocked status.
func NewBlock(listingID listings.ListingID, dr daterange.DateRange, status Status, notes string, now time.Time) (*Entry, error) {
	if status != StatusMaintenance && status != StatusBlocked {
		return nil, ErrInvalidStatus.With("status", string(status))
	}
	e, err := newEntry(listingID, dr, status, now)
	if err != nil {
		return nil, err
	}
	e.Notes = strings.TrimSpace(notes)
	return e, nil
}

// NewMirror is the fully_booked entry derived from an accepted reservation.
func NewMirror(listingID listings.ListingID, dr daterange.DateRange, reservationID string, now time.Time) (*Entry, error) {
	e, err := newEntry(listingID, dr, StatusFullyBooked, now)
	if err != nil {
		return nil, err
	}
	e.ReservationID = reservationID
	return e, nil
}

// Derived reports whether the entry mirrors a reservation.
func (e *Entry) Derived() bool {
	return e.ReservationID != ""
}

func (e *Entry) UpdateNotes(notes string, units int, now time.Time) error {
	if units < 0 {
		return ErrInvalidUnits
	}
	e.Notes = strings.TrimSpace(notes)
	e.TotalUnits = units
	e.UpdatedAt = now.UTC()
	return nil
}

// Move shifts a mirror along with its reservation.
func (e *Entry) Move(dr daterange.DateRange, now time.Time) {
	e.Range = dr
	e.UpdatedAt = now.UTC()
}

func (e *Entry) Interval() availability.Interval {
	return availability.Interval{Source: availability.SourceLedger, ID: string(e.ID), Status: string(e.Status), Range: e.Range}
}

func (e *Entry) Clone() *Entry {
	cp := *e
	return &cp
}

type Repository interface {
	ByID(ctx context.Context, id EntryID) (*Entry, error)
	// FindExact returns the entry whose range equals dr, or ErrEntryNotFound.
	FindExact(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange) (*Entry, error)
	Save(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id EntryID) error
	// DeleteByReservation removes the mirrors of a reservation and reports how many were removed.
	DeleteByReservation(ctx context.Context, reservationID string) (int, error)
	MirrorOf(ctx context.Context, reservationID string) (*Entry, error)
	Overlapping(ctx context.Context, listingID listings.ListingID, dr daterange.DateRange, statuses ...Status) ([]*Entry, error)
	// List returns entries of a listing ordered by check-in; a nil window returns all of them.
	List(ctx context.Context, listingID listings.ListingID, window *daterange.DateRange) ([]*Entry, error)
	// Mirrors returns every derived entry, optionally for one listing.
	Mirrors(ctx context.Context, listingID listings.ListingID) ([]*Entry, error)
}
