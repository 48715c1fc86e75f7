// Package availability decides whether a date window is free given the
// reservations and ledger entries already recorded for a listing.
package availability

import (
	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
)

var ErrDatesUnavailable = failure.Conflict("DATES_UNAVAILABLE", "selected dates are not available")

// Source tells where a candidate interval came from.
type Source string

const (
	SourceReservation Source = "reservation"
	SourceLedger      Source = "ledger"
)

// Interval is anything occupying a span of nights on a listing.
type Interval struct {
	Source Source              `json:"source"`
	ID     string              `json:"id"`
	Status string              `json:"status"`
	Range  daterange.DateRange `json:"-"`
}

// StatusSet lists the statuses that make an interval blocking.
type StatusSet map[string]struct{}

func NewStatusSet(statuses ...string) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

func (s StatusSet) Has(status string) bool {
	_, ok := s[status]
	return ok
}

type Result struct {
	Available bool
	Conflicts []Interval
}

// Err returns nil when the window is free, otherwise ErrDatesUnavailable with the conflicting ids.
func (r Result) Err() error {
	if r.Available {
		return nil
	}
	ids := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		ids = append(ids, string(c.Source)+":"+c.ID)
	}
	return ErrDatesUnavailable.With("conflicts", ids)
}

// Check reports every candidate with a blocking status whose range overlaps window.
// Ranges are half-open, so a stay ending on the day another starts is not a conflict.
func Check(window daterange.DateRange, candidates []Interval, blocking StatusSet) Result {
	res := Result{Available: true}
	for _, c := range candidates {
		if !blocking.Has(c.Status) {
			continue
		}
		if !c.Range.Overlaps(window) {
			continue
		}
		res.Available = false
		res.Conflicts = append(res.Conflicts, c)
	}
	return res
}
