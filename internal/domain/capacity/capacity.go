// Package capacity checks a requested party against a listing's occupancy limits.
package capacity

import (
	"fmt"

	"bookingengine/internal/domain/shared/failure"
)

// Guests is a requested party.
type Guests struct {
	Adults   int `json:"adults" bson:"adults"`
	Children int `json:"children" bson:"children"`
	Infants  int `json:"infants" bson:"infants"`
	Pets     int `json:"pets" bson:"pets"`
}

// Limits are a listing's per-category maximums.
type Limits struct {
	Adults   int `json:"adults" bson:"adults"`
	Children int `json:"children" bson:"children"`
	Infants  int `json:"infants" bson:"infants"`
	Pets     int `json:"pets" bson:"pets"`
}

type Category string

const (
	CategoryTotal    Category = "total"
	CategoryAdults   Category = "adults"
	CategoryChildren Category = "children"
	CategoryInfants  Category = "infants"
	CategoryPets     Category = "pets"
)

var (
	ErrCapacityExceeded = failure.Validation("CAPACITY_EXCEEDED", "party exceeds listing capacity")
	ErrInvalidGuests    = failure.Validation("INVALID_GUESTS", "guest counts must be non-negative with at least one adult")
)

var reasonCodes = map[Category]string{
	CategoryTotal:    "MAX_GUESTS_EXCEEDED",
	CategoryAdults:   "ADULTS_EXCEEDED",
	CategoryChildren: "CHILDREN_EXCEEDED",
	CategoryInfants:  "INFANTS_EXCEEDED",
	CategoryPets:     "PETS_EXCEEDED",
}

// Error names the first category that broke its limit.
type Error struct {
	Category  Category
	Requested int
	Max       int
}

func (e *Error) Error() string {
	return fmt.Sprintf("capacity: %s requested %d exceeds maximum %d", e.Category, e.Requested, e.Max)
}

// Reason is the per-category code, e.g. ADULTS_EXCEEDED.
func (e *Error) Reason() string {
	return reasonCodes[e.Category]
}

// Unwrap exposes the validation failure carrying the category details.
func (e *Error) Unwrap() error {
	return ErrCapacityExceeded.
		With("category", string(e.Category)).
		With("reason", e.Reason()).
		With("requested", e.Requested).
		With("max", e.Max)
}

// Total counts guests that occupy beds; infants and pets are limited separately.
func (g Guests) Total() int {
	return g.Adults + g.Children
}

func (g Guests) Validate() error {
	if g.Adults < 1 || g.Children < 0 || g.Infants < 0 || g.Pets < 0 {
		return ErrInvalidGuests
	}
	return nil
}

// Validate checks the party in a fixed order and stops at the first violation:
// total against maxGuests, then adults, children, infants, pets.
func Validate(requested Guests, limits Limits, maxGuests int) error {
	checks := []struct {
		category  Category
		requested int
		max       int
	}{
		{CategoryTotal, requested.Total(), maxGuests},
		{CategoryAdults, requested.Adults, limits.Adults},
		{CategoryChildren, requested.Children, limits.Children},
		{CategoryInfants, requested.Infants, limits.Infants},
		{CategoryPets, requested.Pets, limits.Pets},
	}
	for _, c := range checks {
		if c.requested > c.max {
			return &Error{Category: c.category, Requested: c.requested, Max: c.max}
		}
	}
	return nil
}
