package capacity

import (
	"errors"
	"testing"

	"bookingengine/internal/domain/shared/failure"
)

var limits = Limits{Adults: 2, Children: 2, Infants: 1, Pets: 0}

func TestValidateOrderAndCategory(t *testing.T) {
	cases := []struct {
		name     string
		guests   Guests
		max      int
		category Category
		reason   string
	}{
		{"adults", Guests{Adults: 3}, 4, CategoryAdults, "ADULTS_EXCEEDED"},
		{"total before adults", Guests{Adults: 3, Children: 2}, 4, CategoryTotal, "MAX_GUESTS_EXCEEDED"},
		{"children", Guests{Adults: 1, Children: 3}, 4, CategoryChildren, "CHILDREN_EXCEEDED"},
		{"infants", Guests{Adults: 1, Infants: 2}, 4, CategoryInfants, "INFANTS_EXCEEDED"},
		{"pets", Guests{Adults: 1, Pets: 1}, 4, CategoryPets, "PETS_EXCEEDED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.guests, limits, tc.max)
			var capErr *Error
			if !errors.As(err, &capErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if capErr.Category != tc.category || capErr.Reason() != tc.reason {
				t.Fatalf("got %s/%s, want %s/%s", capErr.Category, capErr.Reason(), tc.category, tc.reason)
			}
			if !errors.Is(err, ErrCapacityExceeded) {
				t.Fatalf("capacity error must match CAPACITY_EXCEEDED")
			}
			if failure.KindOf(err) != failure.KindValidation {
				t.Fatalf("capacity error must be a validation failure")
			}
		})
	}
}

func TestValidateAcceptsPartyWithinLimits(t *testing.T) {
	if err := Validate(Guests{Adults: 2, Children: 2, Infants: 1}, limits, 4); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUnwrapCarriesDetails(t *testing.T) {
	fe, ok := failure.As(Validate(Guests{Adults: 3}, Limits{Adults: 2}, 5))
	if !ok {
		t.Fatalf("expected failure in chain")
	}
	if fe.Details["requested"] != 3 || fe.Details["max"] != 2 || fe.Details["category"] != "adults" {
		t.Fatalf("unexpected details %v", fe.Details)
	}
}

func TestGuestsValidate(t *testing.T) {
	for _, g := range []Guests{{}, {Adults: 1, Children: -1}, {Adults: 2, Pets: -3}} {
		if !errors.Is(g.Validate(), ErrInvalidGuests) {
			t.Fatalf("expected INVALID_GUESTS for %+v", g)
		}
	}
	if err := (Guests{Adults: 1}).Validate(); err != nil {
		t.Fatalf("single adult is valid: %v", err)
	}
}
