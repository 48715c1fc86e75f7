package inventory

import (
	"context"
	"strings"
	"time"

	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/support"
	"bookingengine/internal/app/queries"
	"bookingengine/internal/app/uow"
	domain "bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/domain/shared/daterange"
)

type SummaryQuery struct {
	ListingID string
	From      *time.Time
	To        *time.Time
}

func (SummaryQuery) Key() string { return summaryKey }

type SummaryHandler struct {
	Deps
}

func (h *SummaryHandler) Handle(ctx context.Context, q SummaryQuery) (dto.LedgerSummary, error) {
	listingID := strings.TrimSpace(q.ListingID)
	if listingID == "" {
		return dto.LedgerSummary{}, ErrListingRequired
	}
	win, err := window(q.From, q.To)
	if err != nil {
		return dto.LedgerSummary{}, err
	}
	var out dto.LedgerSummary
	err = support.ReadOnly(ctx, h.UoW, func(ctx context.Context, unit uow.UnitOfWork) error {
		entries, err := unit.Ledger().List(ctx, listings.ListingID(listingID), win)
		if err != nil {
			return err
		}
		out = dto.MapSummary(listingID, domain.Summarize(entries, win))
		return nil
	})
	return out, err
}

type CalendarQuery struct {
	ListingID string
	Year      int
	Month     int
}

func (CalendarQuery) Key() string { return calendarKey }

// CalendarHandler resolves one status per day. Accepted reservations are
// overlaid so the view stays right when ledger mirrors are off or stale.
type CalendarHandler struct {
	Deps
}

func (h *CalendarHandler) Handle(ctx context.Context, q CalendarQuery) (dto.Calendar, error) {
	listingID := listings.ListingID(strings.TrimSpace(q.ListingID))
	if listingID == "" {
		return dto.Calendar{}, ErrListingRequired
	}
	year, month := q.Year, q.Month
	if year == 0 && month == 0 {
		now := h.now()
		year, month = now.Year(), int(now.Month())
	}
	if month < 1 || month > 12 {
		return dto.Calendar{}, ErrInvalidMonth
	}
	var out dto.Calendar
	err := support.ReadOnly(ctx, h.UoW, func(ctx context.Context, unit uow.UnitOfWork) error {
		cal, err := buildCalendar(ctx, unit, listingID, year, time.Month(month))
		if err != nil {
			return err
		}
		out = dto.MapCalendar(string(listingID), cal)
		return nil
	})
	return out, err
}

func buildCalendar(ctx context.Context, unit uow.UnitOfWork, listingID listings.ListingID, year int, month time.Month) (domain.MonthCalendar, error) {
	span := daterange.Month(year, month)
	entries, err := unit.Ledger().List(ctx, listingID, &span)
	if err != nil {
		return domain.MonthCalendar{}, err
	}
	accepted, err := unit.Reservations().Overlapping(ctx, listingID, span, reservation.StatusAccepted)
	if err != nil {
		return domain.MonthCalendar{}, err
	}
	booked := make([]daterange.DateRange, 0, len(accepted))
	for _, r := range accepted {
		booked = append(booked, r.Range)
	}
	return domain.BuildCalendar(year, month, entries, booked), nil
}

type BlockedDatesQuery struct {
	ListingID string
	Months    int
}

func (BlockedDatesQuery) Key() string { return blockedDatesKey }

type BlockedDates struct {
	ListingID string   `json:"listing_id"`
	Dates     []string `json:"blocked_dates"`
}

// BlockedDatesHandler lists unbookable days from the current month onwards.
type BlockedDatesHandler struct {
	Deps
}

func (h *BlockedDatesHandler) Handle(ctx context.Context, q BlockedDatesQuery) (BlockedDates, error) {
	listingID := listings.ListingID(strings.TrimSpace(q.ListingID))
	if listingID == "" {
		return BlockedDates{}, ErrListingRequired
	}
	months := q.Months
	if months <= 0 {
		months = 3
	}
	if months > 24 {
		months = 24
	}
	out := BlockedDates{ListingID: string(listingID), Dates: []string{}}
	start := daterange.Day(h.now())
	err := support.ReadOnly(ctx, h.UoW, func(ctx context.Context, unit uow.UnitOfWork) error {
		for i := 0; i < months; i++ {
			m := time.Date(start.Year(), start.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
			cal, err := buildCalendar(ctx, unit, listingID, m.Year(), m.Month())
			if err != nil {
				return err
			}
			for _, d := range cal.BlockedDates() {
				if d.Before(start) {
					continue
				}
				out.Dates = append(out.Dates, d.Format(daterange.Layout))
			}
		}
		return nil
	})
	return out, err
}

type AvailabilityQuery struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
}

func (AvailabilityQuery) Key() string { return availabilityKey }

type AvailabilityHandler struct {
	Deps
}

func (h *AvailabilityHandler) Handle(ctx context.Context, q AvailabilityQuery) (dto.Availability, error) {
	listingID := listings.ListingID(strings.TrimSpace(q.ListingID))
	if listingID == "" {
		return dto.Availability{}, ErrListingRequired
	}
	dr, err := daterange.New(q.CheckIn, q.CheckOut)
	if err != nil {
		return dto.Availability{}, domain.ErrInvalidDates.Wrap(err)
	}
	var out dto.Availability
	err = support.ReadOnly(ctx, h.UoW, func(ctx context.Context, unit uow.UnitOfWork) error {
		res, err := support.CheckWindow(ctx, unit, listingID, dr, "")
		if err != nil {
			return err
		}
		out = dto.MapAvailability(string(listingID), dr, res)
		return nil
	})
	return out, err
}

var _ queries.Handler[SummaryQuery, dto.LedgerSummary] = (*SummaryHandler)(nil)
var _ queries.Handler[CalendarQuery, dto.Calendar] = (*CalendarHandler)(nil)
var _ queries.Handler[BlockedDatesQuery, BlockedDates] = (*BlockedDatesHandler)(nil)
var _ queries.Handler[AvailabilityQuery, dto.Availability] = (*AvailabilityHandler)(nil)
