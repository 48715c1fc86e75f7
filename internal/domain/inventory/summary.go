package inventory

import (
	"sort"
	"time"

	"bookingengine/internal/domain/shared/daterange"
)

type SummaryItem struct {
	ID            EntryID
	Range         daterange.DateRange
	Status        Status
	Notes         string
	ReservationID string
}

// Summarize lists entries overlapping window (all when nil) ordered by check-in.
func Summarize(entries []*Entry, window *daterange.DateRange) []SummaryItem {
	out := make([]SummaryItem, 0, len(entries))
	for _, e := range entries {
		if window != nil && !e.Range.Overlaps(*window) {
			continue
		}
		out = append(out, SummaryItem{ID: e.ID, Range: e.Range, Status: e.Status, Notes: e.Notes, ReservationID: e.ReservationID})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.CheckIn.Before(out[j].Range.CheckIn)
	})
	return out
}

// DayOpen marks days no entry covers.
const DayOpen = "open"

var dayPriority = map[string]int{
	DayOpen:                   0,
	string(StatusAvailable):   1,
	string(StatusBlocked):     2,
	string(StatusMaintenance): 3,
	string(StatusFullyBooked): 4,
}

type Day struct {
	Date   time.Time
	Status string
}

type MonthCalendar struct {
	Year  int
	Month time.Month
	Days  []Day
}

// BuildCalendar resolves one status per day of the month. When several
// entries cover a day the strongest wins: fully_booked, maintenance, blocked,
// available. Booked ranges are overlaid as fully_booked.
func BuildCalendar(year int, month time.Month, entries []*Entry, booked []daterange.DateRange) MonthCalendar {
	span := daterange.Month(year, month)
	days := span.Days()
	cal := MonthCalendar{Year: year, Month: month, Days: make([]Day, len(days))}
	for i, d := range days {
		cal.Days[i] = Day{Date: d, Status: DayOpen}
	}
	mark := func(dr daterange.DateRange, status string) {
		part, ok := dr.Intersect(span)
		if !ok {
			return
		}
		for _, d := range part.Days() {
			idx := int(d.Sub(span.CheckIn).Hours() / 24)
			if dayPriority[status] > dayPriority[cal.Days[idx].Status] {
				cal.Days[idx].Status = status
			}
		}
	}
	for _, e := range entries {
		mark(e.Range, string(e.Status))
	}
	for _, dr := range booked {
		mark(dr, string(StatusFullyBooked))
	}
	return cal
}

// BlockedDates lists every day of the calendar that cannot be booked.
func (c MonthCalendar) BlockedDates() []time.Time {
	var out []time.Time
	for _, d := range c.Days {
		if Status(d.Status).Blocking() {
			out = append(out, d.Date)
		}
	}
	return out
}
