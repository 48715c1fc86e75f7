package reservation

import (
	"sort"
	"time"

	"bookingengine/internal/domain/shared/daterange"
)

type History struct {
	Upcoming []*Reservation
	Past     []*Reservation
}

// Partition splits a requester's reservations around one UTC-midnight "today".
// A stay is past only once its check-out day is before today, so stays in
// progress and stays checking out today are upcoming. Upcoming is ordered by
// check-in ascending, past by check-out descending.
func Partition(list []*Reservation, now time.Time) History {
	today := daterange.Day(now)
	var h History
	for _, r := range list {
		if r.Range.CheckOut.Before(today) {
			h.Past = append(h.Past, r)
			continue
		}
		h.Upcoming = append(h.Upcoming, r)
	}
	sort.SliceStable(h.Upcoming, func(i, j int) bool {
		return h.Upcoming[i].Range.CheckIn.Before(h.Upcoming[j].Range.CheckIn)
	})
	sort.SliceStable(h.Past, func(i, j int) bool {
		return h.Past[i].Range.CheckOut.After(h.Past[j].Range.CheckOut)
	})
	return h
}

// SortByUpdatedDesc orders reservations most recently changed first.
func SortByUpdatedDesc(list []*Reservation) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
}
