package dto

import (
	"time"

	"bookingengine/internal/domain/availability"
	"bookingengine/internal/domain/inventory"
	"bookingengine/internal/domain/shared/daterange"
)

type LedgerEntry struct {
	ID            string    `json:"id"`
	ListingID     string    `json:"listing_id"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Status        string    `json:"status"`
	TotalUnits    int       `json:"total_units,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	ReservationID string    `json:"reservation_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func MapLedgerEntry(e *inventory.Entry) LedgerEntry {
	return LedgerEntry{
		ID:            string(e.ID),
		ListingID:     string(e.ListingID),
		CheckIn:       e.Range.CheckIn.Format(daterange.Layout),
		CheckOut:      e.Range.CheckOut.Format(daterange.Layout),
		Status:        string(e.Status),
		TotalUnits:    e.TotalUnits,
		Notes:         e.Notes,
		ReservationID: e.ReservationID,
		UpdatedAt:     e.UpdatedAt,
	}
}

type SummaryItem struct {
	ID            string `json:"id"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
}

type LedgerSummary struct {
	ListingID string        `json:"listing_id"`
	Items     []SummaryItem `json:"items"`
}

func MapSummary(listingID string, items []inventory.SummaryItem) LedgerSummary {
	out := LedgerSummary{ListingID: listingID, Items: make([]SummaryItem, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, SummaryItem{
			ID:            string(it.ID),
			CheckIn:       it.Range.CheckIn.Format(daterange.Layout),
			CheckOut:      it.Range.CheckOut.Format(daterange.Layout),
			Status:        string(it.Status),
			Notes:         it.Notes,
			ReservationID: it.ReservationID,
		})
	}
	return out
}

type CalendarDay struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

type Calendar struct {
	ListingID    string        `json:"listing_id"`
	Year         int           `json:"year"`
	Month        int           `json:"month"`
	Days         []CalendarDay `json:"days"`
	BlockedDates []string      `json:"blocked_dates"`
}

func MapCalendar(listingID string, cal inventory.MonthCalendar) Calendar {
	out := Calendar{
		ListingID:    listingID,
		Year:         cal.Year,
		Month:        int(cal.Month),
		Days:         make([]CalendarDay, 0, len(cal.Days)),
		BlockedDates: []string{},
	}
	for _, d := range cal.Days {
		out.Days = append(out.Days, CalendarDay{Date: d.Date.Format(daterange.Layout), Status: d.Status})
	}
	for _, d := range cal.BlockedDates() {
		out.BlockedDates = append(out.BlockedDates, d.Format(daterange.Layout))
	}
	return out
}

type Conflict struct {
	Source   string `json:"source"`
	ID       string `json:"id"`
	Status   string `json:"status"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type Availability struct {
	ListingID string     `json:"listing_id"`
	CheckIn   string     `json:"check_in"`
	CheckOut  string     `json:"check_out"`
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts"`
}

func MapAvailability(listingID string, window daterange.DateRange, res availability.Result) Availability {
	out := Availability{
		ListingID: listingID,
		CheckIn:   window.CheckIn.Format(daterange.Layout),
		CheckOut:  window.CheckOut.Format(daterange.Layout),
		Available: res.Available,
		Conflicts: make([]Conflict, 0, len(res.Conflicts)),
	}
	for _, c := range res.Conflicts {
		out.Conflicts = append(out.Conflicts, Conflict{
			Source:   string(c.Source),
			ID:       c.ID,
			Status:   c.Status,
			CheckIn:  c.Range.CheckIn.Format(daterange.Layout),
			CheckOut: c.Range.CheckOut.Format(daterange.Layout),
		})
	}
	return out
}

type ReconcileReport struct {
	ListingID      string    `json:"listing_id,omitempty"`
	Checked        int       `json:"checked"`
	RemovedOrphans []string  `json:"removed_orphans"`
	CreatedMirrors []string  `json:"created_mirrors"`
	MovedMirrors   []string  `json:"moved_mirrors"`
	ReportURL      string    `json:"report_url,omitempty"`
	RanAt          time.Time `json:"ran_at"`
}
