package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/inventory"
	"bookingengine/internal/app/policies"
	"bookingengine/internal/app/queries"
	"bookingengine/internal/domain/shared/failure"
)

var errBadYear = failure.Validation("INVALID_YEAR", "year must be a number")

type InventoryHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
	Now      func() time.Time
}

type upsertWindowRequest struct {
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	TotalUnits int    `json:"total_units"`
	Notes      string `json:"notes"`
}

type blockDatesRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Status   string `json:"status"`
	Notes    string `json:"notes"`
}

type reconcileRequest struct {
	ListingID string `json:"listing_id"`
	Reason    string `json:"reason"`
}

func (h InventoryHandler) Availability(c *gin.Context) {
	checkIn, err := requireDay("check_in", c.Query("check_in"))
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	checkOut, err := requireDay("check_out", c.Query("check_out"))
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	q := inventory.AvailabilityQuery{ListingID: c.Param("id"), CheckIn: checkIn, CheckOut: checkOut}
	result, err := queries.Ask[inventory.AvailabilityQuery, dto.Availability](c.Request.Context(), h.Queries, q)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "availability", result)
}

func (h InventoryHandler) Summary(c *gin.Context) {
	if _, ok := requireRole(c, ""); !ok {
		return
	}
	from, err := parseDay("from", c.Query("from"))
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	to, err := parseDay("to", c.Query("to"))
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	q := inventory.SummaryQuery{ListingID: c.Param("id"), From: from, To: to}
	result, err := queries.Ask[inventory.SummaryQuery, dto.LedgerSummary](c.Request.Context(), h.Queries, q)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "inventory", result)
}

func (h InventoryHandler) Upsert(c *gin.Context) {
	host, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req upsertWindowRequest
	if !bindJSON(c, &req, false) {
		return
	}
	checkIn, err := requireDay("check_in", req.CheckIn)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	checkOut, err := requireDay("check_out", req.CheckOut)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	cmd := inventory.UpsertWindowCommand{
		ListingID:  c.Param("id"),
		HostID:     host.UserID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		TotalUnits: req.TotalUnits,
		Notes:      strings.TrimSpace(req.Notes),
	}
	result, err := commands.Dispatch[inventory.UpsertWindowCommand, *dto.LedgerEntry](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "inventory updated", result)
}

func (h InventoryHandler) Block(c *gin.Context) {
	host, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req blockDatesRequest
	if !bindJSON(c, &req, false) {
		return
	}
	checkIn, err := requireDay("check_in", req.CheckIn)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	checkOut, err := requireDay("check_out", req.CheckOut)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	cmd := inventory.BlockDatesCommand{
		ListingID: c.Param("id"),
		HostID:    host.UserID,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Status:    strings.TrimSpace(req.Status),
		Notes:     strings.TrimSpace(req.Notes),
	}
	result, err := commands.Dispatch[inventory.BlockDatesCommand, *dto.LedgerEntry](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusCreated, "dates blocked", result)
}

func (h InventoryHandler) Remove(c *gin.Context) {
	host, ok := requireRole(c, "")
	if !ok {
		return
	}
	cmd := inventory.RemoveEntryCommand{ListingID: c.Param("id"), HostID: host.UserID, EntryID: c.Param("entryId")}
	result, err := commands.Dispatch[inventory.RemoveEntryCommand, *inventory.RemoveEntryResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "inventory entry removed", result)
}

// Calendar defaults to the current month when year or month is omitted.
func (h InventoryHandler) Calendar(c *gin.Context) {
	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now().UTC()
	}
	year, month := now.Year(), int(now.Month())
	if raw := c.Query("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			handleError(c, h.Logger, errBadYear)
			return
		}
		year = v
	}
	if raw := c.Query("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			handleError(c, h.Logger, inventory.ErrInvalidMonth)
			return
		}
		month = v
	}
	q := inventory.CalendarQuery{ListingID: c.Param("id"), Year: year, Month: month}
	result, err := queries.Ask[inventory.CalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, q)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "calendar", result)
}

func (h InventoryHandler) BlockedDates(c *gin.Context) {
	months, _ := strconv.Atoi(c.Query("months"))
	q := inventory.BlockedDatesQuery{ListingID: c.Param("id"), Months: months}
	result, err := queries.Ask[inventory.BlockedDatesQuery, inventory.BlockedDates](c.Request.Context(), h.Queries, q)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "blocked dates", result)
}

func (h InventoryHandler) Reconcile(c *gin.Context) {
	if _, ok := requireRole(c, policies.RoleAdmin); !ok {
		return
	}
	var req reconcileRequest
	if !bindJSON(c, &req, true) {
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}
	cmd := inventory.ReconcileCommand{ListingID: strings.TrimSpace(req.ListingID), Reason: reason}
	result, err := commands.Dispatch[inventory.ReconcileCommand, *dto.ReconcileReport](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "ledger reconciled", result)
}
