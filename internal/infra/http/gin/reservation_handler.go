package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/handlers/reservations"
	"bookingengine/internal/app/policies"
	"bookingengine/internal/app/queries"
	"bookingengine/internal/domain/reservation"
)

type ReservationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createReservationRequest struct {
	ListingID string     `json:"listing_id"`
	CheckIn   string     `json:"check_in"`
	CheckOut  string     `json:"check_out"`
	Guests    dto.Guests `json:"guests"`
	Message   string     `json:"message"`
	Instant   bool       `json:"instant_book"`
	Amount    int64      `json:"amount"`
}

type updateReservationRequest struct {
	CheckIn  *string     `json:"check_in"`
	CheckOut *string     `json:"check_out"`
	Guests   *dto.Guests `json:"guests"`
	Message  *string     `json:"message"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h ReservationHandler) Create(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req createReservationRequest
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
	cmd := reservations.CreateCommand{
		ListingID:       strings.TrimSpace(req.ListingID),
		RequesterID:     user.UserID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Guests:          req.Guests.Domain(),
		Message:         strings.TrimSpace(req.Message),
		Instant:         req.Instant,
		AmountCents:     req.Amount,
		IdempotencyKeyV: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	}
	result, err := commands.Dispatch[reservations.CreateCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusCreated, "reservation created", result)
}

func (h ReservationHandler) List(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
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
	limit, _ := strconv.Atoi(c.Query("limit"))
	q := reservations.ListQuery{
		ViewerID:    user.UserID,
		Admin:       user.HasRole(policies.RoleAdmin),
		Status:      c.Query("status"),
		ListingID:   c.Query("listing_id"),
		RequesterID: c.Query("requester_id"),
		HostID:      c.Query("assigned_to"),
		From:        from,
		To:          to,
		Limit:       limit,
	}
	result, err := queries.Ask[reservations.ListQuery, dto.ReservationCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservations", result)
}

func (h ReservationHandler) Get(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	q := reservations.GetQuery{
		ReservationID: strings.TrimSpace(c.Param("id")),
		ViewerID:      user.UserID,
		Admin:         user.HasRole(policies.RoleAdmin),
	}
	result, err := queries.Ask[reservations.GetQuery, *dto.Reservation](c.Request.Context(), h.Queries, q)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservation", result)
}

func (h ReservationHandler) Accept(c *gin.Context) {
	host, ok := requireRole(c, "")
	if !ok {
		return
	}
	cmd := reservations.AcceptCommand{ReservationID: strings.TrimSpace(c.Param("id")), HostID: host.UserID}
	result, err := commands.Dispatch[reservations.AcceptCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservation accepted", result)
}

func (h ReservationHandler) Reject(c *gin.Context) {
	host, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req, true) {
		return
	}
	cmd := reservations.RejectCommand{
		ReservationID: strings.TrimSpace(c.Param("id")),
		HostID:        host.UserID,
		Reason:        strings.TrimSpace(req.Reason),
	}
	result, err := commands.Dispatch[reservations.RejectCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservation rejected", result)
}

func (h ReservationHandler) Cancel(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req, true) {
		return
	}
	cmd := reservations.CancelCommand{
		ReservationID: strings.TrimSpace(c.Param("id")),
		RequesterID:   user.UserID,
		Reason:        strings.TrimSpace(req.Reason),
	}
	result, err := commands.Dispatch[reservations.CancelCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservation cancelled", result)
}

func (h ReservationHandler) Update(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req updateReservationRequest
	if !bindJSON(c, &req, false) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	cmd := reservations.UpdateCommand{
		ReservationID: strings.TrimSpace(c.Param("id")),
		RequesterID:   user.UserID,
		Patch:         patch,
	}
	result, err := commands.Dispatch[reservations.UpdateCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservation updated", result)
}

func (h ReservationHandler) Delete(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	cmd := reservations.DeleteCommand{ReservationID: strings.TrimSpace(c.Param("id")), Actor: user.UserID}
	result, err := commands.Dispatch[reservations.DeleteCommand, *reservations.DeleteResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservation deleted", result)
}

func (h ReservationHandler) History(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	result, err := queries.Ask[reservations.HistoryQuery, dto.ReservationHistory](c.Request.Context(), h.Queries, reservations.HistoryQuery{RequesterID: user.UserID})
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "reservation history", result)
}

func (r updateReservationRequest) patch() (reservation.Patch, error) {
	var p reservation.Patch
	if r.CheckIn != nil {
		d, err := requireDay("check_in", *r.CheckIn)
		if err != nil {
			return p, err
		}
		p.CheckIn = &d
	}
	if r.CheckOut != nil {
		d, err := requireDay("check_out", *r.CheckOut)
		if err != nil {
			return p, err
		}
		p.CheckOut = &d
	}
	if r.Guests != nil {
		g := r.Guests.Domain()
		p.Guests = &g
	}
	if r.Message != nil {
		msg := strings.TrimSpace(*r.Message)
		p.Message = &msg
	}
	return p, nil
}
