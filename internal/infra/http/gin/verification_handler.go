package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"bookingengine/internal/app/services/verification"
)

type VerificationHandler struct {
	Service *verification.Service
	Logger  *slog.Logger
}

type startVerificationRequest struct {
	TransactionID string         `json:"transaction_id"`
	Data          map[string]any `json:"data"`
}

func (h VerificationHandler) Start(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	var req startVerificationRequest
	if !bindJSON(c, &req, false) {
		return
	}
	sess, err := h.Service.Start(c.Request.Context(), user.UserID, req.TransactionID, req.Data)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusCreated, "verification started", sess)
}

func (h VerificationHandler) Get(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	sess, err := h.Service.Get(c.Request.Context(), user.UserID, strings.TrimSpace(c.Param("state")))
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "verification", sess)
}

// Callback is called by the verification provider, not by the user, so it
// carries no bearer token; the opaque state is the credential.
func (h VerificationHandler) Callback(c *gin.Context) {
	var payload map[string]any
	if !bindJSON(c, &payload, true) {
		return
	}
	sess, err := h.Service.Complete(c.Request.Context(), strings.TrimSpace(c.Param("state")), payload)
	if err != nil {
		handleError(c, h.Logger, err)
		return
	}
	respond(c, http.StatusOK, "verification completed", sess)
}
