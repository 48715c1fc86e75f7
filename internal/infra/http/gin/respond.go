package ginserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"bookingengine/internal/domain/shared/daterange"
	"bookingengine/internal/domain/shared/failure"
)

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

var (
	errBadDates     = failure.Validation("INVALID_DATES", "dates must be YYYY-MM-DD")
	errTrailingData = errors.New("unexpected data after JSON body")
)

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Message: message, Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorEnvelope{Code: code, Message: message})
}

func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindValidation:
		return http.StatusUnprocessableEntity
	case failure.KindConflict:
		return http.StatusConflict
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindForbidden:
		return http.StatusForbidden
	case failure.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes the error envelope for err. Anything outside the
// failure taxonomy is logged and reported as INTERNAL_ERROR.
func handleError(c *gin.Context, logger *slog.Logger, err error) {
	if fe, ok := failure.As(err); ok {
		c.AbortWithStatusJSON(statusFor(fe.Kind), errorEnvelope{Code: fe.Code, Message: fe.Message, Details: fe.Details})
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	fields := []any{"error", err, "path", c.FullPath(), "method", c.Request.Method}
	if p, ok := principalFrom(c); ok {
		fields = append(fields, "user_id", p.UserID)
	}
	logger.ErrorContext(c.Request.Context(), "request failed", fields...)
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

// bindJSON binds the body through gin. Unknown fields are rejected by the
// decoder setting in NewRouter. An empty body leaves out untouched when
// optional is set.
func bindJSON(c *gin.Context, out any, optional bool) bool {
	err := c.ShouldBindBodyWith(out, binding.JSON)
	if optional && errors.Is(err, io.EOF) {
		return true
	}
	if err == nil {
		if raw, ok := c.Get(gin.BodyBytesKey); ok {
			if body, _ := raw.([]byte); !json.Valid(body) {
				err = errTrailingData
			}
		}
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	return true
}

// parseDay returns nil for an empty value.
func parseDay(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := daterange.ParseDay(raw)
	if err != nil {
		return nil, errBadDates.With("field", field).Wrap(err)
	}
	return &d, nil
}

func requireDay(field, raw string) (time.Time, error) {
	d, err := parseDay(field, raw)
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return time.Time{}, errBadDates.With("field", field)
	}
	return *d, nil
}
