package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/paychat-backend/internal/logger"
	"github.com/shinyyama/paychat-backend/internal/openpayments"
	"github.com/shinyyama/paychat-backend/internal/service"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// statusFor maps a service or network error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var apiErr *openpayments.APIError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNoPendingPurchase):
		return http.StatusBadRequest, "no_pending_purchase"
	case errors.Is(err, service.ErrPaymentRequired):
		return http.StatusPaymentRequired, "payment_required"
	case errors.Is(err, service.ErrProtocolViolation):
		return http.StatusBadGateway, "protocol_violation"
	case errors.Is(err, openpayments.ErrCircuitOpen):
		return http.StatusBadGateway, "network_unavailable"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "network_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(c echo.Context, err error) error {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log := logger.FromContext(c.Request().Context())
		log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	return c.JSON(status, NewErrorResponse(code, msg))
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
}

func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
