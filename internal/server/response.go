package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/logging"
	"options-lab/internal/validation"
)

// APIResponse is the envelope of every API answer.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

var errUnavailable = errors.New("service unavailable")

func dataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// bindAndValidate decodes the body into req, applies `default` tags and
// validates the result.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperrors.Wrap(apperrors.ErrInputValidation, "malformed request body")
	}
	return validation.DefaultsAndStruct(c.Request().Context(), req)
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInputValidation),
		errors.Is(err, apperrors.ErrUnknownStrategy),
		errors.Is(err, apperrors.ErrUnknownCriterion),
		errors.Is(err, apperrors.ErrInsufficientStrikes),
		errors.Is(err, apperrors.ErrExpired):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrDataNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		var se *apperrors.StrategyError
		if errors.As(err, &se) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, APIResponse{Status: he.Code, Message: msg})
		return
	}

	status := statusOf(err)
	resp := APIResponse{Status: status, Message: err.Error()}
	switch status {
	case http.StatusBadRequest:
		resp.Data = validation.Fields(err)
	case http.StatusInternalServerError:
		logger := logging.FromContext(c.Request().Context())
		logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		resp.Message = http.StatusText(status)
	}
	_ = c.JSON(status, resp)
}
