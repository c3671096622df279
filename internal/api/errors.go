package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"board-sync/internal/board"
	"board-sync/internal/domain"
	"board-sync/internal/gateway"
)

type errorBody struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// writeError maps board and gateway errors to responses. Validation errors
// carry the offending field so the view can show them inline.
func writeError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	var roe *gateway.RemoteOperationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, errorBody{Field: ve.Field, Message: ve.Message})
	case errors.Is(err, board.ErrMutationInFlight):
		return c.JSON(http.StatusConflict, errorBody{Message: err.Error()})
	case errors.Is(err, board.ErrUnknownTask):
		return c.JSON(http.StatusNotFound, errorBody{Message: err.Error()})
	case errors.Is(err, board.ErrNotLoaded), errors.Is(err, board.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, errorBody{Message: err.Error()})
	case errors.As(err, &roe):
		return c.JSON(http.StatusBadGateway, errorBody{Message: roe.Message})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorBody{Message: err.Error()})
}
