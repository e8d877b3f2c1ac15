package handlers

import (
	"net/http"

	"clientreports/internal/apperrors"
	"clientreports/internal/models"

	"github.com/labstack/echo/v4"
)

// statusFor maps an error kind onto an HTTP status
func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsProvider(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFor(err), models.ErrorResponse{Error: err.Error()})
}
