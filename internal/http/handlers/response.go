// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints.
// The wire contract keeps error bodies deliberately small: every non-2xx
// response carries a JSON-encoded string (e.g. `"order not found"`), with the
// correlation id in the X-Request-ID response header rather than the body.
//
// Conventions:
//   - `fail()` centralizes error formatting and ensures 5xx responses are
//     logged with request context for observability.
//   - `ok()` simplifies writing success responses in a consistent shape.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	X-Request-ID: 123e4567-e89b-12d3-a456-426614174000
//	"order not found"
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ndgaspar/go-commerce-backend/internal/http/middleware"
	"github.com/ndgaspar/go-commerce-backend/internal/services"
)

// fail aborts the request with a JSON-encoded string body.
//
// Server errors (>=500) are logged using the request-scoped logger from
// middleware so the message is correlated with the access log entry.
func fail(c *gin.Context, status int, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, msg)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error bodies without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, msg string) { fail(c, status, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// failFromService translates a workflow error into the HTTP contract:
// not-found sentinels become 404, validation sentinels 400, everything else a
// generic 500 (the underlying error is logged, never leaked to the client).
func failFromService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrProductsNotFound),
		errors.Is(err, services.ErrOrderNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrEmptyOrder),
		errors.Is(err, services.ErrInvalidPayment):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Msg("workflow error")
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}
