// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterReservations registers the diner endpoints under /v1.  JWTAuth
// runs before the limiter so buckets can be keyed by diner.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	if limiter != nil {
		g.Use(limiter)
	}
	g.POST("/search", h.Search)
	g.POST("/reservations", h.Reserve)
	g.DELETE("/reservations/:id", h.Cancel)
	g.GET("/my-reservations", h.ListUpcoming)
}
