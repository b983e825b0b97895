// Package middleware contains the Echo middleware shared by the /v1 routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the diner id it was issued to under "user_id" as a uint64.
// Availability tokens are rejected here because their audience differs.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			dinerID, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set("user_id", dinerID)
			return next(c)
		}
	}
}
