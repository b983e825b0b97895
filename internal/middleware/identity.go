package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// DinerID returns the authenticated diner stored by JWTAuth.  ok is false
// on routes that run without authentication.
func DinerID(c echo.Context) (uint64, bool) {
	id, ok := c.Get("user_id").(uint64)
	return id, ok && id != 0
}

// dinerKey is the rate-limit identity of the caller; "anon" before JWTAuth.
func dinerKey(c echo.Context) string {
	if id, ok := DinerID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
