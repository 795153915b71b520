// Package middleware holds the echo middleware of the service: bearer
// authentication, role gates, rate limiting and the response cache.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/utils"
)

// Context keys set by JWTAuth.
const (
	KeyUserID = "user_id" // uint64
	KeyRole   = "role"    // string
)

// JWTAuth validates the Bearer access token and stores the caller's ID
// and role in the context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			uid, role, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}
			c.Set(KeyUserID, uid)
			c.Set(KeyRole, role)
			return next(c)
		}
	}
}

// RequireRole rejects callers whose role is not listed.  It must run
// after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(KeyRole).(string)
			if !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "role not allowed"})
			}
			return next(c)
		}
	}
}

// callerKey identifies the caller for rate limit keys: the user ID when
// authenticated, "anon" otherwise.
func callerKey(c echo.Context) string {
	if uid, ok := c.Get(KeyUserID).(uint64); ok && uid != 0 {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
