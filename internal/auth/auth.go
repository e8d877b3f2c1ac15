package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// UserEmailHeader carries the caller's address, set by the fronting proxy
const UserEmailHeader = "X-User-Email"

// userEmailKey is where Middleware stores the caller's address in the echo context
const userEmailKey = "user_email"

// AdminPolicy decides which callers may use admin routes
type AdminPolicy struct {
	admins map[string]struct{}
}

// NewAdminPolicy creates a policy from a list of admin addresses
func NewAdminPolicy(emails []string) *AdminPolicy {
	admins := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			admins[e] = struct{}{}
		}
	}
	return &AdminPolicy{admins: admins}
}

// IsAdmin reports whether email belongs to an admin. Comparison ignores case.
func (p *AdminPolicy) IsAdmin(email string) bool {
	if p == nil {
		return false
	}
	_, ok := p.admins[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// UserEmail returns the caller's address from the request header
func UserEmail(c echo.Context) string {
	if v, ok := c.Get(userEmailKey).(string); ok && v != "" {
		return v
	}
	return strings.ToLower(strings.TrimSpace(c.Request().Header.Get(UserEmailHeader)))
}

// Middleware creates middleware for admin route authorization
func Middleware(policy *AdminPolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			email := UserEmail(c)
			if email == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Unauthorized. Missing " + UserEmailHeader + " header.",
				})
			}
			if !policy.IsAdmin(email) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "Forbidden. Admin access required.",
				})
			}

			c.Set(userEmailKey, email)
			return next(c)
		}
	}
}
