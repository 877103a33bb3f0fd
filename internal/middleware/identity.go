package middleware

// identity.go holds the context helpers shared by the middleware in this
// package and by handlers. The session middleware stores the redacted user
// under a private key; everything else reads it back through CurrentUser.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/model"
)

const userKey = "session_user"

// SetUser attaches the authenticated user to the request context.
func SetUser(c echo.Context, u model.PublicUser) {
	c.Set(userKey, u)
}

// CurrentUser returns the user attached by Session, if any.
func CurrentUser(c echo.Context) (model.PublicUser, bool) {
	u, ok := c.Get(userKey).(model.PublicUser)
	return u, ok
}

// userID extracts a user identifier for rate-limit keys. It returns "anon"
// when no user is authenticated.
func userID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok && u.ID != "" {
		return u.ID
	}
	return "anon"
}
