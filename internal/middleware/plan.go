package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/model"
)

// RequirePlan returns a middleware that lets the request through only when
// the authenticated user is on one of the given plans. It must run after
// Session.
func RequirePlan(plans ...model.PlanTier) echo.MiddlewareFunc {
	allowed := make(map[model.PlanTier]bool, len(plans))
	for _, p := range plans {
		allowed[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.Unauthenticated("Authentication required")
			}
			if !allowed[u.Plan] {
				return apperr.Forbidden("Your plan does not include this feature")
			}
			return next(c)
		}
	}
}
