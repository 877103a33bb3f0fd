package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/auth"
	"github.com/iliyamo/photo-monetization/internal/model"
)

// TokenVerifier checks the signature, expiry and kind of a token.
type TokenVerifier interface {
	VerifyKind(token string, kind auth.Kind) (auth.Payload, error)
}

// UserFinder loads the user a token was issued to.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (model.User, bool, error)
}

// Session returns a middleware that requires a Bearer access token. The
// user is loaded on every request so plan changes and deletions take
// effect immediately; nothing is cached and nothing is written.
func Session(tokens TokenVerifier, users UserFinder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperr.Unauthenticated("Missing bearer token")
			}
			p, err := tokens.VerifyKind(raw, auth.KindAccess)
			if err != nil {
				return apperr.Unauthenticated("Invalid or expired token")
			}
			u, found, err := users.FindByID(c.Request().Context(), p.UserID)
			if err != nil {
				// a storage failure is a 500, not a 401
				return err
			}
			if !found {
				return apperr.Unauthenticated("Invalid or expired token")
			}
			SetUser(c, u.Public())
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
