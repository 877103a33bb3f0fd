package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/auth"
	"github.com/iliyamo/photo-monetization/internal/model"
	"github.com/iliyamo/photo-monetization/internal/service"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/v1/auth"
)

// AuthHandler serves /v1/auth and /v1/me.
type AuthHandler struct {
	auth       *service.AuthService
	users      *service.UserDirectory
	refreshTTL time.Duration
	secure     bool
}

// NewAuthHandler builds the handler. secure marks the refresh cookie
// Secure and should be true in production.
func NewAuthHandler(a *service.AuthService, users *service.UserDirectory, refreshTTL time.Duration, secure bool) *AuthHandler {
	return &AuthHandler{auth: a, users: users, refreshTTL: refreshTTL, secure: secure}
}

// ----- DTOs -----

type signupReq struct {
	Email           string                 `json:"email" validate:"required,email,max=254"`
	Password        string                 `json:"password" validate:"required,max=72"`
	Name            string                 `json:"name" validate:"max=100"`
	ExperienceLevel *model.ExperienceLevel `json:"experienceLevel" validate:"omitempty,oneof=beginner enthusiast pro agency"`
	ArchiveSize     *model.ArchiveSize     `json:"archiveSize" validate:"omitempty,oneof=small medium large massive"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type googleReq struct {
	IDToken string `json:"idToken" validate:"required"`
}

type sessionResp struct {
	User                 model.PublicUser `json:"user"`
	AccessToken          string           `json:"accessToken"`
	AccessTokenExpiresAt time.Time        `json:"accessTokenExpiresAt"`
}

type accessResp struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
}

// Signup: create a password account and start a session.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validate(c, &req); err != nil {
		return err
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	s, err := h.auth.Signup(ctx, service.SignupInput{
		Email:           req.Email,
		Password:        req.Password,
		Name:            req.Name,
		ExperienceLevel: req.ExperienceLevel,
		ArchiveSize:     req.ArchiveSize,
	})
	if err != nil {
		return err
	}
	return h.startSession(c, http.StatusCreated, s)
}

// Login: the same 401 for an unknown email and a wrong password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	s, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return h.startSession(c, http.StatusOK, s)
}

// Google: sign in with a Google ID token, creating the account on first use.
func (h *AuthHandler) Google(c echo.Context) error {
	var req googleReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	s, err := h.auth.Google(ctx, req.IDToken)
	if err != nil {
		return err
	}
	return h.startSession(c, http.StatusOK, s)
}

// Refresh: exchange the refresh cookie for a new access token and cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var raw string
	if ck, err := c.Cookie(refreshCookieName); err == nil {
		raw = ck.Value
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	s, err := h.auth.Refresh(ctx, raw)
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, s.RefreshToken)
	return respond(c, http.StatusOK, accessResp{
		AccessToken:          s.AccessToken.Token,
		AccessTokenExpiresAt: s.AccessToken.ExpiresAt,
	})
}

// Logout: revoke every refresh token of the caller and clear the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.auth.Logout(ctx, u.ID); err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return respond(c, http.StatusOK, nil)
}

// Me returns the caller's public profile.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}

// UpdateMe applies a partial profile update. Keys outside the whitelist are
// ignored; null clears a nullable field.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	var upd model.UserUpdate
	if err := bind(c, &upd); err != nil {
		return err
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	pub, err := h.users.Update(ctx, u.ID, upd)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": pub})
}

func (h *AuthHandler) startSession(c echo.Context, status int, s service.Session) error {
	h.setRefreshCookie(c, s.RefreshToken)
	return respond(c, status, sessionResp{
		User:                 s.User,
		AccessToken:          s.AccessToken.Token,
		AccessTokenExpiresAt: s.AccessToken.ExpiresAt,
	})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, tok auth.IssuedToken) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    tok.Token,
		Path:     refreshCookiePath,
		MaxAge:   int(h.refreshTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
