package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/logging"
)

func TestRender(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	status, body := render(apperr.Internal("load user", cause), true)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body.Error)

	_, body = render(apperr.Internal("load user", cause), false)
	assert.Contains(t, body.Error, "connection refused")

	status, body = render(apperr.Validation("bad", map[string]string{"email": "is required"}), true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "is required", body.Details["email"])

	status, body = render(echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests"), true)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "Too many requests", body.Error)

	status, _ = render(echo.ErrNotFound, true)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = render(cause, true)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body.Error)
}

func TestValidatorUsesJSONNames(t *testing.T) {
	type req struct {
		Email string   `json:"email" validate:"required,email"`
		Tags  []string `json:"tags" validate:"min=1"`
		Level string   `json:"level" validate:"omitempty,oneof=low high"`
	}
	err := NewValidator().Validate(&req{Email: "nope", Level: "mid"})
	require.Error(t, err)

	e := echo.New()
	e.Validator = NewValidator()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	verr := validate(c, &req{Email: "nope", Level: "mid"})

	var ae *apperr.Error
	require.ErrorAs(t, verr, &ae)
	assert.Equal(t, "must be a valid email address", ae.Details["email"])
	assert.Equal(t, "must contain at least 1 item(s)", ae.Details["tags"])
	assert.Equal(t, "must be one of low, high", ae.Details["level"])
}

func TestErrorHandlerWritesEnvelope(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/me", nil), rec)

	ErrorHandler(logging.Discard(), true)(apperr.Forbidden("nope"), c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"nope"}`, rec.Body.String())
}
