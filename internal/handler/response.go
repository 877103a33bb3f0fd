// Package handler turns HTTP requests into service calls. Every JSON
// response uses the same envelope; errors are rendered by ErrorHandler.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/logging"
	"github.com/iliyamo/photo-monetization/internal/middleware"
	"github.com/iliyamo/photo-monetization/internal/model"
)

// requestTimeout bounds the work done for one request.
const requestTimeout = 5 * time.Second

type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

// ErrorHandler renders every error as an envelope. Internal causes are
// logged, and only shown to clients outside production.
func ErrorHandler(log logging.Logger, production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err, production)
		if status >= http.StatusInternalServerError {
			log.Error(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"error", err,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn(c.Request().Context(), "write error response", "error", werr)
		}
	}
}

func render(err error, production bool) (int, envelope) {
	var (
		ae  *apperr.Error
		he  *echo.HTTPError
		ves validator.ValidationErrors
	)
	switch {
	case errors.As(err, &ae):
		status := ae.Kind.Status()
		msg := ae.Message
		if ae.Kind == apperr.KindInternal {
			msg = internalMessage(err, production)
		}
		return status, envelope{Error: msg, Details: ae.Details}
	case errors.As(err, &ves):
		return http.StatusBadRequest, envelope{Error: "Validation failed", Details: fieldDetails(ves)}
	case errors.As(err, &he):
		if he.Code >= http.StatusInternalServerError {
			return he.Code, envelope{Error: internalMessage(err, production)}
		}
		return he.Code, envelope{Error: fmt.Sprint(he.Message)}
	}
	return http.StatusInternalServerError, envelope{Error: internalMessage(err, production)}
}

func internalMessage(err error, production bool) string {
	if production {
		return "Internal server error"
	}
	return err.Error()
}

// Validator adapts go-playground/validator to echo.Validator. Field names
// in error details are the JSON names.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

func fieldDetails(ves validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(ves))
	for _, fe := range ves {
		details[fe.Field()] = fieldMessage(fe)
	}
	return details
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " item(s)"
		}
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}

// bindAndValidate decodes the body into dst and runs its validate tags.
func bindAndValidate(c echo.Context, dst any) error {
	if err := bind(c, dst); err != nil {
		return err
	}
	return validate(c, dst)
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("Malformed request body", nil)
	}
	return nil
}

func validate(c echo.Context, dst any) error {
	err := c.Validate(dst)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		return apperr.Validation("Validation failed", fieldDetails(ves))
	}
	return err
}

// sessionUser returns the user attached by the session middleware.
func sessionUser(c echo.Context) (model.PublicUser, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return model.PublicUser{}, apperr.Unauthenticated("Authentication required")
	}
	return u, nil
}

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}
