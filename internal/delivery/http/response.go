package http

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-auth/internal/usecase"
	"github.com/FilipeAphrody/sentinel-auth/pkg/slogx"
)

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New()}
}

func (r *RequestValidator) Validate(i interface{}) error {
	return r.v.Struct(i)
}

// bind decodes and validates the request body into req. Failures are
// ErrBadRequest errors ready for respondError.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return &usecase.Error{Kind: usecase.ErrBadRequest, Message: "invalid request body"}
	}
	if err := c.Validate(req); err != nil {
		return &usecase.Error{Kind: usecase.ErrBadRequest, Message: validationMessage(err)}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "field '" + fe.Field() + "' failed on '" + fe.Tag() + "'"
	}
	return "invalid request"
}

// respondError translates a usecase error into its HTTP status and a client-safe body.
func respondError(c echo.Context, err error) error {
	var mfa *usecase.MFARequiredError
	if errors.As(err, &mfa) {
		return c.JSON(http.StatusAccepted, echo.Map{
			"message":   "mfa_required",
			"mfa_token": mfa.MFAToken,
		})
	}

	var ue *usecase.Error
	if errors.As(err, &ue) {
		status := statusFor(ue.Kind)
		if status == http.StatusTooManyRequests && ue.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(ue.RetryAfter.Seconds())), 10))
		}
		return c.JSON(status, echo.Map{"error": ue.Message})
	}

	ctx := c.Request().Context()
	if errors.Is(err, usecase.ErrUnavailable) {
		slogx.FromContext(ctx).WarnContext(ctx, "backend unavailable", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": usecase.ErrUnavailable.Error()})
	}

	slogx.FromContext(ctx).ErrorContext(ctx, "unhandled error", slog.Any("error", err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

func statusFor(kind error) int {
	switch {
	case errors.Is(kind, usecase.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, usecase.ErrConflict):
		return http.StatusConflict
	case errors.Is(kind, usecase.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(kind, usecase.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(kind, usecase.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
