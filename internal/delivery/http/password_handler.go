package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// PasswordResetService is implemented by usecase.PasswordResetFlow.
type PasswordResetService interface {
	Request(ctx context.Context, email string) string
	Redeem(ctx context.Context, token, newPassword string) error
}

type PasswordHandler struct {
	resets PasswordResetService
}

func NewPasswordHandler(g *echo.Group, r PasswordResetService) {
	handler := &PasswordHandler{resets: r}

	g.POST("/password/forgot", handler.Forgot)
	g.POST("/password/reset", handler.Reset)
}

type forgotRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// Forgot answers identically whether or not the account exists.
func (h *PasswordHandler) Forgot(c echo.Context) error {
	var req forgotRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	msg := h.resets.Request(c.Request().Context(), req.Email)
	return c.JSON(http.StatusOK, echo.Map{"message": msg})
}

func (h *PasswordHandler) Reset(c echo.Context) error {
	var req resetRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.resets.Redeem(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password has been reset"})
}
