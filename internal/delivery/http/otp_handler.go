package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// OTPHandler serves emailed one-time code login and verification.
type OTPHandler struct {
	sessions SessionService
}

func NewOTPHandler(g *echo.Group, s SessionService) {
	handler := &OTPHandler{sessions: s}

	g.POST("/otp/generate", handler.Generate)
	g.POST("/otp/verify", handler.Verify)
}

type otpGenerateRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type otpVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

func (h *OTPHandler) Generate(c echo.Context) error {
	var req otpGenerateRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.sessions.GenerateOTP(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "verification code sent"})
}

func (h *OTPHandler) Verify(c echo.Context) error {
	var req otpVerifyRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	resp, err := h.sessions.VerifyOTP(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}
