package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MFAHandler handles MFA enrollment and management.
type MFAHandler struct {
	sessions SessionService
}

// NewMFAHandler registers the MFA management routes. Both require a valid access token.
func NewMFAHandler(g *echo.Group, s SessionService) {
	handler := &MFAHandler{sessions: s}

	auth := JWTMiddleware(s)
	g.POST("/mfa/setup", handler.Setup, auth)
	g.POST("/mfa/enable", handler.Enable, auth)
}

// mfaEnableRequest is used to verify the first code before enabling MFA.
type mfaEnableRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Setup generates a new pending TOTP secret for the caller.
func (h *MFAHandler) Setup(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	resp, err := h.sessions.SetupMFA(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// Enable verifies the provided code and turns on MFA for the caller.
func (h *MFAHandler) Enable(c echo.Context) error {
	var req mfaEnableRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	userID, _ := c.Get("user_id").(string)
	if err := h.sessions.EnableMFA(c.Request().Context(), userID, req.Code); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "mfa_enabled_successfully"})
}
