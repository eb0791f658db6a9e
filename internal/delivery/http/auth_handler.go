package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/internal/usecase"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
)

// SessionService is the part of usecase.SessionManager served over HTTP.
type SessionService interface {
	Register(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string, rememberMe bool) (*domain.AuthResponse, error)
	VerifyMFA(ctx context.Context, mfaToken, code string) (*domain.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error)
	Logout(ctx context.Context, accessToken string) error
	Validate(ctx context.Context, accessToken string) usecase.ValidationResult
	Authenticate(ctx context.Context, accessToken string) (*security.AccessClaims, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
	GenerateOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*domain.AuthResponse, error)
	SetupMFA(ctx context.Context, userID string) (*usecase.MFASetup, error)
	EnableMFA(ctx context.Context, userID, code string) error
}

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	sessions SessionService
}

// NewAuthHandler registers the authentication routes to the provided echo group.
func NewAuthHandler(g *echo.Group, s SessionService) {
	handler := &AuthHandler{sessions: s}

	g.POST("/register", handler.Register)
	g.POST("/login", handler.Login)
	g.POST("/mfa/verify", handler.VerifyMFA)
	g.POST("/refresh", handler.Refresh)
	g.POST("/logout", handler.Logout)
	g.POST("/validate", handler.Validate)
	g.GET("/me", handler.Me, JWTMiddleware(s), RoleMiddleware("user"))
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// loginRequest defines the expected JSON payload for the login endpoint.
type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// mfaRequest answers the challenge returned by a 202 login.
type mfaRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type validateRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.sessions.Register(c.Request().Context(), req.Email, req.Password); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"message": "registration successful, check your email for the verification code"})
}

// Login handles the initial authentication request.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	resp, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// VerifyMFA handles the second step of authentication for users with MFA enabled.
func (h *AuthHandler) VerifyMFA(c echo.Context) error {
	var req mfaRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	resp, err := h.sessions.VerifyMFA(c.Request().Context(), req.MFAToken, req.Code)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	resp, err := h.sessions.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the bearer access token.
func (h *AuthHandler) Logout(c echo.Context) error {
	token, ok := bearerToken(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}

	if err := h.sessions.Logout(c.Request().Context(), token); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Validate always answers 200. The token comes from the body, or else the
// Authorization header.
func (h *AuthHandler) Validate(c echo.Context) error {
	var req validateRequest
	_ = c.Bind(&req)

	token := req.Token
	if token == "" {
		token, _ = bearerToken(c)
	}

	return c.JSON(http.StatusOK, h.sessions.Validate(c.Request().Context(), token))
}

// Me returns the profile of the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	user, err := h.sessions.Me(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, user)
}
