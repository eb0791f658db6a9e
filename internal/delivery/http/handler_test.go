package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/internal/usecase"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
)

// stubSessions answers with the configured results and records the last call's arguments.
type stubSessions struct {
	authResp *domain.AuthResponse
	err      error
	claims   *security.AccessClaims
	authErr  error
	user     *domain.User
	valid    usecase.ValidationResult

	gotEmail    string
	gotToken    string
	gotUserID   string
	gotRemember bool
}

func (s *stubSessions) Register(_ context.Context, email, _ string) error {
	s.gotEmail = email
	return s.err
}

func (s *stubSessions) Login(_ context.Context, email, _ string, rememberMe bool) (*domain.AuthResponse, error) {
	s.gotEmail, s.gotRemember = email, rememberMe
	return s.authResp, s.err
}

func (s *stubSessions) VerifyMFA(_ context.Context, mfaToken, _ string) (*domain.AuthResponse, error) {
	s.gotToken = mfaToken
	return s.authResp, s.err
}

func (s *stubSessions) Refresh(_ context.Context, refreshToken string) (*domain.AuthResponse, error) {
	s.gotToken = refreshToken
	return s.authResp, s.err
}

func (s *stubSessions) Logout(_ context.Context, accessToken string) error {
	s.gotToken = accessToken
	return s.err
}

func (s *stubSessions) Validate(_ context.Context, accessToken string) usecase.ValidationResult {
	s.gotToken = accessToken
	return s.valid
}

func (s *stubSessions) Authenticate(_ context.Context, accessToken string) (*security.AccessClaims, error) {
	s.gotToken = accessToken
	return s.claims, s.authErr
}

func (s *stubSessions) Me(_ context.Context, userID string) (*domain.User, error) {
	s.gotUserID = userID
	return s.user, s.err
}

func (s *stubSessions) GenerateOTP(_ context.Context, email string) error {
	s.gotEmail = email
	return s.err
}

func (s *stubSessions) VerifyOTP(_ context.Context, email, _ string) (*domain.AuthResponse, error) {
	s.gotEmail = email
	return s.authResp, s.err
}

func (s *stubSessions) SetupMFA(_ context.Context, userID string) (*usecase.MFASetup, error) {
	s.gotUserID = userID
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.MFASetup{Secret: "SECRET", QRCode: "otpauth://totp/x"}, nil
}

func (s *stubSessions) EnableMFA(_ context.Context, userID, _ string) error {
	s.gotUserID = userID
	return s.err
}

type stubResets struct {
	err error
}

func (r *stubResets) Request(context.Context, string) string { return usecase.ResetRequestedMessage }

func (r *stubResets) Redeem(context.Context, string, string) error { return r.err }

func newTestServer(s *stubSessions, r *stubResets) *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	g := e.Group("/v1")
	NewAuthHandler(g, s)
	NewOTPHandler(g, s)
	NewPasswordHandler(g, r)
	NewMFAHandler(g, s)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func userClaims(id, role string) *security.AccessClaims {
	return &security.AccessClaims{Roles: []string{role}, RegisteredClaims: jwt.RegisteredClaims{Subject: id}}
}

func TestLogin(t *testing.T) {
	s := &stubSessions{authResp: &domain.AuthResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900}}
	e := newTestServer(s, &stubResets{})

	rec := do(t, e, http.MethodPost, "/v1/login", `{"email":"a@b.com","password":"pw","remember_me":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "a", body["access_token"])
	require.EqualValues(t, 900, body["expires_in"])
	require.True(t, s.gotRemember)
}

func TestLogin_MFARequired(t *testing.T) {
	s := &stubSessions{err: &usecase.MFARequiredError{MFAToken: "challenge"}}
	e := newTestServer(s, &stubResets{})

	rec := do(t, e, http.MethodPost, "/v1/login", `{"email":"a@b.com","password":"pw"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "challenge", decode(t, rec)["mfa_token"])
}

func TestLogin_BadRequest(t *testing.T) {
	e := newTestServer(&stubSessions{}, &stubResets{})

	rec := do(t, e, http.MethodPost, "/v1/login", `{"email":"not-an-email","password":"pw"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/login", `{"email":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid request body", decode(t, rec)["error"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"unauthorized", &usecase.Error{Kind: usecase.ErrUnauthorized, Message: "invalid email or password"}, http.StatusUnauthorized, ""},
		{"conflict", &usecase.Error{Kind: usecase.ErrConflict, Message: "email already registered"}, http.StatusConflict, ""},
		{"too many", &usecase.Error{Kind: usecase.ErrTooManyRequests, Message: "wait", RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, "2"},
		{"bad request", &usecase.Error{Kind: usecase.ErrBadRequest, Message: "nope"}, http.StatusBadRequest, ""},
		{"unavailable", usecase.ErrUnavailable, http.StatusServiceUnavailable, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(&stubSessions{err: tt.err}, &stubResets{})

			rec := do(t, e, http.MethodPost, "/v1/register", `{"email":"a@b.com","password":"long-enough"}`, nil)
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
			require.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestRegister_Created(t *testing.T) {
	s := &stubSessions{}
	e := newTestServer(s, &stubResets{})

	rec := do(t, e, http.MethodPost, "/v1/register", `{"email":"a@b.com","password":"long-enough"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "a@b.com", s.gotEmail)

	rec = do(t, e, http.MethodPost, "/v1/register", `{"email":"a@b.com","password":"short"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidate_AlwaysOK(t *testing.T) {
	s := &stubSessions{}
	e := newTestServer(s, &stubResets{})

	rec := do(t, e, http.MethodPost, "/v1/validate", `{"token":"abc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"valid":false,"userId":null,"role":null}`, rec.Body.String())
	require.Equal(t, "abc", s.gotToken)

	id, role := "user-1", "user"
	s.valid = usecase.ValidationResult{Valid: true, UserID: &id, Role: &role}
	rec = do(t, e, http.MethodPost, "/v1/validate", "", map[string]string{"Authorization": "Bearer from-header"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"valid":true,"userId":"user-1","role":"user"}`, rec.Body.String())
	require.Equal(t, "from-header", s.gotToken)
}

func TestLogout(t *testing.T) {
	s := &stubSessions{}
	e := newTestServer(s, &stubResets{})

	rec := do(t, e, http.MethodPost, "/v1/logout", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/logout", "", map[string]string{"Authorization": "Bearer tok"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "tok", s.gotToken)
}

func TestJWTMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		claims *security.AccessClaims
		err    error
		status int
	}{
		{"missing header", "", nil, nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", nil, nil, http.StatusUnauthorized},
		{"rejected token", "Bearer abc", nil, &usecase.Error{Kind: usecase.ErrUnauthorized, Message: "invalid or expired token"}, http.StatusUnauthorized},
		{"store down", "Bearer abc", nil, usecase.ErrUnavailable, http.StatusServiceUnavailable},
		{"insufficient role", "Bearer abc", userClaims("user-1", "guest"), nil, http.StatusForbidden},
		{"ok", "Bearer abc", userClaims("user-1", "user"), nil, http.StatusOK},
		{"admin", "Bearer abc", userClaims("user-1", "admin"), nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &stubSessions{claims: tt.claims, authErr: tt.err, user: &domain.User{ID: "user-1", Email: "a@b.com"}}
			e := newTestServer(s, &stubResets{})

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := do(t, e, http.MethodGet, "/v1/me", "", headers)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				require.Equal(t, "user-1", s.gotUserID)
				require.Equal(t, "a@b.com", decode(t, rec)["email"])
			}
		})
	}
}

func TestMFASetupAndEnable(t *testing.T) {
	s := &stubSessions{claims: userClaims("user-7", "user")}
	e := newTestServer(s, &stubResets{})
	auth := map[string]string{"Authorization": "Bearer abc"}

	rec := do(t, e, http.MethodPost, "/v1/mfa/setup", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "SECRET", decode(t, rec)["secret"])
	require.Equal(t, "user-7", s.gotUserID)

	rec = do(t, e, http.MethodPost, "/v1/mfa/enable", `{"code":"12345"}`, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/mfa/enable", `{"code":"123456"}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/mfa/setup", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOTPRoutes(t *testing.T) {
	s := &stubSessions{authResp: &domain.AuthResponse{AccessToken: "a"}}
	e := newTestServer(s, &stubResets{})

	rec := do(t, e, http.MethodPost, "/v1/otp/generate", `{"email":"a@b.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/otp/verify", `{"email":"a@b.com","otp":"12a456"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/otp/verify", `{"email":"a@b.com","otp":"123456"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a", decode(t, rec)["access_token"])
}

func TestPasswordRoutes(t *testing.T) {
	r := &stubResets{}
	e := newTestServer(&stubSessions{}, r)

	rec := do(t, e, http.MethodPost, "/v1/password/forgot", `{"email":"whoever@b.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.ResetRequestedMessage, decode(t, rec)["message"])

	rec = do(t, e, http.MethodPost, "/v1/password/reset", `{"token":"t","new_password":"long-enough"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	r.err = &usecase.Error{Kind: usecase.ErrUnauthorized, Message: "invalid or expired reset token"}
	rec = do(t, e, http.MethodPost, "/v1/password/reset", `{"token":"t","new_password":"long-enough"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid or expired reset token", decode(t, rec)["error"])
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	rec := do(t, e, http.MethodGet, "/ping", "", map[string]string{echo.HeaderXRequestID: "req-42"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http_request", line["msg"])
	require.Equal(t, "req-42", line["req_id"])
	require.EqualValues(t, 200, line["status"])

	rec = do(t, e, http.MethodGet, "/ping", "", nil)
	require.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestHealth(t *testing.T) {
	e := echo.New()
	redisErr := error(nil)
	NewHealthHandler(e, "test", map[string]Check{
		"redis":    func(context.Context) error { return redisErr },
		"postgres": func(context.Context) error { return nil },
	})

	rec := do(t, e, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "healthy", decode(t, rec)["status"])

	redisErr = errors.New("connection refused")
	rec = do(t, e, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "degraded", body["status"])
	require.Equal(t, "down", body["dependencies"].(map[string]interface{})["redis"])
}
