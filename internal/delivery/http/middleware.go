package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-auth/internal/usecase"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
	"github.com/FilipeAphrody/sentinel-auth/pkg/slogx"
)

// Authenticator verifies a bearer token, including revocation.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*security.AccessClaims, error)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c echo.Context) (string, bool) {
	parts := strings.Fields(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// JWTMiddleware intercepts the request to validate the JWT token in the Authorization header.
// Revoked tokens are rejected as well as expired or forged ones.
func JWTMiddleware(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization header"})
			}

			token, ok := bearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format"})
			}

			claims, err := auth.Authenticate(c.Request().Context(), token)
			if err != nil {
				return respondError(c, err)
			}

			// Inject extracted user information into Echo context.
			c.Set("user_id", claims.Subject)
			c.Set("role", claims.Role())

			return next(c)
		}
	}
}

// RoleMiddleware ensures only users with specific roles (or admins) can access the route.
func RoleMiddleware(requiredRole string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)

			// Admins have full access, others need the specific role.
			if !ok || (role != requiredRole && role != "admin") {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied: insufficient permissions"})
			}

			return next(c)
		}
	}
}

// RequestLogger tags every request with a request id, stores a request-scoped
// logger and the client address in the context, and logs one line per request.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			reqID := req.Header.Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			logger := base.With(
				slog.String("req_id", reqID),
				slog.String("method", req.Method),
				slog.String("path", c.Path()),
			)
			ctx := slogx.WithContext(req.Context(), logger)
			ctx = usecase.WithClientIP(ctx, c.RealIP())
			c.SetRequest(req.WithContext(ctx))

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "http_request",
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("ip", c.RealIP()),
			)
			return nil
		}
	}
}
