package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/pkg/slogx"
)

// Security event types written to the audit log.
const (
	EventLoginSuccess           = "LOGIN_SUCCESS"
	EventLoginFailed            = "LOGIN_FAILED"
	EventTokenRefreshed         = "TOKEN_REFRESHED"
	EventLogout                 = "LOGOUT"
	EventMFAFailed              = "MFA_FAILED"
	EventMFAEnabled             = "MFA_ENABLED"
	EventUserRegistered         = "USER_REGISTERED"
	EventPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	EventPasswordReset          = "PASSWORD_RESET"
)

type clientIPKey struct{}

// WithClientIP attaches the caller's address so audit records can carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// audit records a security event. A failing audit sink never fails the operation.
func audit(ctx context.Context, users domain.UserRepository, userID, event string, metadata map[string]interface{}) {
	if err := users.LogSecurityEvent(ctx, userID, event, clientIP(ctx), metadata); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.Any("error", err),
		)
	}
}

// notify dispatches fire-and-forget: delivery failures are logged, not returned.
func notify(ctx context.Context, notifier domain.Notifier, address string, n domain.Notification) {
	if err := notifier.Send(ctx, address, n); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "notification dispatch failed",
			slog.String("kind", n.Kind),
			slog.Any("error", err),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
