package domain

import "context"

// Notification kinds dispatched by the auth core.
const (
	NotificationOTP             = "otp_code"
	NotificationPasswordReset   = "password_reset"
	NotificationPasswordChanged = "password_changed"
)

// Notification is the payload handed to the delivery collaborator.
type Notification struct {
	Kind string            `json:"kind"`
	Data map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications (email, queue, ...) on a fire-and-forget basis.
type Notifier interface {
	Send(ctx context.Context, address string, n Notification) error
}
