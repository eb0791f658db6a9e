package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
)

// notificationEnvelope is the message published for the mailer workers.
type notificationEnvelope struct {
	To     string            `json:"to"`
	Kind   string            `json:"kind"`
	Data   map[string]string `json:"data,omitempty"`
	SentAt time.Time         `json:"sent_at"`
}

// RedisNotifier publishes notifications on a Redis Pub/Sub channel.
// Delivery (SMTP, SMS) is owned by whichever worker subscribes.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisNotifier creates a notifier publishing on channel.
func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Send publishes the notification. It does not wait for a subscriber.
func (n *RedisNotifier) Send(ctx context.Context, address string, msg domain.Notification) error {
	payload, err := json.Marshal(notificationEnvelope{
		To:     address,
		Kind:   msg.Kind,
		Data:   msg.Data,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrStoreUnavailable, n.channel, err)
	}
	return nil
}

// LogNotifier writes notifications to the logger. Meant for local development:
// it logs secrets such as OTP codes in clear.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, address string, msg domain.Notification) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("to", address),
		slog.String("kind", msg.Kind),
		slog.Any("data", msg.Data),
	)
	return nil
}
