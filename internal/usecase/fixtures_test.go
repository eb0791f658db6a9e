package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/internal/repository"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
)

var cheapParams = security.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memUsers is an in-memory UserRepository. It hands out copies, like a real
// database would.
type memUsers struct {
	mu     sync.Mutex
	seq    int
	byID   map[string]*domain.User
	events []string
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	return &c
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	m.seq++
	user.ID = fmt.Sprintf("user-%d", m.seq)
	m.byID[user.ID] = cloneUser(user)
	return nil
}

func (m *memUsers) Update(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	m.byID[user.ID] = cloneUser(user)
	return nil
}

func (m *memUsers) LogSecurityEvent(_ context.Context, _, eventType, _ string, _ map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return nil
}

func (m *memUsers) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *memUsers) get(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := m.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

type sentNotification struct {
	address string
	n       domain.Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Send(_ context.Context, address string, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{address: address, n: n})
	return nil
}

func (r *recordingNotifier) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.n.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) last(t *testing.T, kind string) sentNotification {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].n.Kind == kind {
			return r.sent[i]
		}
	}
	t.Fatalf("no %q notification sent", kind)
	return sentNotification{}
}

type harness struct {
	mr       *miniredis.Miniredis
	store    *repository.RedisStore
	users    *memUsers
	notes    *recordingNotifier
	clock    *fakeClock
	hasher   *security.Argon2Hasher
	codec    *security.TokenCodec
	otp      *OTPChallenge
	sessions *SessionManager
	resets   *PasswordResetFlow
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	h := &harness{
		mr:     mr,
		store:  repository.NewRedisStore(client),
		users:  newMemUsers(),
		notes:  &recordingNotifier{},
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		hasher: security.NewArgon2Hasher(cheapParams),
	}

	h.codec = security.NewTokenCodec(security.TokenConfig{
		AccessSecret: "test-access-secret",
		Now:          h.clock.Now,
	})
	h.otp = NewOTPChallenge(h.store, h.notes, DefaultOTPConfig)
	h.resets = NewPasswordResetFlow(h.users, h.store, h.notes, h.hasher, DefaultResetConfig)

	h.sessions, err = NewSessionManager(
		h.users, h.store, h.codec, NewBlacklistGuard(h.store), h.otp, h.hasher, h.clock, DefaultSessionConfig,
	)
	require.NoError(t, err)

	return h
}

// seedUser stores a verified account with password.
func (h *harness) seedUser(t *testing.T, email, password string) *domain.User {
	t.Helper()

	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)

	u := &domain.User{Email: email, PasswordHash: hash, IsEmailVerified: true, Roles: []string{"user"}}
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

func requireKind(t *testing.T, err, kind error) *Error {
	t.Helper()
	require.ErrorIs(t, err, kind)
	var e *Error
	require.True(t, errors.As(err, &e), "expected *usecase.Error, got %T", err)
	return e
}
