package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
)

const uniqueViolation = "23505"

// PostgresUserRepo implements domain.UserRepository using PostgreSQL.
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo creates a new repository instance.
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUser = `
	SELECT id, email, COALESCE(password_hash, ''), is_email_verified, roles,
	       COALESCE(tenant_id, ''), COALESCE(refresh_token_hash, ''),
	       mfa_enabled, COALESCE(mfa_secret, ''), created_at, updated_at
	FROM users
`

// GetByEmail retrieves a user by their email address.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, selectUser+" WHERE email = $1", email)
}

// GetByID retrieves a user by their UUID.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, selectUser+" WHERE id = $1", id)
}

func (r *PostgresUserRepo) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsEmailVerified,
		pq.Array(&user.Roles),
		&user.TenantID,
		&user.RefreshTokenHash,
		&user.MFAEnabled,
		&user.MFASecret,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return user, nil
}

// Create inserts a new user into the database and fills in its generated ID.
func (r *PostgresUserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, password_hash, is_email_verified, roles, tenant_id,
		                   mfa_enabled, mfa_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		nullable(user.PasswordHash),
		user.IsEmailVerified,
		pq.Array(user.Roles),
		nullable(user.TenantID),
		user.MFAEnabled,
		nullable(user.MFASecret),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// Update writes back every mutable field of the user.
func (r *PostgresUserRepo) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET password_hash = $1, is_email_verified = $2, roles = $3, tenant_id = $4,
		    refresh_token_hash = $5, mfa_enabled = $6, mfa_secret = $7, updated_at = $8
		WHERE id = $9
	`

	user.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		nullable(user.PasswordHash),
		user.IsEmailVerified,
		pq.Array(user.Roles),
		nullable(user.TenantID),
		nullable(user.RefreshTokenHash),
		user.MFAEnabled,
		nullable(user.MFASecret),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

// LogSecurityEvent inserts an immutable record into the audit_logs table.
func (r *PostgresUserRepo) LogSecurityEvent(ctx context.Context, userID, eventType, ip string, metadata map[string]interface{}) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil || metadata == nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (user_id, event_type, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	// The schema allows user_id to be NULL (e.g. anonymous failed login).
	_, err = r.db.ExecContext(ctx, query, nullable(userID), eventType, nullable(ip), metaJSON, time.Now())
	return err
}

// Ping reports whether the database is reachable.
func (r *PostgresUserRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
