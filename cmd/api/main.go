package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/FilipeAphrody/sentinel-auth/internal/config"
	delivery "github.com/FilipeAphrody/sentinel-auth/internal/delivery/http"
	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/internal/repository"
	"github.com/FilipeAphrody/sentinel-auth/internal/usecase"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
	"github.com/FilipeAphrody/sentinel-auth/pkg/slogx"

	_ "github.com/lib/pq" // Postgres driver
)

const version = "1.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("sentinel auth stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slogx.New(slogx.Config{
		Service: "sentinel-auth",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Infrastructure (Persistence)
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// 3. Initialize Repositories
	userRepo := repository.NewPostgresUserRepo(db)
	store := repository.NewRedisStore(rdb)

	var notifier domain.Notifier = repository.NewRedisNotifier(rdb, cfg.NotifyChannel)
	if cfg.NotifyChannel == "" {
		if cfg.IsProduction() {
			logger.Warn("NOTIFY_CHANNEL is empty, notifications will only be logged")
		}
		notifier = repository.NewLogNotifier(logger)
	}

	// 4. Initialize Business Logic (Usecases)
	hasher := security.NewArgon2Hasher(security.DefaultParams)
	codec := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:         cfg.JWTSecret,
		RefreshSecret:        cfg.JWTRefreshSecret,
		Issuer:               cfg.JWTIssuer,
		AccessTTL:            cfg.AccessTokenTTL,
		RefreshTTL:           cfg.RefreshTokenTTL,
		RefreshTTLRememberMe: cfg.RefreshTokenTTLLong,
	})

	otp := usecase.NewOTPChallenge(store, notifier, usecase.OTPConfig{
		TTL:            cfg.OTPTTL,
		ResendCooldown: cfg.OTPResendCooldown,
		MaxAttempts:    cfg.OTPMaxAttempts,
		LockDuration:   cfg.OTPLockDuration,
	})

	sessions, err := usecase.NewSessionManager(
		userRepo, store, codec, usecase.NewBlacklistGuard(store), otp, hasher, domain.SystemClock{},
		usecase.SessionConfig{
			MFAIssuer:       cfg.MFAIssuer,
			MFAChallengeTTL: cfg.MFAChallengeTTL,
			MFAMaxAttempts:  cfg.OTPMaxAttempts,
			DefaultRoles:    usecase.DefaultSessionConfig.DefaultRoles,
		},
	)
	if err != nil {
		return err
	}

	resets := usecase.NewPasswordResetFlow(userRepo, store, notifier, hasher, usecase.ResetConfig{
		TTL:         cfg.PasswordResetTTL,
		MaxAttempts: cfg.ResetMaxAttempts,
		ResetURL:    cfg.PasswordResetURL,
	})

	// 5. Setup Framework and Global Middlewares
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = delivery.NewRequestValidator()

	e.Use(middleware.Recover())
	e.Use(delivery.RequestLogger(logger))
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("64K"))

	// 6. Register Delivery Handlers (Routes)
	v1 := e.Group("/v1")
	delivery.NewAuthHandler(v1, sessions)
	delivery.NewOTPHandler(v1, sessions)
	delivery.NewPasswordHandler(v1, resets)
	delivery.NewMFAHandler(v1, sessions)

	delivery.NewHealthHandler(e, version, map[string]delivery.Check{
		"postgres": userRepo.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	// 7. Start Server with Graceful Shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting sentinel auth server", slog.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully", slog.Duration("grace_period", cfg.ShutdownGracePeriod))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exiting")
	return nil
}
