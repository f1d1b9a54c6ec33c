package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/config"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/handler"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/handler/middleware"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/metrics"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/repository/postgres"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/service"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/blacklist"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/email"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/jwt"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	log := logger.Init(cfg.Server.Environment)

	// Initialize database connection
	db, err := initDB(cfg)
	if err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database connection", "error", err)
		}
	}()
	log.Info("database connection established")

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	err = postgres.EnsureSchema(schemaCtx, db)
	cancelSchema()
	if err != nil {
		logger.Fatal("failed to apply schema", "error", err)
	}

	// Initialize Redis client
	redisClient, err := initRedis(cfg)
	if err != nil {
		logger.Fatal("failed to initialize redis", "error", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("error closing redis connection", "error", err)
		}
	}()
	log.Info("redis connection established")

	// Load RSA keys for JWT
	privateKey, publicKey, err := loadRSAKeys(cfg)
	if err != nil {
		logger.Fatal("failed to load RSA keys", "error", err)
	}

	tokenService, err := jwt.NewTokenService(privateKey, publicKey, cfg.JWT.AccessTokenExpiry, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal("failed to initialize token service", "error", err)
	}

	tokenBlacklist := blacklist.NewTokenBlacklist(redisClient)

	// Sign-in alerts are optional
	var emailService email.EmailService
	if cfg.Email.Enabled {
		resendService, err := email.NewResendEmailService(&email.EmailConfig{
			APIKey:    cfg.Email.APIKey,
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
		})
		if err != nil {
			log.Warn("email service disabled", "error", err)
		} else {
			emailService = resendService
			log.Info("email service initialized", "provider", "resend")
		}
	}

	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	authService := service.NewAuthService(userRepo, sessionRepo, tokenService, tokenBlacklist, emailService, cfg)

	validate := validator.NewValidator()
	authMetrics := metrics.New()

	app := fiber.New(fiber.Config{
		AppName:               "Career Services CRM Auth",
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(log),
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	// Setup global middlewares
	app.Use(middleware.RecoveryMiddleware(log))
	app.Use(middleware.LoggerMiddleware(log, authMetrics))
	app.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))

	handler.SetupRoutes(app, handler.Handlers{
		Auth:     handler.NewAuthHandler(authService, validate),
		Sessions: handler.NewSessionHandler(authService),
		Users:    handler.NewUserHandler(service.NewUserService(userRepo, sessionRepo), validate),
		Setup:    handler.NewSetupHandler(authService, validate, cfg.Server.SetupToken),
		Health: handler.NewHealthHandler(
			handler.Check{Name: "database", Probe: db.PingContext},
			handler.Check{Name: "redis", Probe: tokenBlacklist.Ping},
		),
		JWKS:    handler.NewJWKSHandler(tokenService.GetPublicKey()),
		Metrics: authMetrics.Handler(),
	}, handler.RouteConfig{
		LoginRateLimit: cfg.Auth.LoginRateLimit,
		LoginWindow:    time.Minute,
	}, middleware.AuthMiddleware(authService), middleware.RequireAdmin())

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go purgeSessions(ctx, log, authService, cfg.Auth.SessionPurge)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info("server starting", "addr", addr, "environment", cfg.Server.Environment)
		if err := app.Listen(addr); err != nil {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// purgeSessions removes expired server sessions until ctx is done.
func purgeSessions(ctx context.Context, log *slog.Logger, auth *service.AuthService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := auth.PurgeExpiredSessions(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("session purge failed", "error", err)
			}
		}
	}
}

// initDB initializes PostgreSQL database connection with retry logic
func initDB(cfg *config.Config) (*sqlx.DB, error) {
	dsn := cfg.Database.DSN()

	var db *sqlx.DB
	var err error

	maxRetries := 5
	retryInterval := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}

		slog.Warn("failed to connect to database", "attempt", i+1, "max", maxRetries, "error", err)
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initRedis initializes Redis client and verifies connection
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// loadRSAKeys loads RSA private and public keys from files
func loadRSAKeys(cfg *config.Config) ([]byte, []byte, error) {
	privateKey, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	publicKey, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	if len(privateKey) == 0 {
		return nil, nil, fmt.Errorf("private key file is empty")
	}
	if len(publicKey) == 0 {
		return nil, nil, fmt.Errorf("public key file is empty")
	}

	return privateKey, publicKey, nil
}

// customErrorHandler renders unhandled errors in the shared error shape
func customErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"
		errCode := "internal"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
			errCode = "http_error"
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
			"code":  errCode,
		})
	}
}
