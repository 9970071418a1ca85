// Command nexauth-server wires the auth engine to MongoDB, Redis, and an
// SMTP relay and serves the HTTP API.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nexhub/nexauth"
	"github.com/nexhub/nexauth/httpapi"
	"github.com/nexhub/nexauth/mail"
	"github.com/nexhub/nexauth/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configFromEnv()
	if err != nil {
		return err
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(envOr("MONGO_URI", "mongodb://localhost:27017")))
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	store := storage.NewMongo(mongoClient.Database(envOr("MONGO_DB", "nexhub")), envOr("USERS_COLLECTION", "users"))
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	mailer, err := mailerFromEnv(logger)
	if err != nil {
		return err
	}

	engine, err := nexauth.New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithUserStore(store).
		WithMailer(mailer).
		WithAuditSink(nexauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, httpapi.Config{
		ProductionMode: cfg.ProductionMode,
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
	})

	server := &http.Server{
		Addr:              ":" + envOr("PORT", "8080"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func configFromEnv() (nexauth.Config, error) {
	cfg := nexauth.DefaultConfig()

	var err error
	if cfg.Token.AccessSecret, err = secretFromEnv("JWT_ACCESS_SECRET"); err != nil {
		return cfg, err
	}
	if cfg.Token.RefreshSecret, err = secretFromEnv("JWT_REFRESH_SECRET"); err != nil {
		return cfg, err
	}
	if cfg.Token.PendingSecret, err = secretFromEnv("JWT_2FA_PENDING_SECRET"); err != nil {
		return cfg, err
	}
	if cfg.Token.VerificationSecret, err = secretFromEnv("JWT_EMAIL_VERIFICATION_SECRET"); err != nil {
		return cfg, err
	}
	if cfg.Token.ResetSecret, err = secretFromEnv("JWT_PASSWORD_RESET_SECRET"); err != nil {
		return cfg, err
	}
	if cfg.TOTP.EncryptionKey, err = mustDecodeKey(os.Getenv("TOTP_ENCRYPTION_KEY")); err != nil {
		return cfg, err
	}

	cfg.TOTP.Issuer = envOr("TOTP_ISSUER", "nexhub")
	cfg.Mail.BaseURL = envOr("BASE_URL", cfg.Mail.BaseURL)
	cfg.Mail.AppName = envOr("APP_NAME", "nexhub")
	cfg.ProductionMode = os.Getenv("GO_ENV") == "production"

	return cfg, nil
}

func secretFromEnv(key string) ([]byte, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, errors.New(key + " not set")
	}
	return []byte(value), nil
}

func mailerFromEnv(logger *slog.Logger) (nexauth.Mailer, error) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		logger.Warn("SMTP_HOST not set, outgoing mail will be logged only")
		return mail.NewLog(logger), nil
	}

	port, err := strconv.Atoi(envOr("SMTP_PORT", "587"))
	if err != nil {
		return nil, errors.New("invalid SMTP_PORT")
	}

	return mail.NewSMTP(mail.SMTPConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     envOr("SMTP_FROM", "no-reply@nexhub.dev"),
	})
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustDecodeKey(key string) ([]byte, error) {
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return nil, errors.New("encryption key must be 64 hex characters")
	}
	return raw, nil
}
