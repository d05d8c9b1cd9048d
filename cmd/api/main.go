package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/mailtrack/internal/config"
	"github.com/kursadbilgin/mailtrack/internal/handler"
	"github.com/kursadbilgin/mailtrack/internal/infra/postgresql"
	"github.com/kursadbilgin/mailtrack/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/mailtrack/internal/infra/redis"
	"github.com/kursadbilgin/mailtrack/internal/observability"
	"github.com/kursadbilgin/mailtrack/internal/provider"
	"github.com/kursadbilgin/mailtrack/internal/queue"
	"github.com/kursadbilgin/mailtrack/internal/render"
	"github.com/kursadbilgin/mailtrack/internal/repository"
	"github.com/kursadbilgin/mailtrack/internal/service"
	"github.com/kursadbilgin/mailtrack/internal/transport"
	"go.uber.org/zap"
)

const (
	shutdownTimeout       = 10 * time.Second
	openEventDrainTimeout = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	trackingStore, err := infraredis.NewTrackingStore(rdb)
	if err != nil {
		logger.Fatal("tracking store initialization failed", zap.Error(err))
	}

	tracking, err := service.NewTrackingService(trackingStore, logger)
	if err != nil {
		logger.Fatal("tracking service initialization failed", zap.Error(err))
	}
	tracking.SetMetrics(metrics)

	if cfg.RabbitMQURL != "" {
		broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
		publisher := queue.NewRabbitMQPublisher(broker)
		defer publisher.Close()
		tracking.SetPublisher(publisher)
		logger.Info("open events enabled", zap.String("exchange", queue.EventsExchange))
	}

	mailProvider, err := newMailProvider(cfg)
	if err != nil {
		logger.Fatal("mail provider initialization failed", zap.Error(err))
	}

	baseURL, err := service.NormalizeTrackingBaseURL(cfg.TrackingDomain, cfg.TrackingDefaultScheme)
	if err != nil {
		logger.Fatal("invalid tracking domain", zap.Error(err))
	}

	dispatcher, err := service.NewDispatchService(mailProvider, render.NewPlaceholderRenderer(), tracking, service.DispatchConfig{
		TrackingBaseURL: baseURL,
		Concurrency:     cfg.SendConcurrency,
	}, logger)
	if err != nil {
		logger.Fatal("dispatch service initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	if cfg.SendRateLimitPerSec > 0 {
		limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.SendRateLimitPerSec)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
		dispatcher.SetRateLimiter(limiter)
	}

	var sqlDB *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("postgres initialization failed", zap.Error(err))
		}
		if err := migrations.Migrate(db); err != nil {
			logger.Fatal("database migrations failed", zap.Error(err))
		}
		sqlDB, err = db.DB()
		if err != nil {
			logger.Fatal("postgres underlying db init failed", zap.Error(err))
		}
		defer sqlDB.Close()
		dispatcher.SetDispatchRepository(repository.NewGormDispatchRepo(db))
		logger.Info("dispatch audit enabled")
	}

	pixels := service.NewPixelResponder(tracking, logger)
	pixels.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "mailtrack",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestID())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterEmailRoutes(app, dispatcher, tracking, pixels); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("mailtrack api started",
		zap.Int("port", cfg.APIPort),
		zap.String("mailProvider", mailProvider.Name()),
		zap.String("trackingBaseUrl", baseURL),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), openEventDrainTimeout)
	defer cancelDrain()
	if err := tracking.Close(drainCtx); err != nil {
		logger.Warn("open event drain incomplete", zap.Error(err))
	}
	logger.Info("mailtrack api stopped")
}

func newMailProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.MailProvider {
	case config.MailProviderResend:
		return provider.NewResendProvider(cfg.ResendAPIURL, cfg.ResendAPIKey)
	default:
		return provider.NewSMTPProvider(provider.SMTPConfig{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailUsername,
			Password: cfg.EmailPassword,
			Security: cfg.EmailSecurity,
		})
	}
}
