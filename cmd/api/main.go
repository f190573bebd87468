package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/appointment-service/internal/api/http"
	"github.com/spec-kit/appointment-service/internal/api/http/handlers"
	"github.com/spec-kit/appointment-service/internal/auth"
	"github.com/spec-kit/appointment-service/internal/cache"
	"github.com/spec-kit/appointment-service/internal/config"
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/observability"
	"github.com/spec-kit/appointment-service/internal/persistence"
	"github.com/spec-kit/appointment-service/internal/service"
	"github.com/spec-kit/appointment-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.App.Name, cfg.Tracing)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	appointmentRepo, userRepo := pg.Repositories()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err := authService.EnsureAdmin(ctx, cfg.Auth.SeedAdminEmail, cfg.Auth.SeedAdminPassword); err != nil {
		logger.Fatal("failed to seed admin", zap.Error(err))
	}

	userService := service.NewUserService(userRepo, dispatcher, logger)
	appointmentService := service.NewAppointmentService(service.AppointmentDependencies{
		AppointmentRepo:   appointmentRepo,
		UserRepo:          userRepo,
		Dispatcher:        dispatcher,
		Logger:            logger,
		Location:          cfg.App.Location(),
		StrictTransitions: cfg.Appointments.StrictTransitions,
	})
	reportService := service.NewReportService(service.ReportDependencies{
		AppointmentRepo: appointmentRepo,
		UserRepo:        userRepo,
		Cache:           cache.NewRedisCache(redis.Client, "reports"),
		CacheTTL:        cfg.Reports.CacheTTL(),
		BoundedWindows:  cfg.Reports.BoundedWindows,
		Location:        cfg.App.Location(),
		Logger:          logger,
	})

	kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger)
	if kafkaPublisher == nil {
		logger.Warn("kafka publishing disabled (no brokers configured)")
	}
	defer kafkaPublisher.Close() //nolint:errcheck

	worker.StartSubscribers(dispatcher, worker.Subscribers{
		Notifications: service.NewNotificationService(dispatcher, logger),
		Reports:       reportService,
		Kafka:         kafkaPublisher,
	})

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)
	rateLimiter := auth.NewRateLimiter(redis.Client, cfg.RateLimit.Limit, cfg.RateLimit.Window(), "rl:auth", cfg.RateLimit.FailOpen, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Appointments:   handlers.NewAppointmentsHandler(appointmentService),
		Staff:          handlers.NewStaffHandler(userService),
		Admin:          handlers.NewAdminHandler(userService, reportService),
		AuthMiddleware: authMiddleware,
		RateLimiter:    rateLimiter,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
