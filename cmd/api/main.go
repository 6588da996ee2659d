package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/config"
	"github.com/noah-isme/autograde-api/internal/database"
	"github.com/noah-isme/autograde-api/internal/handler"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/retry"
	"github.com/noah-isme/autograde-api/internal/router"
	"github.com/noah-isme/autograde-api/internal/service"
	cloud "github.com/noah-isme/autograde-api/pkg/cloudinary"
	"github.com/noah-isme/autograde-api/pkg/grader"
)

const (
	streamPingInterval = 30 * time.Second
	// Upper bound on files accepted in one multipart request body.
	maxFilesPerRequest = 20
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set, dashboard cache disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not set, batch events stay on this node")
	}

	var archiver service.FileUploader
	if cfg.CloudinaryEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		archiver = uploader
	} else {
		logger.Warn().Msg("cloudinary credentials missing, binary submissions will not be archived")
	}

	gradingClient, err := newGrader(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create grader: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	classRepo := repository.NewClassRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	resultRepo := repository.NewResultRepository(db)
	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), logger)

	events := service.NewBatchEventService(natsConn, cfg.EventsChannel, logger)
	events.Start(rootCtx)

	orchestrator := service.NewGradingOrchestrator(gradingClient, batchRepo, resultRepo, archiver, events, service.OrchestratorConfig{
		Concurrency: cfg.GraderConcurrency,
		FileTimeout: cfg.GraderFileTimeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.GraderMaxAttempts,
			Delay:       cfg.GraderRetryDelay,
		},
	}, logger)
	dispatcher := service.NewGradingDispatcher(orchestrator, logger)

	intakeService := service.NewIntakeService(assignmentRepo, batchRepo, dispatcher, events, activityService, logger)
	resultService := service.NewResultService(assignmentRepo, batchRepo, resultRepo, activityService, logger)
	classService := service.NewClassService(classRepo, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, classRepo, validate, logger)
	dashboardService := service.NewDashboardService(classRepo, assignmentRepo, batchRepo, resultRepo, redisClient, cfg.DashboardCacheTTL, logger)

	uploadLimiter := middleware.RateLimit("uploads", cfg.UploadRateLimit, time.Minute)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB * maxFilesPerRequest) << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, APIPrefix: router.APIPrefix})
	router.Register(app, cfg, router.Dependencies{
		ClassHandler:       handler.NewClassHandler(classService, logger),
		AssignmentHandler:  handler.NewAssignmentHandler(assignmentService, logger),
		BatchHandler:       handler.NewBatchHandler(intakeService, resultService, cfg.UploadMaxSizeMB, uploadLimiter, logger),
		BatchStreamHandler: handler.NewBatchStreamHandler(events, streamPingInterval, logger),
		DashboardHandler:   handler.NewDashboardHandler(dashboardService, logger),
		ActivityHandler:    handler.NewActivityHandler(activityService, logger),
		HealthProbes:       healthProbes(db, redisClient),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-rootCtx.Done()
	shutdown(app, dispatcher, cfg.ShutdownTimeout, logger)
}

func newGrader(cfg config.Config, logger zerolog.Logger) (grader.Grader, error) {
	switch cfg.GraderProvider {
	case config.GraderProviderOpenAI:
		return grader.NewOpenAIGrader(grader.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Retries: cfg.GraderHTTPRetries,
			Timeout: cfg.GraderFileTimeout,
			Logger:  logger,
		})
	default:
		return grader.NewHTTPGrader(grader.HTTPConfig{
			BaseURL: cfg.GraderBaseURL,
			APIKey:  cfg.GraderAPIKey,
			Retries: cfg.GraderHTTPRetries,
			Timeout: cfg.GraderFileTimeout,
			Logger:  logger,
		})
	}
}

func healthProbes(db *gorm.DB, redisClient *redis.Client) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = database.RedisProbe(redisClient)
	}
	return probes
}

// shutdown stops accepting requests first, then gives running batches the
// remaining budget to reach a terminal status.
func shutdown(app *fiber.App, dispatcher *service.GradingDispatcher, timeout time.Duration, logger zerolog.Logger) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("grading jobs cancelled before completion")
	}

	logger.Info().Msg("server stopped")
}
