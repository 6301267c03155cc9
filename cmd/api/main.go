package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/expertiza/review-eval-api/internal/config"
	"github.com/expertiza/review-eval-api/internal/database"
	"github.com/expertiza/review-eval-api/internal/handler"
	"github.com/expertiza/review-eval-api/internal/middleware"
	"github.com/expertiza/review-eval-api/internal/models"
	"github.com/expertiza/review-eval-api/internal/repository"
	"github.com/expertiza/review-eval-api/internal/router"
	"github.com/expertiza/review-eval-api/internal/service"
	"github.com/expertiza/review-eval-api/pkg/llm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Review{}, &models.FailedJob{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	client, err := newLLMClient(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}
	defer client.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	reviewRepo := repository.NewReviewRepository(db)
	evaluationService := service.NewEvaluationService(client, logger, cfg.MaxAttempts, cfg.RetryDelay)
	reviewService := service.NewReviewService(reviewRepo, evaluationService, redisClient, validate, logger, service.ReviewServiceConfig{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		CacheTTL:    cfg.CacheTTL,
		Temperature: float32(cfg.LLMTemperature),
	})
	defer reviewService.Close()

	reviewHandler := handler.NewReviewHandler(reviewService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})

	var jwtMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	router.Register(app, cfg, router.Dependencies{
		ReviewHandler: reviewHandler,
		JWTMiddleware: jwtMiddleware,
	})

	recovered, err := reviewService.RecoverInFlight(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("failed to recover unfinished reviews")
	} else if recovered > 0 {
		logger.Info().Int("count", recovered).Msg("rescheduled unfinished reviews")
	}

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func newLLMClient(cfg config.Config, logger zerolog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai", "":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.LLMModel,
			BaseURL:   cfg.OpenAIBaseURL,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   cfg.LLMTimeout,
			Logger:    logger,
		})
	case "anthropic":
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.LLMModel,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
