package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vellum-stream/pipeline/internal/api/handler"
	"github.com/vellum-stream/pipeline/internal/api/middleware"
	"github.com/vellum-stream/pipeline/internal/config"
	"github.com/vellum-stream/pipeline/internal/infrastructure/cache"
	"github.com/vellum-stream/pipeline/internal/infrastructure/ingress"
	"github.com/vellum-stream/pipeline/internal/infrastructure/queue"
	"github.com/vellum-stream/pipeline/internal/infrastructure/storage"
	"github.com/vellum-stream/pipeline/internal/infrastructure/store"
	"github.com/vellum-stream/pipeline/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Server.UploadPath, 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}

	videoStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open video store: %w", err)
	}
	defer videoStore.Close()
	logger.Info("opened video store", slog.String("path", cfg.Store.Path))

	_, err = storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:     cfg.S3.Endpoint,
		Region:       cfg.S3.Region,
		AccessKey:    cfg.S3.AccessKey,
		SecretKey:    cfg.S3.SecretKey,
		Bucket:       cfg.S3.Bucket,
		UsePathStyle: cfg.S3.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("connect to object storage: %w", err)
	}
	logger.Info("connected to object storage", slog.String("bucket", cfg.S3.Bucket))

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	videoCache := cache.NewRedisVideoCache(redisClient)
	videoRepo := usecase.NewCachedVideoRepository(videoStore, videoCache, usecase.DefaultCachedRepositoryConfig())

	maxResumableBytes, err := cfg.Server.MaxFileSizeBytes()
	if err != nil {
		return fmt.Errorf("parse MAX_FILE_SIZE: %w", err)
	}
	validator := usecase.NewValidator(cfg.Server.AllowedFileTypes, maxResumableBytes)

	sessionSvc := usecase.NewSessionService(videoRepo, validator, usecase.SessionServiceConfig{
		VellumHost: cfg.Server.VellumHost,
		Bucket:     cfg.S3.Bucket,
		Endpoint:   cfg.S3.Endpoint,
	})
	ingressSvc := usecase.NewIngressService(videoRepo, queueClient, validator)

	videoHandler := handler.NewVideoHandler(sessionSvc, ingressSvc, videoRepo, cfg.Server.UploadPath)

	tusHandler, err := ingress.NewTUSHandler(ingress.TUSHandlerConfig{
		StoreDir: cfg.Server.UploadPath,
		BasePath: "/api/v1/tus/files/",
	}, ingressSvc)
	if err != nil {
		return fmt.Errorf("build tus handler: %w", err)
	}
	go ingress.DrainCompleteUploads(ctx, tusHandler, cfg.Server.UploadPath, ingressSvc)

	r := setupRouter(logger, cfg.Auth.APIKey, videoHandler, tusHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(logger *slog.Logger, apiKey string, videoHandler *handler.VideoHandler, tusHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// The resumable upload path is authorized by the session precondition
	// usecase.IngressService.OnUploadCreate enforces from tus.go's pre-create
	// hook (record must exist and be in the
	// uploading state), not by the bearer token: the client PATCHing/HEADing
	// this URL is a generic resumable-upload client, not our API caller, and
	// never carries API_KEY.
	r.Route("/api/v1/tus/files", func(r chi.Router) {
		r.Handle("/*", tusHandler)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(apiKey))

		r.Post("/video/create", videoHandler.Create)
		r.Post("/video/{id}/upload", videoHandler.Upload)
		r.Get("/video/{id}/status", videoHandler.Status)
		r.Get("/video/{id}/callback-status", videoHandler.CallbackStatus)
		r.Get("/videos", videoHandler.List)
	})

	return r
}
