package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/vellum-stream/pipeline/internal/config"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
	"github.com/vellum-stream/pipeline/internal/infrastructure/queue"
	"github.com/vellum-stream/pipeline/internal/infrastructure/storage"
	"github.com/vellum-stream/pipeline/internal/infrastructure/store"
	"github.com/vellum-stream/pipeline/internal/transcoder"
	"github.com/vellum-stream/pipeline/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Worker.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	// The worker mutates records directly and is never polled the way the
	// API's GET /status handler is; it talks to the store with no cache in
	// front of it.
	videoStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open video store: %w", err)
	}
	defer videoStore.Close()
	logger.Info("opened video store", slog.String("path", cfg.Store.Path))

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
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

	prober := transcoder.NewProber()
	ffmpeg := transcoder.NewFFmpegRunner(transcoder.DefaultFFmpegConfig())
	job := transcoder.NewJob(videoStore, storageClient, prober, ffmpeg, transcoder.JobConfig{
		WorkDirBase: cfg.Worker.TempDir,
	})

	dispatcher := usecase.NewWebhookDispatcher(videoStore)
	cleanup := usecase.NewCleanupService(usecase.CleanupConfig{WorkDirBase: cfg.Worker.TempDir})

	sweeper := usecase.NewWebhookSweeper(videoStore, dispatcher, usecase.WebhookSweeperConfig{
		Interval: cfg.Worker.CallbackSweepInterval,
	})
	go sweeper.Run(ctx)
	logger.Info("started webhook sweeper", slog.Duration("interval", cfg.Worker.CallbackSweepInterval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	handleTask := func(ctx context.Context, task repository.TranscodeTask, ack func()) error {
		acquired, _, err := videoStore.TryAcquireForProcessing(ctx, task.UploadID)
		if err != nil {
			return fmt.Errorf("acquire guard: %w", err)
		}
		if !acquired {
			ack()
			logger.Info("task already claimed, skipping redelivery", slog.String("upload_id", task.UploadID))
			return nil
		}
		ack()

		wg.Add(1)
		defer wg.Done()

		logger.Info("processing task", slog.String("upload_id", task.UploadID))
		jobErr := job.TranscodeAndUpload(ctx, task)
		if jobErr != nil {
			logger.Error("task processing failed", slog.String("upload_id", task.UploadID), slog.String("error", jobErr.Error()))
		} else {
			logger.Info("task completed successfully", slog.String("upload_id", task.UploadID))
		}

		record, getErr := videoStore.Get(ctx, task.UploadID)
		if getErr != nil {
			logger.Error("failed to reload record for webhook dispatch", slog.String("upload_id", task.UploadID), slog.String("error", getErr.Error()))
			return jobErr
		}
		if err := dispatcher.Dispatch(ctx, record); err != nil {
			logger.Warn("webhook dispatch failed", slog.String("upload_id", task.UploadID), slog.String("error", err.Error()))
		}

		cleanup.Cleanup(ctx, task)
		return jobErr
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming transcode tasks")
		if err := queueClient.ConsumeTranscodeTasks(ctx, handleTask); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}
