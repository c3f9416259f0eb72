package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serisow/craftvid/config"
	"github.com/serisow/craftvid/db"
	"github.com/serisow/craftvid/logging"
	"github.com/serisow/craftvid/notify"
	"github.com/serisow/craftvid/orchestrator"
	"github.com/serisow/craftvid/plugin_registry"
	"github.com/serisow/craftvid/queue"
	"github.com/serisow/craftvid/repository"
	"github.com/serisow/craftvid/scheduler"
	"github.com/serisow/craftvid/server"
	"github.com/serisow/craftvid/services/provider_service"
	"github.com/serisow/craftvid/status"
	"github.com/serisow/craftvid/storage"
	"github.com/serisow/craftvid/video"
	"github.com/spf13/cobra"
)

const (
	taskRetention   = 24 * time.Hour
	cleanupInterval = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the worker pool and the compile scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	cfg := config.Load()

	logger, logHandler, err := logging.New(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logHandler.Close()
	slog.SetDefault(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewLocal(cfg.MediaRoot)
	if err != nil {
		return err
	}

	stack, err := newRenderStack(logger, cfg, store)
	if err != nil {
		return err
	}
	if err := stack.ffmpeg.Available(); err != nil {
		logger.Warn("ffmpeg not available, previews and compiles will fail", slog.String("error", err.Error()))
	}

	var (
		repo        repository.Repository
		statusStore status.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, logger, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = repository.NewPostgres(pool)
		statusStore = status.NewPostgresStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		repo = repository.NewMemory()
		statusStore = status.NewMemoryStore()
	}

	tasks := queue.NewTaskStore(logger, nil)
	tasks.StartCleanup(taskRetention, cleanupInterval)
	defer tasks.StopCleanup()
	q := queue.New(logger, cfg.WorkerConcurrency, tasks)
	defer q.Stop()

	registry, err := registerProviders(logger, cfg)
	if err != nil {
		return err
	}

	hub := notify.NewHub(logger)
	batches := orchestrator.NewBatchStore(logger)
	batches.StartCleanup(taskRetention, cleanupInterval)
	defer batches.StopCleanup()

	orch := orchestrator.New(logger, orchestrator.Deps{
		Repo:       repo,
		Tracker:    status.NewTracker(logger, statusStore),
		Queue:      q,
		Registry:   registry,
		Renderer:   stack.service,
		Storage:    store,
		Downloader: storage.NewDownloader(logger, store),
		Publisher:  notify.Multi{hub, notify.NewLogPublisher(logger)},
		Batches:    batches,
	}, orchestrator.Config{
		RetryAttempts:  cfg.RetryAttempts,
		RetryDelay:     cfg.RetryDelay,
		CompileSettle:  cfg.CompileSettle,
		DefaultVoice:   cfg.DefaultVoice,
		DefaultModel:   cfg.DefaultModel,
		SpeechProvider: cfg.SpeechProvider,
		ImageProvider:  cfg.ImageProvider,
		Quality:        cfg.DefaultQuality,
		Format:         cfg.DefaultFormat,
	})

	sched := scheduler.New(logger, cfg.CheckInterval, repo, orch)
	go sched.Start(ctx)

	video.NewCleanupService(logger, cfg.TempDir, cfg.MediaRoot, cfg.RetentionDays).
		StartCleanupSchedule(ctx, cleanupInterval)

	r := server.SetupRoutes(server.Deps{
		Logger:       logger,
		Repo:         repo,
		Orchestrator: orch,
		Registry:     registry,
		Hub:          hub,
		Presets:      stack.presets,
		Effects:      stack.effects.Names(),
	})
	n := server.SetupNegroni(r)

	srvCfg := server.Config{
		Domains:      cfg.Domains,
		CertCacheDir: cfg.CertCacheDir,
		HTTPPort:     cfg.HTTPPort,
		HTTPSPort:    cfg.HTTPSPort,
		IdleTimeout:  time.Minute,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if cfg.Environment == "production" {
		err = server.ServeProduction(ctx, logger, n, srvCfg)
	} else {
		err = server.ServeDevelopment(ctx, logger, n, srvCfg)
	}
	stop()
	sched.Wait()
	logger.Info("Server stopped")
	return err
}

// registerProviders registers every provider that has credentials.
func registerProviders(logger *slog.Logger, cfg config.Config) (*plugin_registry.PluginRegistry, error) {
	registry := plugin_registry.NewPluginRegistry()

	if cfg.ElevenLabsAPIKey != "" {
		registry.RegisterSpeechService("elevenlabs", provider_service.NewElevenLabsService(logger, cfg.ElevenLabsAPIURL, cfg.ElevenLabsAPIKey))
	}
	if cfg.AWSAccessKeyID != "" {
		polly, err := provider_service.NewAWSPollyService(logger, cfg.AWSAccessKeyID, cfg.AWSAPISecret, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		registry.RegisterSpeechService("aws_polly", polly)
	}
	if cfg.OpenAIAPIKey != "" {
		registry.RegisterImageService("openai_image", provider_service.NewOpenAIImageService(logger, cfg.OpenAIImageURL, cfg.OpenAIAPIKey, cfg.OpenAIImageModel))
	}

	logger.Info("Providers registered",
		slog.Any("speech", registry.SpeechServiceNames()),
		slog.Any("image", registry.ImageServiceNames()))
	return registry, nil
}
