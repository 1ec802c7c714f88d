package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keilo/catalogd/internal/config"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/pipeline"
	"github.com/keilo/catalogd/internal/queue"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/search"
	"github.com/keilo/catalogd/internal/service"
)

func main() {
	logger.SetDefaultLogger(logger.NewDefault())
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	products := repository.NewProductRepository(db)
	categories := repository.NewCategoryRepository(db)
	jobs := repository.NewJobRepository(db)
	taskq := queue.NewGormQueue(db)

	index, err := search.NewQdrantIndex(&search.QdrantConfig{
		Host:      cfg.Qdrant.Host,
		Port:      cfg.Qdrant.Port,
		Alias:     cfg.Qdrant.Alias,
		APIKey:    cfg.Qdrant.APIKey,
		UseTLS:    cfg.Qdrant.UseTLS,
		VectorDim: cfg.Search.VectorDim,
	})
	if err != nil {
		logger.Fatal("Failed to initialize search index: %v", err)
	}
	defer index.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := index.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure index collection: %v", err)
	}

	embedder := search.NewEmbedder(cfg.Search.VectorDim)
	syncer := service.NewSyncService(products, categories, index, embedder, service.SyncConfig{
		RebuildBatch:   cfg.Search.RebuildBatch,
		RebuildRetries: cfg.Search.RebuildRetries,
	})

	merger, err := pipeline.NewMerger(products, categories, syncer, pipeline.MergerConfig{
		RowFanout: cfg.Import.RowFanout,
	})
	if err != nil {
		logger.Fatal("Failed to initialize merger: %v", err)
	}
	defer merger.Release()

	notifier := service.NewNotifier(cfg.Import.WebhookURL)

	worker := service.NewWorker(taskq, jobs, merger, notifier, service.WorkerConfig{
		BatchSize:    cfg.Import.EnqueueBatch,
		Visibility:   cfg.Import.QueueVisibility,
		PollInterval: cfg.Import.PollInterval,
	})

	ctx = logger.SetComponent(ctx, "worker")

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("Worker stopped: %v", err)
	}

	logger.Info("Worker exited")
}
