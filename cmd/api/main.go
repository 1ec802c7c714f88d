package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/keilo/catalogd/internal/api"
	"github.com/keilo/catalogd/internal/config"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/pipeline"
	"github.com/keilo/catalogd/internal/queue"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/search"
	"github.com/keilo/catalogd/internal/service"
	"github.com/keilo/catalogd/internal/storage"
)

func main() {
	// Initialize logger from environment first so config errors are logged
	logger.SetDefaultLogger(logger.NewDefault())
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// Repositories
	products := repository.NewProductRepository(db)
	categories := repository.NewCategoryRepository(db)
	jobs := repository.NewJobRepository(db)
	taskq := queue.NewGormQueue(db)

	// Search index
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

	ctx := context.Background()
	if err := index.EnsureCollection(ctx); err != nil {
		logger.Fatal("Failed to ensure index collection: %v", err)
	}

	embedder := search.NewEmbedder(cfg.Search.VectorDim)

	// Feed archive storage, optional
	feedStore, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize feed storage: %v", err)
	}
	if s3, ok := feedStore.(*storage.S3Store); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			logger.Fatal("Failed to ensure feed bucket: %v", err)
		}
	}

	// Services
	syncer := service.NewSyncService(products, categories, index, embedder, service.SyncConfig{
		RebuildBatch:   cfg.Search.RebuildBatch,
		RebuildRetries: cfg.Search.RebuildRetries,
	})
	imports := service.NewImportService(jobs, pipeline.NewValidator(categories), taskq, feedStore, service.ImporterConfig{
		ChunkSize: cfg.Import.ChunkSize,
		Dispatcher: pipeline.DispatcherConfig{
			BatchSize:  cfg.Import.EnqueueBatch,
			Rate:       rate.Limit(cfg.Import.EnqueueRate),
			MaxRetries: cfg.Import.EnqueueRetries,
		},
	})
	searchSvc := service.NewSearchService(products, index, embedder)

	router := api.SetupRouter(api.Deps{
		DB:         db,
		Products:   products,
		Categories: categories,
		Imports:    imports,
		Search:     searchSvc,
		Syncer:     syncer,
	}, cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting API server: port=%d, mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
