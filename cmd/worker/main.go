/**
 * FloorScan Worker - Main Entry Point
 *
 * Go worker that turns inventory screenshots into verified catalog records.
 *
 * Architecture:
 * - Redis list (default) or Asynq consumer for the scan job queue
 * - Segmentation via the vision recognizer, geometric layouts as fallback
 * - Structured extraction with a Tesseract fallback per region
 * - Catalog matching, income verification and missing-trait inference
 * - PostgreSQL persistence for reports, Qdrant for catalog suggestions
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/floorscan-worker/internal/catalog"
	"github.com/adverant/nexus/floorscan-worker/internal/clients"
	"github.com/adverant/nexus/floorscan-worker/internal/config"
	"github.com/adverant/nexus/floorscan-worker/internal/logging"
	"github.com/adverant/nexus/floorscan-worker/internal/processor"
	"github.com/adverant/nexus/floorscan-worker/internal/queue"
	"github.com/adverant/nexus/floorscan-worker/internal/storage"
)

func main() {
	logger := logging.NewLogger("Worker")
	defer logger.Sync()

	if err := godotenv.Load(".env.floorscan"); err != nil {
		logger.Warn(".env.floorscan not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	logger.Info("FloorScan Worker starting",
		"queueBackend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"scanMode", cfg.ScanMode,
		"qdrant", cfg.QdrantURL)

	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		logger.Fatal("Failed to initialize storage manager", "error", err)
	}

	entries, err := loadCatalog(cfg, storageManager)
	if err != nil {
		logger.Fatal("Failed to load catalog", "error", err)
	}
	logger.Info("Catalog loaded", "entries", len(entries), "source", catalogSource(cfg))

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := storageManager.IndexCatalog(indexCtx, entries); err != nil {
		logger.Warn("Catalog indexing failed, suggestions may be stale", "error", err)
	}
	cancelIndex()

	vision := clients.NewVisionClient(cfg.VisionURL, cfg.RecognizerTimeout())
	healthCtx, cancelHealth := context.WithTimeout(context.Background(), 5*time.Second)
	if err := vision.HealthCheck(healthCtx); err != nil {
		logger.Warn("Vision recognizer not reachable, regions will fall back to Tesseract", "url", cfg.VisionURL, "error", err)
	}
	cancelHealth()

	extractor := processor.NewFallbackExtractor(nil,
		processor.NewStructuredExtractor(vision, cfg.MinStructuredConfidence),
		processor.NewClassicalExtractor(processor.NewTesseractOCR(&processor.TesseractConfig{
			Language: cfg.TesseractLanguage,
		}), cfg.MinOCRConfidence),
	)

	opts := processor.DefaultPipelineOptions()
	opts.MaxParallelRegions = cfg.MaxParallelRegions
	opts.Verification = cfg.VerifyOptions()

	pipeline := processor.NewPipeline(processor.NewSegmenter(vision, nil), extractor, opts, nil).
		WithFloorReader(vision)

	svcCfg := &processor.ServiceConfig{
		Pipeline:  pipeline,
		Catalog:   entries,
		Store:     storageManager,
		Suggester: storageManager,
		Mode:      cfg.ScanMode,
	}
	if cfg.FileProcessAPIURL != "" {
		svcCfg.Uploader = clients.NewArtifactClient(cfg.FileProcessAPIURL)
	}
	svc, err := processor.NewScanService(svcCfg)
	if err != nil {
		logger.Fatal("Failed to initialize scan service", "error", err)
	}

	stop, err := startConsumer(cfg, svc)
	if err != nil {
		logger.Fatal("Failed to start queue consumer", "backend", cfg.QueueBackend, "error", err)
	}

	logger.Info("FloorScan Worker is ready, waiting for jobs",
		"queue", cfg.QueueName,
		"maxParallelRegions", cfg.MaxParallelRegions,
		"jobTimeout", cfg.JobTimeout().String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	if err := stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}
	if err := storageManager.Close(); err != nil {
		logger.Error("Error closing storage manager", "error", err)
	}
	logger.Info("Shutdown complete")
}

func loadCatalog(cfg *config.Config, sm *storage.StorageManager) ([]catalog.Entry, error) {
	if cfg.CatalogPath != "" {
		return catalog.LoadFile(cfg.CatalogPath)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sm.LoadCatalog(ctx)
}

func catalogSource(cfg *config.Config) string {
	if cfg.CatalogPath != "" {
		return cfg.CatalogPath
	}
	return "postgres"
}

// startConsumer starts the configured queue backend and returns its stop func.
func startConsumer(cfg *config.Config, svc processor.ScanProcessorInterface) (func() error, error) {
	if cfg.QueueBackend == config.QueueBackendAsynq {
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         svc,
			ProcessingTimeout: cfg.JobTimeout(),
		})
		if err != nil {
			return nil, err
		}
		if err := c.Start(context.Background()); err != nil {
			return nil, err
		}
		return func() error { return c.Stop(context.Background()) }, nil
	}

	c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         svc,
		ProcessingTimeout: cfg.JobTimeout(),
	})
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	return c.Stop, nil
}
