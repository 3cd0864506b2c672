// Package app wires configuration into the running services shared by the
// API server, the worker and the serverless entry point.
package app

import (
	"context"
	"fmt"

	"catalogsync/internal/cache"
	"catalogsync/internal/catalog"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/logger"
	"catalogsync/internal/normalizer"
	"catalogsync/internal/services/supplier"
	"catalogsync/internal/store"
	catalogsync "catalogsync/internal/sync"
	"catalogsync/internal/worker"
	"catalogsync/internal/worker/processors"
	"catalogsync/internal/worker/processors/export"
	"catalogsync/internal/worker/processors/validation"

	"github.com/redis/go-redis/v9"
)

type App struct {
	Config       *config.Config
	Logger       *logger.Logger
	Database     *database.Database
	Store        *store.Store
	Catalog      *catalog.Service
	Hierarchy    *catalog.HierarchyBuilder
	Orchestrator *catalogsync.Orchestrator
	Processor    *processors.EventProcessor

	redis *redis.Client
	kafka *worker.KafkaDispatcher
}

// New connects the database and builds every service. Redis and Kafka are
// optional: without REDIS_URL the hierarchy is rebuilt per request, without
// KAFKA_BROKERS exports run in-process.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.NewWithDriver(cfg.DatabaseURL, cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}

	hierarchyCfg, err := catalog.LoadHierarchyConfig(cfg.CategoryConfigPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Database: db,
		Store:    store.New(db.DB, log),
		Catalog:  catalog.NewService(db.DB, hierarchyCfg, log),
	}

	var hierarchyCache catalog.HierarchyCache
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, hierarchy cache disabled: %v", err)
		} else {
			a.redis = client
			hierarchyCache = cache.NewHierarchyCache(client, cfg.HierarchyCacheTTL, log)
		}
	}
	a.Hierarchy = catalog.NewHierarchyBuilder(db.DB, hierarchyCfg, hierarchyCache, log)

	sink, err := newSink(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	validator := validation.New(validation.Options{
		PlaceholderImage: cfg.PlaceholderImageURL,
		MaxTitleLen:      cfg.FeedMaxTitleLen,
	}, log)
	exporter := export.New(db.DB, sink, cfg.ExportPrefix, log).WithValidator(validator)
	a.Processor = processors.NewEventProcessor(exporter, log)

	client := supplier.NewClient(supplier.ClientConfig{
		BaseURL:           cfg.SupplierBaseURL,
		AuthPath:          cfg.SupplierAuthPath,
		ProductsPath:      cfg.SupplierProductsPath,
		Username:          cfg.SupplierUsername,
		Password:          cfg.SupplierPassword,
		Format:            cfg.SupplierFormat,
		RequestTimeout:    cfg.RequestTimeout,
		AuthRetries:       cfg.AuthRetries,
		PageRetries:       cfg.PageRetries,
		Backoff:           cfg.Backoff,
		RetryableStatuses: cfg.RetryableStatuses,
	}, log)

	norm := normalizer.New(normalizer.Options{
		PriceScale:        cfg.PriceScale,
		MaxImages:         cfg.MaxImages,
		DescriptionMaxLen: cfg.DescriptionMaxLen,
		PlaceholderImage:  cfg.PlaceholderImageURL,
	}, log)

	a.Orchestrator = catalogsync.New(catalogsync.Config{
		PageSize:      cfg.PageSize,
		MaxRecords:    cfg.MaxRecords,
		PageDelay:     cfg.PageDelay,
		StaleRunAfter: cfg.StaleRunAfter,
	}, client, norm, a.Store, log).WithInvalidator(a.Hierarchy)

	if cfg.KafkaBrokers != "" {
		a.kafka = worker.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaExportTopic, log)
		a.Orchestrator.WithDispatcher(a.kafka)
	} else {
		local := worker.NewLocalDispatcher(a.Processor, log).WithOnDone(func(runID string, err error) {
			if err == nil {
				log.Debug("In-process export for run %s finished", runID)
			}
		})
		a.Orchestrator.WithDispatcher(local)
	}

	return a, nil
}

func newSink(ctx context.Context, cfg *config.Config) (export.Sink, error) {
	if cfg.ExportS3Bucket == "" {
		return export.NewFileSink(cfg.ExportDir), nil
	}
	sink, err := export.NewS3Sink(ctx, export.S3Config{
		Bucket:   cfg.ExportS3Bucket,
		Region:   cfg.ExportS3Region,
		Endpoint: cfg.ExportS3Endpoint,
		Key:      cfg.ExportS3Key,
		Secret:   cfg.ExportS3Secret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure export sink: %w", err)
	}
	return sink, nil
}

// Close releases the broker writer, the redis client and the database.
func (a *App) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.Logger.Error("Failed to close kafka writer: %v", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.Database.Close(); err != nil {
		a.Logger.Error("Failed to close database: %v", err)
	}
}
