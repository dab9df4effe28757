package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/config"
	"github.com/hyperjump/semindex/internal/embedding"
	"github.com/hyperjump/semindex/internal/scheduler"
	"github.com/hyperjump/semindex/internal/service"
	"github.com/hyperjump/semindex/internal/storage"
	"github.com/hyperjump/semindex/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Snapshots storage.SnapshotStore
	Encoder   embedding.Encoder
	Store     *vector.Store
	Scheduler *scheduler.Scheduler
	Service   *service.Service
}

// Close flushes the index with a final checkpoint and releases the encoder and
// snapshot store.
func (c *Components) Close(ctx context.Context) error {
	if c.Service != nil {
		return c.Service.Close(ctx)
	}
	var errs []error
	if c.Encoder != nil {
		errs = append(errs, c.Encoder.Close())
	}
	if c.Snapshots != nil {
		errs = append(errs, c.Snapshots.Close())
	}
	return errors.Join(errs...)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}

	snapshots, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot storage: %w", err)
	}
	c.Snapshots = snapshots

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	embedder = embedding.WithCache(embedder, cfg.Embedding.CacheSize)
	c.Encoder = embedding.NewEncoder(embedder, cfg.Embedding.QueryInstruction)
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()))

	variant, err := vector.ParseVariant(cfg.Index.Variant)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	manager, err := vector.NewManager(variant, cfg.Embedding.Dimensions, vector.GraphOptions{
		M:        cfg.Index.M,
		Ml:       cfg.Index.Ml,
		EfSearch: cfg.Index.EfSearch,
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Store = vector.NewStore(manager)
	c.Scheduler = scheduler.New(logger)

	svc, err := service.Open(ctx, c.Store, c.Encoder, c.Snapshots,
		service.WithLogger(logger),
		service.WithPolicy(service.Policy(cfg.Checkpoint.Policy), cfg.Checkpoint.Schedule),
		service.WithScheduler(c.Scheduler),
	)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	c.Service = svc
	logger.Info("vector index initialized",
		zap.String("variant", string(variant)),
		zap.Int("count", svc.Count()))
	return c, nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	case config.ProviderONNX:
		return embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			OutputName:  cfg.OutputName,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
		})
	case config.ProviderHTTP:
		return embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			URL:        cfg.URL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
