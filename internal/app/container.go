// Package app wires the runtime dependency container.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/orchestr8/dashboard/internal/config"
	"github.com/orchestr8/dashboard/internal/configstore"
	"github.com/orchestr8/dashboard/internal/db"
	"github.com/orchestr8/dashboard/internal/metrics"
	"github.com/orchestr8/dashboard/internal/observability"
	"github.com/orchestr8/dashboard/internal/realtime"
	"github.com/orchestr8/dashboard/internal/realtime/changefeed"
	"github.com/orchestr8/dashboard/internal/services/dashboard"
	"github.com/orchestr8/dashboard/internal/services/keyvault"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	DBPool        *pgxpool.Pool
	Redis         *redis.Client
	Queries       *db.Queries
	Logger        *slog.Logger
	Observability *observability.Provider

	ConfigStore configstore.Store
	Aggregator  *metrics.Aggregator
	Dashboards  *dashboard.Service
	Keys        *keyvault.Service
	Feed        *changefeed.Feed
	Coordinator *realtime.Coordinator
}

// NewContainer builds a dependency container from the provided primitives.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("db pool is required")
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	queries := db.New(pool)
	configs := configstore.NewDBStore(queries)
	aggregator := metrics.NewAggregator(queries, cfg.Metrics, logger)
	dashboards := dashboard.NewService(queries, aggregator, configs, cfg.Metrics, logger)
	keys := keyvault.NewService(queries, logger)

	feed := changefeed.NewFeed(redisClient, logger)
	feed.SetMalformedHook(obs.RecordMalformedPayload)
	coordinator := realtime.NewCoordinator(feed, cfg.Realtime, obs, logger)

	return &Container{
		Config:        cfg,
		DBPool:        pool,
		Redis:         redisClient,
		Queries:       queries,
		Logger:        logger,
		Observability: obs,
		ConfigStore:   configs,
		Aggregator:    aggregator,
		Dashboards:    dashboards,
		Keys:          keys,
		Feed:          feed,
		Coordinator:   coordinator,
	}, nil
}

// StartRealtime begins watching the configured owner's tables, refreshing the
// cached dashboard view on each debounced invalidation. It is a no-op when no
// owner is configured.
func (c *Container) StartRealtime(ctx context.Context) error {
	owner := c.Config.Realtime.Owner
	if owner == "" {
		c.Logger.Info("realtime disabled: no owner configured")
		return nil
	}
	return c.Coordinator.Start(ctx, owner, func(ctx context.Context) {
		c.Dashboards.Refresh(ctx, owner)
	})
}
