package main

import (
	"context"
	"fmt"

	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/factory"
	"github.com/lychee-technology/customapi/internal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger from the logging settings.
func newLogger(cfg customapi.LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

// loadRegistry reads content types from S3 when a bucket is configured and
// from the schema directory otherwise.
func loadRegistry(ctx context.Context, config *customapi.Config) (*internal.FileSchemaRegistry, error) {
	if config.Schema.S3Bucket == "" {
		zap.S().Infow("loading content types from directory", "dir", config.Schema.Directory)
		return internal.NewFileSchemaRegistryFromDirectory(ctx, config.Schema.Directory)
	}

	client, err := internal.NewS3Client(ctx, config.S3)
	if err != nil {
		return nil, err
	}
	if err := internal.S3HealthCheck(ctx, client, config.Schema.S3Bucket, 0); err != nil {
		return nil, err
	}
	zap.S().Infow("loading content types from s3", "bucket", config.Schema.S3Bucket, "prefix", config.Schema.S3Prefix)
	return internal.NewFileSchemaRegistry(ctx, internal.NewS3SchemaSource(client, config.Schema.S3Bucket, config.Schema.S3Prefix))
}

// buildServices opens the Postgres pool and wires the service graph. The
// returned cleanup releases everything that was opened.
func buildServices(ctx context.Context, config *customapi.Config) (*factory.Services, func(context.Context) error, func(), error) {
	pool, err := internal.NewPostgresPool(ctx, config.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	registry, err := loadRegistry(ctx, config)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to load content types: %w", err)
	}

	services, err := factory.NewServicesWithConfig(config, pool, registry)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	health := func(ctx context.Context) error {
		if err := internal.PostgresHealthCheck(ctx, pool, 0); err != nil {
			return err
		}
		return services.HealthCheck(ctx)
	}
	cleanup := func() {
		if err := services.Close(); err != nil {
			zap.S().Warnw("failed to close services", "error", err)
		}
		pool.Close()
	}
	return services, health, cleanup, nil
}
