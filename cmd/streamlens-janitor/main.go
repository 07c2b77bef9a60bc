package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/maintenance"
	"github.com/streamlens/streamlens/internal/observability"
	registrypostgres "github.com/streamlens/streamlens/internal/registry/postgres"
	s3store "github.com/streamlens/streamlens/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("streamlens-janitor")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := registrypostgres.Open(context.Background(), registrypostgres.DBConfig{
		DSN:             cfg.Registry.DSN,
		MaxOpenConns:    cfg.Registry.MaxOpenConns,
		MaxIdleConns:    cfg.Registry.MaxIdleConns,
		ConnMaxIdleTime: cfg.Registry.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Registry.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open registry db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	svc := &maintenance.Service{
		Registry:    registrypostgres.NewRepository(db),
		ObjectStore: store,
		Config: maintenance.Config{
			RetentionInterval: cfg.Retention.Interval,
			SessionTTL:        cfg.Retention.SessionTTL,
			KeepExports:       cfg.Retention.KeepExports,
			ExportSafetyAge:   cfg.Retention.ExportSafetyAge,
			CreatedBy:         cfg.Retention.CreatedBy,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("janitor worker started")
	if err := svc.Run(ctx); err != nil {
		logger.Error("janitor worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("janitor worker stopped")
}
