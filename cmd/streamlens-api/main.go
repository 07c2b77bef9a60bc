package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamlens/streamlens/internal/api"
	"github.com/streamlens/streamlens/internal/auth"
	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/export"
	"github.com/streamlens/streamlens/internal/gateway"
	"github.com/streamlens/streamlens/internal/loader"
	"github.com/streamlens/streamlens/internal/maintenance"
	"github.com/streamlens/streamlens/internal/observability"
	"github.com/streamlens/streamlens/internal/registry"
	registrypostgres "github.com/streamlens/streamlens/internal/registry/postgres"
	"github.com/streamlens/streamlens/internal/replay"
	"github.com/streamlens/streamlens/internal/results"
	s3store "github.com/streamlens/streamlens/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("streamlens-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	gatewayClient, err := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.RequestTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize gateway client", slog.Any("error", err))
		os.Exit(1)
	}
	statementLoader := loader.New(gatewayClient, cfg.Results.StatusCacheTTL)

	var registryRepo registry.Repository
	readinessChecks := []api.ReadinessCheck{api.CheckGatewayConfig(cfg)}
	if cfg.Registry.DSN != "" {
		registryDB, err := registrypostgres.Open(context.Background(), registrypostgres.DBConfig{
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
		defer func() { _ = registryDB.Close() }()
		repo := registrypostgres.NewRepository(registryDB)
		registryRepo = repo
		readinessChecks = append(readinessChecks, repo.HealthCheck)
	}

	var exporter *export.Exporter
	var replayEngine *replay.Engine
	var janitor *maintenance.Service
	if cfg.ObjectStore.Endpoint != "" {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
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
		replayEngine = replay.NewEngine(objectStore)
		if registryRepo != nil {
			exporter = &export.Exporter{
				Store:     objectStore,
				Repo:      registryRepo,
				CreatedBy: cfg.Retention.CreatedBy,
				Logger:    logger,
			}
			janitor = &maintenance.Service{
				Registry:    registryRepo,
				ObjectStore: objectStore,
				Config: maintenance.Config{
					RetentionInterval: cfg.Retention.Interval,
					SessionTTL:        cfg.Retention.SessionTTL,
					KeepExports:       cfg.Retention.KeepExports,
					ExportSafetyAge:   cfg.Retention.ExportSafetyAge,
					CreatedBy:         cfg.Retention.CreatedBy,
				},
				Logger: logger,
			}
		}
		readinessChecks = append(readinessChecks, api.CheckObjectStoreConfig(cfg))
	}

	sessions, err := api.NewSessionService(api.SessionServiceOptions{
		Fetcher:  gatewayClient,
		Loader:   statementLoader,
		Repo:     registryRepo,
		Exporter: exporter,
		Engine: results.Config{
			ResultsLimit:    cfg.Results.ResultsLimit,
			PollInterval:    cfg.Results.PollInterval,
			RefreshInterval: cfg.Results.RefreshInterval,
		},
		DefaultEnvironment: cfg.Gateway.Environment,
		DefaultComputePool: cfg.Gateway.ComputePool,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("failed to initialize session service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Sessions:          sessions,
		Registry:          registryRepo,
		ReplayEngine:      replayEngine,
		Readiness:         api.CombineReadinessChecks(readinessChecks...),
		DependencyTimeout: time.Second,
	}
	if janitor != nil {
		janitor.Sessions = sessions
		deps.Maintenance = janitor
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if janitor != nil {
		go func() {
			if err := janitor.Run(ctx); err != nil {
				logger.Error("retention loop failed", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
