package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/maintenance"
	"github.com/streamlens/streamlens/internal/observability"
	"github.com/streamlens/streamlens/internal/registry"
	"github.com/streamlens/streamlens/internal/replay"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Sessions          *SessionService
	Registry          registry.Repository
	ReplayEngine      *replay.Engine
	Maintenance       MaintenanceRunner
}

type MaintenanceRunner interface {
	RunRetentionOnce(ctx context.Context) (maintenance.RetentionSummary, error)
	RunIntegrityCheckOnce(ctx context.Context) (maintenance.IntegritySummary, error)
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleListSessions(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}/state", func(w http.ResponseWriter, r *http.Request) {
		handleGetSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSessionSchema(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{session}/messages", func(w http.ResponseWriter, r *http.Request) {
		handleSessionMessage(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}/results", func(w http.ResponseWriter, r *http.Request) {
		handleSessionResults(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}/results/count", func(w http.ResponseWriter, r *http.Request) {
		handleSessionResultsCount(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{session}/stop", func(w http.ResponseWriter, r *http.Request) {
		handleStopSession(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{session}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteSession(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{session}/export", func(w http.ResponseWriter, r *http.Request) {
		handleExportSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/watches", func(w http.ResponseWriter, r *http.Request) {
		handleListWatches(deps, w, r)
	})
	protected.HandleFunc("GET /v1/exports", func(w http.ResponseWriter, r *http.Request) {
		handleListExports(deps, w, r)
	})
	protected.HandleFunc("POST /v1/replay", func(w http.ResponseWriter, r *http.Request) {
		handleReplay(deps, w, r)
	})
	protected.HandleFunc("POST /v1/retention/run", func(w http.ResponseWriter, r *http.Request) {
		handleRetentionRun(deps, w, r)
	})
	protected.HandleFunc("POST /v1/integrity/run", func(w http.ResponseWriter, r *http.Request) {
		handleIntegrityRun(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/sessions", protectedHandler)
	mux.Handle("GET /v1/sessions", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}/state", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}/schema", protectedHandler)
	mux.Handle("POST /v1/sessions/{session}/messages", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}/results", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}/results/count", protectedHandler)
	mux.Handle("POST /v1/sessions/{session}/stop", protectedHandler)
	mux.Handle("DELETE /v1/sessions/{session}", protectedHandler)
	mux.Handle("POST /v1/sessions/{session}/export", protectedHandler)
	mux.Handle("GET /v1/watches", protectedHandler)
	mux.Handle("GET /v1/exports", protectedHandler)
	mux.Handle("POST /v1/replay", protectedHandler)
	mux.Handle("POST /v1/retention/run", protectedHandler)
	mux.Handle("POST /v1/integrity/run", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckGatewayConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Gateway.BaseURL == "" {
			return errors.New("gateway base url is not configured")
		}
		return nil
	}
}

func CheckRegistryDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Registry.DSN == "" {
			return errors.New("registry dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
