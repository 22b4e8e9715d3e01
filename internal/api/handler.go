// Package api exposes the query engine over HTTP. Every data-path request
// carries its own warehouse connection (catalog name, bucket, credential key
// file) and is served by a session that lives for exactly that request.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/icequery/icequery/internal/config"
	"github.com/icequery/icequery/internal/observability"
	"github.com/icequery/icequery/internal/query"
	"github.com/icequery/icequery/internal/session"
	"github.com/icequery/icequery/internal/snapshot"
)

type ReadinessCheck func(ctx context.Context) error

// QueryExecutor runs one full query cycle. *query.Executor satisfies it.
type QueryExecutor interface {
	Execute(ctx context.Context, cfg session.Config, req query.Request, sink query.Sink) (*query.Table, error)
}

// SnapshotResolver resolves a table to its deduplicated latest snapshot.
// *snapshot.Service satisfies it.
type SnapshotResolver interface {
	ResolveLatest(ctx context.Context, cfg session.Config, req snapshot.Request) (snapshot.Outcome, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Executor          QueryExecutor
	Resolver          SnapshotResolver
	Sessions          query.SessionOpener
	UI                http.Handler
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
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(cfg, deps, w, r)
	})
	protected.HandleFunc("POST /v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		handleResolve(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(cfg, deps, w, r)
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
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("POST /v1/resolve", protectedHandler)
	mux.Handle("GET /v1/schema", protectedHandler)
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckWarehouseDefaults(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Warehouse.DefaultBucket == "" {
			return errors.New("default warehouse bucket is not configured")
		}
		if cfg.Warehouse.Prefix == "" {
			return errors.New("warehouse prefix is not configured")
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

// writeKindError renders the closed error-kind set to its wire codes. Kinds
// stay typed until this point; nothing below the handler compares strings.
func writeKindError(ctx context.Context, w http.ResponseWriter, err error) {
	var queryErr *query.Error
	if !errors.As(err, &queryErr) {
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), true, nil)
		return
	}
	switch queryErr.Kind {
	case query.KindConfiguration:
		writeError(ctx, w, http.StatusBadRequest, "CONFIGURATION_ERROR", queryErr.Error(), false, nil)
	case query.KindQuery:
		writeError(ctx, w, http.StatusBadRequest, "QUERY_ERROR", queryErr.Error(), false, nil)
	case query.KindResolution:
		writeError(ctx, w, http.StatusNotFound, "RESOLUTION_ERROR", queryErr.Error(), false, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", queryErr.Error(), true, nil)
	}
}
