// Package httptransport assembles the HTTP surface: shared middleware,
// per-domain handlers, health and metrics endpoints. Individual routes live
// with their domains; this package only mounts them.
package httptransport

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sabha/internal/platform/metrics"
	"sabha/internal/platform/middleware"
	platformredis "sabha/internal/platform/redis"
	"sabha/internal/transport/http/shared"
)

const requestTimeout = 30 * time.Second

// Registrar is implemented by every domain handler package.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries everything the router mounts. Nil handlers are skipped so
// tests can wire a subset.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	DB    *sql.DB
	Redis *platformredis.Client

	Handlers []Registrar
}

// NewRouter builds the full chi router with the shared middleware chain.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Origin)
	if deps.Metrics != nil {
		r.Use(middleware.Latency(deps.Metrics))
	}
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", healthHandler(deps.DB, deps.Redis))
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range deps.Handlers {
		if h != nil {
			h.Register(r)
		}
	}
	return r
}

// healthHandler reports liveness plus the state of each backing store. The
// process stays "ok" with degraded dependencies so orchestrators do not
// restart it for a database blip.
func healthHandler(db *sql.DB, rdb *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		if db != nil {
			checks["postgres"] = checkStatus(db.PingContext(ctx))
		}
		if rdb != nil {
			checks["redis"] = checkStatus(rdb.Health(ctx))
		}

		shared.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"checks": checks,
		})
	}
}

func checkStatus(err error) string {
	if err != nil {
		return "unavailable"
	}
	return "ok"
}
