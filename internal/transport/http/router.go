// Package httptransport assembles the public HTTP surface: global
// middleware, the claim routes, health, and metrics.
package httptransport

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	claimhandler "claimgate/internal/claim/handler"
	"claimgate/internal/platform/middleware"
)

// Deps carries everything the router mounts.
type Deps struct {
	Claims   *claimhandler.Handler
	Logger   *slog.Logger
	Registry *prometheus.Registry
	// DB is optional; when set, /healthz pings it.
	DB *sql.DB
}

// NewRouter builds the chi router with the standard middleware chain. Order
// matters: recovery outermost, then request identity and timing, so every
// later layer logs with a request id and a stable clock.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Device)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	deps.Claims.Register(r)

	r.Get("/healthz", healthHandler(deps.DB))
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
