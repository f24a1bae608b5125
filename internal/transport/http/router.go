// Package httptransport wires the HTTP surface: middleware chain, route
// registration, and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	identityhandler "painchain/internal/identity/handler"
	invitationhandler "painchain/internal/invitation/handler"
	"painchain/internal/platform/metrics"
	"painchain/internal/platform/middleware"
	"painchain/internal/platform/tracing"
	"painchain/internal/transport/http/json"
)

// Deps carries everything the router composes. Nil optional fields disable
// the matching feature rather than panic.
type Deps struct {
	Identity    *identityhandler.Handler
	Invitations *invitationhandler.Handler
	TokenParser middleware.TokenParser
	Sessions    middleware.SessionChecker
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	// HealthCheck reports backing-store health; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// NewRouter assembles the full middleware chain and mounts every route.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(tracing.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.BodyLimit(1 << 20))
	if d.Metrics != nil {
		r.Use(latencyMiddleware(d.Metrics))
	}

	r.Get("/health", healthHandler(d.HealthCheck))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	requireAuth := middleware.RequireAuth(d.TokenParser, d.Sessions, d.Logger)
	tenantGuard := middleware.TenantGuard(d.Logger, func() {
		if d.Metrics != nil {
			d.Metrics.TenantGuardRejections.Inc()
		}
	})

	r.Route("/api", func(api chi.Router) {
		d.Identity.Register(api)
		d.Invitations.Register(api)

		api.Group(func(protected chi.Router) {
			protected.Use(requireAuth)
			protected.Use(tenantGuard)
			d.Identity.RegisterProtected(protected)
			d.Invitations.RegisterProtected(protected)
		})
	})

	return r
}

// latencyMiddleware observes per-route latency labeled by the chi route
// pattern rather than the raw path, keeping label cardinality bounded.
func latencyMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.EndpointLatency.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
		})
	}
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				json.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
