package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the auth core.
type Metrics struct {
	Logins                *prometheus.CounterVec
	AuthFailures          prometheus.Counter
	UsersCreated          prometheus.Counter
	TenantsCreated        prometheus.Counter
	ActiveSessions        prometheus.Gauge
	SessionsRevoked       prometheus.Counter
	InvitationsCreated    prometheus.Counter
	InvitationsConsumed   prometheus.Counter
	FederatedExchange     prometheus.Histogram
	EndpointLatency       *prometheus.HistogramVec
	TenantGuardRejections prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "painchain_logins_total",
			Help: "Total number of successful logins, labeled by method",
		}, []string{"method"}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "painchain_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "painchain_users_created_total",
			Help: "Total number of users created",
		}),
		TenantsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "painchain_tenants_created_total",
			Help: "Total number of tenants created",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "painchain_active_sessions",
			Help: "Current number of active sessions",
		}),
		SessionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "painchain_sessions_revoked_total",
			Help: "Total number of sessions revoked",
		}),
		InvitationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "painchain_invitations_created_total",
			Help: "Total number of invitations created",
		}),
		InvitationsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "painchain_invitations_consumed_total",
			Help: "Total number of invitations consumed",
		}),
		FederatedExchange: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "painchain_federated_exchange_seconds",
			Help:    "Latency of provider code exchange plus userinfo fetch",
			Buckets: prometheus.DefBuckets,
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "painchain_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		TenantGuardRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "painchain_tenant_guard_rejections_total",
			Help: "Requests rejected for declaring a tenant other than their own",
		}),
	}
}
