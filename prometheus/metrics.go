package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Tenancy guard violation counter
	TenancyViolationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_tenancy_violations_total",
			Help: "Total number of tenancy guard violations by kind and disposition",
		},
		[]string{"kind", "disposition"}, // disposition is "rejected" or "warned"
	)

	// Requests arriving without tenant context
	TenantContextMissingCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "project_tenant_context_missing_total",
			Help: "Total number of requests rejected for missing tenant context",
		},
	)

	// Access-control resolver decisions
	AccessDecisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_access_decisions_total",
			Help: "Total number of access control decisions",
		},
		[]string{"resource", "decision"}, // resource is "task" or "project"
	)

	// Access-grant operation counter
	GrantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_grant_operations_total",
			Help: "Total number of access-grant operations",
		},
		[]string{"resource", "operation"}, // operation: "invite", "role_change", "revoke"
	)

	// Impersonation operation counter
	ImpersonationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_impersonation_operations_total",
			Help: "Total number of impersonation session operations",
		},
		[]string{"operation"}, // operation: "start", "exit", "status"
	)

	// Error counters
	RequestErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_errors_total",
			Help: "Total number of request errors by type",
		},
		[]string{"type"},
	)

	// Workspace cache hit/miss counter
	WorkspaceCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_workspace_cache_total",
			Help: "Total number of workspace resolution cache lookups",
		},
		[]string{"result"}, // result is "hit" or "miss"
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "project_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "project_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Active impersonation sessions. Counts explicit start/exit pairs only:
	// a session that dies by store TTL is never decremented, so the gauge
	// can drift above the true count until the next process restart
	ActiveImpersonationsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "project_active_impersonations",
			Help: "Number of currently active impersonation sessions",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "project_info",
			Help: "Information about the project service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(TenancyViolationCounter)
	prometheus.MustRegister(TenantContextMissingCounter)
	prometheus.MustRegister(AccessDecisionCounter)
	prometheus.MustRegister(GrantOperationCounter)
	prometheus.MustRegister(ImpersonationCounter)
	prometheus.MustRegister(RequestErrorCounter)
	prometheus.MustRegister(WorkspaceCacheCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveImpersonationsGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordTenancyViolation records a tenancy guard violation
func RecordTenancyViolation(kind, disposition string) {
	TenancyViolationCounter.With(prometheus.Labels{
		"kind":        kind,
		"disposition": disposition,
	}).Inc()
}

// RecordAccessDecision records an access control decision
func RecordAccessDecision(resource string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	AccessDecisionCounter.With(prometheus.Labels{
		"resource": resource,
		"decision": decision,
	}).Inc()
}

// RecordGrantOperation records an access-grant operation
func RecordGrantOperation(resource, operation string) {
	GrantOperationCounter.With(prometheus.Labels{
		"resource":  resource,
		"operation": operation,
	}).Inc()
}

// RecordImpersonationOperation records an impersonation session operation
func RecordImpersonationOperation(operation string) {
	ImpersonationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordRequestError records a request error by type
func RecordRequestError(errorType string) {
	RequestErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordWorkspaceCacheLookup records a workspace cache hit or miss
func RecordWorkspaceCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	WorkspaceCacheCounter.With(prometheus.Labels{"result": result}).Inc()
}
