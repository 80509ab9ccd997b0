package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration is shared by every binary's HTTP middleware stack.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "wopr",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// AnalysisCyclesTotal counts completed analysis cycles by outcome status
// (completed/failed).
var AnalysisCyclesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "wopr",
		Subsystem: "analysis",
		Name:      "cycles_total",
		Help:      "Total number of analysis cycles by outcome status.",
	},
	[]string{"status"},
)

// AnalysisAutoFixedTotal counts Tier-1 actions that executed successfully.
var AnalysisAutoFixedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "wopr",
		Subsystem: "analysis",
		Name:      "auto_fixed_total",
		Help:      "Total number of decisions auto-fixed by the executor.",
	},
)

// AnalysisEscalatedTotal counts decisions that created a new escalation.
// Decisions collapsed into an existing pending escalation are not counted.
var AnalysisEscalatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "wopr",
		Subsystem: "analysis",
		Name:      "escalated_total",
		Help:      "Total number of decisions that were escalated.",
	},
)

// AnalysisRateLimitedTotal counts decisions downgraded from auto to
// suggest because the hourly Tier-1 budget was exhausted.
var AnalysisRateLimitedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "wopr",
		Subsystem: "analysis",
		Name:      "rate_limited_total",
		Help:      "Total number of decisions downgraded due to the hourly rate limit.",
	},
)

// SSHCACertificatesIssuedTotal counts certificates issued, by tier.
var SSHCACertificatesIssuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "wopr",
		Subsystem: "sshca",
		Name:      "certificates_issued_total",
		Help:      "Total number of SSH certificates issued, by tier.",
	},
	[]string{"tier"},
)

// BreakglassSessionsActive is a gauge of currently active breakglass
// sessions.
var BreakglassSessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "wopr",
		Subsystem: "breakglass",
		Name:      "sessions_active",
		Help:      "Number of currently active breakglass sessions.",
	},
)

// GatewayAuditEntriesTotal counts audit rows written, by action.
var GatewayAuditEntriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "wopr",
		Subsystem: "gateway",
		Name:      "audit_entries_total",
		Help:      "Total number of audit log entries written, by action.",
	},
	[]string{"action"},
)

// Beacon returns the collectors a beacon process registers.
func Beacon() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		AnalysisCyclesTotal,
		AnalysisAutoFixedTotal,
		AnalysisEscalatedTotal,
		AnalysisRateLimitedTotal,
	}
}

// Gateway returns the collectors the gateway process registers.
func Gateway() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		BreakglassSessionsActive,
		GatewayAuditEntriesTotal,
	}
}

// CA returns the collectors the SSH CA process registers.
func CA() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		SSHCACertificatesIssuedTotal,
	}
}
