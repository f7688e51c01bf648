package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MatchingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matcher_requests_total",
			Help: "Completed matching sequences by outcome",
		},
		[]string{"outcome"}, // matched|failed|cancelled
	)

	MatchingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matcher_matching_duration_seconds",
			Help:    "Duration of a matching sequence from first attempt to outcome",
			Buckets: prometheus.DefBuckets,
		},
	)

	MatchingAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matcher_attempts_total",
			Help: "Individual selection attempts, including retries",
		},
	)

	AgentDeclines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matcher_agent_declines_total",
			Help: "Agent declines by reason",
		},
		[]string{"reason"}, // UNAVAILABLE|WORKLOAD|TIMEOUT|UNSPECIFIED|...
	)

	Rematches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matcher_rematches_total",
			Help: "Rematch cascades triggered by declines or overrides",
		},
	)

	AdminOverrides = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matcher_admin_overrides_total",
			Help: "Applied administrative overrides by action",
		},
		[]string{"action"},
	)

	ActiveStates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matcher_active_states",
			Help: "Request states currently held by the engine",
		},
	)
)

func init() {
	prometheus.MustRegister(MatchingOutcomes)
	prometheus.MustRegister(MatchingDuration)
	prometheus.MustRegister(MatchingAttempts)
	prometheus.MustRegister(AgentDeclines)
	prometheus.MustRegister(Rematches)
	prometheus.MustRegister(AdminOverrides)
	prometheus.MustRegister(ActiveStates)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
