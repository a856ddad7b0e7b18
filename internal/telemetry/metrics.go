package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process's Prometheus collectors. A single instance is
// constructed at startup and threaded through the pipeline and its
// components, never accessed as a package-level global.
type Metrics struct {
	PipelineDecisionsTotal  *prometheus.CounterVec
	PipelineDuration        *prometheus.HistogramVec
	Layer1MatchesTotal      prometheus.Counter
	Layer2FlagsTotal        *prometheus.CounterVec
	RuleEvaluationsTotal    *prometheus.CounterVec
	LLMCallsTotal           *prometheus.CounterVec
	LLMCoalescedTotal       prometheus.Counter
	CostBudgetExceededTotal prometheus.Counter
	CommunityTrustBypass    prometheus.Counter
	KVCacheHitTotal         *prometheus.CounterVec
}

// NewMetrics constructs the moderator's domain metric collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		PipelineDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "pipeline",
				Name:      "decisions_total",
				Help:      "Total number of moderation decisions by final action.",
			},
			[]string{"action"},
		),
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "moderator",
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "End-to-end decision pipeline duration in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"event_kind"},
		),
		Layer1MatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "layer1",
				Name:      "matches_total",
				Help:      "Total number of heuristic layer matches that short-circuited the pipeline.",
			},
		),
		Layer2FlagsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "layer2",
				Name:      "flags_total",
				Help:      "Total number of safety classifier flags by category.",
			},
			[]string{"category"},
		),
		RuleEvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "rule",
				Name:      "evaluations_total",
				Help:      "Total number of rule evaluations by outcome.",
			},
			[]string{"outcome"},
		),
		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "llm",
				Name:      "calls_total",
				Help:      "Total number of LLM provider calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		LLMCoalescedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "llm",
				Name:      "coalesced_total",
				Help:      "Total number of LLM requests served by joining an in-flight call.",
			},
		),
		CostBudgetExceededTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "cost",
				Name:      "budget_exceeded_total",
				Help:      "Total number of AI rule evaluations skipped due to exceeded budget.",
			},
		),
		CommunityTrustBypass: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "community_trust",
				Name:      "bypass_total",
				Help:      "Total number of pipeline runs that bypassed layers via community trust.",
			},
		),
		KVCacheHitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moderator",
				Subsystem: "kv",
				Name:      "cache_hit_total",
				Help:      "Total number of KV cache hits by kind.",
			},
			[]string{"kind"},
		),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineDecisionsTotal,
		m.PipelineDuration,
		m.Layer1MatchesTotal,
		m.Layer2FlagsTotal,
		m.RuleEvaluationsTotal,
		m.LLMCallsTotal,
		m.LLMCoalescedTotal,
		m.CostBudgetExceededTotal,
		m.CommunityTrustBypass,
		m.KVCacheHitTotal,
	}
}

// NewMetricsRegistry builds a Prometheus registry containing the standard
// process/Go collectors, the HTTP request duration collector, plus any
// extra collectors supplied by the caller.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(HTTPRequestDuration)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
