package metrics

import (
	"smartchef/internal/shared"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartchef_recipe_generations_total",
			Help: "Recipe generation runs by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartchef_recipe_generation_duration_seconds",
			Help:    "Recipe generation latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"outcome"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartchef_llm_tokens_total",
			Help: "LLM tokens consumed",
		},
		[]string{"kind"},
	)

	docstoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartchef_docstore_write_failures_total",
			Help: "Failed remote meal plan writes by operation",
		},
		[]string{"op"},
	)

	// ActiveSessions is the number of live browser sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartchef_active_sessions",
			Help: "Live sessions holding a meal plan manager",
		},
	)
)

// ObserveGeneration updates the generation collectors.
func ObserveGeneration(meta shared.AgentMeta) {
	outcome := meta.Outcome
	if outcome == "" {
		outcome = shared.OutcomeGenerated
	}
	generationsTotal.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(meta.Latency.Seconds())
	tokensTotal.WithLabelValues("prompt").Add(float64(meta.Usage.PromptTokens))
	tokensTotal.WithLabelValues("completion").Add(float64(meta.Usage.CompletionTokens))
}

// WriteFailed counts a failed remote write.
func WriteFailed(op string) {
	docstoreWriteFailures.WithLabelValues(op).Inc()
}
