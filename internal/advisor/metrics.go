package advisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "advisor",
		Name:      "generations_started_total",
		Help:      "Savings-plan generations started.",
	})
	generationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "advisor",
		Name:      "generations_finished_total",
		Help:      "Savings-plan generations finished, by terminal status.",
	}, []string{"status"})
	generationIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fintrack",
		Subsystem: "advisor",
		Name:      "generation_iterations",
		Help:      "Conversation iterations used per generation.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fintrack",
		Subsystem: "advisor",
		Name:      "tool_executions_total",
		Help:      "Tool calls executed on behalf of the model, by tool and outcome.",
	}, []string{"tool", "outcome"})
)
