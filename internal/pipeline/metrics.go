package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

var (
	// stageOutcomes counts stage completions.
	// Labels: stage, outcome (success, failure)
	stageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "pipeline",
			Name:      "stage_outcomes_total",
			Help:      "Total number of pipeline stage completions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	// stageVotes counts refinement votes.
	// Labels: stage, winner (original, refined)
	stageVotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "pipeline",
			Name:      "refinement_votes_total",
			Help:      "Total number of refine-versus-original votes by winner",
		},
		[]string{"stage", "winner"},
	)

	// sampleAttempts counts requirement sampling attempts.
	// Labels: outcome (success, failure)
	sampleAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "pipeline",
			Name:      "sample_attempts_total",
			Help:      "Total number of requirement sampling attempts by outcome",
		},
		[]string{"outcome"},
	)

	// epicRefinements counts per-epic deliverable refinements.
	// Labels: outcome (success, failure)
	epicRefinements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "pipeline",
			Name:      "epic_refinements_total",
			Help:      "Total number of per-epic deliverable refinements by outcome",
		},
		[]string{"outcome"},
	)

	// validationIssues counts advisory validation issues.
	// Labels: check (epics, test_cases, completeness, coverage)
	validationIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyforge",
			Subsystem: "pipeline",
			Name:      "validation_issues_total",
			Help:      "Total number of validation issues reported by check",
		},
		[]string{"check"},
	)

	// storiesProduced tracks stories per run after deduplication.
	storiesProduced = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "storyforge",
			Subsystem: "pipeline",
			Name:      "stories_per_run",
			Help:      "Number of stories produced per run after deduplication",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// runDuration tracks end-to-end run time.
	// Labels: outcome (success, failure)
	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storyforge",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of full pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"outcome"},
	)
)
