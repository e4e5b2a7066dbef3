package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/consensus"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
)

// Stage names reported in errors, logs and metrics.
const (
	StageRequirements = "requirements"
	StageEpics        = "epics"
	StageDeliverables = "deliverables"
	StageTestCases    = "test_cases"
)

// ErrEmptyOutput is returned when an extraction step produced no text.
var ErrEmptyOutput = errors.New("extraction returned empty output")

// ErrEmptyDocument is returned when there is no document text to process.
var ErrEmptyDocument = errors.New("document text is empty")

// StageError reports the stage that could not produce output.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageName returns the failed stage named by err, or "" when err does not
// carry one.
func StageName(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// StepFunc transforms text with one or more model calls.
type StepFunc func(ctx context.Context, input string) (string, error)

// Stage pairs a refine step with the extraction that follows it.
type Stage struct {
	Name    string
	Refine  StepFunc
	Extract StepFunc
}

// Rat runs refine, vote, extract. A failed or empty refinement falls back
// to the input. The judge then picks between the input (first) and the
// refinement (second); an unreadable vote or a judge error keeps the
// refinement. Extraction errors and empty output are returned as a
// *StageError.
func (p *Pipeline) Rat(ctx context.Context, stage Stage, input string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.rat",
		trace.WithAttributes(
			attribute.String("stage", stage.Name),
			attribute.Int("input_length", len(input)),
		),
	)
	defer span.End()

	logger := logging.Ctx(ctx, p.logger).With(zap.String("stage", stage.Name))

	refined := input
	if stage.Refine != nil {
		out, err := stage.Refine(ctx, input)
		switch {
		case err != nil:
			logger.Warn("refine failed, using original input", zap.Error(err))
		case strings.TrimSpace(out) == "":
			logger.Warn("refine returned empty output, using original input")
		default:
			refined = out
		}
	}

	better := refined
	reply, err := p.refineJudge.Compare(ctx, input, refined)
	if err != nil {
		logger.Warn("refinement vote failed, using refined input", zap.Error(err))
	} else if consensus.ParseVote(reply) == consensus.ChoiceFirst {
		better = input
	}
	voteOutcome := "refined"
	if better == input && refined != input {
		voteOutcome = "original"
	}
	stageVotes.WithLabelValues(stage.Name, voteOutcome).Inc()
	span.SetAttributes(attribute.String("vote", voteOutcome))

	out, err := stage.Extract(ctx, better)
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyOutput
	}
	if err != nil {
		stageOutcomes.WithLabelValues(stage.Name, outcomeFailure).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("extraction failed", zap.Error(err))
		return "", &StageError{Stage: stage.Name, Err: err}
	}

	stageOutcomes.WithLabelValues(stage.Name, outcomeSuccess).Inc()
	logger.Debug("stage complete", zap.Int("output_length", len(out)))
	return out, nil
}
