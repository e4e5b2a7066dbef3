// Package pipeline turns requirement documents into user stories and test
// cases.
//
// A run has four model-driven stages. Requirements are sampled several
// times and reduced by pairwise votes, epics are written from the
// requirements, each epic's deliverables are refined on their own, and test
// cases are generated from the requirements. Every stage except the
// per-epic refinement goes through Rat: refine the input, vote between the
// original and the refinement, then extract from the winner. The outputs
// are validated, deduplicated and converted to presentation records.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/consensus"
	"github.com/AvishManiar21/user-story-automation/internal/dedupe"
	"github.com/AvishManiar21/user-story-automation/internal/format"
	"github.com/AvishManiar21/user-story-automation/internal/llm"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/normalize"
	"github.com/AvishManiar21/user-story-automation/internal/validator"
)

const tracerName = "github.com/AvishManiar21/user-story-automation/internal/pipeline"

// NoStoriesNote is attached to results that contain no stories.
const NoStoriesNote = "No user stories were generated. The epic output may be empty, unparseable or entirely duplicated."

// Config tunes a pipeline run.
type Config struct {
	// Threshold is the number of requirement samples drawn.
	Threshold int
	// ParallelSamples bounds concurrent sampling calls. 1 samples sequentially.
	ParallelSamples int
	// DedupeThreshold is the Jaccard similarity above which a story is dropped.
	DedupeThreshold float64
	// Reducer selects how samples are reduced: "fold" or "self_consistency".
	Reducer string
	// CallTimeout bounds every model call. Zero leaves calls unbounded.
	CallTimeout time.Duration
	// SummarizeDocument reduces the cleaned document to its functional
	// description before requirement extraction.
	SummarizeDocument bool
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Threshold:       consensus.DefaultThreshold,
		ParallelSamples: 1,
		DedupeThreshold: dedupe.DefaultThreshold,
		Reducer:         ReducerFold,
		CallTimeout:     2 * time.Minute,
	}
}

// Redactor scrubs sensitive values from text before it reaches a model.
type Redactor interface {
	Redact(text string) string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRedactor scrubs the document before any model call.
func WithRedactor(r Redactor) Option {
	return func(p *Pipeline) { p.redactor = r }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// Pipeline runs documents through the extraction stages.
type Pipeline struct {
	cfg         Config
	gateway     llm.Gateway
	sampler     *consensus.Sampler
	reducer     *consensus.Reducer
	refineJudge consensus.Judge
	sameJudge   consensus.Judge
	adapter     *format.Adapter
	redactor    Redactor
	tracer      trace.Tracer
	logger      *zap.Logger
}

// New builds a pipeline around gateway.
func New(gateway llm.Gateway, cfg Config, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ParallelSamples <= 0 {
		cfg.ParallelSamples = def.ParallelSamples
	}
	if cfg.DedupeThreshold <= 0 {
		cfg.DedupeThreshold = def.DedupeThreshold
	}
	if cfg.Reducer == "" {
		cfg.Reducer = def.Reducer
	}

	p := &Pipeline{
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.CallTimeout > 0 {
		gateway = llm.Bounded(gateway, cfg.CallTimeout)
	}
	p.gateway = gateway
	p.sampler = consensus.NewSampler(cfg.Threshold, cfg.ParallelSamples, p.logger)
	p.reducer = consensus.NewReducer(consensus.NewPromptJudge(gateway, promptVoteDetail, renderPair), p.logger)
	p.refineJudge = consensus.NewPromptJudge(gateway, promptVoteRefinement, renderPair)
	p.sameJudge = consensus.NewPromptJudge(gateway, promptSameRequirements, renderSameness)
	p.adapter = format.NewAdapter(dedupe.New(cfg.DedupeThreshold, p.logger), p.logger)
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Validation groups the advisory reports of one run.
type Validation struct {
	Epics        validator.Report             `json:"epics"`
	TestCases    validator.Report             `json:"test_cases"`
	Completeness validator.CompletenessReport `json:"completeness"`
	Coverage     validator.Report             `json:"coverage"`
	Overall      validator.Report             `json:"overall"`
}

// Result is the output of one run.
type Result struct {
	RunID           string                `json:"run_id"`
	Requirements    string                `json:"requirements"`
	RequirementList []backlog.Requirement `json:"requirement_list"`
	Epics           string                `json:"epics"`
	TestCases       string                `json:"test_cases"`
	Stories         []backlog.Story       `json:"stories"`
	Validation      Validation            `json:"validation"`
	Note            string                `json:"note,omitempty"`
}

// Process runs every stage over the document text. Stage failures are
// returned as *StageError; validation findings never fail a run.
func (p *Pipeline) Process(ctx context.Context, text string) (*Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	ctx = logging.WithRunID(ctx, runID)

	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("document_length", len(text)),
		),
	)
	defer span.End()
	logger := logging.Ctx(ctx, p.logger)

	res, err := p.process(ctx, logger, text)
	if err != nil {
		runDuration.WithLabelValues(outcomeFailure).Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.RunID = runID

	runDuration.WithLabelValues(outcomeSuccess).Observe(time.Since(start).Seconds())
	storiesProduced.Observe(float64(len(res.Stories)))
	span.SetAttributes(
		attribute.Int("stories", len(res.Stories)),
		attribute.Int("validation_issues", res.Validation.Overall.IssueCount),
	)
	logger.Info("run complete",
		zap.Int("stories", len(res.Stories)),
		zap.Int("validation_issues", res.Validation.Overall.IssueCount),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, logger *zap.Logger, text string) (*Result, error) {
	if p.redactor != nil {
		text = p.redactor.Redact(text)
	}
	if strings.TrimSpace(text) == "" {
		return nil, &StageError{Stage: StageRequirements, Err: ErrEmptyDocument}
	}

	logger.Info("extracting requirements", zap.Int("document_length", len(text)))
	requirements, err := p.Rat(ctx, Stage{
		Name:    StageRequirements,
		Refine:  p.RefineDocument,
		Extract: p.ExtractRequirements,
	}, text)
	if err != nil {
		return nil, err
	}

	logger.Info("extracting epics")
	deliverables, err := p.Rat(ctx, Stage{
		Name:    StageEpics,
		Refine:  p.RefineRequirements,
		Extract: p.ExtractEpics,
	}, requirements)
	if err != nil {
		return nil, err
	}

	logger.Info("refining deliverables")
	epics := p.RefineEpics(ctx, deliverables)

	logger.Info("generating test cases")
	testCases, err := p.Rat(ctx, Stage{
		Name:    StageTestCases,
		Refine:  p.RefineRequirements,
		Extract: p.GenerateTestCases,
	}, requirements)
	if err != nil {
		return nil, err
	}

	reqList := normalize.Decode(requirements, backlog.RequirementSet{}).Requirements
	if weak := backlog.Weak(reqList); len(weak) > 0 {
		logger.Warn("requirements with low or missing confidence", zap.Ints("ids", weak))
	}
	validation := p.validate(logger, text, requirements, epics, testCases, len(reqList))

	stories := p.adapter.ToPresentation(epics, testCases, requirements)
	res := &Result{
		Requirements:    requirements,
		RequirementList: reqList,
		Epics:           epics,
		TestCases:       testCases,
		Stories:         stories,
		Validation:      validation,
	}
	if len(stories) == 0 {
		logger.Warn("no stories generated")
		res.Note = NoStoriesNote
	}
	return res, nil
}

func (p *Pipeline) validate(logger *zap.Logger, source, requirements, epics, testCases string, reqCount int) Validation {
	v := Validation{
		Epics:        validator.Validate(epics, source),
		TestCases:    validator.Validate(testCases, source),
		Completeness: validator.ValidateCompleteness(requirements, epics),
		Coverage:     validator.ValidateTestCoverage(testCases, reqCount),
	}
	v.Overall = validator.Merge(v.Epics, v.TestCases, v.Completeness.Report, v.Coverage)

	for check, r := range map[string]validator.Report{
		"epics":        v.Epics,
		"test_cases":   v.TestCases,
		"completeness": v.Completeness.Report,
		"coverage":     v.Coverage,
	} {
		if r.IssueCount > 0 {
			validationIssues.WithLabelValues(check).Add(float64(r.IssueCount))
		}
	}

	if !v.Overall.Valid {
		logger.Warn("validation issues found",
			zap.Int("count", v.Overall.IssueCount),
			zap.Strings("issues", v.Overall.Issues))
	}
	return v
}
