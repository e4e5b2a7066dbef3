package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/consensus"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

// Reducer names accepted in Config.Reducer.
const (
	ReducerFold            = "fold"
	ReducerSelfConsistency = "self_consistency"
)

const emptyUserStories = `{"User Stories": []}`

// RefineDocument cleans up grammar and formatting of the raw document. With
// SummarizeDocument set, the cleaned text is reduced to its functional
// description; a failed summary keeps the cleaned text.
func (p *Pipeline) RefineDocument(ctx context.Context, text string) (string, error) {
	cleaned, err := p.gateway.Generate(ctx, promptCleanDocument, text)
	if err != nil {
		return "", fmt.Errorf("cleaning document: %w", err)
	}
	if !p.cfg.SummarizeDocument {
		return cleaned, nil
	}
	summary, err := p.gateway.Generate(ctx, promptSummarize, cleaned)
	if err != nil || strings.TrimSpace(summary) == "" {
		logging.Ctx(ctx, p.logger).Warn("summarizing document failed, using cleaned text", zap.Error(err))
		return cleaned, nil
	}
	return summary, nil
}

// ExtractRequirements samples the requirement list several times and
// reduces the samples to one. If the reduction produces nothing the first
// sample is used.
func (p *Pipeline) ExtractRequirements(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.sample",
		trace.WithAttributes(attribute.Int("samples", p.sampler.N())))
	defer span.End()

	candidates, err := p.sampler.Sample(ctx, func(ctx context.Context) (string, error) {
		out, err := p.gateway.Generate(ctx, promptExtractRequirements, text)
		if err != nil || strings.TrimSpace(out) == "" {
			sampleAttempts.WithLabelValues(outcomeFailure).Inc()
		} else {
			sampleAttempts.WithLabelValues(outcomeSuccess).Inc()
		}
		return out, err
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("sampling requirements: %w", err)
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	result, err := p.reduce(ctx, candidates)
	if err != nil || strings.TrimSpace(result) == "" {
		logging.Ctx(ctx, p.logger).Warn("reduction produced no result, using first sample", zap.Error(err))
		return candidates[0], nil
	}
	return result, nil
}

func (p *Pipeline) reduce(ctx context.Context, candidates []string) (string, error) {
	if p.cfg.Reducer == ReducerSelfConsistency {
		return consensus.SelfConsistency(ctx, candidates, p.sameJudge, logging.Ctx(ctx, p.logger))
	}
	return p.reducer.Reduce(ctx, candidates)
}

// RefineRequirements consolidates a requirement list.
func (p *Pipeline) RefineRequirements(ctx context.Context, requirements string) (string, error) {
	return p.gateway.Generate(ctx, promptRefineRequirements, requirements)
}

// ExtractEpics writes one user story per requirement.
func (p *Pipeline) ExtractEpics(ctx context.Context, requirements string) (string, error) {
	out, err := p.gateway.Generate(ctx, promptExtractEpics, requirements)
	if err != nil || strings.TrimSpace(out) == "" {
		return "", err
	}
	return normalize.Clean(out), nil
}

// GenerateTestCases writes concrete test scenarios per requirement.
func (p *Pipeline) GenerateTestCases(ctx context.Context, requirements string) (string, error) {
	out, err := p.gateway.Generate(ctx, promptGenerateTestCases, requirements)
	if err != nil || strings.TrimSpace(out) == "" {
		return "", err
	}
	return normalize.Clean(out), nil
}

// RefineEpics asks for a definition of done for each epic's deliverables and
// returns the epics under "User Stories". Epics are refined one at a time;
// an epic whose model call fails is left out and the rest continue. An
// unreadable refinement keeps the epic's original deliverables. Input
// without an epic list yields an empty story list.
func (p *Pipeline) RefineEpics(ctx context.Context, epicsJSON string) string {
	ctx, span := p.tracer.Start(ctx, "pipeline.refine_epics")
	defer span.End()
	logger := logging.Ctx(ctx, p.logger)

	doc := normalize.Decode(epicsJSON, map[string]json.RawMessage{})
	raw, ok := doc[backlog.KeyEpics]
	if !ok {
		raw, ok = doc[backlog.KeyUserStories]
	}
	var epics []json.RawMessage
	if !ok || json.Unmarshal(raw, &epics) != nil {
		logger.Warn("epic output has no epic list", zap.Int("length", len(epicsJSON)))
		return emptyUserStories
	}
	span.SetAttributes(attribute.Int("epics", len(epics)))

	refined := make([]map[string]json.RawMessage, 0, len(epics))
	for i, item := range epics {
		epic, err := p.refineEpic(ctx, logger.With(zap.Int("epic", i+1)), item)
		if err != nil {
			epicRefinements.WithLabelValues(outcomeFailure).Inc()
			logger.Warn("skipping epic", zap.Int("epic", i+1), zap.Error(err))
			continue
		}
		epicRefinements.WithLabelValues(outcomeSuccess).Inc()
		refined = append(refined, epic)
	}

	out, err := json.MarshalIndent(map[string]any{backlog.KeyUserStories: refined}, "", "    ")
	if err != nil {
		logger.Error("encoding refined epics", zap.Error(err))
		return emptyUserStories
	}
	return string(out)
}

func (p *Pipeline) refineEpic(ctx context.Context, logger *zap.Logger, item json.RawMessage) (map[string]json.RawMessage, error) {
	typed, err := backlog.DecodeEpic(item)
	if err != nil {
		return nil, fmt.Errorf("epic: %w", err)
	}
	var epic map[string]json.RawMessage
	if err := json.Unmarshal(item, &epic); err != nil {
		return nil, fmt.Errorf("epic: %w", err)
	}

	out, err := p.gateway.Generate(ctx, promptRefineEpic, string(item))
	if err != nil {
		return nil, err
	}

	deliverables := normalize.Decode(out, json.RawMessage(nil))
	refined, ok := backlog.DecodeDeliverables(deliverables)
	if !ok {
		logger.Debug("unreadable deliverable refinement, keeping original deliverables",
			zap.Int("deliverables", len(typed.Deliverables)))
		return epic, nil
	}
	epic[backlog.KeyDeliverables] = deliverables
	logger.Debug("epic refined",
		zap.Int("deliverables", len(refined)),
		zap.Int("defined", len(backlog.Epic{Deliverables: refined}.Defined())))
	return epic, nil
}
