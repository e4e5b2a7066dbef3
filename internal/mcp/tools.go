package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/document"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/sanitize"
	"github.com/AvishManiar21/user-story-automation/internal/validator"
)

const (
	toolGenerate  = "generate_user_stories"
	toolValidate  = "validate_output"
	toolIntegrate = "integrate_story"
)

// ===== GENERATE =====

type generateInput struct {
	Text         string `json:"text,omitempty" jsonschema:"Requirements document text. Either text or document_path is required"`
	DocumentPath string `json:"document_path,omitempty" jsonschema:"Path to a .docx, .doc, .txt or .md requirements document"`
	Model        string `json:"model,omitempty" jsonschema:"Model override for this run"`
}

type generateOutput struct {
	RunID      string          `json:"run_id"`
	Stories    []backlog.Story `json:"stories"`
	Count      int             `json:"count"`
	OutputFile string          `json:"output_file,omitempty"`
	Validation reportOutput    `json:"validation"`
	Note       string          `json:"note,omitempty"`
}

// ===== VALIDATE =====

type validateInput struct {
	Output string `json:"output" jsonschema:"Generated output to check, JSON or plain text"`
	Source string `json:"source,omitempty" jsonschema:"Source document text the output must be grounded in"`
}

type reportOutput struct {
	Valid      bool     `json:"valid"`
	Issues     []string `json:"issues"`
	IssueCount int      `json:"issue_count"`
}

// ===== INTEGRATE =====

type integrateInput struct {
	StoryID any `json:"story_id,omitempty" jsonschema:"Identifier of the story being integrated"`
	Story   any `json:"story" jsonschema:"Story object to record"`
}

type integrateOutput struct {
	Message      string `json:"message"`
	File         string `json:"file"`
	IntegratedAt string `json:"integrated_at"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGenerate,
		Description: "Generate user stories and test cases from a requirements document. Runs requirement extraction, epic writing, deliverable refinement and test case generation, then validates and deduplicates the stories.",
	}, s.handleGenerate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolValidate,
		Description: "Check generated output for unsupported metrics, template phrases, generic deliverables and source quotes missing from the document.",
	}, s.handleValidate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolIntegrate,
		Description: "Record a user story as integrated. Each story is written once to a timestamped file.",
	}, s.handleIntegrate)
}

func (s *Server) handleGenerate(ctx context.Context, req *mcp.CallToolRequest, args generateInput) (_ *mcp.CallToolResult, _ generateOutput, err error) {
	done := s.metrics.track(ctx, toolGenerate)
	defer func() { done(err) }()

	text, err := s.documentText(args)
	if err != nil {
		return nil, generateOutput{}, err
	}
	if args.DocumentPath != "" {
		ctx = logging.WithDocument(ctx, filepath.Base(args.DocumentPath))
	}

	gen, err := s.deps.Generators(strings.TrimSpace(args.Model))
	if err != nil {
		return nil, generateOutput{}, fmt.Errorf("initializing model: %w", err)
	}
	res, err := gen.Process(ctx, text)
	if err != nil {
		return nil, generateOutput{}, err
	}

	out := generateOutput{
		RunID:      res.RunID,
		Stories:    res.Stories,
		Count:      len(res.Stories),
		Validation: reportOutput(res.Validation.Overall),
		Note:       res.Note,
	}
	if out.Stories == nil {
		out.Stories = []backlog.Story{}
	}
	if s.deps.Writer != nil && args.DocumentPath != "" {
		saved, err := s.deps.Writer.Save(args.DocumentPath, res.Requirements, res.Epics, res.TestCases)
		if err != nil {
			s.logger.Warn("failed to save output", zap.String("document", args.DocumentPath), zap.Error(err))
		} else {
			out.OutputFile = saved
		}
	}
	return nil, out, nil
}

func (s *Server) documentText(args generateInput) (string, error) {
	if args.DocumentPath == "" {
		if strings.TrimSpace(args.Text) == "" {
			return "", fmt.Errorf("%w: text or document_path is required", errInvalidInput)
		}
		return args.Text, nil
	}
	path, err := sanitize.DocumentPath(args.DocumentPath, s.deps.DocumentRoot)
	if err != nil {
		return "", err
	}
	return document.ExtractText(path)
}

func (s *Server) handleValidate(ctx context.Context, req *mcp.CallToolRequest, args validateInput) (_ *mcp.CallToolResult, _ reportOutput, err error) {
	done := s.metrics.track(ctx, toolValidate)
	defer func() { done(err) }()

	if strings.TrimSpace(args.Output) == "" {
		return nil, reportOutput{}, fmt.Errorf("%w: output is required", errInvalidInput)
	}
	return nil, reportOutput(validator.Validate(args.Output, args.Source)), nil
}

func (s *Server) handleIntegrate(ctx context.Context, req *mcp.CallToolRequest, args integrateInput) (_ *mcp.CallToolResult, _ integrateOutput, err error) {
	done := s.metrics.track(ctx, toolIntegrate)
	defer func() { done(err) }()

	story, err := json.Marshal(args.Story)
	if err != nil {
		return nil, integrateOutput{}, fmt.Errorf("%w: story: %v", errInvalidInput, err)
	}
	receipt, err := s.deps.Integrator.Story(ctx, args.StoryID, story)
	if err != nil {
		return nil, integrateOutput{}, err
	}
	return nil, integrateOutput{
		Message:      receipt.Message,
		File:         receipt.File,
		IntegratedAt: receipt.Integrated,
	}, nil
}
