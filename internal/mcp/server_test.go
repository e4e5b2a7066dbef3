package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/integration"
	"github.com/AvishManiar21/user-story-automation/internal/output"
	"github.com/AvishManiar21/user-story-automation/internal/pipeline"
	"github.com/AvishManiar21/user-story-automation/internal/validator"
)

type fakeGenerator struct {
	result *pipeline.Result
	err    error
	texts  []string
}

func (f *fakeGenerator) Process(_ context.Context, text string) (*pipeline.Result, error) {
	f.texts = append(f.texts, text)
	return f.result, f.err
}

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		RunID:        "run-1",
		Requirements: `{"requirements": [{"id": 1, "statement": "Export reports"}]}`,
		Epics:        `{"epics": [{"title": "Reporting"}]}`,
		TestCases:    `{"test_cases": [{"id": "TC-1"}]}`,
		Stories: []backlog.Story{
			{ID: 1, Title: "Export reports", Description: "As a manager, I want to export reports."},
		},
		Validation: pipeline.Validation{
			Overall: validator.Report{Valid: false, Issues: []string{"Generic deliverable: works"}, IssueCount: 1},
		},
	}
}

type testEnv struct {
	session *mcp.ClientSession
	gen     *fakeGenerator
	models  []string
	outDir  string
	intDir  string
}

func setupTestServer(t *testing.T, gen *fakeGenerator, factoryErr error) *testEnv {
	t.Helper()
	env := &testEnv{
		gen:    gen,
		outDir: filepath.Join(t.TempDir(), "out"),
		intDir: filepath.Join(t.TempDir(), "integrated"),
	}

	s, err := NewServer(&Config{Name: "storyforge-test", Version: "test", Logger: zap.NewNop()}, Deps{
		Generators: func(model string) (Generator, error) {
			env.models = append(env.models, model)
			if factoryErr != nil {
				return nil, factoryErr
			}
			return gen, nil
		},
		Writer:     output.NewWriter(env.outDir),
		Integrator: integration.NewIntegrator(integration.NewStore(env.intDir), nil, nil),
	})
	require.NoError(t, err)

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	env.session = cs
	return env
}

func callTool[T any](t *testing.T, env *testEnv, name string, args map[string]any) (T, *mcp.CallToolResult, error) {
	t.Helper()
	var out T
	res, err := env.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil || res.IsError {
		return out, res, err
	}
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	return out, res, nil
}

func requireToolError(t *testing.T, res *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		return
	}
	require.NotNil(t, res)
	assert.True(t, res.IsError, "expected tool error")
}

func TestNewServer_Requirements(t *testing.T) {
	integrator := integration.NewIntegrator(integration.NewStore(t.TempDir()), nil, nil)
	factory := func(string) (Generator, error) { return &fakeGenerator{}, nil }

	_, err := NewServer(nil, Deps{Integrator: integrator})
	require.Error(t, err)

	_, err = NewServer(nil, Deps{Generators: factory})
	require.Error(t, err)

	s, err := NewServer(nil, Deps{Generators: factory, Integrator: integrator})
	require.NoError(t, err)
	assert.NotNil(t, s.metrics)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "storyforge", cfg.Name)
	require.Equal(t, "0.1.0", cfg.Version)
	require.NotNil(t, cfg.Logger)
}

func TestListTools(t *testing.T) {
	env := setupTestServer(t, &fakeGenerator{result: sampleResult()}, nil)

	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{toolGenerate, toolValidate, toolIntegrate}, names)
}

func TestGenerate_Text(t *testing.T) {
	env := setupTestServer(t, &fakeGenerator{result: sampleResult()}, nil)

	out, _, err := callTool[generateOutput](t, env, toolGenerate, map[string]any{
		"text":  "Managers export monthly reports.",
		"model": " llama3.1 ",
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, 1, out.Count)
	require.Len(t, out.Stories, 1)
	assert.Equal(t, "Export reports", out.Stories[0].Title)
	assert.False(t, out.Validation.Valid)
	assert.Equal(t, 1, out.Validation.IssueCount)
	assert.Empty(t, out.OutputFile, "text input is not saved")
	assert.Equal(t, []string{"llama3.1"}, env.models)
	assert.Equal(t, []string{"Managers export monthly reports."}, env.gen.texts)
}

func TestGenerate_DocumentPath(t *testing.T) {
	env := setupTestServer(t, &fakeGenerator{result: sampleResult()}, nil)

	doc := filepath.Join(t.TempDir(), "billing.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Billing\nInvoices are emailed."), 0o600))

	out, _, err := callTool[generateOutput](t, env, toolGenerate, map[string]any{"document_path": doc})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.outDir, "billing.txt"), out.OutputFile)
	assert.FileExists(t, out.OutputFile)
	assert.Equal(t, []string{"# Billing\nInvoices are emailed."}, env.gen.texts)
}

func TestGenerate_NoStoriesNote(t *testing.T) {
	res := sampleResult()
	res.Stories = nil
	res.Note = pipeline.NoStoriesNote
	env := setupTestServer(t, &fakeGenerator{result: res}, nil)

	out, _, err := callTool[generateOutput](t, env, toolGenerate, map[string]any{"text": "anything"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Count)
	assert.Equal(t, pipeline.NoStoriesNote, out.Note)
}

func TestGenerate_Errors(t *testing.T) {
	stageErr := &pipeline.StageError{Stage: pipeline.StageEpics, Err: pipeline.ErrEmptyOutput}

	tests := []struct {
		name       string
		args       map[string]any
		genErr     error
		factoryErr error
	}{
		{name: "missing input", args: map[string]any{}},
		{name: "blank text", args: map[string]any{"text": "   "}},
		{name: "unsupported type", args: map[string]any{"document_path": "/tmp/spec.pdf"}},
		{name: "missing document", args: map[string]any{"document_path": "/nonexistent/spec.txt"}},
		{name: "path traversal", args: map[string]any{"document_path": "docs/../../etc/spec.txt"}},
		{name: "stage failure", args: map[string]any{"text": "doc"}, genErr: stageErr},
		{name: "factory failure", args: map[string]any{"text": "doc"}, factoryErr: errors.New("openai: api key required")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, &fakeGenerator{err: tt.genErr}, tt.factoryErr)
			_, res, err := callTool[generateOutput](t, env, toolGenerate, tt.args)
			requireToolError(t, res, err)
		})
	}
}

func TestValidate(t *testing.T) {
	env := setupTestServer(t, &fakeGenerator{}, nil)

	out, _, err := callTool[reportOutput](t, env, toolValidate, map[string]any{
		"output": `{"metric": "reduce latency by 40%"}`,
		"source": "The system exports reports.",
	})
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, len(out.Issues), out.IssueCount)
	assert.NotZero(t, out.IssueCount)

	out, _, err = callTool[reportOutput](t, env, toolValidate, map[string]any{
		"output": `{"title": "Export reports"}`,
		"source": "The system exports reports.",
	})
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Zero(t, out.IssueCount)

	_, res, err := callTool[reportOutput](t, env, toolValidate, map[string]any{"output": ""})
	requireToolError(t, res, err)
}

func TestIntegrate(t *testing.T) {
	env := setupTestServer(t, &fakeGenerator{}, nil)

	out, _, err := callTool[integrateOutput](t, env, toolIntegrate, map[string]any{
		"story_id": 7,
		"story":    map[string]any{"title": "Export reports"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Story 7 integrated successfully", out.Message)
	assert.NotEmpty(t, out.IntegratedAt)
	assert.Equal(t, env.intDir, filepath.Dir(out.File))

	data, err := os.ReadFile(out.File)
	require.NoError(t, err)
	var rec integration.StoryRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.JSONEq(t, `{"title": "Export reports"}`, string(rec.Story))

	_, res, err := callTool[integrateOutput](t, env, toolIntegrate, map[string]any{"story_id": 8})
	requireToolError(t, res, err)
}
