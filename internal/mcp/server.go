package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/integration"
	"github.com/AvishManiar21/user-story-automation/internal/output"
	"github.com/AvishManiar21/user-story-automation/internal/pipeline"
)

// Generator runs the story pipeline over document text.
type Generator interface {
	Process(ctx context.Context, text string) (*pipeline.Result, error)
}

// GeneratorFactory returns a generator for a model override. An empty model
// selects the configured default.
type GeneratorFactory func(model string) (Generator, error)

// Deps are the services the tools call.
type Deps struct {
	Generators GeneratorFactory
	// Writer saves results for document inputs. Optional.
	Writer     *output.Writer
	Integrator *integration.Integrator
	// DocumentRoot confines document_path arguments. Optional.
	DocumentRoot string
}

// Server is an MCP server backed by the story pipeline.
type Server struct {
	mcp     *mcp.Server
	deps    Deps
	metrics *toolMetrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "storyforge")
	Name string

	// Version is the server version (default: "0.1.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// Meter records tool metrics (default: the global meter provider)
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "storyforge",
		Version: "0.1.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server with the given services.
func NewServer(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if deps.Generators == nil {
		return nil, errors.New("generator factory is required")
	}
	if deps.Integrator == nil {
		return nil, errors.New("integrator is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		deps:    deps,
		metrics: newToolMetrics(meter, cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over transport. Run uses stdio; tests
// and embedders pass their own transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
