package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/config"
	"github.com/AvishManiar21/user-story-automation/internal/integration"
	"github.com/AvishManiar21/user-story-automation/internal/llm"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/output"
	"github.com/AvishManiar21/user-story-automation/internal/pipeline"
	"github.com/AvishManiar21/user-story-automation/internal/secrets"
)

// Registry provides access to the application services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	// Pipeline returns a pipeline for model. An empty model selects the
	// configured default. Pipelines for the default and allowlisted models
	// are cached; other overrides are built per call. Every pipeline shares
	// one rate limiter.
	Pipeline(model string) (*pipeline.Pipeline, error)
	Provider() ProviderInfo
	Writer() *output.Writer
	Integrator() *integration.Integrator
	Redactor() *secrets.Redactor
	Close() error
}

// ProviderInfo describes the configured model provider.
type ProviderInfo struct {
	Name             string
	Model            string
	BaseURL          string
	APIKeyConfigured bool
	RequiresAPIKey   bool
}

// GatewayFactory builds a model gateway. Tests replace it to avoid network
// calls.
type GatewayFactory func(cfg llm.Config, logger *zap.Logger) (llm.Gateway, error)

// Options configures the registry with service instances.
type Options struct {
	LLM        llm.Config
	Pipeline   pipeline.Config
	Gateways   GatewayFactory
	Writer     *output.Writer
	Integrator *integration.Integrator
	Redactor   *secrets.Redactor
	Tracer     trace.Tracer
	Logger     *zap.Logger
	// NATS is closed with the registry. Optional.
	NATS *nats.Conn
}

// registry is the concrete implementation of Registry.
type registry struct {
	llm        llm.Config
	pipeline   pipeline.Config
	gateways   GatewayFactory
	writer     *output.Writer
	integrator *integration.Integrator
	redactor   *secrets.Redactor
	tracer     trace.Tracer
	logger     *zap.Logger
	nc         *nats.Conn

	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	r := &registry{
		llm:        opts.LLM.WithDefaults(),
		pipeline:   opts.Pipeline,
		gateways:   opts.Gateways,
		writer:     opts.Writer,
		integrator: opts.Integrator,
		redactor:   opts.Redactor,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		nc:         opts.NATS,
		pipelines:  make(map[string]*pipeline.Pipeline),
	}
	if r.llm.Limiter == nil {
		r.llm.Limiter = llm.NewLimiter(r.llm.RequestsPerMinute)
	}
	if r.gateways == nil {
		r.gateways = llm.NewGateway
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.integrator == nil {
		r.integrator = integration.NewIntegrator(integration.NewStore(r.defaultIntegrationDir()), nil, r.logger)
	}
	return r
}

func (r *registry) defaultIntegrationDir() string {
	if r.writer != nil {
		return r.writer.Dir()
	}
	return "."
}

func (r *registry) Pipeline(model string) (*pipeline.Pipeline, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = r.llm.Model
	}
	if !r.llm.Allows(model) {
		return nil, fmt.Errorf("%w: %s", llm.ErrModelNotAllowed, model)
	}
	if model != r.llm.Model && len(r.llm.AllowedModels) == 0 {
		return r.build(model)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[model]; ok {
		return p, nil
	}
	p, err := r.build(model)
	if err != nil {
		return nil, err
	}
	r.pipelines[model] = p
	return p, nil
}

func (r *registry) build(model string) (*pipeline.Pipeline, error) {
	cfg := r.llm
	cfg.Model = model
	gw, err := r.gateways(cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s gateway: %w", cfg.Provider, err)
	}

	opts := []pipeline.Option{pipeline.WithLogger(r.logger), pipeline.WithTracer(r.tracer)}
	if r.redactor != nil {
		opts = append(opts, pipeline.WithRedactor(r.redactor))
	}
	p := pipeline.New(llm.Instrument(gw, cfg.Provider), r.pipeline, opts...)

	fields := []zap.Field{zap.String("provider", cfg.Provider), zap.String("model", model)}
	if cfg.APIKey != "" {
		fields = append(fields, logging.RedactedString("api_key", cfg.APIKey))
	}
	r.logger.Info("pipeline ready", fields...)
	return p, nil
}

func (r *registry) Provider() ProviderInfo {
	return ProviderInfo{
		Name:             r.llm.Provider,
		Model:            r.llm.Model,
		BaseURL:          r.llm.BaseURL,
		APIKeyConfigured: r.llm.APIKey != "",
		RequiresAPIKey:   llm.RequiresAPIKey(r.llm.Provider),
	}
}

func (r *registry) Writer() *output.Writer              { return r.writer }
func (r *registry) Integrator() *integration.Integrator { return r.integrator }
func (r *registry) Redactor() *secrets.Redactor         { return r.redactor }

// Close drains the NATS connection if one was opened.
func (r *registry) Close() error {
	if r.nc == nil {
		return nil
	}
	if err := r.nc.Drain(); err != nil {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}

// Build creates every service from cfg. The caller must Close the registry.
func Build(ctx context.Context, cfg *config.Config, tracer trace.Tracer, logger *zap.Logger) (Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := Options{
		LLM: llm.Config{
			Provider:          cfg.LLM.Provider,
			Model:             cfg.LLM.Model,
			AllowedModels:     cfg.LLM.AllowedModels,
			APIKey:            cfg.LLM.APIKey.Value(),
			BaseURL:           cfg.LLM.BaseURL,
			Temperature:       llm.Temperature(cfg.LLM.Temperature),
			MaxTokens:         cfg.LLM.MaxTokens,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			MaxRetries:        cfg.LLM.MaxRetries,
		},
		Pipeline: pipeline.Config{
			Threshold:         cfg.Pipeline.Threshold,
			ParallelSamples:   cfg.Pipeline.ParallelSamples,
			DedupeThreshold:   cfg.Pipeline.DedupeThreshold,
			Reducer:           cfg.Pipeline.Reducer,
			CallTimeout:       cfg.LLM.CallTimeout,
			SummarizeDocument: cfg.Pipeline.SummarizeDocument,
		},
		Writer: output.NewWriter(cfg.Pipeline.OutputDir),
		Tracer: tracer,
		Logger: logger,
	}

	if cfg.Pipeline.RedactSecrets {
		allowlist, err := secrets.LoadAllowlist(cfg.Redaction.AllowlistPath)
		if err != nil {
			return nil, fmt.Errorf("loading redaction allowlist: %w", err)
		}
		opts.Redactor = secrets.NewRedactor(allowlist, logger)
	}

	var publisher integration.Publisher = integration.NopPublisher{}
	if cfg.NATS.Enabled {
		nc, err := connectNATS(ctx, cfg.NATS.URL, logger)
		if err != nil {
			return nil, err
		}
		opts.NATS = nc
		publisher = integration.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)
	}
	opts.Integrator = integration.NewIntegrator(integration.NewStore(cfg.Pipeline.IntegrationDir), publisher, logger)

	fields := []zap.Field{
		zap.String("provider", cfg.LLM.Provider),
		zap.Strings("allowed_models", cfg.LLM.AllowedModels),
		zap.Bool("nats", cfg.NATS.Enabled),
	}
	if cfg.LLM.APIKey.IsSet() {
		fields = append(fields, logging.Secret("api_key", cfg.LLM.APIKey))
	}
	logger.Info("services configured", fields...)

	return NewRegistry(opts), nil
}

func connectNATS(ctx context.Context, url string, logger *zap.Logger) (*nats.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("storyforge"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return nc, nil
}
