// Storyd serves the story pipeline over HTTP or as an MCP stdio server.
//
// Configuration is loaded from ~/.config/storyforge/config.yaml and
// STORYFORGE_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP API on :5000
//	storyd
//
//	# Serve MCP tools on stdin/stdout
//	storyd -mcp
//
//	# Configure via environment
//	LLM_PROVIDER=openai OPENAI_API_KEY=... PORT=8080 storyd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/config"
	"github.com/AvishManiar21/user-story-automation/internal/http"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/mcp"
	"github.com/AvishManiar21/user-story-automation/internal/services"
	"github.com/AvishManiar21/user-story-automation/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath string
	mcpMode    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file (default ~/.config/storyforge/config.yaml)")
	flag.BoolVar(&opts.mcpMode, "mcp", false, "serve MCP tools over stdio instead of HTTP")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  storyd [-config path]   Start the HTTP API\n")
			fmt.Fprintf(os.Stderr, "  storyd -mcp             Serve MCP tools on stdio\n")
			fmt.Fprintf(os.Stderr, "  storyd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("storyd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("storyd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts storyd and blocks until ctx is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Builds the service registry (model gateway, pipeline, integration)
//  4. Serves MCP on stdio, or the HTTP API with graceful shutdown
func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel, opts.mcpMode)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if h := tel.Health(); h.Degraded {
		logger.Warn("telemetry degraded", zap.Strings("problems", h.Problems))
	}
	if cfg.MissingAPIKey() {
		logger.Warn("provider requires an API key that is not configured",
			zap.String("provider", cfg.LLM.Provider))
	}

	reg, err := services.Build(ctx, cfg, tel.Tracer("storyforge"), logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("closing services", zap.Error(err))
		}
	}()

	if opts.mcpMode {
		return runMCP(ctx, cfg, reg, tel, logger)
	}
	return runHTTP(ctx, cfg, reg, tel, logger)
}

func initLogger(cfg *config.Config, tel *telemetry.Telemetry, stdio bool) (*zap.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Stderr = stdio
	logCfg.OTEL = tel.LoggerProvider() != nil
	lg, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, err
	}
	return lg.Underlying(), nil
}

func runMCP(ctx context.Context, cfg *config.Config, reg services.Registry, tel *telemetry.Telemetry, logger *zap.Logger) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "storyforge",
		Version: version,
		Logger:  logger,
		Meter:   tel.Meter("storyforge.mcp"),
	}, mcp.Deps{
		Generators: func(model string) (mcp.Generator, error) {
			p, err := reg.Pipeline(model)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Writer:       reg.Writer(),
		Integrator:   reg.Integrator(),
		DocumentRoot: cfg.MCP.DocumentRoot,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	fmt.Fprintf(os.Stderr, "storyd MCP stdio mode started\n")
	return srv.Run(ctx)
}

func runHTTP(ctx context.Context, cfg *config.Config, reg services.Registry, tel *telemetry.Telemetry, logger *zap.Logger) error {
	provider := reg.Provider()
	meter := tel.Meter(http.InstrumentationName)
	srv, err := http.NewServer(http.Deps{
		Generators: func(model string) (http.Generator, error) {
			p, err := reg.Pipeline(model)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Writer:     reg.Writer(),
		Integrator: reg.Integrator(),
		Provider: http.ProviderInfo{
			Name:             provider.Name,
			Model:            provider.Model,
			BaseURL:          provider.BaseURL,
			APIKeyConfigured: provider.APIKeyConfigured,
			RequiresAPIKey:   provider.RequiresAPIKey,
		},
		Metrics:        promhttp.Handler(),
		RequestMetrics: http.NewRequestMetrics(meter, logger),
	}, logger, &http.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		UploadDir:      cfg.Server.UploadDir,
	})
	if err != nil {
		return fmt.Errorf("creating HTTP server: %w", err)
	}

	logger.Info("storyd starting",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("provider", provider.Name),
		zap.String("model", provider.Model),
		zap.String("output_dir", cfg.Pipeline.OutputDir))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
