// Package http provides the HTTP API for storyforge.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/integration"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/output"
	"github.com/AvishManiar21/user-story-automation/internal/pipeline"
)

// DefaultMaxUploadBytes is the upload limit when none is configured.
const DefaultMaxUploadBytes int64 = 16 * 1024 * 1024

// Generator turns document text into stories.
type Generator interface {
	Process(ctx context.Context, text string) (*pipeline.Result, error)
}

// GeneratorFactory returns a generator for a model name. An empty name
// selects the configured model.
type GeneratorFactory func(model string) (Generator, error)

// ProviderInfo describes the configured model provider.
type ProviderInfo struct {
	Name             string
	Model            string
	BaseURL          string
	APIKeyConfigured bool
	RequiresAPIKey   bool
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Generators GeneratorFactory
	Writer     *output.Writer
	Integrator *integration.Integrator
	Provider   ProviderInfo
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// RequestMetrics records request metrics when set.
	RequestMetrics *RequestMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	UploadDir      string
}

// Server provides HTTP endpoints for storyforge.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Generators == nil {
		return nil, fmt.Errorf("generator factory cannot be nil")
	}
	if deps.Integrator == nil {
		return nil, fmt.Errorf("integrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 5000,
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	if deps.RequestMetrics != nil {
		e.Use(deps.RequestMetrics.Middleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logging.Ctx(c.Request().Context(), logger).Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	api.GET("/health", s.handleProviderHealth)
	api.POST("/generate-stories", s.handleGenerateStories,
		middleware.BodyLimit(fmt.Sprintf("%dB", s.config.MaxUploadBytes)))
	api.POST("/integrate-story", s.handleIntegrateStory)
	api.POST("/integrate-all", s.handleIntegrateAll)

	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Stage   string   `json:"stage,omitempty"`
	Details []string `json:"details,omitempty"`
}

// apiError carries a status and a body through echo's error handler.
type apiError struct {
	status int
	body   ErrorResponse
	cause  error
}

func (e *apiError) Error() string {
	return e.body.Error
}

func (e *apiError) Unwrap() error {
	return e.cause
}

func newAPIError(status int, msg string) *apiError {
	return &apiError{status: status, body: ErrorResponse{Error: msg}}
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := ErrorResponse{Error: http.StatusText(status)}

		var ae *apiError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			status, body = ae.status, ae.body
		case errors.As(err, &he):
			status = he.Code
			body.Error = fmt.Sprint(he.Message)
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", status),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Warn("failed to write error response", zap.Error(err))
		}
	}
}

// errorDetails returns up to the last five messages of err's chain,
// outermost first.
func errorDetails(err error) []string {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) > 5 {
		chain = chain[len(chain)-5:]
	}
	return chain
}
