package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/document"
	"github.com/AvishManiar21/user-story-automation/internal/integration"
	"github.com/AvishManiar21/user-story-automation/internal/llm"
	"github.com/AvishManiar21/user-story-automation/internal/logging"
	"github.com/AvishManiar21/user-story-automation/internal/pipeline"
)

const (
	msgNoFile       = "No file provided"
	msgNoSelection  = "No file selected"
	msgTypeRejected = "File type not allowed. Please upload .docx, .doc, .txt, or .md files"
	msgLLMInit      = "Failed to initialize LLM"
	msgModelDenied  = "Model not allowed"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ProviderHealthResponse is the response body for GET /api/health.
type ProviderHealthResponse struct {
	Status           string  `json:"status"`
	Provider         string  `json:"provider"`
	APIKeyConfigured bool    `json:"api_key_configured"`
	OllamaURL        *string `json:"ollama_url"`
	Model            string  `json:"model"`
}

// GenerateResponse is the response body for POST /api/generate-stories.
type GenerateResponse struct {
	Success    bool                `json:"success"`
	Stories    []backlog.Story     `json:"stories"`
	Count      int                 `json:"count"`
	OutputFile *string             `json:"output_file"`
	Validation pipeline.Validation `json:"validation"`
	Note       string              `json:"note,omitempty"`
}

// IntegrateStoryRequest is the request body for POST /api/integrate-story.
type IntegrateStoryRequest struct {
	StoryID any             `json:"storyId"`
	Story   json.RawMessage `json:"story"`
}

// IntegrateAllRequest is the request body for POST /api/integrate-all.
type IntegrateAllRequest struct {
	StoryIDs []any           `json:"storyIds"`
	Stories  json.RawMessage `json:"stories"`
}

// IntegrateResponse is the response body for both integration endpoints.
type IntegrateResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StoryID    any    `json:"storyId,omitempty"`
	StoryIDs   []any  `json:"storyIds,omitempty"`
	OutputFile string `json:"output_file"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleProviderHealth reports the configured model provider.
func (s *Server) handleProviderHealth(c echo.Context) error {
	p := s.deps.Provider
	resp := ProviderHealthResponse{
		Status:           "ok",
		Provider:         p.Name,
		APIKeyConfigured: p.APIKeyConfigured || !p.RequiresAPIKey,
		Model:            p.Model,
	}
	if p.Name == "ollama" {
		url := p.BaseURL
		resp.OllamaURL = &url
	}
	return c.JSON(http.StatusOK, resp)
}

// handleGenerateStories runs an uploaded document through the pipeline.
func (s *Server) handleGenerateStories(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return newAPIError(http.StatusRequestEntityTooLarge, "File too large")
		}
		return newAPIError(http.StatusBadRequest, msgNoFile)
	}
	if fh.Filename == "" {
		return newAPIError(http.StatusBadRequest, msgNoSelection)
	}
	if !document.Allowed(fh.Filename) {
		return newAPIError(http.StatusBadRequest, msgTypeRejected)
	}
	if p := s.deps.Provider; p.RequiresAPIKey && !p.APIKeyConfigured {
		return newAPIError(http.StatusInternalServerError, missingKeyMessage(p.Name))
	}

	name := secureFilename(fh.Filename)
	path, err := s.saveUpload(fh, name)
	if err != nil {
		return s.generationError(err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()

	ctx := logging.WithDocument(c.Request().Context(), name)

	text, err := document.ExtractText(path)
	if err != nil {
		return s.generationError(err)
	}

	gen, err := s.deps.Generators(strings.TrimSpace(c.FormValue("model")))
	if errors.Is(err, llm.ErrModelNotAllowed) {
		return newAPIError(http.StatusBadRequest, msgModelDenied)
	}
	if err != nil {
		s.logger.Error("failed to initialize llm", zap.Error(err))
		return newAPIError(http.StatusInternalServerError, msgLLMInit)
	}

	res, err := gen.Process(ctx, text)
	if err != nil {
		return s.generationError(err)
	}

	var outputFile *string
	if s.deps.Writer != nil {
		saved, err := s.deps.Writer.Save(name, res.Requirements, res.Epics, res.TestCases)
		if err != nil {
			s.logger.Warn("could not save combined output", zap.Error(err))
		} else {
			outputFile = &saved
		}
	}

	stories := res.Stories
	if stories == nil {
		stories = []backlog.Story{}
	}
	return c.JSON(http.StatusOK, GenerateResponse{
		Success:    true,
		Stories:    stories,
		Count:      len(stories),
		OutputFile: outputFile,
		Validation: res.Validation,
		Note:       res.Note,
	})
}

func (s *Server) saveUpload(fh *multipart.FileHeader, name string) (string, error) {
	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	path := filepath.Join(s.config.UploadDir, uuid.NewString()+"_"+name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing upload file: %w", err)
	}
	return path, nil
}

func (s *Server) generationError(err error) error {
	return &apiError{
		status: http.StatusInternalServerError,
		body: ErrorResponse{
			Error:   "Error generating stories: " + err.Error(),
			Stage:   pipeline.StageName(err),
			Details: errorDetails(err),
		},
		cause: err,
	}
}

// handleIntegrateStory records one story.
func (s *Server) handleIntegrateStory(c echo.Context) error {
	var req IntegrateStoryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid integrate request", zap.Error(err))
		return newAPIError(http.StatusBadRequest, "Story data not provided")
	}

	receipt, err := s.deps.Integrator.Story(c.Request().Context(), req.StoryID, req.Story)
	if err != nil {
		return integrationError(err, "Story data not provided")
	}
	return c.JSON(http.StatusOK, IntegrateResponse{
		Success:    true,
		Message:    receipt.Message,
		StoryID:    req.StoryID,
		OutputFile: receipt.File,
	})
}

// handleIntegrateAll records a batch of stories.
func (s *Server) handleIntegrateAll(c echo.Context) error {
	var req IntegrateAllRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid integrate request", zap.Error(err))
		return newAPIError(http.StatusBadRequest, "Stories data not provided")
	}

	receipt, err := s.deps.Integrator.All(c.Request().Context(), req.StoryIDs, req.Stories)
	if err != nil {
		return integrationError(err, "Stories data not provided")
	}
	return c.JSON(http.StatusOK, IntegrateResponse{
		Success:    true,
		Message:    receipt.Message,
		StoryIDs:   receipt.StoryIDs,
		OutputFile: receipt.File,
	})
}

func integrationError(err error, missing string) error {
	switch {
	case errors.Is(err, integration.ErrNoStory), errors.Is(err, integration.ErrNoStories):
		return newAPIError(http.StatusBadRequest, missing)
	case errors.Is(err, integration.ErrAlreadyIntegrated):
		return &apiError{status: http.StatusConflict, body: ErrorResponse{Error: err.Error()}, cause: err}
	default:
		return &apiError{
			status: http.StatusInternalServerError,
			body: ErrorResponse{
				Error:   "Error integrating story: " + err.Error(),
				Details: errorDetails(err),
			},
			cause: err,
		}
	}
}

func missingKeyMessage(provider string) string {
	names := map[string]string{"openai": "OpenAI", "groq": "Groq", "anthropic": "Anthropic"}
	display, ok := names[provider]
	if !ok {
		display = provider
	}
	return fmt.Sprintf("%s API key not configured. Set %s_API_KEY", display, strings.ToUpper(provider))
}

// secureFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with an underscore. The extension is preserved.
func secureFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = strings.Trim(unsafeFilename.ReplaceAllString(stem, "_"), "._")
	if stem == "" {
		stem = "upload"
	}
	return stem + unsafeFilename.ReplaceAllString(ext, "_")
}
