package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	storyhttp "github.com/AvishManiar21/user-story-automation/internal/http"
)

const healthTimeout = 5 * time.Second

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the provider a running storyd is configured with",
	Example: `  storyctl health
  storyctl health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	url := strings.TrimRight(serverURL, "/") + "/api/health"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: healthTimeout}).Do(req)
	if err != nil {
		return fmt.Errorf("contacting storyd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("storyd answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var h storyhttp.ProviderHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decoding health reply: %w", err)
	}

	out := cmd.OutOrStdout()
	line := func(label, value string) {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(label+":"), value)
	}
	line("Server Status", okStyle.Render(h.Status))
	line("Server URL", serverURL)
	line("Provider", fmt.Sprintf("%s (%s)", h.Provider, h.Model))
	if h.OllamaURL != nil {
		line("Ollama URL", *h.OllamaURL)
	}
	if h.APIKeyConfigured {
		line("API Key", okStyle.Render("configured"))
	} else {
		line("API Key", warnStyle.Render("missing"))
	}
	return nil
}
