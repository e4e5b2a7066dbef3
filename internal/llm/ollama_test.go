package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGateway_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.2:latest", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.2:latest","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"second"},"done":true}` + "\n"))
	}))
	defer server.Close()

	gw, err := NewGateway(Config{Provider: "ollama", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	got, err := gw.Generate(context.Background(), "Vote.", "first or second?")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestOllamaGateway_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	gw, err := NewGateway(Config{Provider: "ollama", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = gw.Generate(context.Background(), "", "hi")
	require.Error(t, err)
}

func TestOllamaGateway_MessageRoles(t *testing.T) {
	var roles []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		for _, m := range body.Messages {
			roles = append(roles, m.Role)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.2:latest","message":{"role":"assistant","content":"ok"},"done":true}` + "\n"))
	}))
	defer server.Close()

	gw, err := NewGateway(Config{Provider: "ollama", BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = gw.Generate(context.Background(), "Extract requirements.", "first turn", "second turn")
	require.NoError(t, err)
	assert.Equal(t, []string{"system", "user", "user"}, roles)
}
