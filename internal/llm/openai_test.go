package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGateway_Generate(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		serverResponse string
		want           string
		wantErr        string
	}{
		{
			name:           "successful completion",
			statusCode:     http.StatusOK,
			serverResponse: `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"requirements\":[]}"}}]}`,
			want:           `{"requirements":[]}`,
		},
		{
			name:           "no choices",
			statusCode:     http.StatusOK,
			serverResponse: `{"id":"c1","choices":[]}`,
			wantErr:        "empty response",
		},
		{
			name:           "auth error is not retried",
			statusCode:     http.StatusUnauthorized,
			serverResponse: `{"error":{"message":"invalid api key","type":"auth"}}`,
			wantErr:        "invalid api key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req openAIRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "gpt-4o", req.Model)
				assert.Equal(t, 0.3, req.Temperature)
				if assert.Len(t, req.Messages, 2) {
					assert.Equal(t, "system", req.Messages[0].Role)
					assert.Equal(t, "user", req.Messages[1].Role)
				}

				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.serverResponse))
			}))
			defer server.Close()

			gw, err := NewGateway(Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL}, nil)
			require.NoError(t, err)

			got, err := gw.Generate(context.Background(), "You extract requirements.", "doc text")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAIGateway_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	gw, err := NewGateway(Config{Provider: "groq", APIKey: "gsk", BaseURL: server.URL, MaxRetries: 1}, nil)
	require.NoError(t, err)

	got, err := gw.Generate(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIGateway_GivesUpAfterMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	gw, err := NewGateway(Config{Provider: "openai", APIKey: "sk", BaseURL: server.URL, MaxRetries: 0}, nil)
	require.NoError(t, err)

	_, err = gw.Generate(context.Background(), "", "hi")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "max retries exceeded"))
	assert.True(t, isRetryableError(err))
}
