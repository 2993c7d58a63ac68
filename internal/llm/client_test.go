package llm

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsProvider(t *testing.T) {
	g, err := New(Config{SocketPath: "/tmp/x.sock", Model: "ai/gemma3"})
	require.NoError(t, err)
	assert.IsType(t, &DMRClient{}, g)

	g, err = New(Config{Provider: ProviderOpenAI, APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, g)

	_, err = New(Config{Provider: "flan-t5"})
	assert.Error(t, err)
}

func TestNewDMR_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"empty socket path", Config{Model: "m"}, true},
		{"empty model", Config{SocketPath: "/tmp/test.sock"}, true},
		{"valid config", Config{SocketPath: "/tmp/test.sock", Model: "m"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDMR(tt.config)
			assert.Equal(t, tt.wantErr, err != nil, "NewDMR() error = %v", err)
		})
	}
}

func serveUnix(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "llm.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	server := &http.Server{Handler: handler}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })

	return socketPath
}

func TestDMRGenerate(t *testing.T) {
	var got chatRequest
	socketPath := serveUnix(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  (b) An obvious modification.\n"}}]}`))
	})

	client, err := NewDMR(Config{SocketPath: socketPath, Model: "ai/gemma3"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "compare these", 150)
	require.NoError(t, err)

	assert.Equal(t, "(b) An obvious modification.", out)
	assert.Equal(t, 150, got.MaxTokens)
	assert.Equal(t, "ai/gemma3", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "compare these", got.Messages[0].Content)
}

func TestDMRGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"api error", http.StatusOK, `{"choices":[],"error":{"message":"model not loaded"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"bad json", http.StatusOK, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			socketPath := serveUnix(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			})

			client, err := NewDMR(Config{SocketPath: socketPath, Model: "m"})
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), "p", 0)
			assert.Error(t, err)
		})
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" (a) Clearly novel "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAI(Config{BaseURL: server.URL + "/v1", APIKey: "k", Model: "judge"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "prompt", 150)
	require.NoError(t, err)

	assert.Equal(t, "(a) Clearly novel", out)
	assert.Equal(t, "judge", body["model"])
	assert.EqualValues(t, 150, body["max_tokens"])
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer server.Close()

	client, err := NewOpenAI(Config{BaseURL: server.URL + "/v1", Model: "judge"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt", 0)
	assert.Error(t, err)
}
