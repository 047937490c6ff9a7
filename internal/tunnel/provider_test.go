package tunnel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/isometry/waha-pipeline/internal/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentProvider_Open(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tunnels", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var request map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "http", request["proto"])
		assert.Equal(t, "localhost:8085", request["addr"])

		_ = json.NewEncoder(w).Encode(map[string]string{"public_url": "https://abc123.tunnel.example"})
	}))
	defer server.Close()

	provider, err := tunnel.NewAgentProvider(server.URL, tunnel.WithAuthToken("tok"))
	require.NoError(t, err)

	publicURL, err := provider.Open(context.Background(), "8085")
	require.NoError(t, err)
	assert.Equal(t, "https://abc123.tunnel.example", publicURL)
}

func TestAgentProvider_OpenFailures(t *testing.T) {
	testCases := []struct {
		Name    string
		Handler http.HandlerFunc
	}{
		{
			Name: "provider_error_status",
			Handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "invalid auth token", http.StatusUnauthorized)
			},
		},
		{
			Name: "missing_public_url",
			Handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
		},
		{
			Name: "malformed_response",
			Handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			server := httptest.NewServer(tc.Handler)
			defer server.Close()

			provider, err := tunnel.NewAgentProvider(server.URL)
			require.NoError(t, err)
			_, err = provider.Open(context.Background(), "8085")
			assert.Error(t, err)
		})
	}
}

func TestAgentProvider_CloseToleratesMissingTunnel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, err := tunnel.NewAgentProvider(server.URL)
	require.NoError(t, err)
	assert.NoError(t, provider.Close(context.Background()))
}

func TestAgentProvider_Unreachable(t *testing.T) {
	provider, err := tunnel.NewAgentProvider("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = provider.Open(context.Background(), "8085")
	assert.Error(t, err)
}
