package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/isometry/waha-pipeline/internal/helpers"
	"github.com/pkg/errors"
)

// tunnelName identifies this pipeline's tunnel at the provider agent, so a
// restart reclaims the previous slot instead of leaking tunnels.
const tunnelName = "waha-pipeline"

// AgentProvider drives a local tunnel agent (ngrok-style) over its HTTP API.
type AgentProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	authToken  string
}

// AgentOption is a function that applies an option to an AgentProvider.
type AgentOption func(*AgentProvider)

// WithAgentLogger sets the logger instance for the provider.
func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(p *AgentProvider) {
		p.logger = logger
	}
}

// WithAgentHTTPClient sets the underlying HTTP client.
func WithAgentHTTPClient(httpClient *http.Client) AgentOption {
	return func(p *AgentProvider) {
		p.httpClient = httpClient
	}
}

// WithAuthToken sets the token sent to the provider agent.
func WithAuthToken(token string) AgentOption {
	return func(p *AgentProvider) {
		p.authToken = token
	}
}

// NewAgentProvider creates a provider talking to the agent API at baseURL.
func NewAgentProvider(baseURL string, opts ...AgentOption) (*AgentProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("tunnel provider URL is required")
	}
	_inst := &AgentProvider{
		logger:     helpers.NewNoopLogger(),
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(_inst)
	}
	return _inst, nil
}

// Open asks the agent to bind a public URL to the local port.
func (p *AgentProvider) Open(ctx context.Context, port string) (string, error) {
	request := map[string]string{
		"name":  tunnelName,
		"proto": "http",
		"addr":  "localhost:" + port,
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode tunnel request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/tunnels", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to build tunnel request")
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "tunnel provider unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read tunnel provider response")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", errors.Errorf("tunnel provider returned status %d: %s",
			resp.StatusCode, helpers.Truncate(string(content), 200))
	}

	var tunnel struct {
		PublicURL string `json:"public_url"`
	}
	if err = json.Unmarshal(content, &tunnel); err != nil {
		return "", errors.Wrap(err, "failed to decode tunnel provider response")
	}
	if tunnel.PublicURL == "" {
		return "", errors.New("tunnel provider returned no public URL")
	}
	p.logger.Debug("tunnel opened", slog.String("publicUrl", tunnel.PublicURL))
	return tunnel.PublicURL, nil
}

// Close releases the tunnel at the agent.
func (p *AgentProvider) Close(ctx context.Context) error {
	target := fmt.Sprintf("%s/api/tunnels/%s", p.baseURL, tunnelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build tunnel release request")
	}
	p.authorize(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "tunnel provider unreachable")
	}
	defer func() { _ = resp.Body.Close() }()
	// A missing tunnel on release is fine: the agent may have expired it.
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("tunnel provider returned status %d on release", resp.StatusCode)
	}
	return nil
}

func (p *AgentProvider) authorize(req *http.Request) {
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}
}
