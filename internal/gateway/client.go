// Package gateway provides the HTTP client for the upstream WAHA gateway API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/isometry/waha-pipeline/internal/helpers"
	"github.com/pkg/errors"
)

// Client talks to the upstream WAHA gateway. It is the only component that
// issues outbound HTTP calls to the gateway; everything above it consumes the
// raw JSON documents it returns.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("gateway base URL is required")
	}
	_inst := &Client{
		logger:     helpers.NewNoopLogger(),
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(_inst)
	}
	return _inst, nil
}

// ChatsOverviewQuery selects a page of the chat overview resource.
type ChatsOverviewQuery struct {
	Session string
	Limit   int
	Offset  int
	IDs     []string
}

// MessagesQuery selects a page of a chat's message history.
type MessagesQuery struct {
	Session       string
	Limit         int
	Offset        int
	DownloadMedia bool
	TimestampGte  int64
	TimestampLte  int64
	FromMe        *bool
}

// WebhookRegistration configures the gateway's webhook target for a session.
type WebhookRegistration struct {
	Session string
	URL     string
	Events  []string
	Secret  string
}

// ChatsOverview fetches the chat overview page described by q and returns the
// gateway's JSON document verbatim.
func (c *Client) ChatsOverview(ctx context.Context, q ChatsOverviewQuery) ([]byte, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("offset", strconv.Itoa(q.Offset))
	if len(q.IDs) > 0 {
		query.Set("ids", strings.Join(q.IDs, ","))
	}
	path := fmt.Sprintf("/api/%s/chats/overview", url.PathEscape(q.Session))
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// ChatMessages fetches a page of messages for chatID and returns the gateway's
// JSON document verbatim.
func (c *Client) ChatMessages(ctx context.Context, chatID string, q MessagesQuery) ([]byte, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("offset", strconv.Itoa(q.Offset))
	query.Set("downloadMedia", strconv.FormatBool(q.DownloadMedia))
	if q.TimestampGte > 0 {
		query.Set("filter.timestamp.gte", strconv.FormatInt(q.TimestampGte, 10))
	}
	if q.TimestampLte > 0 {
		query.Set("filter.timestamp.lte", strconv.FormatInt(q.TimestampLte, 10))
	}
	if q.FromMe != nil {
		query.Set("filter.fromMe", strconv.FormatBool(*q.FromMe))
	}
	path := fmt.Sprintf("/api/%s/chats/%s/messages", url.PathEscape(q.Session), url.PathEscape(chatID))
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// RegisterWebhook points the gateway's webhook configuration for a session at
// the given public URL, subscribing the listed event types and, when a secret
// is set, enabling HMAC signing.
func (c *Client) RegisterWebhook(ctx context.Context, reg WebhookRegistration) error {
	type hmacConfig struct {
		Key string `json:"key"`
	}
	type webhookConfig struct {
		URL    string      `json:"url"`
		Events []string    `json:"events"`
		HMAC   *hmacConfig `json:"hmac,omitempty"`
	}
	webhook := webhookConfig{URL: reg.URL, Events: reg.Events}
	if reg.Secret != "" {
		webhook.HMAC = &hmacConfig{Key: reg.Secret}
	}
	body := map[string]any{
		"config": map[string]any{
			"webhooks": []webhookConfig{webhook},
		},
	}

	path := fmt.Sprintf("/api/sessions/%s", url.PathEscape(reg.Session))
	if _, err := c.do(ctx, http.MethodPut, path, nil, body); err != nil {
		return errors.Wrap(err, "failed to register webhook with gateway")
	}
	c.logger.Info("webhook registered",
		slog.String("session", reg.Session),
		slog.String("url", reg.URL),
		slog.Any("events", reg.Events))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build gateway request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	c.logger.Debug("calling gateway", slog.String("method", method), slog.String("url", target))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway request %s %s failed", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read gateway response")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("gateway returned status %d for %s %s: %s",
			resp.StatusCode, method, path, helpers.Truncate(string(content), 200))
	}
	return content, nil
}
