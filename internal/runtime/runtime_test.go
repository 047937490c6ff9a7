package runtime_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/isometry/waha-pipeline/internal/cache"
	"github.com/isometry/waha-pipeline/internal/dispatch"
	"github.com/isometry/waha-pipeline/internal/event"
	"github.com/isometry/waha-pipeline/internal/resource"
	"github.com/isometry/waha-pipeline/internal/runtime"
	"github.com/isometry/waha-pipeline/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingEmitter struct {
	mu            sync.Mutex
	notifications []*event.Notification
}

func (e *capturingEmitter) Emit(_ context.Context, n *event.Notification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifications = append(e.notifications, n)
	return nil
}

func (e *capturingEmitter) snapshot() []*event.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*event.Notification(nil), e.notifications...)
}

// blockingHandler accepts every event and parks until released.
type blockingHandler struct {
	release chan struct{}
	done    chan struct{}
}

func (h *blockingHandler) Kind() string { return "blocking" }
func (h *blockingHandler) CanHandle(string) bool { return true }
func (h *blockingHandler) SetLogger(*slog.Logger) {}

func (h *blockingHandler) Handle(context.Context, *event.WebhookEvent) error {
	<-h.release
	close(h.done)
	return nil
}

func newWebhookRuntime(secret string, emitter *capturingEmitter, opts ...runtime.Option) *runtime.Runtime {
	dispatcher := dispatch.NewDispatcher()
	dispatcher.Register(
		dispatch.NewMessageHandler(emitter),
		dispatch.NewAckHandler(emitter),
		dispatch.NewStateHandler(emitter))
	return runtime.NewRuntime(validation.NewWebhookSecret(secret), dispatcher, opts...)
}

func signedRequest(t *testing.T, target, secret, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader([]byte(body)))
	if secret != "" {
		req.Header.Set("X-Webhook-Hmac", validation.NewWebhookSecret(secret).Sign([]byte(body)))
	}
	return req
}

func TestServeWebhook_MessageDelivery(t *testing.T) {
	emitter := &capturingEmitter{}
	r := newWebhookRuntime("key", emitter)
	server := httptest.NewServer(r.Mux("/webhook"))
	defer server.Close()

	body := `{"event":"message","session":"default","payload":{"id":"m1","from":"1@c.us","to":"2@c.us","fromMe":false,"timestamp":1700000000,"body":"hi"}}`
	req, err := http.NewRequest(http.MethodPost, server.URL+"/webhook", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Webhook-Hmac", validation.NewWebhookSecret("key").Sign([]byte(body)))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	notifications := emitter.snapshot()
	require.Len(t, notifications, 1, "only the message handler matches")
	assert.Equal(t, "message", notifications[0].Channel)
	assert.Equal(t, "1@c.us", notifications[0].Payload["chatId"])
}

func TestServeWebhook_Rejections(t *testing.T) {
	body := `{"event":"message","session":"default","payload":{"id":"m1","from":"1@c.us","to":"2@c.us"}}`

	testCases := []struct {
		Name           string
		Request        func(t *testing.T) *http.Request
		ExpectedStatus int
	}{
		{
			Name: "missing_signature",
			Request: func(_ *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
			},
			ExpectedStatus: http.StatusUnauthorized,
		},
		{
			Name: "wrong_signature",
			Request: func(t *testing.T) *http.Request {
				return signedRequest(t, "/webhook", "other-key", body)
			},
			ExpectedStatus: http.StatusUnauthorized,
		},
		{
			Name: "malformed_body",
			Request: func(t *testing.T) *http.Request {
				return signedRequest(t, "/webhook", "key", "not json")
			},
			ExpectedStatus: http.StatusBadRequest,
		},
		{
			Name: "missing_event_type",
			Request: func(t *testing.T) *http.Request {
				return signedRequest(t, "/webhook", "key", `{"session":"default","payload":{}}`)
			},
			ExpectedStatus: http.StatusBadRequest,
		},
		{
			Name: "method_not_allowed",
			Request: func(_ *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/webhook", nil)
			},
			ExpectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			emitter := &capturingEmitter{}
			r := newWebhookRuntime("key", emitter)

			recorder := httptest.NewRecorder()
			r.ServeWebhook(recorder, tc.Request(t))

			assert.Equal(t, tc.ExpectedStatus, recorder.Code)
			assert.Empty(t, emitter.snapshot(), "rejected deliveries must not be dispatched")
		})
	}
}

func TestServeWebhook_NoSecretSkipsValidation(t *testing.T) {
	emitter := &capturingEmitter{}
	r := newWebhookRuntime("", emitter)

	body := `{"event":"message","session":"default","payload":{"id":"m1","from":"1@c.us","to":"2@c.us"}}`
	recorder := httptest.NewRecorder()
	r.ServeWebhook(recorder, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Len(t, emitter.snapshot(), 1)
}

func TestServeWebhook_UnknownEventAccepted(t *testing.T) {
	emitter := &capturingEmitter{}
	r := newWebhookRuntime("key", emitter)

	recorder := httptest.NewRecorder()
	r.ServeWebhook(recorder, signedRequest(t, "/webhook", "key", `{"event":"presence.update","session":"default","payload":{}}`))

	assert.Equal(t, http.StatusOK, recorder.Code, "unknown event types are accepted, not failed")
	assert.Empty(t, emitter.snapshot())
}

func TestServeWebhook_BodyTooLarge(t *testing.T) {
	emitter := &capturingEmitter{}
	r := newWebhookRuntime("key", emitter, runtime.WithMaxBodyBytes(64))

	body := `{"event":"message","session":"default","payload":{"body":"` + strings.Repeat("x", 128) + `"}}`
	recorder := httptest.NewRecorder()
	r.ServeWebhook(recorder, signedRequest(t, "/webhook", "key", body))

	assert.Equal(t, http.StatusRequestEntityTooLarge, recorder.Code)
	assert.Empty(t, emitter.snapshot())
}

func TestServeWebhook_RateLimited(t *testing.T) {
	emitter := &capturingEmitter{}
	r := newWebhookRuntime("key", emitter, runtime.WithRateLimiter(runtime.NewIPRateLimiter(1, 1)))

	body := `{"event":"message","session":"default","payload":{"id":"m1","from":"1@c.us","to":"2@c.us"}}`
	first := httptest.NewRecorder()
	r.ServeWebhook(first, signedRequest(t, "/webhook", "key", body))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeWebhook(second, signedRequest(t, "/webhook", "key", body))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, emitter.snapshot(), 1)
}

// A delivery that outlives the dispatch timeout returns 500, but the handler
// already running is not aborted.
func TestServeWebhook_DispatchTimeout(t *testing.T) {
	handler := &blockingHandler{release: make(chan struct{}), done: make(chan struct{})}
	dispatcher := dispatch.NewDispatcher()
	dispatcher.RegisterCatchAll(handler)
	r := runtime.NewRuntime(validation.NewWebhookSecret(""), dispatcher,
		runtime.WithDispatchTimeout(20*time.Millisecond))

	recorder := httptest.NewRecorder()
	r.ServeWebhook(recorder, httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(`{"event":"message","session":"default","payload":{}}`)))
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	close(handler.release)
	select {
	case <-handler.done:
	case <-time.After(time.Second):
		t.Fatal("handler was aborted by the timed-out delivery")
	}
}

func TestServeHealth(t *testing.T) {
	r := newWebhookRuntime("key", &capturingEmitter{})
	server := httptest.NewServer(r.Mux("/webhook"))
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.NotZero(t, health.Timestamp)
}

func TestMux_DisabledWebhookPath(t *testing.T) {
	r := newWebhookRuntime("key", &capturingEmitter{})
	server := httptest.NewServer(r.Mux(""))
	defer server.Close()

	resp, err := http.Post(server.URL+"/webhook", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	health, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = health.Body.Close() }()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

type staticProducer struct {
	content []byte
	err     error
}

func (p *staticProducer) Template() string { return "waha://chats/overview?limit&offset&ids&session" }

func (p *staticProducer) Matches(uri string) bool {
	return strings.HasPrefix(uri, "waha://chats/overview")
}

func (p *staticProducer) Read(context.Context, string) ([]byte, error) {
	return p.content, p.err
}

func TestServeResource(t *testing.T) {
	store := cache.New(time.Minute, 10)
	resources := resource.NewManager(store)
	resources.Register(&staticProducer{content: []byte(`[{"id":"1@c.us"}]`)})

	r := runtime.NewRuntime(validation.NewWebhookSecret(""), dispatch.NewDispatcher(),
		runtime.WithResources(resources))
	server := httptest.NewServer(r.Mux("/webhook"))
	defer server.Close()

	testCases := []struct {
		Name           string
		URL            string
		ExpectedStatus int
		ExpectedBody   string
	}{
		{
			Name:           "known_resource",
			URL:            "/resource?uri=" + url.QueryEscape("waha://chats/overview?limit=5"),
			ExpectedStatus: http.StatusOK,
			ExpectedBody:   `[{"id":"1@c.us"}]`,
		},
		{
			Name:           "unknown_resource",
			URL:            "/resource?uri=waha://unknown",
			ExpectedStatus: http.StatusNotFound,
		},
		{
			Name:           "missing_uri",
			URL:            "/resource",
			ExpectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tc.URL)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tc.ExpectedStatus, resp.StatusCode)
			if tc.ExpectedBody != "" {
				content := make([]byte, 1024)
				n, _ := resp.Body.Read(content)
				assert.JSONEq(t, tc.ExpectedBody, string(content[:n]))
			}
		})
	}
}
