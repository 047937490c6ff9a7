// Package runtime provides the HTTP ingest surface of the pipeline: the
// signature-verified webhook endpoint, the liveness endpoint, and metrics.
package runtime

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/isometry/waha-pipeline/internal/dispatch"
	"github.com/isometry/waha-pipeline/internal/event"
	"github.com/isometry/waha-pipeline/internal/helpers"
	"github.com/isometry/waha-pipeline/internal/models"
	"github.com/isometry/waha-pipeline/internal/resource"
	"github.com/isometry/waha-pipeline/internal/validation"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option is a function that applies an option to a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger instance for the runtime.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithDispatchTimeout bounds the authenticate-parse-dispatch chain of one
// delivery. Work already handed to handlers is not aborted on timeout.
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(r *Runtime) {
		r.dispatchTimeout = timeout
	}
}

// WithMaxBodyBytes caps the accepted request body size.
func WithMaxBodyBytes(limit int64) Option {
	return func(r *Runtime) {
		r.maxBodyBytes = limit
	}
}

// WithRateLimiter enables per-IP rate limiting on the webhook endpoint.
func WithRateLimiter(limiter *IPRateLimiter) Option {
	return func(r *Runtime) {
		r.limiter = limiter
	}
}

// WithResources exposes the resource read path at /resource.
func WithResources(resources *resource.Manager) Option {
	return func(r *Runtime) {
		r.resources = resources
	}
}

// Runtime receives gateway webhook deliveries, authenticates them, and feeds
// them to the dispatcher.
type Runtime struct {
	logger          *slog.Logger
	secret          *validation.WebhookSecret
	dispatcher      *dispatch.Dispatcher
	resources       *resource.Manager
	limiter         *IPRateLimiter
	dispatchTimeout time.Duration
	maxBodyBytes    int64
}

// NewRuntime creates a runtime wiring the webhook secret to the dispatcher.
func NewRuntime(secret *validation.WebhookSecret, dispatcher *dispatch.Dispatcher, opts ...Option) *Runtime {
	_inst := &Runtime{
		logger:          helpers.NewNoopLogger(),
		secret:          secret,
		dispatcher:      dispatcher,
		dispatchTimeout: 10 * time.Second,
		maxBodyBytes:    4 << 20,
	}
	for _, opt := range opts {
		opt(_inst)
	}
	return _inst
}

// Mux returns the HTTP mux serving the webhook path, /health and /metrics.
// An empty webhookPath leaves the ingest route unbound (pipeline disabled).
func (r *Runtime) Mux(webhookPath string) *http.ServeMux {
	mux := http.NewServeMux()
	if webhookPath != "" {
		mux.HandleFunc(webhookPath, r.ServeWebhook)
	}
	mux.HandleFunc("/health", r.ServeHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if r.resources != nil {
		mux.HandleFunc("/resource", r.ServeResource)
	}
	return mux
}

// ServeWebhook is the HTTP handler for inbound gateway deliveries. The HTTP
// status reflects protocol correctness only: handler failures are logged and
// counted, but an authenticated, well-formed delivery is always accepted.
func (r *Runtime) ServeWebhook(resp http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.logger.Debug("rejecting HTTP request...", slog.Any("requestor", req.RemoteAddr), "reason", "method not allowed", slog.Any("method", req.Method))
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusMethodNotAllowed}, nil, resp)
		return
	}

	if r.limiter != nil && !r.limiter.Allow(remoteIP(req)) {
		webhookRequests.WithLabelValues(outcomeRateLimited).Inc()
		helpers.RespondHTTP(models.Response{Body: "rate limit exceeded", StatusCode: http.StatusTooManyRequests}, nil, resp)
		return
	}

	r.logger.Debug("received HTTP request...", slog.Any("requestor", req.RemoteAddr), slog.Any("path", req.URL.Path))
	body, err := io.ReadAll(io.LimitReader(req.Body, r.maxBodyBytes+1))
	if err != nil {
		r.logger.Error("failed to read request body", slog.Any("error", err))
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusInternalServerError}, err, resp)
		return
	}
	if int64(len(body)) > r.maxBodyBytes {
		webhookRequests.WithLabelValues(outcomeInvalid).Inc()
		helpers.RespondHTTP(models.Response{Body: "payload too large", StatusCode: http.StatusRequestEntityTooLarge}, nil, resp)
		return
	}

	headers := make(map[string]string)
	for k, v := range req.Header {
		headers[strings.ToLower(k)] = v[0]
	}

	// Authentication is terminal per-request: a bad signature is never dispatched.
	if err = r.secret.ValidateSignature(body, headers); err != nil {
		r.logger.Warn("validating signature", slog.Any("error", err), slog.Any("requestor", req.RemoteAddr))
		webhookRequests.WithLabelValues(outcomeUnauthorized).Inc()
		helpers.RespondHTTP(models.Response{Body: err.Error(), StatusCode: http.StatusUnauthorized}, err, resp)
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		r.logger.Warn("validating payload", slog.Any("error", err))
		webhookRequests.WithLabelValues(outcomeInvalid).Inc()
		helpers.RespondHTTP(models.Response{Body: err.Error(), StatusCode: http.StatusBadRequest}, err, resp)
		return
	}

	logger := r.logger.With(slog.String("event", ev.Event), slog.String("session", ev.Session))
	logger.Debug("dispatching event...")

	// Dispatch is awaited, not fire-and-forget, so handler errors surface in
	// logs before the response is sent. The dispatch context deliberately
	// outlives the request: a timed-out delivery still lets already-running
	// handlers finish, since they are side-effect emitters.
	done := make(chan []dispatch.Result, 1)
	go func() {
		done <- r.dispatcher.Dispatch(context.WithoutCancel(req.Context()), ev)
	}()

	select {
	case results := <-done:
		for _, result := range results {
			if result.Failed() {
				handlerFailures.WithLabelValues(result.Handler).Inc()
			}
		}
		webhookRequests.WithLabelValues(outcomeAccepted).Inc()
		helpers.RespondHTTP(models.Response{Body: "event accepted", StatusCode: http.StatusOK}, nil, resp)
	case <-time.After(r.dispatchTimeout):
		logger.Error("dispatch timed out", slog.Duration("timeout", r.dispatchTimeout))
		webhookRequests.WithLabelValues(outcomeTimeout).Inc()
		helpers.RespondHTTP(models.Response{Body: "dispatch timed out", StatusCode: http.StatusInternalServerError}, nil, resp)
	}
}

// ServeHealth is the liveness endpoint: it succeeds whenever the process is
// accepting connections.
func (r *Runtime) ServeHealth(resp http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusMethodNotAllowed}, nil, resp)
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusOK)
	_, _ = resp.Write([]byte(`{"status":"ok","timestamp":` + strconv.FormatInt(time.Now().Unix(), 10) + `}`))
}

// ServeResource serves a cached resource read. The uri query parameter is the
// exact cache key, including the order of its own query parameters.
func (r *Runtime) ServeResource(resp http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusMethodNotAllowed}, nil, resp)
		return
	}
	uri := req.URL.Query().Get("uri")
	if uri == "" {
		helpers.RespondHTTP(models.Response{Body: "missing uri parameter", StatusCode: http.StatusBadRequest}, nil, resp)
		return
	}

	content, err := r.resources.Read(req.Context(), uri)
	if err != nil {
		var noProducer *resource.NoProducerError
		if errors.As(err, &noProducer) {
			helpers.RespondHTTP(models.Response{Body: err.Error(), StatusCode: http.StatusNotFound}, err, resp)
			return
		}
		r.logger.Error("resource read failed", slog.String("uri", uri), slog.Any("error", err))
		helpers.RespondHTTP(models.Response{Body: "resource read failed", StatusCode: http.StatusBadGateway}, err, resp)
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusOK)
	_, _ = resp.Write(content)
}

func remoteIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
