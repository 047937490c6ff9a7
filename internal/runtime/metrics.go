package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAccepted     = "accepted"
	outcomeUnauthorized = "unauthorized"
	outcomeInvalid      = "invalid"
	outcomeRateLimited  = "rate_limited"
	outcomeTimeout      = "timeout"
)

var (
	webhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waha_webhook_requests_total",
		Help: "Webhook deliveries by outcome",
	}, []string{"outcome"})

	handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waha_handler_failures_total",
		Help: "Event handler failures by handler kind",
	}, []string{"handler"})
)
