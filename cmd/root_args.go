package cmd

import (
	"time"

	"github.com/isometry/waha-pipeline/internal/config"
	"github.com/isometry/waha-pipeline/internal/helpers"
)

var envMapString = map[*string]boundEnvVar[string]{
	&config.Webhook.Addr: {
		Name:        "webhook-addr",
		Description: "The address to bind the webhook listener to (default all interfaces)",
	},
	&config.Webhook.Port: {
		Name:        "webhook-port",
		Description: "The port to bind the webhook listener to",
		Short:       helpers.Ptr("p"),
	},
	&config.Webhook.Path: {
		Name:        "webhook-path",
		Description: "The path the upstream gateway posts events to",
	},
	&config.Webhook.Secret: {
		Name:        "webhook-secret",
		Description: "The secret to use when validating incoming webhook payloads. If not specified, no validation is performed",
	},
	&config.Gateway.URL: {
		Name:        "gateway-url",
		Description: "The base URL of the upstream WAHA gateway",
		Short:       helpers.Ptr("g"),
	},
	&config.Gateway.APIKey: {
		Name:        "gateway-api-key",
		Description: "The API key to authenticate gateway calls with",
	},
	&config.Gateway.Session: {
		Name:        "gateway-session",
		Description: "The default gateway session name",
		Short:       helpers.Ptr("s"),
	},
	&config.Tunnel.ProviderURL: {
		Name:        "tunnel-provider-url",
		Description: "The local API endpoint of the tunnel provider agent",
	},
	&config.Tunnel.AuthToken: {
		Name:        "tunnel-auth-token",
		Description: "The token to authenticate against the tunnel provider",
		Env:         helpers.Ptr("TUNNEL_AUTH_TOKEN"),
	},
}

var envMapBool = map[*bool]boundEnvVar[bool]{
	&config.Global.Logging.CallerTrace: {
		Name:        "verbosity-caller-trace",
		Description: "Enable caller trace in logs",
		Short:       helpers.Ptr("V"),
	},
	&config.Webhook.Enabled: {
		Name:        "webhook",
		Description: "Enable the webhook event pipeline",
	},
	&config.Tunnel.Enabled: {
		Name:        "tunnel",
		Description: "Acquire a public URL and register the webhook with the gateway at startup",
	},
	&config.Cache.Enabled: {
		Name:        "cache",
		Description: "Enable the resource read-through cache",
	},
}

var envMapCount = map[*int]boundEnvVar[int]{
	&config.Global.Logging.Verbosity: {
		Name:        "verbosity",
		Description: "Increase logger verbosity (default WarnLevel)",
		Short:       helpers.Ptr("v"),
	},
}

var envMapDuration = map[*time.Duration]boundEnvVar[time.Duration]{
	&config.Webhook.Timeout: {
		Name:        "webhook-io-timeout",
		Description: "The timeout for I/O operations on the webhook listener",
		Short:       helpers.Ptr("t"),
	},
	&config.Webhook.DispatchTimeout: {
		Name:        "webhook-dispatch-timeout",
		Description: "The timeout for dispatching one delivery to all handlers",
	},
	&config.Cache.TTL: {
		Name:        "cache-ttl",
		Description: "The time-to-live of a resource cache entry",
	},
	&config.Cache.PruneInterval: {
		Name:        "cache-prune-interval",
		Description: "How often expired cache entries are swept",
	},
}

var envMapStringSlice = map[*[]string]boundEnvVar[[]string]{
	&config.Webhook.Events: {
		Name:        "webhook-events",
		Description: "The gateway event types to subscribe to at registration time",
	},
}
