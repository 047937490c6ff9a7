package cmd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isometry/waha-pipeline/internal/cache"
	"github.com/isometry/waha-pipeline/internal/config"
	"github.com/isometry/waha-pipeline/internal/dispatch"
	"github.com/isometry/waha-pipeline/internal/gateway"
	"github.com/isometry/waha-pipeline/internal/resource"
	"github.com/isometry/waha-pipeline/internal/runtime"
	"github.com/isometry/waha-pipeline/internal/tunnel"
	"github.com/isometry/waha-pipeline/internal/validation"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logger.With("mode", "serve")
		logger.Info("Spawning...")

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Debug("Creating gateway client...")
		client, err := gateway.NewClient(config.Gateway.URL,
			gateway.WithAPIKey(config.Gateway.APIKey),
			gateway.WithHTTPClient(&http.Client{Timeout: config.Gateway.Timeout}),
			gateway.WithLogger(logger.With("component", "gateway-client")))
		if err != nil {
			return err
		}

		logger.Debug("Creating resource manager...")
		store := cache.New(config.Cache.TTL, config.Cache.MaxEntries, cache.WithEnabled(config.Cache.Enabled))
		resources := resource.NewManager(store,
			resource.WithPruneInterval(config.Cache.PruneInterval),
			resource.WithLogger(logger.With("component", "resource-manager")))
		resources.Register(
			resource.NewChatsOverviewProducer(client, config.Gateway.Session),
			resource.NewChatMessagesProducer(client, config.Gateway.Session))
		go resources.Run(ctx)

		secret := validation.NewWebhookSecret(config.Webhook.Secret)
		if config.Webhook.Enabled && !secret.Enabled() {
			logger.Warn("webhook signature verification is DISABLED: no secret configured")
		}

		logger.Debug("Creating dispatcher...")
		emitter := dispatch.NewWriterEmitter(os.Stdout)
		dispatcher := dispatch.NewDispatcher(
			dispatch.WithLogger(logger.With("component", "dispatcher")))
		dispatcher.Register(
			dispatch.NewMessageHandler(emitter, dispatch.WithHandlerLogger(logger)),
			dispatch.NewAckHandler(emitter, dispatch.WithHandlerLogger(logger)),
			dispatch.NewStateHandler(emitter, dispatch.WithHandlerLogger(logger)))

		logger.Debug("Creating runtime...")
		runtimeOpts := []runtime.Option{
			runtime.WithLogger(logger.With("component", "runtime")),
			runtime.WithDispatchTimeout(config.Webhook.DispatchTimeout),
			runtime.WithMaxBodyBytes(config.Webhook.MaxBodyBytes),
			runtime.WithResources(resources),
		}
		if config.Webhook.RateLimit > 0 {
			runtimeOpts = append(runtimeOpts,
				runtime.WithRateLimiter(runtime.NewIPRateLimiter(rate.Limit(config.Webhook.RateLimit), config.Webhook.RateBurst)))
		}
		rt := runtime.NewRuntime(secret, dispatcher, runtimeOpts...)

		webhookPath := config.Webhook.Path
		if !config.Webhook.Enabled {
			logger.Info("webhook pipeline disabled; serving resource reads only")
			webhookPath = ""
		}

		server := &http.Server{
			Handler:      rt.Mux(webhookPath),
			Addr:         net.JoinHostPort(config.Webhook.Addr, config.Webhook.Port),
			WriteTimeout: config.Webhook.Timeout,
			ReadTimeout:  config.Webhook.Timeout,
			IdleTimeout:  config.Webhook.Timeout,
		}

		// Tunnel failure aborts webhook registration only: the listener and
		// the resource read path keep running without a public endpoint.
		if config.Webhook.Enabled && config.Tunnel.Enabled {
			manager, startErr := startTunnel(ctx, client, secret)
			if startErr != nil {
				logger.Error("tunnel startup failed; continuing without webhooks", slog.Any("error", startErr))
			} else {
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if stopErr := manager.Stop(stopCtx); stopErr != nil {
						logger.Warn("failed to release tunnel", slog.Any("error", stopErr))
					}
				}()
			}
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Serving...", "address", server.Addr, "path", config.Webhook.Path, "timeout", config.Webhook.Timeout.String())
			errCh <- server.ListenAndServe()
		}()

		select {
		case err = <-errCh:
			return err
		case <-ctx.Done():
			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	},
}

// startTunnel acquires a public URL and points the gateway's webhook target at
// it. Any failure propagates so the caller can disable webhook functionality.
func startTunnel(ctx context.Context, client *gateway.Client, secret *validation.WebhookSecret) (*tunnel.Manager, error) {
	provider, err := tunnel.NewAgentProvider(config.Tunnel.ProviderURL,
		tunnel.WithAuthToken(config.Tunnel.AuthToken),
		tunnel.WithAgentLogger(logger.With("component", "tunnel-provider")))
	if err != nil {
		return nil, err
	}
	manager := tunnel.NewManager(provider,
		tunnel.WithLogger(logger.With("component", "tunnel-manager")))

	publicURL, err := manager.Start(ctx, config.Webhook.Port)
	if err != nil {
		return nil, err
	}

	registration := gateway.WebhookRegistration{
		Session: config.Gateway.Session,
		URL:     publicURL + config.Webhook.Path,
		Events:  config.Webhook.Events,
	}
	if secret.Enabled() {
		registration.Secret = config.Webhook.Secret
	}
	if err = client.RegisterWebhook(ctx, registration); err != nil {
		// A registered tunnel with no gateway pointing at it is useless.
		if stopErr := manager.Stop(ctx); stopErr != nil {
			logger.Warn("failed to release tunnel after registration failure", slog.Any("error", stopErr))
		}
		return nil, err
	}
	return manager, nil
}
