// Package tunnel manages the lifecycle of the public URL that exposes the
// local webhook listener through an external tunnel provider.
package tunnel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/isometry/waha-pipeline/internal/helpers"
	"github.com/pkg/errors"
)

// Provider binds a public URL to a local port. Implementations wrap an
// external tunnel service; the pipeline owns at most one live tunnel.
type Provider interface {
	Open(ctx context.Context, port string) (string, error)
	Close(ctx context.Context) error
}

// Option is a function that applies an option to a Manager.
type Option func(*Manager)

// WithLogger sets the logger instance for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager holds the process-wide tunnel handle. Start and Stop are serialized
// behind a single mutex, including the provider calls themselves, so a Stop
// racing a Start resolves deterministically: whichever runs second determines
// the final state.
type Manager struct {
	logger   *slog.Logger
	provider Provider

	mu        sync.Mutex
	publicURL string
	active    bool
}

// NewManager creates a tunnel manager backed by the given provider.
func NewManager(provider Provider, opts ...Option) *Manager {
	_inst := &Manager{logger: helpers.NewNoopLogger(), provider: provider}
	for _, opt := range opts {
		opt(_inst)
	}
	return _inst
}

// Start acquires a public URL for the given local port. Calling Start while a
// tunnel is already active is a no-op returning the existing URL. A provider
// failure propagates: the caller is expected to disable the pipeline rather
// than run with a broken public endpoint.
func (m *Manager) Start(ctx context.Context, port string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		m.logger.Debug("tunnel already active", slog.String("publicUrl", m.publicURL))
		return m.publicURL, nil
	}

	publicURL, err := m.provider.Open(ctx, port)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open tunnel for port %s", port)
	}
	m.publicURL = publicURL
	m.active = true
	m.logger.Info("tunnel established", slog.String("publicUrl", publicURL), slog.String("port", port))
	return publicURL, nil
}

// Stop releases the tunnel and clears the retained handle. Stopping an
// inactive manager is a no-op. The handle is cleared even when the provider
// reports a release error.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return nil
	}
	err := m.provider.Close(ctx)
	m.publicURL = ""
	m.active = false
	if err != nil {
		return errors.Wrap(err, "failed to release tunnel")
	}
	m.logger.Info("tunnel released")
	return nil
}

// PublicURL returns the active public URL, or the empty string when inactive.
// It may be read repeatedly for diagnostics.
func (m *Manager) PublicURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return ""
	}
	return m.publicURL
}

// Active reports whether a tunnel is currently established.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
