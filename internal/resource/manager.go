// Package resource maps waha:// URIs to registered producers and serves reads
// through the cache, so repeated requests within the TTL window cost a single
// upstream call.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/isometry/waha-pipeline/internal/cache"
	"github.com/isometry/waha-pipeline/internal/helpers"
	"github.com/pkg/errors"
)

// Producer serves a family of URIs matching its template. Producers are
// expected to call the upstream gateway; the manager shields them behind the
// cache.
type Producer interface {
	Template() string
	Matches(uri string) bool
	Read(ctx context.Context, uri string) ([]byte, error)
}

// NoProducerError is returned when no registered producer matches a URI. Its
// message enumerates every registered template as a diagnostic aid.
type NoProducerError struct {
	URI       string
	Templates []string
}

func (e *NoProducerError) Error() string {
	return fmt.Sprintf("no producer registered for %s (registered: %s)", e.URI, strings.Join(e.Templates, ", "))
}

// Option is a function that applies an option to a Manager.
type Option func(*Manager)

// WithLogger sets the logger instance for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPruneInterval overrides how often Run sweeps expired cache entries.
func WithPruneInterval(interval time.Duration) Option {
	return func(m *Manager) {
		m.pruneInterval = interval
	}
}

// Manager is the registry of resource producers and the cache-first read path.
type Manager struct {
	logger        *slog.Logger
	store         *cache.Cache
	pruneInterval time.Duration

	mu        sync.RWMutex
	producers []Producer
}

// NewManager creates a manager serving reads through the given cache.
func NewManager(store *cache.Cache, opts ...Option) *Manager {
	_inst := &Manager{
		logger:        helpers.NewNoopLogger(),
		store:         store,
		pruneInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(_inst)
	}
	return _inst
}

// Register adds producers to the registry. On a read, the first matching
// producer in registration order wins.
func (m *Manager) Register(producers ...Producer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.producers = append(m.producers, producers...)
}

// Templates returns the templates of all registered producers.
func (m *Manager) Templates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	templates := make([]string, len(m.producers))
	for i, p := range m.producers {
		templates[i] = p.Template()
	}
	return templates
}

// Read serves a resource URI: cache hit returns immediately; on a miss the
// first matching producer is invoked, its result stored, and returned. The
// exact URI string is the cache key.
func (m *Manager) Read(ctx context.Context, uri string) ([]byte, error) {
	if content, ok := m.store.Get(uri); ok {
		cacheHits.Inc()
		m.logger.Debug("resource served from cache", slog.String("uri", uri))
		return content, nil
	}
	cacheMisses.Inc()

	producer := m.match(uri)
	if producer == nil {
		return nil, &NoProducerError{URI: uri, Templates: m.Templates()}
	}

	content, err := producer.Read(ctx, uri)
	if err != nil {
		return nil, errors.Wrapf(err, "producer %s failed", producer.Template())
	}
	m.store.Set(uri, content)
	m.logger.Debug("resource fetched from upstream", slog.String("uri", uri), slog.Int("bytes", len(content)))
	return content, nil
}

// Run sweeps expired cache entries on a fixed interval until ctx is canceled,
// reclaiming memory held by cold entries that no read would touch.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := m.store.PruneExpired(); pruned > 0 {
				cachePruned.Add(float64(pruned))
				m.logger.Debug("pruned expired cache entries", slog.Int("count", pruned))
			}
		}
	}
}

func (m *Manager) match(uri string) Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.producers {
		if p.Matches(uri) {
			return p
		}
	}
	return nil
}
