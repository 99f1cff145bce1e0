// Package protocol turns raw resource paths into canonical, version-stamped
// paths through per-protocol clients.
package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rawsql/internal/domain"
)

// Factory constructs the client for one protocol on behalf of an owner. It may
// perform a remote handshake such as a token exchange.
type Factory func(ctx context.Context, ownerID string) (domain.ProtocolClient, error)

// Registry maps protocol names to client factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for protocol.
func (r *Registry) Register(protocol string, f Factory) {
	r.factories[protocol] = f
}

// Protocols returns the registered protocol names in sorted order.
func (r *Registry) Protocols() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) factory(protocol string) (Factory, bool) {
	f, ok := r.factories[protocol]
	return f, ok
}

// handshakeTimeout bounds client construction, which runs detached from the
// caller that started it so other callers sharing the flight are unaffected by
// its cancellation.
const handshakeTimeout = 30 * time.Second

type cacheKey struct {
	protocol string
	ownerID  string
}

// ClientCache holds at most one client per protocol and owner. Clients are
// built lazily on first use and kept for the lifetime of the cache. Concurrent
// first requests for the same key share one construction.
type ClientCache struct {
	registry *Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	entries  map[cacheKey]domain.ProtocolClient
	inflight singleflight.Group
}

// NewClientCache creates a ClientCache backed by registry.
func NewClientCache(registry *Registry, logger *slog.Logger) *ClientCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ClientCache{
		registry: registry,
		logger:   logger,
		entries:  make(map[cacheKey]domain.ProtocolClient),
	}
}

// Client returns the cached client for protocol, constructing it if needed.
// Construction failures are not cached.
func (c *ClientCache) Client(ctx context.Context, protocol, ownerID string) (domain.ProtocolClient, error) {
	key := cacheKey{protocol: protocol, ownerID: ownerID}

	c.mu.RLock()
	if client, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return client, nil
	}
	c.mu.RUnlock()

	factory, ok := c.registry.factory(protocol)
	if !ok {
		return nil, domain.ErrUnsupportedProtocol(protocol)
	}

	v, err, _ := c.inflight.Do(protocol+"\x00"+ownerID, func() (interface{}, error) {
		// Double-check: a previous flight may have stored the client.
		c.mu.RLock()
		if client, ok := c.entries[key]; ok {
			c.mu.RUnlock()
			return client, nil
		}
		c.mu.RUnlock()

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handshakeTimeout)
		defer cancel()

		client, err := factory(hctx, ownerID)
		if err != nil {
			return nil, asProtocolError(protocol, err)
		}

		c.mu.Lock()
		c.entries[key] = client
		c.mu.Unlock()

		c.logger.Info("protocol client created", "protocol", protocol, "owner_id", ownerID)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.ProtocolClient), nil
}

// Resolve returns the canonical path of path under protocol.
func (c *ClientCache) Resolve(ctx context.Context, protocol, path, ownerID string) (string, error) {
	client, err := c.Client(ctx, protocol, ownerID)
	if err != nil {
		return "", err
	}
	full, err := client.FullPath(ctx, path)
	if err != nil {
		return "", asProtocolError(protocol, err)
	}
	return full, nil
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// asProtocolError keeps RewriteErrors as they are and wraps anything else as a
// Protocol error.
func asProtocolError(protocol string, err error) error {
	var rerr *domain.RewriteError
	if errors.As(err, &rerr) {
		return err
	}
	return domain.ErrProtocol(protocol, err)
}
