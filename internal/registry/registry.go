// Package registry owns the RoutingKey → Connection map: the single source
// of truth for "is there a live channel to X".
//
// Server-style registries are populated by the handshake; client-style
// registries carry a Dialer and lazily establish outbound connections on
// first resolve. All map access happens under one registry-wide mutex;
// connection I/O never runs under that lock.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dayuer/botlink-go/internal/conn"
	"github.com/dayuer/botlink-go/internal/frame"
)

// ErrNotFound means no connection exists for the key and none can be
// established (no dialer, or no parameters for that key).
var ErrNotFound = errors.New("no connection for routing key")

// DefaultFlushGrace is how long a superseded connection gets to flush its
// outbound queue before being closed.
const DefaultFlushGrace = 2 * time.Second

// Dialer lazily establishes an outbound connection for a key. It returns
// ErrNotFound (wrapped) when it has no connection parameters for the key.
type Dialer func(ctx context.Context, key frame.RoutingKey) (*conn.Connection, error)

// Config configures a Registry.
type Config struct {
	Dialer     Dialer        // nil for server-style registries
	FlushGrace time.Duration // supersede flush grace (default 2s)
}

// Registry maps routing keys to live connections.
type Registry struct {
	mu         sync.Mutex
	conns      map[frame.RoutingKey]*conn.Connection
	dialer     Dialer
	flushGrace time.Duration
}

// New creates a registry.
func New(cfg Config) *Registry {
	if cfg.FlushGrace <= 0 {
		cfg.FlushGrace = DefaultFlushGrace
	}
	return &Registry{
		conns:      make(map[frame.RoutingKey]*conn.Connection),
		dialer:     cfg.Dialer,
		flushGrace: cfg.FlushGrace,
	}
}

// Resolve returns the live connection for key. With a dialer configured it
// lazily establishes one; the dial happens outside the registry lock, and
// the caller's ctx bounds the handshake.
func (r *Registry) Resolve(ctx context.Context, key frame.RoutingKey) (*conn.Connection, error) {
	r.mu.Lock()
	c := r.conns[key]
	r.mu.Unlock()

	if c != nil && c.State() != conn.StateClosed {
		return c, nil
	}
	if r.dialer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	nc, err := r.dialer(ctx, key)
	if err != nil {
		return nil, err
	}
	r.Register(key, nc)
	return nc, nil
}

// Register maps key to c. Two connections never share a key: a duplicate
// registration supersedes the prior connection (last-registration-wins),
// which gets the flush grace to drain its queue and is then closed — any
// in-flight sends on the stale handle fail fast with NotConnected.
func (r *Registry) Register(key frame.RoutingKey, c *conn.Connection) {
	r.mu.Lock()
	prior := r.conns[key]
	r.conns[key] = c
	r.mu.Unlock()

	if prior != nil && prior != c {
		log.Printf("[Registry] 🔄 Superseding connection for %s", key)
		go func() {
			prior.Drain(r.flushGrace)
			prior.Close()
		}()
	}
	log.Printf("[Registry] ✅ Registered %s", key)
}

// Unregister removes the mapping for key. When c is non-nil the mapping is
// only removed if it still points at c; when c is nil only a CLOSED mapping
// is removed. Either way a CLOSED notification from a superseded connection
// cannot evict its replacement.
func (r *Registry) Unregister(key frame.RoutingKey, c *conn.Connection) {
	r.mu.Lock()
	cur, ok := r.conns[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	if c != nil && cur != c {
		r.mu.Unlock()
		return
	}
	if c == nil && cur.State() != conn.StateClosed {
		r.mu.Unlock()
		return
	}
	delete(r.conns, key)
	r.mu.Unlock()
	log.Printf("[Registry] 🗑️ Unregistered %s", key)
}

// Get returns the connection for key without dialing, or nil.
func (r *Registry) Get(key frame.RoutingKey) *conn.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[key]
}

// Keys returns the currently registered routing keys.
func (r *Registry) Keys() []frame.RoutingKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]frame.RoutingKey, 0, len(r.conns))
	for k := range r.conns {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Each calls fn for every registered connection, outside the lock.
func (r *Registry) Each(fn func(key frame.RoutingKey, c *conn.Connection)) {
	r.mu.Lock()
	snapshot := make(map[frame.RoutingKey]*conn.Connection, len(r.conns))
	for k, c := range r.conns {
		snapshot[k] = c
	}
	r.mu.Unlock()

	for k, c := range snapshot {
		fn(k, c)
	}
}

// CloseAll drains every connection (bounded by timeout, shared across all)
// and closes them. Used on shutdown.
func (r *Registry) CloseAll(timeout time.Duration) {
	var wg sync.WaitGroup
	r.Each(func(key frame.RoutingKey, c *conn.Connection) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Drain(timeout)
			c.Close()
		}()
	})
	wg.Wait()

	r.mu.Lock()
	r.conns = make(map[frame.RoutingKey]*conn.Connection)
	r.mu.Unlock()
}
