// Package router is the public send/receive surface of the transport layer.
//
// A Router manages many connections under one registry: outbound sends pick
// (or lazily establish) the connection for a routing key, inbound envelopes
// fan out to registered handlers together with the key of the connection
// they arrived on. Platform adapters and the process supervisor talk to the
// transport exclusively through this type.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dayuer/botlink-go/internal/conn"
	"github.com/dayuer/botlink-go/internal/content"
	"github.com/dayuer/botlink-go/internal/frame"
	"github.com/dayuer/botlink-go/internal/registry"
)

// ErrNoRoute means no connection exists for the target and none could be
// established.
var ErrNoRoute = errors.New("no route to target")

// Mode selects how many outbound connections a Router manages.
type Mode int

const (
	// ModeMulti allows one connection per distinct target.
	ModeMulti Mode = iota
	// ModeSingle pins the Router to exactly one target; Send validates the
	// target argument but always routes to the pinned connection.
	ModeSingle
)

// MessageHandler receives standard envelopes with the RoutingKey of the
// originating connection, so replies can be addressed back directly.
type MessageHandler func(key frame.RoutingKey, env frame.Envelope)

// CustomHandler receives the opaque payload of custom frames.
type CustomHandler func(key frame.RoutingKey, payload map[string]any)

// TargetResolver supplies connection parameters (URL, token, queue sizing)
// for a routing key, or false when the key is unknown.
type TargetResolver func(key frame.RoutingKey) (conn.Config, bool)

// Config configures a Router.
type Config struct {
	Mode         Mode
	SingleTarget frame.RoutingKey // required in ModeSingle

	// Targets enables client mode: unknown keys get dialed lazily on first
	// send. Nil means the Router only routes over externally registered
	// (server-accepted) connections.
	Targets TargetResolver

	MaxForwardDepth int
	ConnectTimeout  time.Duration // bounds the lazy dial inside Send
	DrainTimeout    time.Duration // Stop() waits this long per queue
	FlushGrace      time.Duration // supersede flush grace
}

// Router routes outbound envelopes and dispatches inbound ones.
type Router struct {
	cfg Config
	reg *registry.Registry

	mu         sync.RWMutex
	onMessage  []MessageHandler
	onCustom   []CustomHandler
	stateHooks []conn.StateHandler
}

// New creates a Router and its registry.
func New(cfg Config) *Router {
	if cfg.MaxForwardDepth <= 0 {
		cfg.MaxForwardDepth = content.DefaultMaxForwardDepth
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}

	r := &Router{cfg: cfg}

	var dialer registry.Dialer
	if cfg.Targets != nil {
		dialer = r.dial
	}
	r.reg = registry.New(registry.Config{
		Dialer:     dialer,
		FlushGrace: cfg.FlushGrace,
	})
	return r
}

// Registry exposes the underlying registry so the accepting server can
// register inbound connections.
func (r *Router) Registry() *registry.Registry { return r.reg }

// OnMessage registers a handler for standard envelopes.
func (r *Router) OnMessage(h MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMessage = append(r.onMessage, h)
}

// OnCustomMessage registers a handler for custom control frames.
func (r *Router) OnCustomMessage(h CustomHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCustom = append(r.onCustom, h)
}

// OnConnectionState registers a hook for lifecycle transitions of every
// managed connection. The process supervisor uses this for health reporting.
func (r *Router) OnConnectionState(h conn.StateHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateHooks = append(r.stateHooks, h)
}

// Send wraps a reply set in an envelope and enqueues it on the connection
// for target, dialing lazily in client mode. Transport failures (QueueFull,
// NotConnected, ConnectTimeout) propagate unchanged; an unroutable target
// fails with ErrNoRoute.
func (r *Router) Send(target frame.RoutingKey, set content.ReplySet) error {
	if err := set.Validate(r.cfg.MaxForwardDepth); err != nil {
		return err
	}
	key, err := r.routeKey(target)
	if err != nil {
		return err
	}
	return r.enqueue(key, frame.NewEnvelope(key, set))
}

// SendCustom sends an opaque control payload to target.
func (r *Router) SendCustom(target frame.RoutingKey, payload map[string]any) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty custom payload")
	}
	key, err := r.routeKey(target)
	if err != nil {
		return err
	}
	return r.enqueue(key, frame.NewCustomEnvelope(key, payload))
}

func (r *Router) routeKey(target frame.RoutingKey) (frame.RoutingKey, error) {
	if target.IsZero() {
		return frame.RoutingKey{}, fmt.Errorf("%w: empty target", ErrNoRoute)
	}
	if r.cfg.Mode == ModeSingle {
		return r.cfg.SingleTarget, nil
	}
	return target, nil
}

func (r *Router) enqueue(key frame.RoutingKey, env frame.Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ConnectTimeout)
	defer cancel()

	c, err := r.reg.Resolve(ctx, key)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoRoute, key)
		}
		return err
	}
	return c.Enqueue(env)
}

// dial is the registry's lazy dialer in client mode.
func (r *Router) dial(ctx context.Context, key frame.RoutingKey) (*conn.Connection, error) {
	ccfg, ok := r.cfg.Targets(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, key)
	}
	ccfg.Key = key
	if ccfg.MaxForwardDepth <= 0 {
		ccfg.MaxForwardDepth = r.cfg.MaxForwardDepth
	}
	ccfg.OnEnvelope = r.HandleEnvelope
	ccfg.OnState = r.HandleState
	return conn.Dial(ctx, ccfg)
}

// HandleEnvelope dispatches one decoded inbound envelope. It runs on the
// originating connection's receive goroutine, so a slow handler only stalls
// its own connection. Exposed so the accepting server can wire inbound
// connections to the same dispatch path.
func (r *Router) HandleEnvelope(key frame.RoutingKey, env frame.Envelope) {
	r.mu.RLock()
	msgs := r.onMessage
	customs := r.onCustom
	r.mu.RUnlock()

	switch env.Kind {
	case frame.KindStandard:
		for _, h := range msgs {
			h(key, env)
		}
	case frame.KindCustom:
		for _, h := range customs {
			h(key, env.Custom)
		}
	}
}

// HandleState forwards lifecycle transitions to supervisor hooks and evicts
// CLOSED connections from the registry.
func (r *Router) HandleState(key frame.RoutingKey, st conn.State) {
	if st == conn.StateClosed {
		r.reg.Unregister(key, nil)
	}

	r.mu.RLock()
	hooks := r.stateHooks
	r.mu.RUnlock()
	for _, h := range hooks {
		h(key, st)
	}
}

// Stop closes every managed connection, waiting up to DrainTimeout for
// outbound queues to drain before forcing closure.
func (r *Router) Stop() {
	log.Printf("[Router] ⛔ Stopping (%d connections)", r.reg.Len())
	r.reg.CloseAll(r.cfg.DrainTimeout)
}
