// Package conn owns one physical WebSocket to a single remote endpoint: its
// bounded outbound queue, send and receive loops, and lifecycle state
// machine. Connections never block each other; the only contact points with
// the rest of the system are Enqueue and the inbound callback.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dayuer/botlink-go/internal/content"
	"github.com/dayuer/botlink-go/internal/frame"
)

// Transport errors surfaced to callers of Enqueue / Dial. QueueFull is an
// expected backpressure signal, not an exceptional condition.
var (
	ErrQueueFull      = errors.New("outbound queue full")
	ErrNotConnected   = errors.New("not connected")
	ErrConnectTimeout = errors.New("connect timeout")
)

// Handshake headers presented by the client on connect.
const (
	HeaderAPIKey   = "X-API-Key"
	HeaderPlatform = "X-Platform"
)

const (
	DefaultQueueSize         = 64
	DefaultReconnectAttempts = 5

	defaultWriteTimeout   = 10 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 60 * time.Second
	defaultReconnectBase  = time.Second
	reconnectDelayCap     = 30 * time.Second
)

// EnvelopeHandler receives every successfully decoded inbound envelope,
// together with the RoutingKey of the connection it arrived on.
type EnvelopeHandler func(key frame.RoutingKey, env frame.Envelope)

// StateHandler receives lifecycle transitions. A CLOSED notification after
// RECONNECTING means the reconnect budget was exhausted (connection lost).
type StateHandler func(key frame.RoutingKey, state State)

// Config holds per-connection settings. Zero values get defaults.
type Config struct {
	Key   frame.RoutingKey
	URL   string // client role: ws:// or wss:// dial target
	Token string // optional bearer token presented on handshake

	QueueSize       int
	MaxForwardDepth int

	WriteTimeout   time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// ReconnectAttempts bounds the client-side reconnect budget per outage;
	// negative disables reconnection entirely. Backoff doubles from
	// ReconnectBase up to 30s.
	ReconnectAttempts int
	ReconnectBase     time.Duration

	OnEnvelope EnvelopeHandler
	OnState    StateHandler
}

func withDefaults(cfg Config) Config {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxForwardDepth <= 0 {
		cfg.MaxForwardDepth = content.DefaultMaxForwardDepth
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = DefaultReconnectAttempts
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	return cfg
}

// wsConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket does NOT support concurrent writes.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) WriteTextSafe(data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) WriteCloseSafe(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text))
}

// session is one physical socket attachment. A client Connection may go
// through several sessions across reconnects; the outbound queue survives
// them.
type session struct {
	ws   *wsConn
	done chan struct{}
	once sync.Once
}

// Connection is one duplex channel to a single remote endpoint.
type Connection struct {
	cfg  Config
	key  frame.RoutingKey
	role Role

	state    atomic.Int32
	outbound chan []byte

	sessMu sync.Mutex
	sess   *session

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(cfg Config, role Role) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		cfg:      cfg,
		key:      cfg.Key,
		role:     role,
		outbound: make(chan []byte, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// Dial establishes a client connection, presenting the RoutingKey (and
// optional bearer token) during the handshake. The handshake is bounded by
// cfg.ConnectTimeout and by ctx; on expiry Dial fails with ErrConnectTimeout.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	cfg = withDefaults(cfg)
	c := newConnection(cfg, RoleClient)
	c.setState(StateConnecting)

	raw, err := dialWS(ctx, cfg)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return nil, err
	}
	c.attach(raw)
	log.Printf("[Conn] 🔗 Connected %s → %s", cfg.Key, cfg.URL)
	return c, nil
}

// Accept wraps an already-upgraded server-side socket. Accepted connections
// never reconnect; transport loss closes them.
func Accept(raw *websocket.Conn, cfg Config) *Connection {
	cfg = withDefaults(cfg)
	c := newConnection(cfg, RoleServer)
	c.attach(raw)
	return c
}

func dialWS(ctx context.Context, cfg Config) (*websocket.Conn, error) {
	hdr := http.Header{}
	hdr.Set(HeaderAPIKey, cfg.Key.APIKey)
	hdr.Set(HeaderPlatform, cfg.Key.Platform)
	if cfg.Token != "" {
		hdr.Set("Authorization", "Bearer "+cfg.Token)
	}

	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	raw, resp, err := websocket.DefaultDialer.DialContext(dctx, cfg.URL, hdr)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if dctx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, cfg.URL)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	return raw, nil
}

// attach binds a socket and starts the send and receive loops for it.
func (c *Connection) attach(raw *websocket.Conn) {
	s := &session{ws: &wsConn{Conn: raw}, done: make(chan struct{})}
	c.sessMu.Lock()
	c.sess = s
	c.sessMu.Unlock()

	c.setState(StateConnected)
	go c.sendLoop(s)
	go c.receiveLoop(s)
}

func (c *Connection) session() *session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.sess
}

// Key returns the RoutingKey this connection serves.
func (c *Connection) Key() frame.RoutingKey { return c.key }

// Role returns whether this connection was dialed or accepted.
func (c *Connection) Role() Role { return c.role }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// QueueLen returns the number of frames waiting in the outbound queue.
func (c *Connection) QueueLen() int { return len(c.outbound) }

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
	c.notify(s)
}

func (c *Connection) notify(s State) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(c.key, s)
	}
}

// Enqueue encodes the envelope and appends it to the bounded outbound queue.
// Frames enqueued on the same connection reach the wire in enqueue order.
// Fails with ErrNotConnected unless the state is CONNECTED and with
// ErrQueueFull when the queue is at capacity; the caller decides whether to
// drop, retry, or push back upstream.
func (c *Connection) Enqueue(env frame.Envelope) error {
	if st := c.State(); st != StateConnected {
		return fmt.Errorf("%w: %s is %s", ErrNotConnected, c.key, st)
	}
	data, err := frame.Encode(env)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		return fmt.Errorf("%w: %s (capacity %d)", ErrQueueFull, c.key, cap(c.outbound))
	}
}

// Ping sends a WebSocket-level ping (used by the server heartbeat).
func (c *Connection) Ping() error {
	s := c.session()
	if s == nil || c.State() != StateConnected {
		return ErrNotConnected
	}
	return s.ws.WritePing()
}

// Drain blocks until the outbound queue is empty or the timeout elapses.
// Returns whether the queue drained.
func (c *Connection) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(c.outbound) == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return len(c.outbound) == 0
}

// Close tears the connection down: no further sends, both loops cancelled,
// any pending handshake or backoff timer aborted. Idempotent.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.cancel()
		if s := c.session(); s != nil {
			s.ws.WriteCloseSafe(websocket.CloseNormalClosure, "connection closed")
			c.teardown(s)
		}
		c.state.Store(int32(StateClosed))
		c.notify(StateClosed)
		log.Printf("[Conn] 🔌 Closed %s", c.key)
	})
}

func (c *Connection) teardown(s *session) {
	s.once.Do(func() {
		close(s.done)
		s.ws.Close()
	})
}

// sessionFailed handles a transport-level failure from either loop. The
// state CAS ensures exactly one loop drives the RECONNECTING/CLOSED
// transition even when both fail at once.
func (c *Connection) sessionFailed(s *session, err error) {
	c.teardown(s)

	if c.role == RoleClient && c.cfg.ReconnectAttempts > 0 {
		if c.state.CompareAndSwap(int32(StateConnected), int32(StateReconnecting)) {
			log.Printf("[Conn] ⚠️ Transport lost on %s: %v — reconnecting", c.key, err)
			c.notify(StateReconnecting)
			go c.reconnectLoop()
		}
		return
	}

	if c.state.CompareAndSwap(int32(StateConnected), int32(StateClosed)) {
		log.Printf("[Conn] 🔌 Transport lost on %s: %v", c.key, err)
		c.notify(StateClosed)
	}
}

// reconnectLoop redials with bounded exponential backoff. Exhausting the
// budget finalizes the connection as CLOSED (connection lost).
func (c *Connection) reconnectLoop() {
	delay := c.cfg.ReconnectBase
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		c.state.Store(int32(StateConnecting))
		raw, err := dialWS(c.ctx, c.cfg)
		if err == nil {
			if c.ctx.Err() != nil {
				raw.Close()
				return
			}
			log.Printf("[Conn] 🔗 Reconnected %s (attempt %d)", c.key, attempt)
			c.attach(raw)
			return
		}

		log.Printf("[Conn] ⚠️ Reconnect %s attempt %d/%d failed: %v",
			c.key, attempt, c.cfg.ReconnectAttempts, err)
		c.state.Store(int32(StateReconnecting))

		delay *= 2
		if delay > reconnectDelayCap {
			delay = reconnectDelayCap
		}
	}

	if c.state.CompareAndSwap(int32(StateReconnecting), int32(StateClosed)) {
		log.Printf("[Conn] ⛔ Reconnect budget exhausted for %s", c.key)
		c.notify(StateClosed)
	}
}

// sendLoop drains the outbound queue strictly in FIFO order.
func (c *Connection) sendLoop(s *session) {
	for {
		select {
		case <-s.done:
			return
		case <-c.ctx.Done():
			return
		case data := <-c.outbound:
			if err := s.ws.WriteTextSafe(data, c.cfg.WriteTimeout); err != nil {
				c.sessionFailed(s, fmt.Errorf("write: %w", err))
				return
			}
		}
	}
}

// receiveLoop reads frames, decodes them, and hands envelopes to the inbound
// callback. A malformed frame is logged and dropped; it never terminates the
// connection. Dispatch happens on this connection's own goroutine, so a slow
// handler here cannot starve another connection's receive loop.
func (c *Connection) receiveLoop(s *session) {
	s.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Conn] ⚠️ Read error on %s: %v", c.key, err)
			}
			c.sessionFailed(s, fmt.Errorf("read: %w", err))
			return
		}

		// Any frame counts as liveness.
		s.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		env, err := frame.Decode(data, c.cfg.MaxForwardDepth)
		if err != nil {
			log.Printf("[Conn] ⚠️ Dropping bad frame on %s: %v", c.key, err)
			continue
		}
		if c.cfg.OnEnvelope != nil {
			c.cfg.OnEnvelope(c.key, env)
		}
	}
}
