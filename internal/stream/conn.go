package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// defaultReconnectDelay is the first pause before redialling.
	defaultReconnectDelay = 5 * time.Second

	// defaultMaxReconnectDelay caps the backoff between failed dials.
	defaultMaxReconnectDelay = 2 * time.Minute

	// defaultHandshakeTimeout bounds the websocket upgrade.
	defaultHandshakeTimeout = 10 * time.Second

	// controlWriteWait bounds ping and close frame writes.
	controlWriteWait = 5 * time.Second

	// backoffFactor multiplies the delay after each failed dial.
	backoffFactor = 1.5
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Config holds the stream connection settings.
type Config struct {
	// URL is the websocket endpoint (wss://...).
	URL string

	AuthToken       string
	ClientAuthToken string

	// ReconnectOnError redials after an abnormal closure instead of
	// returning ErrStreamClosed.
	ReconnectOnError bool

	// ReconnectDelay is the pause before the first redial (default 5s).
	// Consecutive dial failures grow it by 1.5x up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// PingInterval sends keepalive pings. Zero disables pings.
	PingInterval time.Duration

	HandshakeTimeout time.Duration
}

// Handler processes one inbound message. A returned error is logged and
// counted; it does not stop the loop.
type Handler func(msg []byte) error

// Logger defines the logging interface used by the connection.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats holds connection counters.
type Stats struct {
	MessagesRx    uint64
	HandlerErrors uint64
	DialFailures  uint64
	Reconnects    uint64
	LastMessage   time.Time
	Connected     bool
}

// Conn is a reconnecting websocket client for the push endpoint.
//
// Thread Safety:
//   - Close, IsConnected, Stats and the setters are safe to call from any
//     goroutine while Listen runs.
type Conn struct {
	cfg    Config
	dialer *websocket.Dialer

	connMu    sync.RWMutex
	ws        *websocket.Conn
	connected bool

	done      *closeOnce
	listening atomic.Bool

	cbMu         sync.RWMutex
	onConnect    func(reconnect bool)
	onDisconnect func(err error)

	loggerMu sync.RWMutex
	logger   Logger

	messagesRx    atomic.Uint64
	handlerErrors atomic.Uint64
	dialFailures  atomic.Uint64
	reconnects    atomic.Uint64
	lastMessage   atomic.Int64
}

// New creates a Conn. Nothing is dialled until Listen is called.
func New(cfg Config) *Conn {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	return &Conn{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		done:   newCloseOnce(),
		logger: noopLogger{},
	}
}

// SetLogger sets the connection logger.
func (c *Conn) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetOnConnect registers a callback run after every successful dial.
// reconnect is false for the first connection of a Listen call.
func (c *Conn) SetOnConnect(fn func(reconnect bool)) {
	c.cbMu.Lock()
	c.onConnect = fn
	c.cbMu.Unlock()
}

// SetOnDisconnect registers a callback run when an established connection drops.
func (c *Conn) SetOnDisconnect(fn func(err error)) {
	c.cbMu.Lock()
	c.onDisconnect = fn
	c.cbMu.Unlock()
}

// headers returns the authentication headers sent with the upgrade request.
func (c *Conn) headers() http.Header {
	h := http.Header{}
	h.Set("AUTHTOKEN", c.cfg.AuthToken)
	h.Set("CLIENTAUTH", c.cfg.ClientAuthToken)
	return h
}

// Listen connects and delivers messages to handler until Close is called,
// ctx is cancelled, or a fatal condition occurs. It returns nil on a
// caller-initiated stop.
func (c *Conn) Listen(ctx context.Context, handler Handler) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	if !c.listening.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}
	defer c.listening.Store(false)

	stop := context.AfterFunc(ctx, c.shutdown)
	defer stop()

	delay := c.cfg.ReconnectDelay
	first := true

	for {
		ws, err := c.dial(ctx)
		if err != nil {
			if c.stopped(ctx) {
				return nil
			}
			if errors.Is(err, ErrAuthentication) {
				c.logError("stream handshake rejected", err)
				return err
			}
			c.dialFailures.Add(1)
			if !c.cfg.ReconnectOnError {
				return fmt.Errorf("%w: %w", ErrStreamClosed, err)
			}
			c.logWarn("stream dial failed", "error", err, "retry_in", delay.String())
			if !c.wait(delay) {
				return nil
			}
			delay = nextDelay(delay, c.cfg.MaxReconnectDelay)
			continue
		}

		if !first {
			c.reconnects.Add(1)
		}
		c.markConnected(ws, !first)
		first = false
		delay = c.cfg.ReconnectDelay

		readErr := c.receive(ws, handler)
		c.markDisconnected(ws, readErr)

		if c.stopped(ctx) {
			return nil
		}
		if !c.cfg.ReconnectOnError {
			return fmt.Errorf("%w: %w", ErrStreamClosed, readErr)
		}

		c.logWarn("stream connection lost, reconnecting", "error", readErr, "retry_in", c.cfg.ReconnectDelay.String())
		if !c.wait(c.cfg.ReconnectDelay) {
			return nil
		}
	}
}

// dial performs one websocket handshake.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.headers())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return ws, nil
}

// receive reads messages until the socket fails. Each message is handled
// before the next read.
func (c *Conn) receive(ws *websocket.Conn, handler Handler) error {
	pingDone := make(chan struct{})
	defer close(pingDone)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(ws, pingDone)
	}

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		c.messagesRx.Add(1)
		c.lastMessage.Store(time.Now().UnixNano())

		if err := handler(msg); err != nil {
			c.handlerErrors.Add(1)
			c.logWarn("stream handler failed", "error", err)
		}
	}
}

// pingLoop sends keepalive pings until done is closed or a write fails.
func (c *Conn) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				c.logWarn("stream ping failed", "error", err)
				ws.Close()
				return
			}
		}
	}
}

func (c *Conn) markConnected(ws *websocket.Conn, reconnect bool) {
	c.connMu.Lock()
	c.ws = ws
	c.connected = true
	c.connMu.Unlock()

	// Close may have raced the dial.
	if c.isClosed() {
		ws.Close()
	}

	c.logInfo("stream connected", "reconnect", reconnect)

	c.cbMu.RLock()
	fn := c.onConnect
	c.cbMu.RUnlock()
	if fn != nil {
		fn(reconnect)
	}
}

func (c *Conn) markDisconnected(ws *websocket.Conn, err error) {
	c.connMu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.connected = false
	c.connMu.Unlock()
	ws.Close()

	c.cbMu.RLock()
	fn := c.onDisconnect
	c.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// wait pauses for d. It returns false if the connection was closed meanwhile.
func (c *Conn) wait(d time.Duration) bool {
	if d <= 0 {
		return !c.isClosed()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextDelay grows d by the backoff factor, capped at limit.
func nextDelay(d, limit time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffFactor)
	if next > limit {
		next = limit
	}
	return next
}

// isClosed returns true once Close has been called.
func (c *Conn) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// stopped reports whether the caller asked the loop to end.
func (c *Conn) stopped(ctx context.Context) bool {
	return c.isClosed() || ctx.Err() != nil
}

// shutdown stops the loop and closes the socket with a close frame.
func (c *Conn) shutdown() {
	c.done.Close()

	c.connMu.Lock()
	ws := c.ws
	c.connected = false
	c.connMu.Unlock()

	if ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
		ws.Close()
	}
}

// Close stops Listen without reconnecting. Safe to call multiple times.
func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

// IsConnected reports whether a socket is currently established.
func (c *Conn) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current connection counters.
func (c *Conn) Stats() Stats {
	s := Stats{
		MessagesRx:    c.messagesRx.Load(),
		HandlerErrors: c.handlerErrors.Load(),
		DialFailures:  c.dialFailures.Load(),
		Reconnects:    c.reconnects.Load(),
		Connected:     c.IsConnected(),
	}
	if ns := c.lastMessage.Load(); ns != 0 {
		s.LastMessage = time.Unix(0, ns)
	}
	return s
}

func (c *Conn) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Conn) logInfo(msg string, keysAndValues ...any) {
	c.log().Info(msg, keysAndValues...)
}

func (c *Conn) logWarn(msg string, keysAndValues ...any) {
	c.log().Warn(msg, keysAndValues...)
}

func (c *Conn) logError(msg string, err error) {
	c.log().Error(msg, "error", err)
}
