// Package live maintains the duplex WebSocket to the analysis server that
// carries transcript fragments and scoring signals back to the client.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
)

// State is the connection state observed by the session controller.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNotConnected = errors.New("live channel not connected")
	ErrClosed       = errors.New("live channel closed")
	ErrBusy         = errors.New("live channel connect already in progress")
)

// Config controls dialing and the automatic reconnect policy.
type Config struct {
	URL            string
	Header         http.Header
	MaxReconnects  int
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	EventBuffer    int
}

func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		MaxReconnects:  3,
		ReconnectDelay: 2 * time.Second,
		DialTimeout:    10 * time.Second,
		EventBuffer:    64,
	}
}

// Channel is a reconnecting live update connection. Events and state changes
// are delivered on channels and never block the read loop.
type Channel struct {
	cfg    Config
	dialer *websocket.Dialer

	events chan Update
	states chan State

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	busy   bool
	redial bool // a drop arrived while busy; release starts the reconnect

	writeMu sync.Mutex

	life      context.Context
	stop      context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config) *Channel {
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 1
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	life, stop := context.WithCancel(context.Background())
	return &Channel{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		events: make(chan Update, cfg.EventBuffer),
		states: make(chan State, 16),
		life:   life,
		stop:   stop,
	}
}

func (c *Channel) Events() <-chan Update { return c.events }

func (c *Channel) States() <-chan State { return c.states }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials with the bounded retry policy. On exhaustion the channel
// settles in Error and a retryable channel error is returned.
func (c *Channel) Connect(ctx context.Context) error {
	if !c.claim() {
		return errs.New(errs.KindChannel, "connect", ErrBusy)
	}
	defer c.release()
	return c.connectWithRetry(ctx, c.cfg.MaxReconnects)
}

// Reconnect makes one user-triggered attempt. It is a no-op while connected.
func (c *Channel) Reconnect(ctx context.Context) error {
	if c.State() == Connected {
		return nil
	}
	if !c.claim() {
		return errs.New(errs.KindChannel, "reconnect", ErrBusy)
	}
	defer c.release()
	return c.connectWithRetry(ctx, 1)
}

func (c *Channel) claim() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy || c.closed.Load() {
		return false
	}
	c.busy = true
	return true
}

// release frees the claim, or hands it straight to a reconnect deferred by a
// drop that happened while it was held.
func (c *Channel) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if c.redial && !c.closed.Load() {
		c.redial = false
		c.busy = true
		c.reconnectLater()
	}
}

// claimOrDefer claims the channel for an automatic reconnect. While another
// connect holds it, the reconnect is deferred to that connect's release.
func (c *Channel) claimOrDefer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return false
	}
	if c.busy {
		c.redial = true
		return false
	}
	c.busy = true
	return true
}

func (c *Channel) connectWithRetry(ctx context.Context, attempts int) error {
	ctx, cancel := mergeCancel(ctx, c.life)
	defer cancel()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.ReconnectDelay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	op := func() error {
		attempt++
		c.setState(Connecting)
		conn, err := c.dial(ctx)
		if err != nil {
			metrics.ChannelReconnects.WithLabelValues("error").Inc()
			if c.closed.Load() {
				return backoff.Permanent(ErrClosed)
			}
			return err
		}
		metrics.ChannelReconnects.WithLabelValues("ok").Inc()
		c.attach(conn)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("live channel connect failed", "url", c.cfg.URL, "attempt", attempt, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if c.closed.Load() {
			return errs.New(errs.KindChannel, "connect", ErrClosed)
		}
		c.setState(Error)
		metrics.Errors.WithLabelValues("live", "connect").Inc()
		slog.Error("live channel unavailable", "url", c.cfg.URL, "attempts", attempt, "error", err)
		return errs.Retryable(errs.KindChannel, "connect", err)
	}
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", c.cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func (c *Channel) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected)
	slog.Info("live channel connected", "url", c.cfg.URL)

	c.wg.Add(1)
	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropped(conn, err)
			return
		}

		u, ok, err := decodeFrame(data)
		if err != nil {
			slog.Warn("live frame decode failed", "error", err)
			metrics.LiveUpdates.WithLabelValues("invalid").Inc()
			continue
		}
		if !ok {
			continue
		}
		u.ReceivedAt = time.Now()
		c.emit(u)
	}
}

func (c *Channel) emit(u Update) {
	select {
	case c.events <- u:
	default:
		slog.Warn("live update dropped, consumer stalled")
		metrics.LiveUpdates.WithLabelValues("dropped").Inc()
	}
}

// dropped handles a read failure on conn. An unexpected drop starts the
// automatic reconnect policy after one delay.
func (c *Channel) dropped(conn *websocket.Conn, err error) {
	conn.Close()

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if c.closed.Load() || !current {
		return
	}

	slog.Warn("live channel dropped", "error", err)
	metrics.Errors.WithLabelValues("live", "drop").Inc()
	c.setState(Disconnected)

	if c.claimOrDefer() {
		c.reconnectLater()
	}
}

// reconnectLater runs the automatic reconnect policy after one delay. The
// caller holds the claim; the goroutine releases it. Callers either hold mu
// or run inside a tracked goroutine, so wg.Add cannot race Close's Wait.
func (c *Channel) reconnectLater() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release()

		select {
		case <-c.life.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
		c.connectWithRetry(c.life, c.cfg.MaxReconnects)
	}()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if s == Connected {
		metrics.ChannelConnected.Set(1)
	} else {
		metrics.ChannelConnected.Set(0)
	}

	select {
	case c.states <- s:
	default:
		slog.Warn("live state change dropped", "state", s.String())
	}
}

// Send writes one JSON message. Writes are serialized.
func (c *Channel) Send(v any) error {
	if c.closed.Load() {
		return errs.New(errs.KindChannel, "send", ErrClosed)
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errs.New(errs.KindChannel, "send", ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return errs.New(errs.KindChannel, "send", err)
	}
	return nil
}

// Close sends a close frame, stops any reconnect in progress and waits for the
// background goroutines. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed.Store(true)
		c.redial = false
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		c.stop()

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}

		c.wg.Wait()
		c.setState(Disconnected)
		slog.Info("live channel closed", "url", c.cfg.URL)
	})
	return nil
}

// mergeCancel returns a context that ends when either parent ends.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
