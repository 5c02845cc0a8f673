// Package channel owns the persistent bidirectional connection to the remote
// responder.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-tavern/moodchat/internal/metrics"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/chat"
)

var (
	// ErrChannelUnavailable is returned by Send when the channel is not Connected.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("channel client closed")
)

// Appender receives inbound bot messages.
type Appender interface {
	Append(message chat.Message)
}

// Config 描述通道连接与重连策略。
type Config struct {
	URL    string
	Header http.Header

	Reconnect     bool
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// StableAfter 连接保持超过该时长才视为成功，重置重试计数。
	StableAfter time.Duration

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
}

func (c *Config) applyDefaults() {
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = max(30*time.Second, c.RetryDelay)
	}
	if c.StableAfter <= 0 {
		c.StableAfter = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	// Pings must arrive before the peer's read deadline expires.
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
}

// Client is the channel state machine:
// Disconnected -> Connecting -> Connected, and back to Disconnected when the
// connection drops or Close is called.
type Client struct {
	cfg    Config
	store  Appender
	dialer *websocket.Dialer
	now    func() time.Time

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	observers []func(State)
	cancel    context.CancelFunc
	closed    bool
	done      chan struct{}

	writeMu sync.Mutex
}

// New creates a client that appends inbound replies to store.
func New(cfg Config, store Appender) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:   cfg,
		store: store,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		now:   time.Now,
		state: Disconnected,
		done:  make(chan struct{}),
	}
}

// OnStateChange registers fn to observe every state transition. Register
// observers before Start.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the connection loop has exited, either after Close or
// after reconnect attempts are exhausted.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start begins connecting immediately and keeps the connection alive in the
// background until ctx is cancelled or Close is called.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancel != nil {
		c.mu.Unlock()
		return fmt.Errorf("channel client already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Send transmits one ai-message event. It rejects with ErrChannelUnavailable
// unless the channel is Connected; nothing is buffered.
func (c *Client) Send(_ context.Context, text string) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != Connected || conn == nil {
		metrics.SendsRejected.Inc()
		return fmt.Errorf("%w: state=%s", ErrChannelUnavailable, state)
	}

	payload, err := encodeEnvelope(EventAIMessage, text)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		glog.Warningf("[channel] write failed: %v", err)
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	return nil
}

// Close stops reconnecting, closes the socket and waits for the loop to exit.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, conn, started := c.cancel, c.conn, c.cancel != nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}

	if started {
		<-c.done
	} else {
		close(c.done)
	}
	c.setState(Disconnected)
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	retries := 0
	for {
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}

		c.setState(Connecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.setState(Disconnected)
			if ctx.Err() != nil {
				return
			}
			glog.Errorf("[channel] connect failed: %v", err)
			if !c.waitRetry(ctx, &retries) {
				return
			}
			continue
		}

		if !c.attach(conn) {
			conn.Close()
			return
		}
		glog.Infof("[channel] connected to %s", c.cfg.URL)
		connectedAt := time.Now()

		err = c.serve(ctx, conn)
		c.detach(conn)

		if ctx.Err() != nil {
			return
		}
		glog.Warningf("[channel] connection lost: %v", err)
		if !c.cfg.Reconnect {
			return
		}

		// 只有稳定的连接才重置计数并立即重连，握手后即断开的连接按失败退避。
		if time.Since(connectedAt) >= c.cfg.StableAfter {
			retries = 0
			continue
		}
		if !c.waitRetry(ctx, &retries) {
			return
		}
	}
}

// waitRetry counts one failed attempt and sleeps the backoff delay. It
// reports false when the client should stop reconnecting.
func (c *Client) waitRetry(ctx context.Context, retries *int) bool {
	*retries++
	if !c.cfg.Reconnect || *retries > c.cfg.MaxRetries {
		glog.Errorf("[channel] giving up after %d attempts", *retries)
		return false
	}
	metrics.ChannelReconnects.Inc()

	delay := calculateBackoff(*retries, c.cfg.RetryDelay, c.cfg.MaxRetryDelay)
	glog.Warningf("[channel] retrying attempt=%d max_retries=%d delay=%s", *retries, c.cfg.MaxRetries, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach publishes conn and enters Connected, unless Close won the race.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected)
	return true
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	conn.Close()
	c.setState(Disconnected)
}

// serve runs the inbound handler for one connection until it fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	go c.pingLoop(connCtx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		env, err := decodeEnvelope(raw)
		if err != nil {
			glog.Warningf("[channel] dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	switch env.Event {
	case EventAIMessageResponse:
		c.store.Append(chat.NewMessage(chat.SenderBot, env.Data, c.now()))
	default:
		glog.V(1).Infof("[channel] ignoring event kind %q", env.Event)
	}
}

// pingLoop 定期发送 ping 消息
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *Client) setState(next State) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	metrics.ChannelState.Set(float64(next))
	glog.V(1).Infof("[channel] state -> %s", next)
	for _, fn := range observers {
		fn(next)
	}
}
