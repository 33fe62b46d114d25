package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// SocketIDHeader carries the connection id assigned by the service.
	SocketIDHeader = "X-Socket-Id"

	maxBufferedFrames = 256
)

var (
	ErrMissingURL   = errors.New("ws: missing channel url")
	ErrBufferFull   = errors.New("ws: send buffer full")
	ErrInvalidEvent = errors.New("ws: empty event name")
)

type Options struct {
	URL                  string
	ReconnectionAttempts int
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	Timeout              time.Duration
	PingInterval         time.Duration
	PongWait             time.Duration
	Header               http.Header
	Dialer               *websocket.Dialer
	Registerer           prometheus.Registerer
	Logger               logging.Logger
}

func OptionsFromConfig(cfg configs.ChannelConfig) Options {
	return Options{
		URL:                  cfg.URL,
		ReconnectionAttempts: cfg.ReconnectionAttempts,
		ReconnectionDelay:    cfg.ReconnectionDelay,
		ReconnectionDelayMax: cfg.ReconnectionDelayMax,
		Timeout:              cfg.Timeout,
		PingInterval:         cfg.PingInterval,
		PongWait:             cfg.PongWait,
	}
}

// Channel is one long-lived connection to the room service. Connect runs a
// bounded retry loop in the background; frames are dispatched serially from
// a single read loop per connection epoch. Emits made while disconnected are
// buffered and flushed on the next connect.
type Channel struct {
	opts    Options
	logger  logging.Logger
	dialer  *websocket.Dialer
	events  *Dispatcher
	metrics *metrics

	mu         sync.Mutex
	conn       *connWrapper
	connecting bool
	loop       uint64
	cancel     context.CancelFunc
	buffer     []Frame
}

func NewChannel(opts Options) (*Channel, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}
	if opts.ReconnectionAttempts <= 0 {
		opts.ReconnectionAttempts = 5
	}
	if opts.ReconnectionDelay <= 0 {
		opts.ReconnectionDelay = time.Second
	}
	if opts.ReconnectionDelayMax <= 0 {
		opts.ReconnectionDelayMax = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = pongWait
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongWait {
		opts.PingInterval = (opts.PongWait * 9) / 10
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.Timeout,
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Channel{
		opts:    opts,
		logger:  logger,
		dialer:  dialer,
		events:  NewDispatcher(),
		metrics: newMetrics(opts.Registerer),
	}, nil
}

func (c *Channel) On(event string, h Handler) func() {
	return c.events.On(event, h)
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Channel) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.socketID
}

// Emit sends event with payload, or buffers it while disconnected.
func (c *Channel) Emit(event string, payload any) error {
	if event == "" {
		return ErrInvalidEvent
	}

	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("ws: encode %s: %w", event, err)
		}
		data = b
	}
	frame := Frame{Event: event, Data: data}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		defer c.mu.Unlock()
		if len(c.buffer) >= maxBufferedFrames {
			return ErrBufferFull
		}
		c.buffer = append(c.buffer, frame)
		return nil
	}
	c.mu.Unlock()

	if err := conn.WriteFrame(frame); err != nil {
		c.logger.Warn(logging.Channel, logging.Emit, "write failed", map[logging.ExtraKey]any{
			logging.Event:        event,
			logging.ErrorMessage: err.Error(),
		})
		return fmt.Errorf("ws: write %s: %w", event, err)
	}
	c.metrics.events.WithLabelValues("out", event).Inc()
	return nil
}

// Connect starts the background connection loop unless the channel is
// already connected or connecting.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.connecting = true
	c.loop++
	c.cancel = cancel
	loop := c.loop
	c.mu.Unlock()

	go c.connectLoop(ctx, loop)
}

// Disconnect stops any connect loop and closes the open connection. The
// read loop then raises the disconnect event.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connecting = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Channel) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.opts.ReconnectionDelay,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         c.opts.ReconnectionDelayMax,
	}
	b.Reset()
	return b
}

func (c *Channel) connectLoop(ctx context.Context, loop uint64) {
	defer func() {
		c.mu.Lock()
		if c.loop == loop {
			c.connecting = false
		}
		c.mu.Unlock()
	}()

	b := c.newBackOff()
	attempts := c.opts.ReconnectionAttempts

	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := c.dial(ctx)
		if err == nil {
			c.metrics.dialAttempts.WithLabelValues("success").Inc()
			c.start(ctx, conn)
			return
		}
		if ctx.Err() != nil {
			return
		}

		c.metrics.dialAttempts.WithLabelValues("failure").Inc()
		c.logger.Warn(logging.Channel, logging.Connect, "connect attempt failed", map[logging.ExtraKey]any{
			logging.Attempt:      attempt,
			logging.ErrorMessage: err.Error(),
		})
		c.raise(EventConnectError, ErrorPayload{Message: err.Error()})

		if attempt == attempts {
			break
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop || delay > c.opts.ReconnectionDelayMax {
			delay = c.opts.ReconnectionDelayMax
		}
		c.logger.Debug(logging.Channel, logging.Reconnect, "waiting before next attempt", map[logging.ExtraKey]any{
			logging.Attempt: attempt + 1,
			logging.Delay:   delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	c.logger.Error(logging.Channel, logging.Connect, "giving up on connection", map[logging.ExtraKey]any{
		logging.Attempt: attempts,
	})
	c.raise(EventConnectFailed, nil)
}

func (c *Channel) dial(ctx context.Context) (*connWrapper, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dctx, c.opts.URL, c.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	var socketID string
	if resp != nil {
		socketID = resp.Header.Get(SocketIDHeader)
	}
	return newConnWrapper(conn, socketID, c.opts.PongWait), nil
}

// start installs conn, flushes buffered frames and runs the read loop.
func (c *Channel) start(ctx context.Context, conn *connWrapper) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	pending := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	c.metrics.connected.Set(1)
	c.logger.Info(logging.Channel, logging.Connect, "connected", map[logging.ExtraKey]any{
		logging.SocketID: conn.socketID,
	})

	for _, f := range pending {
		if err := conn.WriteFrame(f); err != nil {
			c.logger.Warn(logging.Channel, logging.Emit, "flush failed", map[logging.ExtraKey]any{
				logging.Event:        f.Event,
				logging.ErrorMessage: err.Error(),
			})
			break
		}
		c.metrics.events.WithLabelValues("out", f.Event).Inc()
	}

	c.raise(EventConnect, SocketPayload{SocketID: conn.socketID})
	go c.pingLoop(conn)
	go c.readLoop(conn)
}

// pingLoop keeps the link observable: a peer that stops answering lets the
// read deadline expire, which ends the read loop with a disconnect.
func (c *Channel) pingLoop(conn *connWrapper) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				c.logger.Debug(logging.Channel, logging.Disconnect, "ping failed", map[logging.ExtraKey]any{
					logging.SocketID:     conn.socketID,
					logging.ErrorMessage: err.Error(),
				})
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Channel) readLoop(conn *connWrapper) {
	reason := "transport close"
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				reason = "ping timeout"
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				reason = "transport error"
			}
			break
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			c.logger.Warn(logging.Channel, logging.Receive, "dropping malformed frame", map[logging.ExtraKey]any{
				logging.Count: len(raw),
			})
			continue
		}

		c.metrics.events.WithLabelValues("in", f.Event).Inc()
		c.events.Dispatch(f.Event, f.Data)
	}

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	} else {
		reason = "io client disconnect"
	}
	c.mu.Unlock()
	_ = conn.Close()

	c.metrics.connected.Set(0)
	c.logger.Info(logging.Channel, logging.Disconnect, "disconnected", map[logging.ExtraKey]any{
		logging.SocketID: conn.socketID,
		logging.Status:   reason,
	})
	c.raise(EventDisconnect, DisconnectPayload{Reason: reason})
}

// raise dispatches a locally generated transport event.
func (c *Channel) raise(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	c.events.Dispatch(event, data)
}

var _ EventBus = (*Channel)(nil)
