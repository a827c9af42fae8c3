package okx

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the lifecycle state of the feed connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// EventKind tags a connection lifecycle signal.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventFeedError
	EventExhausted
)

// Event is a connection lifecycle signal delivered to the owning loop.
type Event struct {
	Kind    EventKind
	Err     error
	Code    int    // websocket close code, for EventDisconnected
	Reason  string // close reason, for EventDisconnected
	Attempt int    // reconnect attempts consumed, for EventExhausted
}

// Options tune the connection manager. Zero values fall back to the
// documented defaults, except SettleDelay where zero means none.
type Options struct {
	ConnectTimeout    time.Duration // handshake deadline, default 10s
	HeartbeatInterval time.Duration // ping period, default 30s
	SettleDelay       time.Duration // wait between dial and resubscribe
	MaxAttempts       int           // reconnect cap, default 5
	BaseDelay         time.Duration // linear backoff base, default 5s
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 5 * time.Second
	}
	return o
}

// WSClient owns the single websocket connection to the feed: connect,
// heartbeat, subscribe/unsubscribe, reconnect with linear backoff, and
// resubscription of the desired symbol set after every reconnect.
type WSClient struct {
	url     string
	opts    Options
	logger  *zap.Logger
	handler func([]byte)
	events  chan Event

	mu             sync.Mutex
	state          ConnState
	conn           *websocket.Conn
	subs           map[string]struct{}
	attempts       int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
}

// NewWSClient creates a client for the given feed URL. The connection
// is not opened until Connect is called.
func NewWSClient(url string, opts Options, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:    url,
		opts:   opts.withDefaults(),
		logger: logger,
		events: make(chan Event, 16),
		state:  StateDisconnected,
		subs:   make(map[string]struct{}),
	}
}

// SetMessageHandler sets the function to handle incoming raw frames.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Events returns the lifecycle signal channel. It is buffered; a
// consumer that falls far behind loses the oldest signals.
func (c *WSClient) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *WSClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the reconnect attempts consumed since the last
// successful connect.
func (c *WSClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Subscriptions returns the desired symbol set in sorted order.
func (c *WSClient) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Subscribe adds symbol to the desired set and, when connected, sends
// the wire request immediately. It reports whether a request was sent;
// while disconnected the symbol is retained and subscribed on the next
// successful connect.
func (c *WSClient) Subscribe(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[symbol] = struct{}{}
	if c.state != StateConnected {
		return false
	}
	if err := c.writeRequestLocked(OpSubscribe, symbol); err != nil {
		c.logger.Warn("failed to send subscribe request", zap.String("symbol", symbol), zap.Error(err))
		return false
	}
	return true
}

// Unsubscribe removes symbol from the desired set and, when connected,
// sends the wire request immediately. It reports whether a request was sent.
func (c *WSClient) Unsubscribe(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, symbol)
	if c.state != StateConnected {
		return false
	}
	if err := c.writeRequestLocked(OpUnsubscribe, symbol); err != nil {
		c.logger.Warn("failed to send unsubscribe request", zap.String("symbol", symbol), zap.Error(err))
		return false
	}
	return true
}

func (c *WSClient) writeRequestLocked(op string, symbols ...string) error {
	args := make([]ChannelArg, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, ChannelArg{Channel: ChannelTickers, InstID: ToInstID(s)})
	}
	return c.conn.WriteJSON(WsRequest{Op: op, Args: args})
}

// Connect dials the feed and, on success, resets the attempt counter,
// starts the heartbeat, and re-issues a subscribe for every symbol in
// the desired set. The Connected event is emitted only after
// resubscription has been sent. A failed dial counts as a reconnect
// attempt and schedules the next one.
func (c *WSClient) Connect() error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect requested in state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to feed", zap.String("url", c.url), zap.Error(err))
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.scheduleReconnect(err)
		return err
	}

	// Give the server a moment before resubscribing.
	if c.opts.SettleDelay > 0 {
		time.Sleep(c.opts.SettleDelay)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect was requested while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	symbols := make([]string, 0, len(c.subs))
	for s := range c.subs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	var subErr error
	if len(symbols) > 0 {
		subErr = c.writeRequestLocked(OpSubscribe, symbols...)
	}
	if subErr != nil {
		c.conn = nil
		c.state = StateDisconnected
		c.mu.Unlock()
		conn.Close()
		c.logger.Error("failed to resubscribe after connect", zap.Error(subErr))
		c.scheduleReconnect(subErr)
		return subErr
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	go c.heartbeat(conn, stop)
	go c.readLoop(conn)

	c.logger.Info("feed connected", zap.String("url", c.url), zap.Int("symbols", len(symbols)))
	c.emit(Event{Kind: EventConnected})
	return nil
}

// Disconnect performs a caller-initiated shutdown: any pending
// reconnect is cancelled, the heartbeat stops, the transport is closed
// with a normal-closure code, and no reconnect follows.
func (c *WSClient) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.attempts = 0
	if c.state != StateConnected {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	conn := c.conn
	c.stopHeartbeatLocked()
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// handleClose runs once per connection, from its read loop.
func (c *WSClient) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// stale loop from a connection already replaced
		c.mu.Unlock()
		return
	}
	closing := c.state == StateClosing
	c.stopHeartbeatLocked()
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	conn.Close()

	code, reason := closeDetails(err)
	c.logger.Warn("feed disconnected",
		zap.Int("code", code), zap.String("reason", reason), zap.Bool("requested", closing))
	c.emit(Event{Kind: EventDisconnected, Err: err, Code: code, Reason: reason})

	if !closing {
		c.scheduleReconnect(err)
	}
}

// scheduleReconnect arms the backoff timer after a failed connect or an
// unexpected close. The attempt counter is checked against the cap
// before it is incremented, so the delays grow base, 2×base, … up to
// MaxAttempts scheduled retries before the terminal Exhausted signal.
func (c *WSClient) scheduleReconnect(cause error) {
	c.mu.Lock()
	if c.state != StateDisconnected || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.MaxAttempts {
		attempts := c.attempts
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted",
			zap.Int("attempts", attempts), zap.Error(cause))
		c.emit(Event{Kind: EventExhausted, Err: cause, Attempt: attempts})
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.backoffDelay(attempt)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		stale := c.state != StateDisconnected
		c.mu.Unlock()
		if stale {
			return
		}
		c.logger.Info("reconnecting", zap.Int("attempt", attempt))
		_ = c.Connect() // a failure schedules the next attempt
	})
	c.mu.Unlock()
	c.logger.Warn("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

// backoffDelay returns the linear backoff delay for the given attempt number.
func (c *WSClient) backoffDelay(attempt int) time.Duration {
	return c.opts.BaseDelay * time.Duration(attempt)
}

// heartbeat pings the server periodically. Missed pongs do not close
// the connection; the ping exists to surface write failures in logs.
func (c *WSClient) heartbeat(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				c.logger.Warn("heartbeat ping failed", zap.Error(err))
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *WSClient) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

func (c *WSClient) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event channel full, dropping signal", zap.Int("kind", int(ev.Kind)))
	}
}

func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
