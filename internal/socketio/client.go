// Package socketio adapts a Socket.IO v5 client to the agent: one connection
// to the default namespace over the websocket transport, no reconnection, and
// inbound events handed to their handlers one at a time, in arrival order.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Pseudo events delivered to handlers registered with On.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

const DefaultTimeout = 10 * time.Second

// Disconnect reasons reported by the underlying socket.
const (
	reasonServerDisconnect = "io server disconnect"
	reasonClientDisconnect = "io client disconnect"
)

var (
	ErrNotConnected = errors.New("socketio: not connected")
	// ErrServerDisconnect is returned by Wait when the server ended the session.
	ErrServerDisconnect = errors.New("socketio: disconnected by server")
)

// Handler receives the first argument of an event, or nil when the event
// carries none.
type Handler func(data json.RawMessage)

// Client is a Socket.IO connection. Configure the exported fields, register
// handlers with On, then call Connect.
type Client struct {
	URL     string
	Header  http.Header
	Timeout time.Duration
	Logger  *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	conn     *conn

	closing atomic.Bool
}

type inbound struct {
	name string
	data json.RawMessage
}

// conn is one established connection and its event queue.
type conn struct {
	sock   *socket.Socket
	events *queue
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// On registers h for event, replacing any previous handler.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string]Handler)
	}
	c.handlers[event] = h
}

// SID returns the Socket.IO session id of the current connection.
func (c *Client) SID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.sock.Id()
}

// Connect opens the connection and joins the default namespace within
// Timeout. On success the connect event is queued and dispatching starts.
func (c *Client) Connect(ctx context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := socket.DefaultOptions()
	opts.SetTransports(types.NewSet(socket.WebSocket))
	opts.SetExtraHeaders(c.Header)
	opts.SetReconnection(false)
	opts.SetTimeout(timeout)
	opts.SetForceNew(true)
	opts.SetAutoConnect(false)

	sock, err := socket.Connect(c.URL, opts)
	if err != nil {
		return fmt.Errorf("socketio: invalid url %q: %w", c.URL, err)
	}

	cn := &conn{sock: sock, events: newQueue(), done: make(chan struct{})}
	result := make(chan error, 1)
	report := func(err error) {
		select {
		case result <- err:
		default:
		}
	}

	_ = sock.On("connect", func(...any) {
		cn.events.push(inbound{name: EventConnect})
		report(nil)
	})
	_ = sock.On("connect_error", func(args ...any) {
		report(argError(args, "connect error"))
	})
	_ = sock.On("disconnect", func(args ...any) {
		reason, desc := disconnectReason(args)
		report(fmt.Errorf("closed during handshake: %s", reason))
		c.finish(cn, c.disconnectError(reason, desc))
	})
	sock.OnAny(func(args ...any) {
		if ev, ok := c.decode(args); ok {
			cn.events.push(ev)
		}
	})

	c.closing.Store(false)
	go sock.Connect()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = errors.New("timed out")
	}
	if err != nil {
		c.closing.Store(true)
		sock.Disconnect()
		return fmt.Errorf("socketio: connect %s: %w", c.URL, err)
	}

	c.mu.Lock()
	c.conn = cn
	c.mu.Unlock()

	c.logger().Debug("socket.io connected", "url", c.URL, "sid", sock.Id())
	go c.dispatchLoop(cn)
	return nil
}

func (c *Client) disconnectError(reason string, desc error) error {
	switch {
	case c.closing.Load(), reason == reasonClientDisconnect:
		return nil
	case reason == reasonServerDisconnect:
		return ErrServerDisconnect
	case desc != nil:
		return fmt.Errorf("socketio: %s: %w", reason, desc)
	default:
		return fmt.Errorf("socketio: %s", reason)
	}
}

// finish records why cn ended and queues the disconnect event, once.
func (c *Client) finish(cn *conn, err error) {
	cn.once.Do(func() {
		if err != nil {
			c.logger().Warn("socket.io connection lost", "error", err)
		}
		cn.mu.Lock()
		cn.err = err
		cn.mu.Unlock()
		cn.events.push(inbound{name: EventDisconnect})
		cn.events.close()
	})
}

// decode turns the arguments of an inbound event into its name and first
// argument. A trailing ack callback is not an argument.
func (c *Client) decode(args []any) (inbound, bool) {
	if len(args) == 0 {
		return inbound{}, false
	}
	name, ok := args[0].(string)
	if !ok {
		return inbound{}, false
	}
	ev := inbound{name: name}
	if len(args) > 1 {
		b, err := json.Marshal(args[1])
		if err != nil {
			c.logger().Debug("event argument not representable as JSON", "event", name, "error", err)
			return ev, true
		}
		ev.data = b
	}
	return ev, true
}

func argError(args []any, fallback string) error {
	if len(args) > 0 {
		if err, ok := args[0].(error); ok && err != nil {
			return err
		}
	}
	return errors.New(fallback)
}

func disconnectReason(args []any) (string, error) {
	var reason string
	var desc error
	if len(args) > 0 {
		reason, _ = args[0].(string)
	}
	if len(args) > 1 {
		desc, _ = args[1].(error)
	}
	if reason == "" {
		reason = "connection closed"
	}
	return reason, desc
}

func (c *Client) dispatchLoop(cn *conn) {
	defer close(cn.done)
	for {
		ev, ok := cn.events.next()
		if !ok {
			return
		}
		c.mu.Lock()
		h := c.handlers[ev.name]
		c.mu.Unlock()
		if h == nil {
			c.logger().Debug("no handler for event", "event", ev.name)
			continue
		}
		c.invoke(h, ev)
	}
}

func (c *Client) invoke(h Handler, ev inbound) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error("event handler panicked", "event", ev.name, "panic", r)
		}
	}()
	h(ev.data)
}

func (c *Client) current() *conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Emit sends event with payload as its single argument. It is safe for
// concurrent use.
func (c *Client) Emit(event string, payload any) error {
	cn := c.current()
	if cn == nil || !cn.sock.Connected() {
		return ErrNotConnected
	}
	var err error
	if payload == nil {
		err = cn.sock.Emit(event)
	} else {
		err = cn.sock.Emit(event, payload)
	}
	if err != nil {
		return fmt.Errorf("socketio: emit %s: %w", event, err)
	}
	return nil
}

// Disconnect leaves the namespace and closes the connection. Wait then
// returns nil.
func (c *Client) Disconnect() error {
	cn := c.current()
	if cn == nil {
		return ErrNotConnected
	}
	c.closing.Store(true)
	cn.sock.Disconnect()
	c.finish(cn, nil)
	return nil
}

// Wait blocks until the connection has ended and every queued event,
// including disconnect, has been handled.
func (c *Client) Wait() error {
	cn := c.current()
	if cn == nil {
		return ErrNotConnected
	}
	<-cn.done
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return cn.err
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// queue is an unbounded FIFO of inbound events. push never blocks, so the
// socket's callbacks cannot stall on a slow handler.
type queue struct {
	mu     sync.Mutex
	items  []inbound
	closed bool
	ready  chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(ev inbound) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// next returns the oldest event, blocking until one is queued. It reports
// false once the queue is closed and drained.
func (q *queue) next() (inbound, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		if q.closed {
			q.mu.Unlock()
			return inbound{}, false
		}
		q.mu.Unlock()
		<-q.ready
	}
}
