// Package session owns the connection to the controller and routes its
// events to the action dispatcher and the capture pipeline.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenagent/internal/capture"
	"screenagent/internal/clock"
	"screenagent/internal/command"
	"screenagent/internal/socketio"
	t "screenagent/internal/types"
)

// State is the connection state of a session.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

// Transport is the event channel to the controller. *socketio.Client
// implements it.
type Transport interface {
	On(event string, h socketio.Handler)
	Connect(ctx context.Context) error
	Emit(event string, payload any) error
	Disconnect() error
	Wait() error
}

// Dispatcher executes a parsed action.
type Dispatcher interface {
	Dispatch(a command.Action) t.ActionResult
}

// Capturer produces one encoded screen frame.
type Capturer interface {
	CaptureAndEncode() (*capture.Frame, error)
}

// Status is a point-in-time view of the session for the status endpoint.
type Status struct {
	SessionID       string          `json:"session_id"`
	State           State           `json:"state"`
	ConnectedSince  *time.Time      `json:"connected_since,omitempty"`
	LastAction      string          `json:"last_action,omitempty"`
	LastResult      *t.ActionResult `json:"last_result,omitempty"`
	LastCaptureAt   *time.Time      `json:"last_capture_at,omitempty"`
	ActionsHandled  int             `json:"actions_handled"`
	ScreenshotsSent int             `json:"screenshots_sent"`
	CaptureErrors   int             `json:"capture_errors"`
}

// Controller is one agent session. Handlers run on the transport's single
// dispatch goroutine, so events are processed one at a time.
type Controller struct {
	token      string
	transport  Transport
	dispatcher Dispatcher
	capturer   Capturer
	clock      clock.Clock
	logger     *slog.Logger

	mu     sync.Mutex
	status Status
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(c clock.Clock) Option   { return func(ctl *Controller) { ctl.clock = c } }
func WithLogger(l *slog.Logger) Option { return func(ctl *Controller) { ctl.logger = l } }
func WithSessionID(id string) Option   { return func(ctl *Controller) { ctl.status.SessionID = id } }

// New returns a disconnected Controller identified by token.
func New(token string, tr Transport, d Dispatcher, c Capturer, opts ...Option) *Controller {
	ctl := &Controller{
		token:      token,
		transport:  tr,
		dispatcher: d,
		capturer:   c,
		clock:      clock.Real(),
		status:     Status{SessionID: uuid.NewString(), State: Disconnected},
	}
	for _, o := range opts {
		o(ctl)
	}
	if ctl.logger == nil {
		ctl.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctl.logger = ctl.logger.With("session", ctl.status.SessionID)
	return ctl
}

// Run connects and blocks until the connection ends. A connect failure is
// returned as is; the caller decides whether to restart. Cancelling ctx
// disconnects.
func (c *Controller) Run(ctx context.Context) error {
	c.transport.On(t.EventConnect, c.guard(t.EventConnect, c.onConnect))
	c.transport.On(t.EventDisconnect, c.guard(t.EventDisconnect, c.onDisconnect))
	c.transport.On(t.EventRequestScreenshot, c.guard(t.EventRequestScreenshot, c.onRequestScreenshot))
	c.transport.On(t.EventPerformAction, c.guard(t.EventPerformAction, c.onPerformAction))

	c.setState(Connecting)
	c.logger.Info("connecting")
	if err := c.transport.Connect(ctx); err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("connect: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info("shutting down session")
			if err := c.transport.Disconnect(); err != nil {
				c.logger.Error("disconnect failed", "error", err)
			}
		case <-stop:
		}
	}()

	err := c.transport.Wait()
	c.setState(Disconnected)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Status returns a snapshot of the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.State
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = s
	if s == Connected {
		now := c.clock.Now()
		c.status.ConnectedSince = &now
	} else {
		c.status.ConnectedSince = nil
	}
}

// guard keeps a failing handler from taking the session down.
func (c *Controller) guard(event string, h socketio.Handler) socketio.Handler {
	return func(data json.RawMessage) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("event handler panicked", "event", event, "panic", r)
			}
		}()
		h(data)
	}
}

func (c *Controller) onConnect(json.RawMessage) {
	c.logger.Info("connected, joining machine room")
	// A failed join is logged; the connection itself is up.
	if err := c.transport.Emit(t.EventJoinMachineRoom, t.JoinMachineRoom{MachineKey: c.token, IsMachine: true}); err != nil {
		c.logger.Error("join machine room failed", "error", err)
	}
	c.setState(Connected)
}

func (c *Controller) onDisconnect(json.RawMessage) {
	c.setState(Disconnected)
	c.logger.Info("disconnected from server")
}

func (c *Controller) onRequestScreenshot(json.RawMessage) {
	c.logger.Info("screenshot requested")
	c.sendScreenshot()
}

func (c *Controller) onPerformAction(data json.RawMessage) {
	// A screenshot follows every action attempt, parsed or not, so the
	// operator always sees the current screen.
	defer c.sendScreenshot()

	var req t.PerformAction
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.logger.Error("invalid perform_action payload", "error", err)
			return
		}
	}
	if req.Command == "" {
		c.logger.Error("no command provided in perform_action event")
		return
	}

	c.logger.Info("performing action", "command", req.Command)
	action, err := command.Parse(req.Command)
	if err != nil {
		c.logger.Error("could not parse command", "command", req.Command, "error", err)
		c.recordAction(req.Command, nil)
		return
	}

	res := c.dispatcher.Dispatch(action)
	c.recordAction(req.Command, &res)
	if res.Succeeded {
		c.logger.Info("action performed", "action", action.String())
	} else {
		c.logger.Error("action failed", "action", action.String(), "error", res.Error)
	}
}

func (c *Controller) recordAction(cmd string, res *t.ActionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastAction = cmd
	c.status.LastResult = res
	c.status.ActionsHandled++
}

// sendScreenshot emits exactly one screenshot_data or screenshot_error event.
func (c *Controller) sendScreenshot() {
	frame, err := c.capture()
	if err != nil {
		msg := fmt.Sprintf("screenshot failed: %v", err)
		c.logger.Error("screenshot failed", "error", err)
		c.mu.Lock()
		c.status.CaptureErrors++
		c.mu.Unlock()
		if err := c.transport.Emit(t.EventScreenshotError, t.ScreenshotError{
			MachineKey: c.token,
			Error:      msg,
			Timestamp:  t.Timestamp(c.clock.Now()),
		}); err != nil {
			c.logger.Error("emit screenshot_error failed", "error", err)
		}
		return
	}

	if err := c.transport.Emit(t.EventScreenshotData, t.ScreenshotData{
		MachineKey: c.token,
		Screenshot: frame.Image,
		Metadata:   frame.Metadata,
	}); err != nil {
		c.logger.Error("emit screenshot_data failed", "error", err)
		return
	}
	now := c.clock.Now()
	c.mu.Lock()
	c.status.LastCaptureAt = &now
	c.status.ScreenshotsSent++
	c.mu.Unlock()
	c.logger.Info("screenshot sent", "bytes", frame.Metadata.FileSizeBytes)
}

func (c *Controller) capture() (frame *capture.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			frame, err = nil, fmt.Errorf("capture panicked: %v", r)
		}
	}()
	frame, err = c.capturer.CaptureAndEncode()
	if err == nil && frame == nil {
		err = fmt.Errorf("%w: no frame", capture.ErrEncodeFailed)
	}
	return frame, err
}
