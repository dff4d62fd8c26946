package input

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"screenagent/input"
	"screenagent/internal/clock"
	"screenagent/internal/command"
	t "screenagent/internal/types"
)

// DefaultSettleDelay lets the compositor catch up before the next capture.
const DefaultSettleDelay = 500 * time.Millisecond

// Dispatcher executes parsed actions on an input device.
type Dispatcher struct {
	Device   input.Device
	SuperKey string
	Settle   time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewDispatcher returns a Dispatcher using the platform super key and the
// default settle delay.
func NewDispatcher(dev input.Device, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Device:   dev,
		SuperKey: input.SuperKey(),
		Settle:   DefaultSettleDelay,
		Clock:    clock.Real(),
		Logger:   logger,
	}
}

// Dispatch performs a and reports the outcome. It never panics; device
// errors and panics become a failed ActionResult.
func (d *Dispatcher) Dispatch(a command.Action) (res t.ActionResult) {
	res.Kind = string(a.Kind)
	logger := d.logger()

	switch a.Kind {
	case command.Unknown:
		res.Error = "unknown action"
		return res
	case command.CursorPosition:
		res.Succeeded = true
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.Succeeded = false
			res.Error = fmt.Sprint(r)
			logger.Error("input device panicked", "action", a.String(), "panic", r)
		}
	}()

	if err := d.perform(a); err != nil {
		res.Error = err.Error()
		return res
	}
	d.settle()
	res.Succeeded = true
	return res
}

func (d *Dispatcher) perform(a command.Action) error {
	if d.Device == nil {
		return input.ErrUnsupported
	}
	dev := d.Device

	switch a.Kind {
	case command.Move:
		p, err := point(a)
		if err != nil {
			return err
		}
		return dev.MoveMouse(p.X, p.Y)

	case command.Click, command.RightClick, command.DoubleClick, command.MiddleClick:
		p, err := point(a)
		if err != nil {
			return err
		}
		if err := dev.MoveMouse(p.X, p.Y); err != nil {
			return err
		}
		btn, double := clickButton(a.Kind)
		return dev.Click(btn, double)

	case command.LeftClickDrag:
		pp, ok := a.Params.(command.PointPair)
		if !ok {
			return fmt.Errorf("%s: want point pair, got %T", a.Kind, a.Params)
		}
		return drag(dev, pp)

	case command.Type:
		text, ok := a.Params.(command.Text)
		if !ok {
			return fmt.Errorf("%s: want text, got %T", a.Kind, a.Params)
		}
		return dev.TypeString(string(text))

	case command.Press:
		keys, ok := a.Params.(command.Keys)
		if !ok {
			return fmt.Errorf("%s: want keys, got %T", a.Kind, a.Params)
		}
		seq := HotkeySequence(string(keys), d.superKey())
		if len(seq) == 0 {
			return fmt.Errorf("%s: no keys", a.Kind)
		}
		return dev.KeyTap(seq...)
	}
	return fmt.Errorf("unhandled action %q", a.Kind)
}

// drag holds the left button from Start to End. The release is attempted
// even when the second move fails so the button is never left down.
func drag(dev input.Device, pp command.PointPair) error {
	if err := dev.MoveMouse(pp.Start.X, pp.Start.Y); err != nil {
		return err
	}
	if err := dev.Toggle(input.ButtonLeft, true); err != nil {
		return err
	}
	moveErr := dev.MoveMouse(pp.End.X, pp.End.Y)
	upErr := dev.Toggle(input.ButtonLeft, false)
	if moveErr != nil {
		return moveErr
	}
	return upErr
}

func point(a command.Action) (command.Point, error) {
	p, ok := a.Params.(command.Point)
	if !ok {
		return command.Point{}, fmt.Errorf("%s: want point, got %T", a.Kind, a.Params)
	}
	return p, nil
}

func clickButton(k command.Kind) (btn input.Button, double bool) {
	switch k {
	case command.RightClick:
		return input.ButtonRight, false
	case command.MiddleClick:
		return input.ButtonMiddle, false
	case command.DoubleClick:
		return input.ButtonLeft, true
	default:
		return input.ButtonLeft, false
	}
}

// HotkeySequence splits a '+' separated combination into lower-cased key
// names. The first "super" token is replaced by superKey placed first; any
// later one is kept as a key name.
func HotkeySequence(keys, superKey string) []string {
	var out []string
	hasSuper := false
	for _, k := range strings.Split(keys, "+") {
		k = strings.ToLower(strings.TrimSpace(k))
		switch {
		case k == "":
		case k == "super" && !hasSuper:
			hasSuper = true
		default:
			out = append(out, k)
		}
	}
	if hasSuper {
		out = append([]string{superKey}, out...)
	}
	return out
}

func (d *Dispatcher) settle() {
	if d.Settle <= 0 {
		return
	}
	c := d.Clock
	if c == nil {
		c = clock.Real()
	}
	c.Sleep(d.Settle)
}

func (d *Dispatcher) superKey() string {
	if d.SuperKey != "" {
		return d.SuperKey
	}
	return input.SuperKey()
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
