// Package input provides a small cross-platform abstraction over the mouse
// and keyboard operations the agent performs. The backend is selected at
// build time: robotgo when cgo is available, raw user32 calls on Windows
// builds without cgo.
package input

import (
	"errors"
	"strings"
)

type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ErrUnsupported is returned by New when no backend exists for this build.
var ErrUnsupported = errors.New("input simulation not supported on this platform")

// Device performs synthetic input on the local display.
type Device interface {
	// MoveMouse moves the cursor to absolute screen coordinates (x,y).
	MoveMouse(x, y int) error

	// Click clicks btn at the current cursor position, twice when double is set.
	Click(btn Button, double bool) error

	// Toggle presses (down) or releases btn without moving the cursor.
	Toggle(btn Button, down bool) error

	// TypeString types s, including characters that need shifted keys.
	TypeString(s string) error

	// KeyTap presses keys in order and releases them in reverse order.
	// Key names are normalized with NormalizeKey.
	KeyTap(keys ...string) error

	// MousePos returns the current cursor position.
	MousePos() (x, y int)
}

// New returns the input backend for this build.
func New() (Device, error) { return newDevice() }

// PlatformName is the human readable OS name reported in capture metadata.
func PlatformName() string { return platformName }

// SuperKey is the key name the platform uses for the "super" modifier.
func SuperKey() string { return superKey }

// NormalizeKey maps the key names used by remote commands onto the names the
// backends understand. Unrecognized names are returned lower-cased.
func NormalizeKey(k string) string {
	if k == " " {
		return "space"
	}
	k = strings.ToLower(strings.TrimSpace(k))
	switch k {
	case "return":
		return "enter"
	case "control", "ctrl":
		return "ctrl"
	case "alt", "option":
		return "alt"
	case "win", "windows", "super", "meta", "command", "cmd":
		return "cmd"
	case "escape", "esc":
		return "esc"
	case "space", "spacebar":
		return "space"
	case "del", "delete":
		return "delete"
	case "bksp", "backspace":
		return "backspace"
	case "pgup", "pageup":
		return "pageup"
	case "pgdn", "pagedown":
		return "pagedown"
	case "arrowup":
		return "up"
	case "arrowdown":
		return "down"
	case "arrowleft":
		return "left"
	case "arrowright":
		return "right"
	default:
		return k
	}
}
