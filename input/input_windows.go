//go:build windows

package input

import (
	"fmt"
	"unicode"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	platformName = "Windows"
	superKey     = "win"
)

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	procSetCursorPos = user32.NewProc("SetCursorPos")
	procGetCursorPos = user32.NewProc("GetCursorPos")
	procMouseEvent   = user32.NewProc("mouse_event")
	procKeybdEvent   = user32.NewProc("keybd_event")
)

// Win32 constants
const (
	mouseLeftDown   = 0x0002
	mouseLeftUp     = 0x0004
	mouseRightDown  = 0x0008
	mouseRightUp    = 0x0010
	mouseMiddleDown = 0x0020
	mouseMiddleUp   = 0x0040

	keyEventUp = 0x0002

	vkBack     = 0x08
	vkTab      = 0x09
	vkReturn   = 0x0D
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12 // alt
	vkEscape   = 0x1B
	vkSpace    = 0x20
	vkPageUp   = 0x21
	vkPageDown = 0x22
	vkEnd      = 0x23
	vkHome     = 0x24
	vkLeft     = 0x25
	vkUp       = 0x26
	vkRight    = 0x27
	vkDown     = 0x28
	vkDelete   = 0x2E
	vkLWin     = 0x5B
	vkF1       = 0x70

	vkOEM1      = 0xBA // ;:
	vkOEMPlus   = 0xBB // =+
	vkOEMComma  = 0xBC // ,<
	vkOEMMinus  = 0xBD // -_
	vkOEMPeriod = 0xBE // .>
	vkOEM2      = 0xBF // /?
	vkOEM3      = 0xC0 // `~
	vkOEM4      = 0xDB // [{
	vkOEM5      = 0xDC // \|
	vkOEM6      = 0xDD // ]}
	vkOEM7      = 0xDE // '"
)

// Native drives input with user32 calls and needs no cgo.
type Native struct{}

func newNative() (Device, error) { return &Native{}, nil }

type point struct {
	X int32
	Y int32
}

func (*Native) MoveMouse(x, y int) error {
	r, _, err := procSetCursorPos.Call(uintptr(int32(x)), uintptr(int32(y)))
	if r == 0 {
		return fmt.Errorf("SetCursorPos(%d,%d): %w", x, y, err)
	}
	return nil
}

func (*Native) MousePos() (int, int) {
	var p point
	ret, _, _ := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	if ret == 0 {
		return 0, 0
	}
	return int(p.X), int(p.Y)
}

func buttonFlags(btn Button) (down, up uint32) {
	switch btn {
	case ButtonRight:
		return mouseRightDown, mouseRightUp
	case ButtonMiddle:
		return mouseMiddleDown, mouseMiddleUp
	default:
		return mouseLeftDown, mouseLeftUp
	}
}

func (*Native) Click(btn Button, double bool) error {
	down, up := buttonFlags(btn)
	n := 1
	if double {
		n = 2
	}
	for i := 0; i < n; i++ {
		mouseEvent(down)
		mouseEvent(up)
	}
	return nil
}

func (*Native) Toggle(btn Button, down bool) error {
	d, u := buttonFlags(btn)
	if down {
		mouseEvent(d)
	} else {
		mouseEvent(u)
	}
	return nil
}

func mouseEvent(flags uint32) {
	procMouseEvent.Call(uintptr(flags), 0, 0, 0, 0)
}

func keybdEvent(vk uint16, flags uint32) {
	procKeybdEvent.Call(uintptr(vk), 0, uintptr(flags), 0)
}

// TypeString refuses text containing runes without a virtual-key mapping
// rather than typing part of it.
func (*Native) TypeString(s string) error {
	for _, r := range s {
		if vk, _ := mapRune(r); vk == 0 {
			return fmt.Errorf("no key mapping for %q", r)
		}
	}
	for _, r := range s {
		vk, shift := mapRune(r)
		if shift {
			keybdEvent(vkShift, 0)
		}
		keybdEvent(vk, 0)
		keybdEvent(vk, keyEventUp)
		if shift {
			keybdEvent(vkShift, keyEventUp)
		}
	}
	return nil
}

func (*Native) KeyTap(keys ...string) error {
	vks := make([]uint16, 0, len(keys)+1)
	shift := false
	for _, k := range keys {
		vk, needsShift := mapKey(NormalizeKey(k))
		if vk == 0 {
			return fmt.Errorf("unknown key %q", k)
		}
		shift = shift || needsShift
		vks = append(vks, vk)
	}
	if shift {
		vks = append([]uint16{vkShift}, vks...)
	}
	for _, vk := range vks {
		keybdEvent(vk, 0)
	}
	for i := len(vks) - 1; i >= 0; i-- {
		keybdEvent(vks[i], keyEventUp)
	}
	return nil
}

// mapKey maps normalized key names to virtual-key codes.
func mapKey(name string) (vk uint16, needsShift bool) {
	switch name {
	case "enter":
		return vkReturn, false
	case "shift":
		return vkShift, false
	case "ctrl":
		return vkControl, false
	case "alt":
		return vkMenu, false
	case "cmd":
		return vkLWin, false
	case "esc":
		return vkEscape, false
	case "space":
		return vkSpace, false
	case "tab":
		return vkTab, false
	case "backspace":
		return vkBack, false
	case "delete":
		return vkDelete, false
	case "home":
		return vkHome, false
	case "end":
		return vkEnd, false
	case "pageup":
		return vkPageUp, false
	case "pagedown":
		return vkPageDown, false
	case "up":
		return vkUp, false
	case "down":
		return vkDown, false
	case "left":
		return vkLeft, false
	case "right":
		return vkRight, false
	}
	var fn int
	if _, err := fmt.Sscanf(name, "f%d", &fn); err == nil && fn >= 1 && fn <= 24 {
		return uint16(vkF1 + fn - 1), false
	}
	if r := []rune(name); len(r) == 1 {
		return mapRune(r[0])
	}
	return 0, false
}

func mapRune(r rune) (vk uint16, needsShift bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return uint16('A' + (r - 'a')), false
	case r >= 'A' && r <= 'Z':
		return uint16(r), true
	case r >= '0' && r <= '9':
		return uint16(r), false
	}
	switch r {
	case ' ':
		return vkSpace, false
	case '\n':
		return vkReturn, false
	case '\t':
		return vkTab, false
	case '.':
		return vkOEMPeriod, false
	case '>':
		return vkOEMPeriod, true
	case ',':
		return vkOEMComma, false
	case '<':
		return vkOEMComma, true
	case '-':
		return vkOEMMinus, false
	case '_':
		return vkOEMMinus, true
	case '=':
		return vkOEMPlus, false
	case '+':
		return vkOEMPlus, true
	case ';':
		return vkOEM1, false
	case ':':
		return vkOEM1, true
	case '/':
		return vkOEM2, false
	case '?':
		return vkOEM2, true
	case '`':
		return vkOEM3, false
	case '~':
		return vkOEM3, true
	case '[':
		return vkOEM4, false
	case '{':
		return vkOEM4, true
	case '\\':
		return vkOEM5, false
	case '|':
		return vkOEM5, true
	case ']':
		return vkOEM6, false
	case '}':
		return vkOEM6, true
	case '\'':
		return vkOEM7, false
	case '"':
		return vkOEM7, true
	case '!':
		return '1', true
	case '@':
		return '2', true
	case '#':
		return '3', true
	case '$':
		return '4', true
	case '%':
		return '5', true
	case '^':
		return '6', true
	case '&':
		return '7', true
	case '*':
		return '8', true
	case '(':
		return '9', true
	case ')':
		return '0', true
	}
	// best-effort
	if unicode.IsLetter(r) {
		rr := unicode.ToUpper(r)
		if rr <= 0xFFFF {
			return uint16(rr), false
		}
	}
	return 0, false
}
