// Package command parses the textual remote-action grammar
//
//	name(arg, arg, ...)
//
// into typed actions. Parsing is pure: no I/O, no platform knowledge.
package command

import "fmt"

// Kind identifies a remote action.
type Kind string

const (
	Move           Kind = "move"
	Click          Kind = "click"
	RightClick     Kind = "right_click"
	DoubleClick    Kind = "double_click"
	MiddleClick    Kind = "middle_click"
	LeftClickDrag  Kind = "left_click_drag"
	Type           Kind = "type"
	Press          Kind = "press"
	CursorPosition Kind = "cursor_position"
	Unknown        Kind = "unknown"
)

// Params is the parameter payload of an Action. It is one of Point,
// PointPair, Text, Keys or None.
type Params interface {
	isParams()
}

// Point is an absolute screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PointPair is the start and end of a drag.
type PointPair struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Text is literal text to type, or the raw arguments of an unknown action.
type Text string

// Keys is a '+' separated key combination such as "ctrl+shift+s".
type Keys string

// None is the payload of actions without parameters.
type None struct{}

func (Point) isParams()     {}
func (PointPair) isParams() {}
func (Text) isParams()      {}
func (Keys) isParams()      {}
func (None) isParams()      {}

func (p Point) String() string     { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }
func (p PointPair) String() string { return p.Start.String() + "->" + p.End.String() }

// Action is a parsed command.
type Action struct {
	Kind   Kind
	Params Params
}

func (a Action) String() string {
	switch p := a.Params.(type) {
	case nil, None:
		return string(a.Kind)
	case Text:
		return fmt.Sprintf("%s(%q)", a.Kind, string(p))
	case Keys:
		return fmt.Sprintf("%s(%q)", a.Kind, string(p))
	default:
		return fmt.Sprintf("%s%v", a.Kind, p)
	}
}
