package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrMalformed means the input is not of the form name(args).
	ErrMalformed = errors.New("malformed command")
	// ErrBadParams means the action is recognized but its arguments are unusable.
	ErrBadParams = errors.New("bad parameters")
)

// Parse turns a command string into an Action. Unrecognized action names are
// not an error: they yield Kind Unknown with the raw arguments as Text so the
// dispatcher can report them.
func Parse(cmd string) (Action, error) {
	name, args, ok := split(cmd)
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformed, cmd)
	}

	kind := Kind(strings.ToLower(name))
	switch kind {
	case Move, Click, RightClick, DoubleClick, MiddleClick:
		pts, err := parseInts(args, 2)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %s: %v", ErrBadParams, kind, err)
		}
		return Action{Kind: kind, Params: Point{X: pts[0], Y: pts[1]}}, nil

	case LeftClickDrag:
		pts, err := parseInts(args, 4)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %s: %v", ErrBadParams, kind, err)
		}
		return Action{Kind: kind, Params: PointPair{
			Start: Point{X: pts[0], Y: pts[1]},
			End:   Point{X: pts[2], Y: pts[3]},
		}}, nil

	case Type:
		return Action{Kind: kind, Params: Text(unquote(args))}, nil

	case Press:
		// An empty key list is left to the dispatcher, which reports it.
		return Action{Kind: kind, Params: Keys(unquote(args))}, nil

	case CursorPosition:
		return Action{Kind: kind, Params: None{}}, nil

	default:
		return Action{Kind: Unknown, Params: Text(args)}, nil
	}
}

// split separates "name(args)" into its name and the text between the first
// '(' and the final ')'. The name, once trimmed, must be a non-empty run of
// word characters.
func split(cmd string) (name, args string, ok bool) {
	s := strings.TrimSpace(cmd)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", "", false
	}
	name = strings.TrimSpace(s[:open])
	if name == "" {
		return "", "", false
	}
	for _, r := range name {
		if !isWord(r) {
			return "", "", false
		}
	}
	return name, s[open+1 : len(s)-1], true
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// parseInts splits args on commas and requires exactly n integer tokens.
func parseInts(args string, n int) ([]int, error) {
	parts := strings.Split(args, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d integers, got %d arguments", n, len(parts))
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %q is not an integer", i+1, strings.TrimSpace(p))
		}
		out[i] = v
	}
	return out, nil
}

// unquote trims args and strips one layer of matching single or double quotes.
func unquote(args string) string {
	s := strings.TrimSpace(args)
	if len(s) >= 2 {
		q := s[0]
		if (q == '"' || q == '\'') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}
