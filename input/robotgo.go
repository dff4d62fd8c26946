//go:build cgo

package input

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// Robot drives input through robotgo.
type Robot struct{}

func newDevice() (Device, error) { return &Robot{}, nil }

func (*Robot) MoveMouse(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (*Robot) Click(btn Button, double bool) error {
	robotgo.Click(string(btn), double)
	return nil
}

func (*Robot) Toggle(btn Button, down bool) error {
	dir := "up"
	if down {
		dir = "down"
	}
	return robotgo.Toggle(string(btn), dir)
}

func (*Robot) TypeString(s string) error {
	robotgo.TypeStr(s)
	return nil
}

func (*Robot) KeyTap(keys ...string) error {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = NormalizeKey(k)
	}
	pressed := 0
	var err error
	for _, k := range names {
		if err = robotgo.KeyToggle(k, "down"); err != nil {
			err = fmt.Errorf("key %q down: %w", k, err)
			break
		}
		pressed++
	}
	for i := pressed - 1; i >= 0; i-- {
		if upErr := robotgo.KeyToggle(names[i], "up"); upErr != nil && err == nil {
			err = fmt.Errorf("key %q up: %w", names[i], upErr)
		}
	}
	return err
}

func (*Robot) MousePos() (int, int) { return robotgo.GetMousePos() }
