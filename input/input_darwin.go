//go:build darwin

package input

const (
	platformName = "Darwin"
	superKey     = "command"
)

func newNative() (Device, error) { return nil, ErrUnsupported }
