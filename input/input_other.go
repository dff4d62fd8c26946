//go:build !windows && !darwin

package input

// Linux and the BSDs. The X11 super key is addressed as "win".
const (
	platformName = "Linux"
	superKey     = "win"
)

func newNative() (Device, error) { return nil, ErrUnsupported }
