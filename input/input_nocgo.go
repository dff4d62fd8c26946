//go:build !cgo

package input

// Without cgo robotgo is unavailable; fall back to the native backend, which
// only exists on Windows.
func newDevice() (Device, error) { return newNative() }
