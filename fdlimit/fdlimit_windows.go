//go:build windows
// +build windows

package fdlimit

// Raise is a no-op on Windows; there is no file descriptor soft limit to
// adjust.
func Raise() error {
	return nil
}
