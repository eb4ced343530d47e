//go:build windows

// Windows audio backends do not write ALSA-style noise to fd 2, so capture
// is a no-op there.
package stderr

import "os"

// Capture is a no-op on Windows.
func Capture(func(string)) error { return nil }

// WriteOriginal writes to stderr.
func WriteOriginal(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}

// Restore is a no-op on Windows.
func Restore() {}
