//go:build !windows

// Package stderr captures output that audio backends (ALSA via oto) write
// directly to file descriptor 2, bypassing os.Stderr. Left uncaptured,
// those lines corrupt the TUI layout mid-frame.
package stderr

import (
	"bufio"
	"os"
	"strings"
	"syscall"
)

var (
	origStderr int
	pipeRead   *os.File
	pipeWrite  *os.File
	started    bool
)

// Capture redirects fd 2 into a pipe and invokes sink with each captured
// line. Must run early in main, before the audio backend initializes. On
// failure the program continues with stderr uncaptured.
func Capture(sink func(line string)) error {
	if started {
		return nil
	}

	r, w, err := os.Pipe()
	if err != nil {
		return err
	}

	origStderr, err = syscall.Dup(int(os.Stderr.Fd()))
	if err != nil {
		r.Close()
		w.Close()
		return err
	}

	if err := syscall.Dup2(int(w.Fd()), int(os.Stderr.Fd())); err != nil {
		syscall.Close(origStderr)
		r.Close()
		w.Close()
		return err
	}

	pipeRead = r
	pipeWrite = w
	started = true

	go func() {
		scanner := bufio.NewScanner(pipeRead)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				sink(line)
			}
		}
	}()

	return nil
}

// WriteOriginal writes directly to the pre-capture stderr. For fatal errors
// that must reach the terminal even while the TUI owns the screen.
func WriteOriginal(msg string) {
	if origStderr > 0 {
		_, _ = syscall.Write(origStderr, []byte(msg))
	}
}

// Restore puts the original stderr back. Call on program exit.
func Restore() {
	if !started {
		return
	}
	_ = syscall.Dup2(origStderr, int(os.Stderr.Fd()))
	_ = syscall.Close(origStderr)
	pipeWrite.Close()
	pipeRead.Close()
	started = false
}
