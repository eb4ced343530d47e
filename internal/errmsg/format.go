// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Book operations
	OpBookLoad Op = "load book"

	// Playback operations
	OpPlaybackStart  Op = "start playback"
	OpPlaybackPause  Op = "pause playback"
	OpPlaybackSeek   Op = "seek"
	OpPlaybackRate   Op = "change playback speed"
	OpChapterJump    Op = "jump to chapter"
	OpSleepTimerSet  Op = "set sleep timer"
	OpBookmarkAdd    Op = "add bookmark"
	OpBookmarkRemove Op = "remove bookmark"

	// Persistence operations
	OpProgressSave Op = "save progress"
	OpProgressSync Op = "sync progress"

	// Initialization
	OpInitialize Op = "initialize application"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
