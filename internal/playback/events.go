package playback

import "time"

// StateChange is emitted when the playing or buffering flag flips.
type StateChange struct {
	IsPlaying   bool
	IsBuffering bool
}

// PositionChange is emitted whenever the display position moves: engine
// snapshots, seeks, skips, chapter jumps, and every tick of a continuous
// seek. Delivery is lossy (buffered, non-blocking), so consumers that need
// the current position poll Status rather than replaying events.
type PositionChange struct {
	Position time.Duration
}

// ChapterChange is emitted when the authoritative position crosses into a
// different chapter.
type ChapterChange struct {
	Previous int
	Current  int
}

// SleepChange is emitted when the sleep timer is armed, cleared, or fires.
type SleepChange struct {
	Kind SleepKind
}

// FinishedEvent is emitted once when the book genuinely finishes.
type FinishedEvent struct {
	BookID string
}

// ErrorEvent is emitted when a recoverable error occurs during playback.
type ErrorEvent struct {
	Operation string // e.g., "seek", "save progress"
	Err       error
}
