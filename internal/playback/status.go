package playback

import "time"

// SeekDirection identifies which way a seek is moving.
type SeekDirection int

const (
	SeekNone SeekDirection = iota
	SeekForward
	SeekBackward
)

// String returns the direction name.
func (d SeekDirection) String() string {
	switch d {
	case SeekForward:
		return "Forward"
	case SeekBackward:
		return "Backward"
	default:
		return "None"
	}
}

// SleepKind identifies the active sleep timer mode.
type SleepKind int

const (
	SleepOff SleepKind = iota
	SleepCountdown
	SleepEndOfChapter
)

// String returns the sleep kind name.
func (k SleepKind) String() string {
	switch k {
	case SleepCountdown:
		return "Countdown"
	case SleepEndOfChapter:
		return "EndOfChapter"
	default:
		return "Off"
	}
}

// Status is the read-only snapshot exposed to the UI. Position is the
// display position: the pending seek target while a seek is in progress,
// the authoritative position otherwise.
type Status struct {
	BookID       string
	Position     time.Duration
	Duration     time.Duration
	IsPlaying    bool
	IsBuffering  bool
	IsSeeking    bool
	SeekDir      SeekDirection
	Chapter      int // index into the book's chapter list, -1 if chapterless
	ChapterTitle string
	Rate         float64
	Sleep        SleepKind
	SleepLeft    time.Duration
	Finished     bool
}
