// Package engine defines the audio engine boundary: the component that
// actually decodes and plays audio. The playback coordinator treats it as
// an opaque collaborator that accepts control calls and pushes State
// snapshots on its own cadence.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/tdelacour/fable/internal/book"
)

// ErrNotLoaded is returned by operations that require loaded audio.
var ErrNotLoaded = errors.New("engine: no audio loaded")

// State is one snapshot pushed by the engine. Position and Duration are
// global across all tracks of a multi-file book. DidJustFinish is set on
// the snapshot emitted when the last track runs out.
type State struct {
	Position      time.Duration
	Duration      time.Duration
	IsPlaying     bool
	IsBuffering   bool
	DidJustFinish bool
}

// Metadata is display information passed along at load time.
type Metadata struct {
	Title  string
	Author string
}

// Interface defines the engine contract for dependency injection and testing.
type Interface interface {
	LoadAudio(ctx context.Context, url string, startPos time.Duration, meta Metadata, autoPlay bool) error
	LoadTracks(ctx context.Context, tracks []book.Track, startPos time.Duration, meta Metadata, autoPlay bool) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, pos time.Duration) error
	SetRate(ctx context.Context, rate float64) error

	// SetStatusCallback registers the snapshot sink. The engine invokes it
	// on its own goroutine; it must not block.
	SetStatusCallback(fn func(State))

	Close() error
}

// Verify implementations at compile time.
var (
	_ Interface = (*Local)(nil)
	_ Interface = (*Mock)(nil)
)
