package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tdelacour/fable/internal/book"
)

// Mock is a test double for the engine.
type Mock struct {
	mu sync.Mutex

	loaded   bool
	playing  bool
	rate     float64
	position time.Duration
	duration time.Duration
	cb       func(State)

	loadErr error
	seekErr error
	playErr error
	onLoad  func()

	loadCalls  []string
	seekCalls  []time.Duration
	rateCalls  []float64
	playCalls  int
	pauseCalls int
}

// NewMock creates a mock engine for testing.
func NewMock() *Mock {
	return &Mock{rate: 1.0}
}

func (m *Mock) LoadAudio(_ context.Context, url string, startPos time.Duration, _ Metadata, autoPlay bool) error {
	m.mu.Lock()
	hook := m.onLoad
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls = append(m.loadCalls, url)
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	m.position = startPos
	m.playing = autoPlay
	return nil
}

func (m *Mock) LoadTracks(_ context.Context, tracks []book.Track, startPos time.Duration, _ Metadata, autoPlay bool) error {
	m.mu.Lock()
	hook := m.onLoad
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tracks {
		m.loadCalls = append(m.loadCalls, t.URL)
	}
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	m.position = startPos
	m.playing = autoPlay
	return nil
}

func (m *Mock) Play(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls++
	if m.playErr != nil {
		return m.playErr
	}
	if !m.loaded {
		return ErrNotLoaded
	}
	m.playing = true
	return nil
}

func (m *Mock) Pause(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	if !m.loaded {
		return ErrNotLoaded
	}
	m.playing = false
	return nil
}

func (m *Mock) SeekTo(_ context.Context, pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	if m.seekErr != nil {
		return m.seekErr
	}
	m.position = pos
	return nil
}

func (m *Mock) SetRate(_ context.Context, rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateCalls = append(m.rateCalls, rate)
	if !m.loaded {
		return ErrNotLoaded
	}
	m.rate = rate
	return nil
}

func (m *Mock) SetStatusCallback(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = fn
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.playing = false
	return nil
}

// Test helpers

// PushState delivers a synthetic snapshot through the registered callback,
// the way a real engine pushes position updates.
func (m *Mock) PushState(s State) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (m *Mock) SetLoadError(err error) { m.mu.Lock(); m.loadErr = err; m.mu.Unlock() }

// SetLoadHook registers a function invoked at the start of each load,
// before the mock mutates its state. Used to interleave operations with an
// in-flight load.
func (m *Mock) SetLoadHook(fn func()) { m.mu.Lock(); m.onLoad = fn; m.mu.Unlock() }
func (m *Mock) SetSeekError(err error) { m.mu.Lock(); m.seekErr = err; m.mu.Unlock() }
func (m *Mock) SetPlayError(err error) { m.mu.Lock(); m.playErr = err; m.mu.Unlock() }

func (m *Mock) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

func (m *Mock) LoadCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadCalls...)
}

func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.seekCalls...)
}

func (m *Mock) PlayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCalls
}

func (m *Mock) PauseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}
