package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"github.com/tdelacour/fable/internal/book"
)

const (
	// outRate is the fixed speaker sample rate; every decoded stream is
	// resampled to it so multi-track books can mix formats.
	outRate = beep.SampleRate(44100)

	defaultCadence  = 500 * time.Millisecond
	resampleQuality = 4
)

var speakerOnce sync.Once

// Local plays single- or multi-file books from the local filesystem through
// the beep speaker. It pushes State snapshots to the registered callback on
// a fixed cadence and advances across track boundaries transparently, so
// consumers only ever see a global position.
type Local struct {
	mu     sync.Mutex
	logger *slog.Logger

	cb      func(State)
	cadence time.Duration

	tracks  []book.Track
	offsets []time.Duration
	cur     int
	loadGen int

	file      *os.File
	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	resampler *beep.Resampler

	rate     float64
	playing  bool
	duration time.Duration

	// finishedCh carries the load generation of a track that ran out.
	// beep invokes the end-of-stream callback while holding the speaker
	// lock, so track advancement happens on the loop goroutine instead.
	finishedCh chan int
	stop       chan struct{}
	closed     bool
}

// NewLocal creates a local engine. cadence <= 0 selects the default.
func NewLocal(cadence time.Duration, logger *slog.Logger) *Local {
	if cadence <= 0 {
		cadence = defaultCadence
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Local{
		logger:     logger,
		cadence:    cadence,
		rate:       1.0,
		finishedCh: make(chan int, 1),
		stop:       make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Local) SetStatusCallback(fn func(State)) {
	l.mu.Lock()
	l.cb = fn
	l.mu.Unlock()
}

func (l *Local) LoadAudio(ctx context.Context, url string, startPos time.Duration, meta Metadata, autoPlay bool) error {
	dur, err := ProbeDuration(url)
	if err != nil {
		return fmt.Errorf("load audio: %w", err)
	}
	tracks := []book.Track{{URL: url, Title: meta.Title, Duration: dur}}
	return l.LoadTracks(ctx, tracks, startPos, meta, autoPlay)
}

func (l *Local) LoadTracks(_ context.Context, tracks []book.Track, startPos time.Duration, _ Metadata, autoPlay bool) error {
	if len(tracks) == 0 {
		return fmt.Errorf("load tracks: empty track list")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.loadGen++
	l.releaseLocked()

	l.tracks = append([]book.Track(nil), tracks...)
	l.offsets = make([]time.Duration, len(tracks))
	l.duration = 0
	for i := range l.tracks {
		if l.tracks[i].Duration <= 0 {
			dur, err := ProbeDuration(l.tracks[i].URL)
			if err != nil {
				return fmt.Errorf("load tracks: probe %s: %w", l.tracks[i].URL, err)
			}
			l.tracks[i].Duration = dur
		}
		l.offsets[i] = l.duration
		l.duration += l.tracks[i].Duration
	}

	startPos = clampDuration(startPos, 0, l.duration)
	l.cur = l.trackIndexForLocked(startPos)
	l.playing = autoPlay
	if err := l.openCurrentLocked(startPos - l.offsets[l.cur]); err != nil {
		l.playing = false
		return fmt.Errorf("load tracks: %w", err)
	}
	return nil
}

func (l *Local) Play(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamer == nil {
		return ErrNotLoaded
	}
	speaker.Lock()
	l.ctrl.Paused = false
	speaker.Unlock()
	l.playing = true
	return nil
}

func (l *Local) Pause(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamer == nil {
		return ErrNotLoaded
	}
	speaker.Lock()
	l.ctrl.Paused = true
	speaker.Unlock()
	l.playing = false
	return nil
}

func (l *Local) SeekTo(_ context.Context, pos time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamer == nil {
		return ErrNotLoaded
	}

	pos = clampDuration(pos, 0, l.duration)
	idx := l.trackIndexForLocked(pos)
	if idx != l.cur {
		l.cur = idx
		return l.openCurrentLocked(pos - l.offsets[idx])
	}

	n := l.format.SampleRate.N(pos - l.offsets[idx])
	speaker.Lock()
	defer speaker.Unlock()
	if n >= l.streamer.Len() {
		n = l.streamer.Len() - 1
	}
	if n < 0 {
		n = 0
	}
	return l.streamer.Seek(n)
}

func (l *Local) SetRate(_ context.Context, rate float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamer == nil {
		return ErrNotLoaded
	}
	if rate <= 0 {
		return fmt.Errorf("set rate: invalid rate %v", rate)
	}
	l.rate = rate
	speaker.Lock()
	l.resampler.SetRatio(l.ratioLocked())
	speaker.Unlock()
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.loadGen++
	l.releaseLocked()
	l.mu.Unlock()

	close(l.stop)
	return nil
}

// loop emits snapshots on the cadence and advances finished tracks. Track
// advancement must not run inside the beep end-of-stream callback, which
// fires under the speaker lock.
func (l *Local) loop() {
	ticker := time.NewTicker(l.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case gen := <-l.finishedCh:
			l.handleTrackFinished(gen)
		case <-ticker.C:
			l.emit(l.snapshot(false))
		}
	}
}

func (l *Local) handleTrackFinished(gen int) {
	l.mu.Lock()
	if l.closed || gen != l.loadGen || l.streamer == nil {
		l.mu.Unlock()
		return
	}
	if l.cur < len(l.tracks)-1 {
		l.cur++
		if err := l.openCurrentLocked(0); err != nil {
			l.logger.Error("advance to next track", "track", l.tracks[l.cur].URL, "err", err)
			l.playing = false
		}
		l.mu.Unlock()
		return
	}
	// Last track ran out: the book is done.
	l.playing = false
	l.mu.Unlock()
	l.emit(l.snapshot(true))
}

func (l *Local) snapshot(finished bool) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamer == nil {
		return State{}
	}
	pos := l.offsets[l.cur]
	speaker.Lock()
	pos += l.format.SampleRate.D(l.streamer.Position())
	speaker.Unlock()
	if finished {
		pos = l.duration
	}
	return State{
		Position:      pos,
		Duration:      l.duration,
		IsPlaying:     l.playing,
		DidJustFinish: finished,
	}
}

func (l *Local) emit(s State) {
	l.mu.Lock()
	cb := l.cb
	loaded := l.streamer != nil
	l.mu.Unlock()
	if cb != nil && (loaded || s.DidJustFinish) {
		cb(s)
	}
}

// openCurrentLocked opens l.tracks[l.cur], seeks to at within it, and hands
// the stream to the speaker. Callers hold l.mu.
func (l *Local) openCurrentLocked(at time.Duration) error {
	l.releaseStreamLocked()

	track := l.tracks[l.cur]
	f, err := os.Open(track.URL)
	if err != nil {
		return err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext := strings.ToLower(filepath.Ext(track.URL)); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return fmt.Errorf("unsupported format: %s", ext)
	}
	if err != nil {
		f.Close()
		return err
	}

	speakerOnce.Do(func() {
		err = speaker.Init(outRate, outRate.N(time.Second/10))
	})
	if err != nil {
		streamer.Close()
		f.Close()
		return err
	}

	if at > 0 {
		n := format.SampleRate.N(at)
		if n >= streamer.Len() {
			n = streamer.Len() - 1
		}
		if err := streamer.Seek(n); err != nil {
			streamer.Close()
			f.Close()
			return err
		}
	}

	l.file = f
	l.streamer = streamer
	l.format = format
	l.resampler = beep.ResampleRatio(resampleQuality, l.ratioLocked(), streamer)
	l.ctrl = &beep.Ctrl{Streamer: l.resampler, Paused: !l.playing}

	gen := l.loadGen
	speaker.Play(beep.Seq(l.ctrl, beep.Callback(func() {
		select {
		case l.finishedCh <- gen:
		default:
		}
	})))
	return nil
}

// ratioLocked is the resampling ratio: source rate to speaker rate, scaled
// by the playback rate.
func (l *Local) ratioLocked() float64 {
	return float64(l.format.SampleRate) / float64(outRate) * l.rate
}

func (l *Local) releaseStreamLocked() {
	if l.streamer == nil {
		return
	}
	speaker.Clear()
	l.streamer.Close()
	l.streamer = nil
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	l.ctrl = nil
	l.resampler = nil
}

func (l *Local) releaseLocked() {
	l.releaseStreamLocked()
	l.tracks = nil
	l.offsets = nil
	l.cur = 0
	l.playing = false
	l.duration = 0
}

func (l *Local) trackIndexForLocked(pos time.Duration) int {
	for i := len(l.offsets) - 1; i >= 0; i-- {
		if l.offsets[i] <= pos {
			return i
		}
	}
	return 0
}

// ProbeDuration decodes just enough of the file to learn its length.
func ProbeDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len()), nil
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
