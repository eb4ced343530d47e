// Package playback owns the authoritative playback position. It arbitrates
// between asynchronous position snapshots pushed by the audio engine and
// user-driven seek operations, and derives chapter location, sleep-timer
// expiry, and throttled progress persistence from the authoritative
// position.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tdelacour/fable/internal/book"
	"github.com/tdelacour/fable/internal/engine"
	"github.com/tdelacour/fable/internal/store"
)

// ErrNoBook is returned by operations that require a loaded book.
var ErrNoBook = errors.New("playback: no book loaded")

// Options are the coordinator tunables. Zero values fall back to defaults.
type Options struct {
	SkipForward     time.Duration // tap skip forward (default 30s)
	SkipBack        time.Duration // tap skip back (default 15s)
	RewindStep      time.Duration // continuous rewind per tick (default 5s)
	FastForwardStep time.Duration // continuous fast-forward per tick (default 10s)
	SeekTick        time.Duration // continuous seek tick interval (default 100ms)
	SaveInterval    time.Duration // throttled progress saves (default 30s)
	SleepTick       time.Duration // sleep timer tick interval (default 1s)

	// FinishEpsilon is the tail tolerance: a DidJustFinish snapshot only
	// counts as "book finished" within this distance of the duration
	// (default 5s).
	FinishEpsilon time.Duration

	// PrevChapterThreshold: past this far into a chapter, "previous"
	// restarts the chapter instead of jumping back (default 3s).
	PrevChapterThreshold time.Duration
}

func (o Options) withDefaults() Options {
	if o.SkipForward <= 0 {
		o.SkipForward = 30 * time.Second
	}
	if o.SkipBack <= 0 {
		o.SkipBack = 15 * time.Second
	}
	if o.RewindStep <= 0 {
		o.RewindStep = 5 * time.Second
	}
	if o.FastForwardStep <= 0 {
		o.FastForwardStep = 10 * time.Second
	}
	if o.SeekTick <= 0 {
		o.SeekTick = 100 * time.Millisecond
	}
	if o.SaveInterval <= 0 {
		o.SaveInterval = 30 * time.Second
	}
	if o.SleepTick <= 0 {
		o.SleepTick = time.Second
	}
	if o.FinishEpsilon <= 0 {
		o.FinishEpsilon = 5 * time.Second
	}
	if o.PrevChapterThreshold <= 0 {
		o.PrevChapterThreshold = 3 * time.Second
	}
	return o
}

// Coordinator is the playback position and seeking coordinator for one
// active session. The engine, its snapshot goroutine, the seek and sleep
// tickers, and UI intents all funnel through one mutex; the suppression
// and ordering rules below keep the state coherent regardless of arrival
// order.
//
// Engine and store calls never happen while the mutex is held.
type Coordinator struct {
	mu sync.Mutex

	engine engine.Interface
	store  store.Interface
	logger *slog.Logger
	opts   Options
	now    func() time.Time

	// session
	book    *book.Book
	loadGen int

	// authoritative state, written only by LoadBook, the reconciler, and
	// seek commits
	position    time.Duration
	duration    time.Duration
	isPlaying   bool
	isBuffering bool
	rate        float64
	chapter     int

	// reconciler bookkeeping
	lastSave       time.Time
	handlingFinish bool
	finished       bool

	// seek state; meaningful only while seeking is true
	seeking         bool
	seekPos         time.Duration
	seekStart       time.Duration
	seekDir         SeekDirection
	resumeAfterSeek bool
	seekTask        *repeater

	// sleep timer
	sleepKind       SleepKind
	sleepDeadline   time.Time
	sleepChapterEnd time.Duration
	sleepTask       *repeater

	subs   []*Subscription
	subsMu sync.RWMutex
	closed bool
}

// New creates a coordinator bound to an engine and a progress store.
func New(eng engine.Interface, st store.Interface, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Coordinator{
		engine:  eng,
		store:   st,
		logger:  logger,
		opts:    opts.withDefaults(),
		now:     time.Now,
		rate:    1.0,
		chapter: -1,
	}
	eng.SetStatusCallback(c.applySnapshot)
	return c
}

// LoadBook starts a new session. It reads the resume position from the
// local store (the only persistence read that blocks startup), hands the
// audio to the engine, and resets all per-session state. A load that
// completes after a newer LoadBook has started is dropped silently.
// An engine load failure is fatal to the session and is returned.
func (c *Coordinator) LoadBook(ctx context.Context, b *book.Book, autoPlay bool) error {
	if err := book.ValidateChapters(b.Chapters, b.Duration); err != nil {
		return fmt.Errorf("load book: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("load book: coordinator closed")
	}
	c.loadGen++
	gen := c.loadGen
	c.unwindSeekLocked()
	c.mu.Unlock()

	start := time.Duration(0)
	if rec, err := c.store.GetProgress(b.ID); err != nil {
		c.logger.Warn("read resume position", "book", b.ID, "err", err)
	} else if rec != nil && !rec.IsFinished {
		start = time.Duration(rec.CurrentTime * float64(time.Second))
	}

	meta := engine.Metadata{Title: b.Title, Author: b.Author}
	var err error
	if b.HasTracks() {
		err = c.engine.LoadTracks(ctx, b.Tracks, start, meta, autoPlay)
	} else {
		err = c.engine.LoadAudio(ctx, b.URL, start, meta, autoPlay)
	}

	c.mu.Lock()
	if gen != c.loadGen {
		// A newer load started while this one was in flight; drop it.
		c.mu.Unlock()
		c.logger.Debug("load superseded", "book", b.ID)
		return nil
	}
	if err != nil {
		// Fatal to the session: no stale book may answer intents.
		c.book = nil
		c.mu.Unlock()
		return fmt.Errorf("load book %s: %w", b.ID, err)
	}

	c.book = b
	c.position = start
	c.duration = b.Duration
	c.isPlaying = autoPlay
	c.isBuffering = false
	c.finished = false
	c.handlingFinish = false
	c.lastSave = c.now()
	c.chapter = locateOrNone(b.Chapters, start)
	playing, buffering := c.isPlaying, c.isBuffering
	c.mu.Unlock()

	c.publishState(playing, buffering)
	c.publishPosition(start)
	return nil
}

// Play resumes playback. It fails with ErrNoBook before a successful
// LoadBook.
func (c *Coordinator) Play(ctx context.Context) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	c.mu.Unlock()

	if err := c.engine.Play(ctx); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	c.mu.Lock()
	c.isPlaying = true
	c.handlingFinish = false
	c.finished = false
	buffering := c.isBuffering
	c.mu.Unlock()

	c.publishState(true, buffering)
	return nil
}

// Pause pauses playback and saves progress best-effort.
func (c *Coordinator) Pause(ctx context.Context) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	c.mu.Unlock()

	if err := c.engine.Pause(ctx); err != nil {
		return fmt.Errorf("pause: %w", err)
	}

	c.mu.Lock()
	c.isPlaying = false
	c.lastSave = c.now()
	rec, ok := c.progressRecordLocked()
	buffering := c.isBuffering
	c.mu.Unlock()

	if ok {
		c.saveProgress(rec, false)
	}
	c.publishState(false, buffering)
	return nil
}

// TogglePlay flips between playing and paused.
func (c *Coordinator) TogglePlay(ctx context.Context) error {
	c.mu.Lock()
	playing := c.isPlaying
	c.mu.Unlock()
	if playing {
		return c.Pause(ctx)
	}
	return c.Play(ctx)
}

// SetRate changes the playback speed.
func (c *Coordinator) SetRate(ctx context.Context, rate float64) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	c.mu.Unlock()

	if err := c.engine.SetRate(ctx, rate); err != nil {
		return fmt.Errorf("set rate: %w", err)
	}

	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
	return nil
}

// SkipForward jumps ahead by the configured skip interval.
func (c *Coordinator) SkipForward(ctx context.Context) error {
	return c.SeekTo(ctx, c.displayPosition()+c.opts.SkipForward)
}

// SkipBackward jumps back by the configured skip interval.
func (c *Coordinator) SkipBackward(ctx context.Context) error {
	return c.SeekTo(ctx, c.displayPosition()-c.opts.SkipBack)
}

// JumpToChapter seeks to the start of chapter i.
func (c *Coordinator) JumpToChapter(ctx context.Context, i int) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	chapters := c.book.Chapters
	c.mu.Unlock()

	if i < 0 || i >= len(chapters) {
		return fmt.Errorf("jump to chapter: index %d out of range", i)
	}
	return c.SeekTo(ctx, chapters[i].Start)
}

// NextChapter seeks to the start of the following chapter. On the last
// chapter it is a no-op.
func (c *Coordinator) NextChapter(ctx context.Context) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	chapters := c.book.Chapters
	pos := c.displayPositionLocked()
	c.mu.Unlock()

	if len(chapters) == 0 {
		return nil
	}
	idx := book.Locate(chapters, pos)
	if idx+1 >= len(chapters) {
		return nil
	}
	return c.SeekTo(ctx, chapters[idx+1].Start)
}

// PrevChapter seeks to the start of the prior chapter — unless more than
// the restart threshold of the current chapter has elapsed, in which case
// it restarts the current chapter. The threshold rule matches common
// media-player behavior and is relied on by callers.
func (c *Coordinator) PrevChapter(ctx context.Context) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	chapters := c.book.Chapters
	pos := c.displayPositionLocked()
	c.mu.Unlock()

	if len(chapters) == 0 {
		return c.SeekTo(ctx, 0)
	}
	idx := book.Locate(chapters, pos)
	elapsed := pos - chapters[idx].Start
	if elapsed > c.opts.PrevChapterThreshold || idx == 0 {
		return c.SeekTo(ctx, chapters[idx].Start)
	}
	return c.SeekTo(ctx, chapters[idx-1].Start)
}

// AddBookmark stores a bookmark at the current display position.
func (c *Coordinator) AddBookmark(title string) (store.Bookmark, error) {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return store.Bookmark{}, ErrNoBook
	}
	bm := store.Bookmark{
		ID:        uuid.NewString(),
		BookID:    c.book.ID,
		Title:     title,
		Time:      c.displayPositionLocked().Seconds(),
		CreatedAt: c.now().UnixMilli(),
	}
	c.mu.Unlock()

	if err := c.store.SaveBookmark(bm); err != nil {
		return store.Bookmark{}, fmt.Errorf("add bookmark: %w", err)
	}
	return bm, nil
}

// RemoveBookmark deletes a bookmark of the loaded book.
func (c *Coordinator) RemoveBookmark(id string) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	bookID := c.book.ID
	c.mu.Unlock()

	if err := c.store.DeleteBookmark(bookID, id); err != nil {
		return fmt.Errorf("remove bookmark: %w", err)
	}
	return nil
}

// Bookmarks lists the loaded book's bookmarks ordered by time.
func (c *Coordinator) Bookmarks() ([]store.Bookmark, error) {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return nil, ErrNoBook
	}
	bookID := c.book.ID
	c.mu.Unlock()
	return c.store.BookmarksFor(bookID)
}

// Status returns the current read-only snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Position:    c.displayPositionLocked(),
		Duration:    c.duration,
		IsPlaying:   c.isPlaying,
		IsBuffering: c.isBuffering,
		IsSeeking:   c.seeking,
		SeekDir:     c.seekDir,
		Chapter:     -1,
		Rate:        c.rate,
		Sleep:       c.sleepKind,
		SleepLeft:   c.sleepRemainingLocked(),
		Finished:    c.finished,
	}
	if c.book != nil {
		s.BookID = c.book.ID
		if len(c.book.Chapters) > 0 {
			s.Chapter = book.Locate(c.book.Chapters, s.Position)
			s.ChapterTitle = c.book.Chapters[s.Chapter].Title
		}
	}
	if !c.seeking {
		s.SeekDir = SeekNone
	}
	return s
}

// Subscribe creates a new event subscription.
func (c *Coordinator) Subscribe() *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	sub := newSubscription()
	c.subs = append(c.subs, sub)
	return sub
}

// Close shuts the session down: all tickers are stopped before the engine
// is released, and a final best-effort progress save is attempted.
// Close is idempotent.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.loadGen++
	c.unwindSeekLocked()
	c.clearSleepLocked()
	rec, ok := c.progressRecordLocked()
	c.mu.Unlock()

	if ok {
		c.saveProgress(rec, false)
	}
	err := c.engine.Close()

	c.subsMu.Lock()
	for _, sub := range c.subs {
		sub.close()
	}
	c.subs = nil
	c.subsMu.Unlock()

	return err
}

// displayPosition is the position the UI should show.
func (c *Coordinator) displayPosition() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayPositionLocked()
}

func (c *Coordinator) displayPositionLocked() time.Duration {
	if c.seeking {
		return c.seekPos
	}
	return c.position
}

// progressRecordLocked builds the record for the current position. The
// second return is false when no book is loaded.
func (c *Coordinator) progressRecordLocked() (store.ProgressRecord, bool) {
	if c.book == nil {
		return store.ProgressRecord{}, false
	}
	return store.ProgressRecord{
		ItemID:      c.book.ID,
		CurrentTime: c.position.Seconds(),
		Duration:    c.duration.Seconds(),
		IsFinished:  c.finished,
		UpdatedAt:   c.now().UnixMilli(),
	}, true
}

// saveProgress writes a record to the local store. Failures are swallowed:
// they are logged, published as error events, and retried by the next
// throttled save.
func (c *Coordinator) saveProgress(rec store.ProgressRecord, final bool) {
	var err error
	if final {
		err = c.store.SaveFinished(rec)
	} else {
		err = c.store.SaveProgress(rec)
	}
	if err != nil {
		c.logger.Warn("save progress", "book", rec.ItemID, "err", err)
		c.publishError("save progress", err)
	}
}

func (c *Coordinator) clampLocked(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if c.duration > 0 && pos > c.duration {
		return c.duration
	}
	return pos
}

func locateOrNone(chapters []book.Chapter, pos time.Duration) int {
	if len(chapters) == 0 {
		return -1
	}
	return book.Locate(chapters, pos)
}

// publish fan-out helpers; never called with c.mu held.

func (c *Coordinator) publish(fn func(*Subscription)) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, sub := range c.subs {
		fn(sub)
	}
}

func (c *Coordinator) publishState(playing, buffering bool) {
	c.publish(func(s *Subscription) {
		s.sendState(StateChange{IsPlaying: playing, IsBuffering: buffering})
	})
}

func (c *Coordinator) publishPosition(pos time.Duration) {
	c.publish(func(s *Subscription) {
		s.sendPosition(PositionChange{Position: pos})
	})
}

func (c *Coordinator) publishChapter(prev, cur int) {
	c.publish(func(s *Subscription) {
		s.sendChapter(ChapterChange{Previous: prev, Current: cur})
	})
}

func (c *Coordinator) publishSleep(kind SleepKind) {
	c.publish(func(s *Subscription) {
		s.sendSleep(SleepChange{Kind: kind})
	})
}

func (c *Coordinator) publishFinished(bookID string) {
	c.publish(func(s *Subscription) {
		s.sendFinished(FinishedEvent{BookID: bookID})
	})
}

func (c *Coordinator) publishError(op string, err error) {
	c.publish(func(s *Subscription) {
		s.sendError(ErrorEvent{Operation: op, Err: err})
	})
}
