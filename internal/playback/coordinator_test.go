package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tdelacour/fable/internal/book"
	"github.com/tdelacour/fable/internal/engine"
	"github.com/tdelacour/fable/internal/store"
)

// fakeClock is a manually advanced clock injected into the coordinator so
// throttle and deadline behavior is deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type fixture struct {
	eng   *engine.Mock
	store *store.Mock
	coord *Coordinator
	clock *fakeClock
}

func testBook(id string) *book.Book {
	return &book.Book{
		ID:       id,
		Title:    "The Long Way Home",
		Author:   "M. Archer",
		URL:      "/library/long-way-home.mp3",
		Duration: 90 * time.Minute,
		Chapters: []book.Chapter{
			{ID: 0, Start: 0, End: 30 * time.Minute, Title: "One"},
			{ID: 1, Start: 30 * time.Minute, End: 60 * time.Minute, Title: "Two"},
			{ID: 2, Start: 60 * time.Minute, End: 90 * time.Minute, Title: "Three"},
		},
	}
}

// setup creates a coordinator wired to mocks. The seek and sleep ticker
// intervals are set far out so tests drive ticks by hand.
func setup(t *testing.T) *fixture {
	t.Helper()
	eng := engine.NewMock()
	st := store.NewMock()
	clock := newFakeClock()
	coord := New(eng, st, Options{
		SeekTick:  time.Hour,
		SleepTick: time.Hour,
	}, nil)
	coord.now = clock.Now
	t.Cleanup(func() { coord.Close() })
	return &fixture{eng: eng, store: st, coord: coord, clock: clock}
}

// setupLoaded additionally loads the standard test book, paused.
func setupLoaded(t *testing.T) *fixture {
	t.Helper()
	fx := setup(t)
	if err := fx.coord.LoadBook(context.Background(), testBook("book-1"), false); err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	return fx
}

func TestOperationsRequireLoadedBook(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	if err := fx.coord.Play(ctx); err != ErrNoBook {
		t.Errorf("Play before load: got %v, want ErrNoBook", err)
	}
	if err := fx.coord.Pause(ctx); err != ErrNoBook {
		t.Errorf("Pause before load: got %v, want ErrNoBook", err)
	}
	if err := fx.coord.SeekTo(ctx, time.Minute); err != ErrNoBook {
		t.Errorf("SeekTo before load: got %v, want ErrNoBook", err)
	}
	if _, err := fx.coord.AddBookmark("x"); err != ErrNoBook {
		t.Errorf("AddBookmark before load: got %v, want ErrNoBook", err)
	}

	// Seek intents before a load are no-ops: no phantom seek state, no
	// unclamped position written by a later commit.
	fx.coord.StartSeeking()
	fx.coord.UpdateSeekPosition(ctx, 42*time.Minute)
	if fx.coord.Status().IsSeeking {
		t.Error("seek mode entered without a book")
	}
	if err := fx.coord.CommitSeek(ctx); err != nil {
		t.Errorf("CommitSeek without a book: %v", err)
	}
	if got := fx.coord.Status().Position; got != 0 {
		t.Errorf("position after bookless seek = %v, want 0", got)
	}
	if got := len(fx.eng.SeekCalls()); got != 0 {
		t.Errorf("bookless seek intents issued %d engine seeks, want 0", got)
	}
}

func TestLoadBookResumesFromStore(t *testing.T) {
	fx := setup(t)
	err := fx.store.SaveProgress(store.ProgressRecord{
		ItemID:      "book-1",
		CurrentTime: 300,
		Duration:    5400,
	})
	if err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	if err := fx.coord.LoadBook(context.Background(), testBook("book-1"), false); err != nil {
		t.Fatalf("LoadBook: %v", err)
	}

	if got := fx.coord.Status().Position; got != 5*time.Minute {
		t.Errorf("resumed position = %v, want 5m", got)
	}
	if got := fx.eng.Position(); got != 5*time.Minute {
		t.Errorf("engine start position = %v, want 5m", got)
	}
}

func TestLoadBookIgnoresFinishedProgress(t *testing.T) {
	fx := setup(t)
	err := fx.store.SaveFinished(store.ProgressRecord{
		ItemID:      "book-1",
		CurrentTime: 5400,
		Duration:    5400,
	})
	if err != nil {
		t.Fatalf("seed finished: %v", err)
	}

	if err := fx.coord.LoadBook(context.Background(), testBook("book-1"), false); err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	if got := fx.coord.Status().Position; got != 0 {
		t.Errorf("position after finished book reload = %v, want 0", got)
	}
}

func TestLoadBookRejectsBrokenChapters(t *testing.T) {
	fx := setup(t)
	b := testBook("book-1")
	b.Chapters[1].Start = 31 * time.Minute // gap after chapter 0

	if err := fx.coord.LoadBook(context.Background(), b, false); err == nil {
		t.Fatal("LoadBook accepted discontiguous chapters")
	}
	if len(fx.eng.LoadCalls()) != 0 {
		t.Errorf("engine load attempted despite invalid chapters")
	}
}

func TestLoadSupersededByNewerLoad(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	// While the first load is inside the engine, start a second one. The
	// first must complete without error and without clobbering the second.
	var once sync.Once
	fx.eng.SetLoadHook(func() {
		once.Do(func() {
			fx.eng.SetLoadHook(nil)
			if err := fx.coord.LoadBook(ctx, testBook("book-2"), false); err != nil {
				t.Errorf("second LoadBook: %v", err)
			}
		})
	})

	if err := fx.coord.LoadBook(ctx, testBook("book-1"), false); err != nil {
		t.Fatalf("first LoadBook: %v", err)
	}
	if got := fx.coord.Status().BookID; got != "book-2" {
		t.Errorf("active book = %q, want book-2", got)
	}
}

func TestPlayPauseToggle(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()

	if err := fx.coord.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !fx.coord.Status().IsPlaying {
		t.Error("not playing after Play")
	}

	if err := fx.coord.TogglePlay(ctx); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if fx.coord.Status().IsPlaying {
		t.Error("still playing after toggle")
	}
	if fx.eng.IsPlaying() {
		t.Error("engine still playing after toggle")
	}

	if err := fx.coord.TogglePlay(ctx); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if !fx.coord.Status().IsPlaying {
		t.Error("not playing after second toggle")
	}
}

func TestPauseSavesProgress(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()

	if err := fx.coord.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	fx.eng.PushState(engine.State{Position: 100 * time.Second, Duration: 90 * time.Minute, IsPlaying: true})

	if err := fx.coord.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	rec, err := fx.store.GetProgress("book-1")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if rec == nil {
		t.Fatal("no progress saved on pause")
	}
	if rec.CurrentTime != 100 {
		t.Errorf("saved position = %v, want 100", rec.CurrentTime)
	}
}

func TestSkipForwardAndBackward(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()
	fx.eng.PushState(engine.State{Position: 100 * time.Second, Duration: 90 * time.Minute})

	if err := fx.coord.SkipForward(ctx); err != nil {
		t.Fatalf("SkipForward: %v", err)
	}
	if got := fx.coord.Status().Position; got != 130*time.Second {
		t.Errorf("after skip forward: %v, want 2m10s", got)
	}

	if err := fx.coord.SkipBackward(ctx); err != nil {
		t.Fatalf("SkipBackward: %v", err)
	}
	if got := fx.coord.Status().Position; got != 115*time.Second {
		t.Errorf("after skip back: %v, want 1m55s", got)
	}
}

func TestSkipBackwardClampsToStart(t *testing.T) {
	fx := setupLoaded(t)
	fx.eng.PushState(engine.State{Position: 5 * time.Second, Duration: 90 * time.Minute})

	if err := fx.coord.SkipBackward(context.Background()); err != nil {
		t.Fatalf("SkipBackward: %v", err)
	}
	if got := fx.coord.Status().Position; got != 0 {
		t.Errorf("position = %v, want 0", got)
	}
}

func TestJumpToChapter(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()

	if err := fx.coord.JumpToChapter(ctx, 2); err != nil {
		t.Fatalf("JumpToChapter: %v", err)
	}
	st := fx.coord.Status()
	if st.Position != 60*time.Minute {
		t.Errorf("position = %v, want 1h", st.Position)
	}
	if st.Chapter != 2 {
		t.Errorf("chapter = %d, want 2", st.Chapter)
	}

	if err := fx.coord.JumpToChapter(ctx, 7); err == nil {
		t.Error("out-of-range chapter index accepted")
	}
}

func TestNextChapterStopsAtLast(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()

	if err := fx.coord.JumpToChapter(ctx, 2); err != nil {
		t.Fatalf("JumpToChapter: %v", err)
	}
	seeks := len(fx.eng.SeekCalls())

	if err := fx.coord.NextChapter(ctx); err != nil {
		t.Fatalf("NextChapter: %v", err)
	}
	if got := len(fx.eng.SeekCalls()); got != seeks {
		t.Errorf("NextChapter on last chapter issued a seek")
	}
}

func TestPrevChapterRestartThreshold(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()

	// Deep into chapter 1: previous restarts chapter 1.
	fx.eng.PushState(engine.State{Position: 30*time.Minute + 5*time.Second, Duration: 90 * time.Minute})
	if err := fx.coord.PrevChapter(ctx); err != nil {
		t.Fatalf("PrevChapter: %v", err)
	}
	if got := fx.coord.Status().Position; got != 30*time.Minute {
		t.Errorf("position = %v, want 30m (restart)", got)
	}

	// Just inside chapter 1: previous jumps to chapter 0.
	fx.eng.PushState(engine.State{Position: 30*time.Minute + 2*time.Second, Duration: 90 * time.Minute})
	if err := fx.coord.PrevChapter(ctx); err != nil {
		t.Fatalf("PrevChapter: %v", err)
	}
	if got := fx.coord.Status().Position; got != 0 {
		t.Errorf("position = %v, want 0 (previous chapter)", got)
	}
}

func TestSetRate(t *testing.T) {
	fx := setupLoaded(t)

	if err := fx.coord.SetRate(context.Background(), 1.5); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
	if got := fx.eng.Rate(); got != 1.5 {
		t.Errorf("engine rate = %v, want 1.5", got)
	}
	if got := fx.coord.Status().Rate; got != 1.5 {
		t.Errorf("status rate = %v, want 1.5", got)
	}
}

func TestBookmarkLifecycle(t *testing.T) {
	fx := setupLoaded(t)
	fx.eng.PushState(engine.State{Position: 12 * time.Minute, Duration: 90 * time.Minute})

	bm, err := fx.coord.AddBookmark("great scene")
	if err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	if bm.ID == "" {
		t.Error("bookmark without ID")
	}
	if bm.Time != (12 * time.Minute).Seconds() {
		t.Errorf("bookmark time = %v, want 720", bm.Time)
	}

	list, err := fx.coord.Bookmarks()
	if err != nil {
		t.Fatalf("Bookmarks: %v", err)
	}
	if len(list) != 1 || list[0].Title != "great scene" {
		t.Errorf("bookmarks = %+v, want one titled 'great scene'", list)
	}

	if err := fx.coord.RemoveBookmark(bm.ID); err != nil {
		t.Fatalf("RemoveBookmark: %v", err)
	}
	list, err = fx.coord.Bookmarks()
	if err != nil {
		t.Fatalf("Bookmarks: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("bookmarks after remove = %+v, want none", list)
	}
}

func TestSubscribeReceivesStateChanges(t *testing.T) {
	fx := setupLoaded(t)
	sub := fx.coord.Subscribe()

	if err := fx.coord.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	select {
	case e := <-sub.StateChanged:
		if !e.IsPlaying {
			t.Errorf("state event IsPlaying = false, want true")
		}
	default:
		t.Fatal("no state event published for Play")
	}
}

func TestCloseIsIdempotentAndSaves(t *testing.T) {
	fx := setupLoaded(t)
	fx.eng.PushState(engine.State{Position: 45 * time.Second, Duration: 90 * time.Minute})

	if err := fx.coord.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fx.coord.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	rec, err := fx.store.GetProgress("book-1")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if rec == nil || rec.CurrentTime != 45 {
		t.Errorf("progress at close = %+v, want position 45", rec)
	}

	if err := fx.coord.LoadBook(context.Background(), testBook("book-2"), false); err == nil {
		t.Error("LoadBook accepted after Close")
	}
}
