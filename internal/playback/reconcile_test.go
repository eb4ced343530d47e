package playback

import (
	"context"
	"testing"
	"time"

	"github.com/tdelacour/fable/internal/engine"
)

func TestSnapshotUpdatesPosition(t *testing.T) {
	fx := setupLoaded(t)
	sub := fx.coord.Subscribe()

	fx.eng.PushState(engine.State{Position: 42 * time.Second, Duration: 90 * time.Minute})

	if got := fx.coord.Status().Position; got != 42*time.Second {
		t.Errorf("position = %v, want 42s", got)
	}
	select {
	case e := <-sub.PositionChanged:
		if e.Position != 42*time.Second {
			t.Errorf("position event = %v, want 42s", e.Position)
		}
	default:
		t.Error("no position event published")
	}
}

func TestBufferingDoesNotFlickerPlayState(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()
	if err := fx.coord.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}

	// While buffering the engine reports itself as not playing. The user
	// still intends to play, so the flag must hold.
	fx.eng.PushState(engine.State{Position: time.Minute, Duration: 90 * time.Minute, IsBuffering: true, IsPlaying: false})

	st := fx.coord.Status()
	if !st.IsBuffering {
		t.Error("buffering flag not set")
	}
	if !st.IsPlaying {
		t.Error("play state flickered to paused during rebuffer")
	}

	// Buffer refilled, playback really running again.
	fx.eng.PushState(engine.State{Position: time.Minute + time.Second, Duration: 90 * time.Minute, IsPlaying: true})
	st = fx.coord.Status()
	if st.IsBuffering {
		t.Error("buffering flag stuck")
	}
	if !st.IsPlaying {
		t.Error("not playing after rebuffer ended")
	}
}

func TestSnapshotChapterTransition(t *testing.T) {
	fx := setupLoaded(t)
	sub := fx.coord.Subscribe()

	fx.eng.PushState(engine.State{Position: 29 * time.Minute, Duration: 90 * time.Minute})
	fx.eng.PushState(engine.State{Position: 30*time.Minute + time.Second, Duration: 90 * time.Minute})

	if got := fx.coord.Status().Chapter; got != 1 {
		t.Errorf("chapter = %d, want 1", got)
	}

	var events []ChapterChange
	for {
		select {
		case e := <-sub.ChapterChanged:
			events = append(events, e)
			continue
		default:
		}
		break
	}
	// One transition event for the boundary crossing. The first snapshot
	// also emits one if the load position started outside chapter 0.
	if len(events) == 0 {
		t.Fatal("no chapter event published")
	}
	last := events[len(events)-1]
	if last.Previous != 0 || last.Current != 1 {
		t.Errorf("chapter event = %+v, want 0 -> 1", last)
	}
}

func TestFinishRequiresTailEpsilon(t *testing.T) {
	fx := setupLoaded(t)

	// A finish signal far from the end (decoder hiccup) is ignored.
	fx.eng.PushState(engine.State{Position: 40 * time.Minute, Duration: 90 * time.Minute, DidJustFinish: true})
	if fx.coord.Status().Finished {
		t.Error("mid-book finish signal honored")
	}
	if got := len(fx.store.Finishes()); got != 0 {
		t.Errorf("finish recorded mid-book, finishes = %d", got)
	}
}

func TestFinishWithinEpsilonIsSingleFlight(t *testing.T) {
	fx := setupLoaded(t)
	sub := fx.coord.Subscribe()
	end := 90 * time.Minute

	snap := engine.State{Position: end - 2*time.Second, Duration: end, DidJustFinish: true}
	fx.eng.PushState(snap)
	fx.eng.PushState(snap) // duplicate delivery

	st := fx.coord.Status()
	if !st.Finished {
		t.Error("book not marked finished")
	}
	if st.IsPlaying {
		t.Error("still playing after finish")
	}
	if got := fx.store.Finishes(); len(got) != 1 || got[0] != "book-1" {
		t.Errorf("finishes = %v, want one for book-1", got)
	}

	var finishEvents int
	for {
		select {
		case <-sub.Finished:
			finishEvents++
			continue
		default:
		}
		break
	}
	if finishEvents != 1 {
		t.Errorf("finish events = %d, want 1", finishEvents)
	}
}

func TestReplayAfterFinishClearsFlag(t *testing.T) {
	fx := setupLoaded(t)
	end := 90 * time.Minute
	fx.eng.PushState(engine.State{Position: end - time.Second, Duration: end, DidJustFinish: true})
	if !fx.coord.Status().Finished {
		t.Fatal("book not finished")
	}

	if err := fx.coord.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if fx.coord.Status().Finished {
		t.Error("finished flag survived replay")
	}
}

func TestProgressSavesAreThrottled(t *testing.T) {
	fx := setupLoaded(t)
	ctx := context.Background()
	if err := fx.coord.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	base := fx.store.SaveCalls()

	playing := func(pos time.Duration) engine.State {
		return engine.State{Position: pos, Duration: 90 * time.Minute, IsPlaying: true}
	}

	// Within the save interval: snapshots do not persist.
	fx.eng.PushState(playing(10 * time.Second))
	fx.clock.Advance(10 * time.Second)
	fx.eng.PushState(playing(20 * time.Second))
	if got := fx.store.SaveCalls() - base; got != 0 {
		t.Fatalf("saves within interval = %d, want 0", got)
	}

	// Past the interval: exactly one save, then the window resets.
	fx.clock.Advance(25 * time.Second)
	fx.eng.PushState(playing(45 * time.Second))
	fx.eng.PushState(playing(46 * time.Second))
	if got := fx.store.SaveCalls() - base; got != 1 {
		t.Errorf("saves after interval = %d, want 1", got)
	}

	rec, err := fx.store.GetProgress("book-1")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if rec == nil || rec.CurrentTime != 45 {
		t.Errorf("saved progress = %+v, want position 45", rec)
	}
}

func TestNoThrottledSavesWhilePaused(t *testing.T) {
	fx := setupLoaded(t)
	base := fx.store.SaveCalls()

	fx.clock.Advance(5 * time.Minute)
	fx.eng.PushState(engine.State{Position: 10 * time.Second, Duration: 90 * time.Minute})

	if got := fx.store.SaveCalls() - base; got != 0 {
		t.Errorf("saves while paused = %d, want 0", got)
	}
}

func TestSnapshotIgnoredWithoutBook(t *testing.T) {
	fx := setup(t)
	fx.eng.PushState(engine.State{Position: time.Minute, Duration: time.Hour})
	if got := fx.coord.Status().Position; got != 0 {
		t.Errorf("position moved without a book: %v", got)
	}
}
