package playback

import (
	"context"

	"github.com/tdelacour/fable/internal/engine"
	"github.com/tdelacour/fable/internal/store"
)

// applySnapshot reconciles an asynchronous engine snapshot into the
// authoritative state. It is the engine's status callback and may fire on
// any goroutine at any time, including mid-seek, so every effect here is
// gated:
//
//   - positions are suppressed while a seek is pending, so a stale engine
//     position can never stomp the target the user is dragging toward
//   - a buffering snapshot keeps the playing flag as-is, so a rebuffer does
//     not flicker the play/pause control
//   - finish handling is single-flight and only honored within the tail
//     epsilon of the duration, so a mid-book decoder hiccup that reports
//     DidJustFinish cannot mark the book finished
//   - progress saves are throttled to the configured interval
func (c *Coordinator) applySnapshot(s engine.State) {
	c.mu.Lock()
	if c.book == nil || c.closed {
		c.mu.Unlock()
		return
	}

	var (
		positionChanged bool
		stateChanged    bool
		chapterMoved    bool
		prevChapter     int
		curChapter      int
		finishNow       bool
		sleepPauseNow   bool
		saveRec         store.ProgressRecord
		saveOK          bool
		finishRec       store.ProgressRecord
	)

	if s.Duration > 0 {
		c.duration = s.Duration
	}

	if !c.seeking {
		if s.Position != c.position {
			c.position = s.Position
			positionChanged = true
		}
		prevChapter = c.chapter
		curChapter = locateOrNone(c.book.Chapters, c.position)
		if curChapter != prevChapter {
			c.chapter = curChapter
			chapterMoved = true
		}
	}

	if s.IsBuffering != c.isBuffering {
		c.isBuffering = s.IsBuffering
		stateChanged = true
	}
	// Play/pause is bracketed by the seek coordinator during a scan, so a
	// snapshot may not flip it while a seek is pending.
	if !s.IsBuffering && !c.seeking && s.IsPlaying != c.isPlaying {
		c.isPlaying = s.IsPlaying
		stateChanged = true
	}

	if s.DidJustFinish && !c.handlingFinish && c.nearEndLocked() {
		c.handlingFinish = true
		c.finished = true
		c.isPlaying = false
		stateChanged = true
		finishNow = true
		finishRec, _ = c.progressRecordLocked()
		c.lastSave = c.now()
	}

	if !finishNow && c.isPlaying && !c.seeking &&
		c.now().Sub(c.lastSave) >= c.opts.SaveInterval {
		saveRec, saveOK = c.progressRecordLocked()
		c.lastSave = c.now()
	}

	// End-of-chapter sleep: crossing into the next chapter (or finishing)
	// pauses playback and clears the timer.
	if c.sleepKind == SleepEndOfChapter && !c.seeking {
		if c.position >= c.sleepChapterEnd || finishNow {
			c.clearSleepLocked()
			c.isPlaying = false
			stateChanged = true
			sleepPauseNow = true
		}
	}

	playing, buffering := c.isPlaying, c.isBuffering
	pos := c.position
	bookID := c.book.ID
	c.mu.Unlock()

	if sleepPauseNow {
		if err := c.engine.Pause(context.Background()); err != nil {
			c.logger.Warn("sleep pause", "err", err)
		}
		c.publishSleep(SleepOff)
	}
	if finishNow {
		c.saveProgress(finishRec, true)
		c.publishFinished(bookID)
	} else if saveOK {
		c.saveProgress(saveRec, false)
	}
	if positionChanged {
		c.publishPosition(pos)
	}
	if chapterMoved {
		c.publishChapter(prevChapter, curChapter)
	}
	if stateChanged {
		c.publishState(playing, buffering)
	}
}

// nearEndLocked reports whether the authoritative position is within the
// finish epsilon of the known duration. With an unknown duration the end
// signal is taken at face value.
func (c *Coordinator) nearEndLocked() bool {
	if c.duration <= 0 {
		return true
	}
	return c.duration-c.position <= c.opts.FinishEpsilon
}
