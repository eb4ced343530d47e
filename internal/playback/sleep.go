package playback

import (
	"context"
	"fmt"
	"time"
)

// Sleep timer. Countdown timers carry an absolute deadline checked against
// the wall clock on every tick rather than a decremented counter, so a
// device suspend longer than the remaining time still pauses exactly once
// on the first tick after wake.

// SetSleepTimer arms a countdown that pauses playback after d. Setting a
// new timer replaces any existing one of either kind.
func (c *Coordinator) SetSleepTimer(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("sleep timer: duration must be positive")
	}

	c.mu.Lock()
	c.clearSleepLocked()
	c.sleepKind = SleepCountdown
	c.sleepDeadline = c.now().Add(d)
	task := newRepeater(c.opts.SleepTick)
	c.sleepTask = task
	c.mu.Unlock()

	go task.run(c.sleepTick)
	c.publishSleep(SleepCountdown)
	return nil
}

// SetSleepTimerEndOfChapter arms a timer that pauses playback when the
// current chapter ends. The chapter boundary is resolved now; a later seek
// into another chapter keeps the original boundary until either it is
// crossed or the timer is reset. Chapter-end expiry is detected by the
// snapshot reconciler, not a ticker.
func (c *Coordinator) SetSleepTimerEndOfChapter() error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	if len(c.book.Chapters) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("sleep timer: book has no chapters")
	}
	c.clearSleepLocked()
	c.sleepKind = SleepEndOfChapter
	idx := locateOrNone(c.book.Chapters, c.displayPositionLocked())
	c.sleepChapterEnd = c.book.Chapters[idx].End
	c.mu.Unlock()

	c.publishSleep(SleepEndOfChapter)
	return nil
}

// ClearSleepTimer disarms any active sleep timer. Safe to call when none
// is set.
func (c *Coordinator) ClearSleepTimer() {
	c.mu.Lock()
	wasSet := c.sleepKind != SleepOff
	c.clearSleepLocked()
	c.mu.Unlock()

	if wasSet {
		c.publishSleep(SleepOff)
	}
}

// sleepTick checks the countdown deadline. Expiry pauses playback exactly
// once: the timer state is cleared under the lock before the engine pause,
// so a second tick racing the pause finds the timer already off.
func (c *Coordinator) sleepTick() {
	c.mu.Lock()
	if c.sleepKind != SleepCountdown {
		c.mu.Unlock()
		return
	}
	if c.now().Before(c.sleepDeadline) {
		c.mu.Unlock()
		return
	}
	c.clearSleepLocked()
	c.isPlaying = false
	c.lastSave = c.now()
	rec, saveOK := c.progressRecordLocked()
	buffering := c.isBuffering
	c.mu.Unlock()

	if err := c.engine.Pause(context.Background()); err != nil {
		c.logger.Warn("sleep pause", "err", err)
	}
	if saveOK {
		c.saveProgress(rec, false)
	}
	c.publishSleep(SleepOff)
	c.publishState(false, buffering)
}

// sleepRemainingLocked reports time left on a countdown timer, zero for
// the other kinds. Caller holds c.mu.
func (c *Coordinator) sleepRemainingLocked() time.Duration {
	if c.sleepKind != SleepCountdown {
		return 0
	}
	left := c.sleepDeadline.Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}

// clearSleepLocked disarms the timer and stops its ticker. Caller holds
// c.mu.
func (c *Coordinator) clearSleepLocked() {
	if c.sleepTask != nil {
		task := c.sleepTask
		c.sleepTask = nil
		go task.Stop()
	}
	c.sleepKind = SleepOff
	c.sleepDeadline = time.Time{}
	c.sleepChapterEnd = 0
}
