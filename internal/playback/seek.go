package playback

import (
	"context"
	"time"
)

// Seeking state machine. While a seek is in progress the coordinator keeps
// two positions: the authoritative one (where the engine actually is) and
// the pending seek target the UI displays. Engine snapshots never touch the
// pending target; only a commit moves the authoritative position.

// StartSeeking enters seek mode at the current position. Without a loaded
// book it is a no-op. Calling it while already seeking keeps the pending
// target, but always unwinds a running scan ticker first so two tickers
// can never compete.
func (c *Coordinator) StartSeeking() {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return
	}
	task := c.seekTask
	c.seekTask = nil
	if task != nil {
		c.resumeAfterSeek = false
	}
	c.startSeekingLocked()
	c.mu.Unlock()

	task.Stop()
}

func (c *Coordinator) startSeekingLocked() {
	if c.seeking {
		return
	}
	c.seeking = true
	c.seekStart = c.position
	c.seekPos = c.position
	c.seekDir = SeekNone
}

// UpdateSeekPosition moves the pending seek target, clamped to
// [0, duration], and nudges the engine toward it best-effort so the audio
// scrubs along with a drag. If no seek is in progress it starts one first,
// so a bare slider drag behaves. Without a loaded book it is a no-op.
func (c *Coordinator) UpdateSeekPosition(ctx context.Context, pos time.Duration) {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return
	}
	c.startSeekingLocked()
	pos = c.clampLocked(pos)
	if pos > c.seekPos {
		c.seekDir = SeekForward
	} else if pos < c.seekPos {
		c.seekDir = SeekBackward
	}
	c.seekPos = pos
	c.mu.Unlock()

	c.requestSeek(ctx, pos)
	c.publishPosition(pos)
}

// requestSeek issues a best-effort engine seek. Failures are logged and
// published but never change seek state: the next tick or the final commit
// re-issues the latest target, so the engine converges on its own.
func (c *Coordinator) requestSeek(ctx context.Context, target time.Duration) {
	if err := c.engine.SeekTo(ctx, target); err != nil {
		c.logger.Warn("engine seek", "target", target, "err", err)
		c.publishError("seek", err)
	}
}

// CommitSeek ends seek mode and makes the pending target the authoritative
// position. The engine seek happens synchronously; if it fails the new
// position is kept anyway — the next engine snapshot after a failed seek
// reports where the engine really is and the reconciler converges on it.
// Committing with no seek in progress is a no-op, so a second commit (or a
// commit racing a cancel) is harmless.
func (c *Coordinator) CommitSeek(ctx context.Context) error {
	c.mu.Lock()
	if !c.seeking {
		c.mu.Unlock()
		return nil
	}
	target := c.seekPos
	c.seeking = false
	c.seekDir = SeekNone
	c.position = target
	c.finished = false
	c.handlingFinish = false
	prevChapter := c.chapter
	curChapter := -1
	if c.book != nil {
		curChapter = locateOrNone(c.book.Chapters, target)
	}
	c.chapter = curChapter
	rec, saveOK := c.progressRecordLocked()
	c.lastSave = c.now()
	c.mu.Unlock()

	err := c.engine.SeekTo(ctx, target)
	if err != nil {
		c.logger.Warn("engine seek", "target", target, "err", err)
		c.publishError("seek", err)
	}
	if saveOK {
		c.saveProgress(rec, false)
	}
	c.publishPosition(target)
	if curChapter != prevChapter {
		c.publishChapter(prevChapter, curChapter)
	}
	return err
}

// CancelSeek ends seek mode, discards the pending target, and steers the
// engine back to the position the seek started from. Cancelling with no
// seek in progress is a no-op.
func (c *Coordinator) CancelSeek(ctx context.Context) {
	c.mu.Lock()
	if !c.seeking {
		c.mu.Unlock()
		return
	}
	restored := c.seekStart
	c.seeking = false
	c.seekDir = SeekNone
	c.mu.Unlock()

	c.requestSeek(ctx, restored)
	c.publishPosition(restored)
}

// SeekTo is the one-shot form: start, update, commit.
func (c *Coordinator) SeekTo(ctx context.Context, pos time.Duration) error {
	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	c.mu.Unlock()

	c.StartSeeking()
	c.UpdateSeekPosition(ctx, pos)
	return c.CommitSeek(ctx)
}

// StartContinuousSeeking begins a held rewind or fast-forward. Playback is
// paused for the duration of the scan and resumed on stop if it was playing
// before. The first step is applied immediately; subsequent steps run on
// the seek ticker. Calling it again with the same direction is a no-op;
// with the opposite direction it switches direction in place.
func (c *Coordinator) StartContinuousSeeking(ctx context.Context, dir SeekDirection) error {
	if dir == SeekNone {
		return nil
	}

	c.mu.Lock()
	if c.book == nil {
		c.mu.Unlock()
		return ErrNoBook
	}
	if c.seeking && c.seekTask != nil {
		c.seekDir = dir
		c.mu.Unlock()
		return nil
	}
	c.startSeekingLocked()
	c.seekDir = dir
	c.resumeAfterSeek = c.isPlaying
	wasPlaying := c.isPlaying
	task := newRepeater(c.opts.SeekTick)
	c.seekTask = task
	c.mu.Unlock()

	if wasPlaying {
		if err := c.engine.Pause(ctx); err != nil {
			c.logger.Warn("pause for scan", "err", err)
		}
	}

	c.continuousStep(ctx)
	go task.run(func() { c.continuousStep(ctx) })
	return nil
}

// StopContinuousSeeking ends a held scan: the ticker stops, the pending
// target is committed, and playback resumes if it was playing before the
// scan started. Safe to call when no scan is running.
func (c *Coordinator) StopContinuousSeeking(ctx context.Context) error {
	c.mu.Lock()
	task := c.seekTask
	c.seekTask = nil
	resume := c.resumeAfterSeek
	c.resumeAfterSeek = false
	seeking := c.seeking
	c.mu.Unlock()

	task.Stop()
	if !seeking {
		return nil
	}
	if err := c.CommitSeek(ctx); err != nil {
		return err
	}
	if resume {
		return c.Play(ctx)
	}
	return nil
}

// continuousStep advances the pending target by one scan step and nudges
// the engine there. Hitting either bound commits immediately so a held key
// cannot scan past the end or before the start.
func (c *Coordinator) continuousStep(ctx context.Context) {
	c.mu.Lock()
	if !c.seeking || c.seekTask == nil {
		c.mu.Unlock()
		return
	}
	var next time.Duration
	switch c.seekDir {
	case SeekForward:
		next = c.seekPos + c.opts.FastForwardStep
	case SeekBackward:
		next = c.seekPos - c.opts.RewindStep
	default:
		c.mu.Unlock()
		return
	}
	clamped := c.clampLocked(next)
	c.seekPos = clamped
	// Reaching a bound stops the scan, whether the clamp truncated the
	// step or the step landed on the bound exactly.
	atBound := clamped == 0 || (c.duration > 0 && clamped == c.duration)
	c.mu.Unlock()

	c.requestSeek(ctx, clamped)
	c.publishPosition(clamped)
	if atBound {
		if err := c.StopContinuousSeeking(ctx); err != nil {
			c.logger.Warn("stop scan at bound", "err", err)
		}
	}
}

// unwindSeekLocked discards any in-progress seek without committing. Used
// when a new load or Close invalidates the session. Caller holds c.mu.
func (c *Coordinator) unwindSeekLocked() {
	if c.seekTask != nil {
		task := c.seekTask
		c.seekTask = nil
		go task.Stop()
	}
	c.seeking = false
	c.seekDir = SeekNone
	c.resumeAfterSeek = false
}
