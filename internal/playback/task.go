package playback

import (
	"sync"
	"time"
)

// repeater runs a function on a fixed interval until stopped. Stop is safe
// to call any number of times, from any goroutine, and on a nil repeater,
// so "stop is always safe, even if never started" holds structurally.
type repeater struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func newRepeater(interval time.Duration) *repeater {
	return &repeater{
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// run blocks, invoking fn every interval until Stop is called.
func (r *repeater) run(fn func()) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Stop cancels the repeater.
func (r *repeater) Stop() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.stop) })
}
