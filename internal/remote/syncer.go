package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tdelacour/fable/internal/store"
)

// Syncer periodically flushes unsynced progress records from the local
// store to the server. A failed push leaves the record unsynced so the
// next cycle retries it; playback never waits on a sync.
type Syncer struct {
	client   *Client
	store    store.Interface
	logger   *slog.Logger
	interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewSyncer creates a syncer flushing on the given interval.
func NewSyncer(client *Client, st store.Interface, interval time.Duration, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Syncer{
		client:   client,
		store:    st,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sync loop. An initial flush runs
// immediately so records left over from a previous session go out without
// waiting for the first tick. Only the first call starts a loop.
func (s *Syncer) Start(ctx context.Context) {
	s.startOnce.Do(func() { go s.run(ctx) })
}

// Stop shuts the loop down and waits for it to exit. Safe to call more
// than once, and safe without a prior Start.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

func (s *Syncer) run(ctx context.Context) {
	defer close(s.done)

	s.Flush(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush pushes every unsynced record once and marks the ones that land.
// It returns the number of records successfully pushed.
func (s *Syncer) Flush(ctx context.Context) int {
	recs, err := s.store.Unsynced()
	if err != nil {
		s.logger.Warn("list unsynced progress", "err", err)
		return 0
	}

	pushed := 0
	for _, rec := range recs {
		if err := s.client.PushProgress(ctx, rec); err != nil {
			s.logger.Warn("push progress", "item", rec.ItemID, "err", err)
			continue
		}
		if err := s.store.MarkSynced(rec.ItemID); err != nil {
			s.logger.Warn("mark synced", "item", rec.ItemID, "err", err)
			continue
		}
		pushed++
	}
	if pushed > 0 {
		s.logger.Debug("synced progress", "count", pushed)
	}
	return pushed
}
