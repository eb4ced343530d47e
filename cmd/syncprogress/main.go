// One-shot flush of unsynced listening progress to the configured server.
// Useful from cron or on session logout; the player runs the same sync in
// the background.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tdelacour/fable/internal/config"
	"github.com/tdelacour/fable/internal/remote"
	"github.com/tdelacour/fable/internal/store"
)

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.HasServer() {
		return fmt.Errorf("no server configured: set server.url and server.token in config.toml")
	}

	st, err := store.Open()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pending, err := st.Unsynced()
	if err != nil {
		return fmt.Errorf("list unsynced progress: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("nothing to sync")
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	syncer := remote.NewSyncer(remote.NewClient(cfg.Server.URL, cfg.Server.Token), st, time.Minute, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pushed := syncer.Flush(ctx)
	fmt.Printf("synced %d of %d records\n", pushed, len(pending))
	if pushed < len(pending) {
		return fmt.Errorf("%d records failed to sync", len(pending)-pushed)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
