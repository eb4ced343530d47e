package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tdelacour/fable/internal/book"
	"github.com/tdelacour/fable/internal/config"
	"github.com/tdelacour/fable/internal/engine"
	"github.com/tdelacour/fable/internal/errmsg"
	"github.com/tdelacour/fable/internal/playback"
	"github.com/tdelacour/fable/internal/remote"
	"github.com/tdelacour/fable/internal/stderr"
	"github.com/tdelacour/fable/internal/store"
)

var (
	playerBarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type tickMsg time.Time

// coreEventMsg carries one event drained from the coordinator subscription.
type coreEventMsg struct {
	finished *playback.FinishedEvent
	err      *playback.ErrorEvent
	done     bool
}

// sleep cycle order for the 's' key.
var sleepCycle = []time.Duration{15 * time.Minute, 30 * time.Minute, 60 * time.Minute}

type model struct {
	coord *playback.Coordinator
	sub   *playback.Subscription

	books  []*book.Book
	cursor int

	status   playback.Status
	bar      progress.Model
	scanning playback.SeekDirection // active continuous seek, SeekNone if idle
	sleepIdx int                    // next entry of sleepCycle for the 's' key
	message  string                 // transient status/error line

	width  int
	height int
}

func newModel(coord *playback.Coordinator, books []*book.Book) model {
	return model{
		coord: coord,
		sub:   coord.Subscribe(),
		books: books,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitEventCmd(m.sub))
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEventCmd blocks on the subscription's finish and error channels and
// surfaces the next event as a message. Position and state updates are not
// bridged: the tick polls Status instead, which is cheaper than waking the
// UI twice a second per channel.
func waitEventCmd(sub *playback.Subscription) tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-sub.Finished:
			return coreEventMsg{finished: &e}
		case e := <-sub.Error:
			return coreEventMsg{err: &e}
		case <-sub.Done:
			return coreEventMsg{done: true}
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ctx := context.Background()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width - 30
		if m.bar.Width < 10 {
			m.bar.Width = 10
		}

	case tickMsg:
		m.status = m.coord.Status()
		return m, tickCmd()

	case coreEventMsg:
		if msg.done {
			return m, nil
		}
		if msg.finished != nil {
			m.message = "Finished!"
		}
		if msg.err != nil {
			m.message = errorStyle.Render(errmsg.Format(errmsg.Op(msg.err.Operation), msg.err.Err))
		}
		m.status = m.coord.Status()
		return m, waitEventCmd(m.sub)

	case tea.KeyMsg:
		return m.handleKey(ctx, msg)
	}

	return m, nil
}

func (m model) handleKey(ctx context.Context, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.books)-1 {
			m.cursor++
		}

	case "enter":
		if m.cursor < len(m.books) {
			b := m.books[m.cursor]
			if err := m.coord.LoadBook(ctx, b, true); err != nil {
				m.message = errorStyle.Render(errmsg.FormatWith(errmsg.OpBookLoad, b.Title, err))
			}
		}

	case " ":
		if err := m.coord.TogglePlay(ctx); err != nil && err != playback.ErrNoBook {
			m.message = errorStyle.Render(errmsg.Format(errmsg.OpPlaybackStart, err))
		}

	case "right":
		m.seekOrReport(m.coord.SkipForward(ctx))

	case "left":
		m.seekOrReport(m.coord.SkipBackward(ctx))

	case "l":
		return m.toggleScan(ctx, playback.SeekForward), nil

	case "h":
		return m.toggleScan(ctx, playback.SeekBackward), nil

	case "n":
		m.seekOrReport(m.coord.NextChapter(ctx))

	case "p":
		m.seekOrReport(m.coord.PrevChapter(ctx))

	case "+":
		m.adjustRate(ctx, 0.1)

	case "-":
		m.adjustRate(ctx, -0.1)

	case "b":
		st := m.coord.Status()
		title := fmt.Sprintf("%s @ %s", st.ChapterTitle, formatDuration(st.Position))
		if st.ChapterTitle == "" {
			title = formatDuration(st.Position)
		}
		if _, err := m.coord.AddBookmark(title); err != nil {
			if err != playback.ErrNoBook {
				m.message = errorStyle.Render(errmsg.Format(errmsg.OpBookmarkAdd, err))
			}
		} else {
			m.message = "Bookmarked " + title
		}

	case "s":
		m.cycleSleep()
	}

	m.status = m.coord.Status()
	return m, nil
}

// toggleScan starts a continuous seek in dir, or stops the active one.
// Terminals deliver no key-release events, so a held scan is press to
// start, press again to stop.
func (m model) toggleScan(ctx context.Context, dir playback.SeekDirection) model {
	if m.scanning != playback.SeekNone {
		if err := m.coord.StopContinuousSeeking(ctx); err != nil {
			m.message = errorStyle.Render(errmsg.Format(errmsg.OpPlaybackSeek, err))
		}
		m.scanning = playback.SeekNone
	} else {
		if err := m.coord.StartContinuousSeeking(ctx, dir); err != nil {
			if err != playback.ErrNoBook {
				m.message = errorStyle.Render(errmsg.Format(errmsg.OpPlaybackSeek, err))
			}
		} else {
			m.scanning = dir
		}
	}
	m.status = m.coord.Status()
	return m
}

func (m *model) seekOrReport(err error) {
	if err != nil && err != playback.ErrNoBook {
		m.message = errorStyle.Render(errmsg.Format(errmsg.OpPlaybackSeek, err))
	}
}

func (m *model) adjustRate(ctx context.Context, delta float64) {
	st := m.coord.Status()
	rate := st.Rate + delta
	if rate < 0.5 {
		rate = 0.5
	}
	if rate > 3.0 {
		rate = 3.0
	}
	if err := m.coord.SetRate(ctx, rate); err != nil && err != playback.ErrNoBook {
		m.message = errorStyle.Render(errmsg.Format(errmsg.OpPlaybackRate, err))
	}
}

// cycleSleep walks off -> 15m -> 30m -> 60m -> end of chapter -> off.
func (m *model) cycleSleep() {
	st := m.coord.Status()
	switch {
	case st.Sleep == playback.SleepOff:
		m.sleepIdx = 0
		if err := m.coord.SetSleepTimer(sleepCycle[0]); err == nil {
			m.message = "Sleep in " + formatDuration(sleepCycle[0])
		}
	case st.Sleep == playback.SleepCountdown && m.sleepIdx+1 < len(sleepCycle):
		m.sleepIdx++
		if err := m.coord.SetSleepTimer(sleepCycle[m.sleepIdx]); err == nil {
			m.message = "Sleep in " + formatDuration(sleepCycle[m.sleepIdx])
		}
	case st.Sleep == playback.SleepCountdown:
		if err := m.coord.SetSleepTimerEndOfChapter(); err != nil {
			m.coord.ClearSleepTimer()
			m.message = "Sleep timer off"
		} else {
			m.message = "Sleep at end of chapter"
		}
	default:
		m.coord.ClearSleepTimer()
		m.message = "Sleep timer off"
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(selectedStyle.Render("fable"))
	b.WriteString(dimStyle.Render("  enter play · space pause · ←/→ skip · h/l scan · n/p chapter · b mark · s sleep · q quit"))
	b.WriteString("\n\n")

	if len(m.books) == 0 {
		b.WriteString(dimStyle.Render("No audiobooks found. Set library_folder in config.toml."))
		b.WriteString("\n")
	}
	for i, bk := range m.books {
		line := fmt.Sprintf("%s — %s  %s", bk.Title, bk.Author, dimStyle.Render(formatDuration(bk.Duration)))
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		if m.status.BookID == bk.ID {
			line += dimStyle.Render("  ●")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.status.BookID != "" {
		b.WriteString("\n")
		b.WriteString(m.playerBar())
	}
	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(m.message)
	}

	return b.String()
}

func (m model) playerBar() string {
	st := m.status

	icon := "⏸"
	if st.IsPlaying {
		icon = "▶"
	}
	if st.IsBuffering {
		icon = "…"
	}
	if st.IsSeeking {
		switch st.SeekDir {
		case playback.SeekForward:
			icon = "▶▶"
		case playback.SeekBackward:
			icon = "◀◀"
		}
	}

	header := icon
	if st.ChapterTitle != "" {
		header += "  " + st.ChapterTitle
	}
	if st.Rate != 1.0 && st.Rate != 0 {
		header += dimStyle.Render(fmt.Sprintf("  %.1fx", st.Rate))
	}
	switch st.Sleep {
	case playback.SleepCountdown:
		header += dimStyle.Render("  ☾ " + formatDuration(st.SleepLeft))
	case playback.SleepEndOfChapter:
		header += dimStyle.Render("  ☾ end of chapter")
	}
	if st.Finished {
		header += dimStyle.Render("  finished")
	}

	pct := 0.0
	if st.Duration > 0 {
		pct = float64(st.Position) / float64(st.Duration)
	}
	times := fmt.Sprintf("%s / %s", formatDuration(st.Position), formatDuration(st.Duration))
	barLine := m.bar.ViewAs(pct) + "  " + times

	innerWidth := m.width - 2
	if innerWidth < 0 {
		innerWidth = 0
	}
	return playerBarStyle.Width(innerWidth).Render(header + "\n" + barLine)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	mm := int(d.Minutes()) % 60
	ss := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mm, ss)
	}
	return fmt.Sprintf("%d:%02d", mm, ss)
}

var audioExts = map[string]bool{".mp3": true, ".flac": true, ".wav": true}

// scanLibrary builds the book list from the library folder: each audio
// file is a single-file book, each subdirectory with audio files is a
// multi-file book whose tracks double as chapters.
func scanLibrary(folder string, logger *slog.Logger) []*book.Book {
	if folder == "" {
		return nil
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		logger.Warn("read library folder", "folder", folder, "err", err)
		return nil
	}

	var books []*book.Book
	for _, e := range entries {
		path := filepath.Join(folder, e.Name())
		if e.IsDir() {
			if b := scanMultiFileBook(path, logger); b != nil {
				books = append(books, b)
			}
			continue
		}
		if !audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		b, err := scanSingleFileBook(path)
		if err != nil {
			logger.Warn("scan book", "path", path, "err", err)
			continue
		}
		books = append(books, b)
	}

	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	return books
}

func scanSingleFileBook(path string) (*book.Book, error) {
	dur, err := engine.ProbeDuration(path)
	if err != nil {
		return nil, err
	}
	meta, err := engine.ReadMetadata(path)
	if err != nil {
		meta = engine.Metadata{Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	}
	return &book.Book{
		ID:       filepath.Base(path),
		Title:    meta.Title,
		Author:   meta.Author,
		URL:      path,
		Duration: dur,
	}, nil
}

func scanMultiFileBook(dir string, logger *slog.Logger) *book.Book {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("read book folder", "folder", dir, "err", err)
		return nil
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil
	}
	sort.Strings(paths)

	b := &book.Book{
		ID:    filepath.Base(dir),
		Title: filepath.Base(dir),
	}
	var offset time.Duration
	for i, p := range paths {
		dur, err := engine.ProbeDuration(p)
		if err != nil {
			logger.Warn("probe track", "path", p, "err", err)
			return nil
		}
		title := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if meta, err := engine.ReadMetadata(p); err == nil {
			if meta.Title != "" {
				title = meta.Title
			}
			if b.Author == "" {
				b.Author = meta.Author
			}
		}
		b.Tracks = append(b.Tracks, book.Track{
			URL:         p,
			Title:       title,
			StartOffset: offset,
			Duration:    dur,
		})
		b.Chapters = append(b.Chapters, book.Chapter{
			ID:    i,
			Start: offset,
			End:   offset + dur,
			Title: title,
		})
		offset += dur
	}
	b.Duration = offset
	return b
}

func openLogger(path string) (*slog.Logger, io.Closer) {
	if path == "" {
		return slog.New(slog.DiscardHandler), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		return slog.New(slog.DiscardHandler), nil
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), f
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpInitialize, err))
	}

	logger, logCloser := openLogger(cfg.LogFile)
	if logCloser != nil {
		defer logCloser.Close()
	}

	// ALSA writes directly to fd 2 and would tear the TUI; route it into
	// the log instead.
	if err := stderr.Capture(func(line string) {
		logger.Warn("audio backend", "msg", line)
	}); err != nil {
		logger.Warn("stderr capture unavailable", "err", err)
	}
	defer stderr.Restore()

	st, err := store.Open()
	if err != nil {
		return fmt.Errorf("%s", errmsg.Format(errmsg.OpInitialize, err))
	}
	defer st.Close()

	pb := cfg.GetPlayback()
	eng := engine.NewLocal(pb.SnapshotCadence(), logger)
	coord := playback.New(eng, st, playback.Options{
		SkipForward:     time.Duration(pb.SkipForwardSec) * time.Second,
		SkipBack:        time.Duration(pb.SkipBackSec) * time.Second,
		RewindStep:      time.Duration(pb.RewindStepSec) * time.Second,
		FastForwardStep: time.Duration(pb.FastForwardStepSec) * time.Second,
		SaveInterval:    time.Duration(pb.SaveIntervalSec) * time.Second,
	}, logger)
	defer coord.Close()

	if cfg.HasServer() {
		syncer := remote.NewSyncer(remote.NewClient(cfg.Server.URL, cfg.Server.Token), st, time.Minute, logger)
		syncer.Start(context.Background())
		defer syncer.Stop()
	}

	books := scanLibrary(cfg.LibraryFolder, logger)

	p := tea.NewProgram(newModel(coord, books), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
