package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	dbutil "github.com/tdelacour/fable/internal/db"
)

const (
	appName    = "fable"
	dbFileName = "fable.db"
)

// Manager is the sqlite-backed store.
type Manager struct {
	db *sql.DB
}

// Open opens (or creates) the store in the platform data directory.
func Open() (*Manager, error) {
	dbPath, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return OpenPath(dbPath)
}

// OpenPath opens (or creates) the store at an explicit path.
func OpenPath(dbPath string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS progress (
			item_id TEXT PRIMARY KEY,
			position REAL NOT NULL,
			duration REAL NOT NULL,
			is_finished INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			synced INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_progress_synced ON progress(synced);

		CREATE TABLE IF NOT EXISTS finish_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL,
			finished_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bookmarks (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL,
			title TEXT NOT NULL,
			time REAL NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_bookmarks_book ON bookmarks(book_id);
	`)
	return err
}

// SaveProgress upserts the progress row for rec.ItemID and flags it
// unsynced so the background syncer picks it up.
func (m *Manager) SaveProgress(rec ProgressRecord) error {
	_, err := m.db.Exec(`
		INSERT INTO progress (item_id, position, duration, is_finished, updated_at, synced)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(item_id) DO UPDATE SET
			position = excluded.position,
			duration = excluded.duration,
			is_finished = excluded.is_finished,
			updated_at = excluded.updated_at,
			synced = 0
	`, rec.ItemID, rec.CurrentTime, rec.Duration, rec.IsFinished, rec.UpdatedAt)
	return err
}

// SaveFinished writes the final progress row and the completion event in
// one transaction.
func (m *Manager) SaveFinished(rec ProgressRecord) error {
	return dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO progress (item_id, position, duration, is_finished, updated_at, synced)
			VALUES (?, ?, ?, 1, ?, 0)
			ON CONFLICT(item_id) DO UPDATE SET
				position = excluded.position,
				duration = excluded.duration,
				is_finished = 1,
				updated_at = excluded.updated_at,
				synced = 0
		`, rec.ItemID, rec.CurrentTime, rec.Duration, rec.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO finish_events (item_id, finished_at) VALUES (?, ?)`,
			rec.ItemID, rec.UpdatedAt)
		return err
	})
}

// GetProgress returns the progress row for itemID, or nil if none exists.
func (m *Manager) GetProgress(itemID string) (*ProgressRecord, error) {
	row := m.db.QueryRow(`
		SELECT item_id, position, duration, is_finished, updated_at, synced
		FROM progress WHERE item_id = ?
	`, itemID)

	var rec ProgressRecord
	err := row.Scan(&rec.ItemID, &rec.CurrentTime, &rec.Duration, &rec.IsFinished, &rec.UpdatedAt, &rec.Synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkSynced flags the progress row for itemID as synced.
func (m *Manager) MarkSynced(itemID string) error {
	_, err := m.db.Exec(`UPDATE progress SET synced = 1 WHERE item_id = ?`, itemID)
	return err
}

// Unsynced returns all progress rows not yet pushed to the remote, oldest
// first.
func (m *Manager) Unsynced() ([]ProgressRecord, error) {
	rows, err := m.db.Query(`
		SELECT item_id, position, duration, is_finished, updated_at, synced
		FROM progress WHERE synced = 0
		ORDER BY updated_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ProgressRecord
	for rows.Next() {
		var rec ProgressRecord
		if err := rows.Scan(&rec.ItemID, &rec.CurrentTime, &rec.Duration, &rec.IsFinished, &rec.UpdatedAt, &rec.Synced); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveBookmark upserts a bookmark.
func (m *Manager) SaveBookmark(bm Bookmark) error {
	_, err := m.db.Exec(`
		INSERT INTO bookmarks (id, book_id, title, time, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			time = excluded.time
	`, bm.ID, bm.BookID, bm.Title, bm.Time, bm.CreatedAt)
	return err
}

// DeleteBookmark removes one bookmark of a book.
func (m *Manager) DeleteBookmark(bookID, id string) error {
	_, err := m.db.Exec(`DELETE FROM bookmarks WHERE book_id = ? AND id = ?`, bookID, id)
	return err
}

// BookmarksFor returns a book's bookmarks ordered by time for display.
func (m *Manager) BookmarksFor(bookID string) ([]Bookmark, error) {
	rows, err := m.db.Query(`
		SELECT id, book_id, title, time, created_at
		FROM bookmarks WHERE book_id = ?
		ORDER BY time
	`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bms []Bookmark
	for rows.Next() {
		var bm Bookmark
		if err := rows.Scan(&bm.ID, &bm.BookID, &bm.Title, &bm.Time, &bm.CreatedAt); err != nil {
			return nil, err
		}
		bms = append(bms, bm)
	}
	return bms, rows.Err()
}
