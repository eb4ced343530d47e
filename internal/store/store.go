// Package store persists playback progress and bookmarks locally. It is a
// best-effort sink for the playback coordinator: progress rows are written
// flagged unsynced and a background syncer later marks them synced after a
// successful remote write. Rows are never deleted, only overwritten.
package store

// ProgressRecord is the persisted playback position for one book.
// Times are seconds; UpdatedAt is epoch milliseconds.
type ProgressRecord struct {
	ItemID      string
	CurrentTime float64
	Duration    float64
	IsFinished  bool
	UpdatedAt   int64
	Synced      bool
}

// Bookmark is a user-placed marker in a book. Time is seconds from the
// start; CreatedAt is epoch milliseconds.
type Bookmark struct {
	ID        string
	BookID    string
	Title     string
	Time      float64
	CreatedAt int64
}

// Interface defines the store contract for dependency injection and testing.
type Interface interface {
	SaveProgress(rec ProgressRecord) error
	// SaveFinished writes the final progress row and records the completion
	// event in one transaction.
	SaveFinished(rec ProgressRecord) error
	GetProgress(itemID string) (*ProgressRecord, error)
	MarkSynced(itemID string) error
	Unsynced() ([]ProgressRecord, error)

	SaveBookmark(bm Bookmark) error
	DeleteBookmark(bookID, id string) error
	BookmarksFor(bookID string) ([]Bookmark, error)

	Close() error
}

// Verify implementations at compile time.
var (
	_ Interface = (*Manager)(nil)
	_ Interface = (*Mock)(nil)
)
