package store

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// setupTestManager creates a Manager backed by an in-memory database.
func setupTestManager(t *testing.T) *Manager {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &Manager{db: db}
}

func TestGetProgress_Empty(t *testing.T) {
	m := setupTestManager(t)

	rec, err := m.GetProgress("book-1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil progress on empty db, got %+v", rec)
	}
}

func TestSaveAndGetProgress(t *testing.T) {
	m := setupTestManager(t)

	in := ProgressRecord{
		ItemID:      "book-1",
		CurrentTime: 1234.5,
		Duration:    5400,
		UpdatedAt:   1700000000000,
	}
	if err := m.SaveProgress(in); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}

	rec, err := m.GetProgress("book-1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if rec == nil {
		t.Fatal("GetProgress returned nil")
	}
	if rec.CurrentTime != 1234.5 {
		t.Errorf("CurrentTime = %v, want 1234.5", rec.CurrentTime)
	}
	if rec.Duration != 5400 {
		t.Errorf("Duration = %v, want 5400", rec.Duration)
	}
	if rec.Synced {
		t.Error("fresh save should be unsynced")
	}
}

func TestSaveProgress_OverwritesAndResetsSynced(t *testing.T) {
	m := setupTestManager(t)

	if err := m.SaveProgress(ProgressRecord{ItemID: "book-1", CurrentTime: 100, Duration: 5400, UpdatedAt: 1}); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}
	if err := m.MarkSynced("book-1"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	// A later save must flag the row unsynced again.
	if err := m.SaveProgress(ProgressRecord{ItemID: "book-1", CurrentTime: 200, Duration: 5400, UpdatedAt: 2}); err != nil {
		t.Fatalf("SaveProgress failed: %v", err)
	}

	rec, err := m.GetProgress("book-1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if rec.CurrentTime != 200 {
		t.Errorf("CurrentTime = %v, want 200", rec.CurrentTime)
	}
	if rec.Synced {
		t.Error("overwritten row should be unsynced")
	}
}

func TestUnsynced_MarkSyncedFlow(t *testing.T) {
	m := setupTestManager(t)

	for _, rec := range []ProgressRecord{
		{ItemID: "a", CurrentTime: 1, Duration: 10, UpdatedAt: 3},
		{ItemID: "b", CurrentTime: 2, Duration: 10, UpdatedAt: 1},
		{ItemID: "c", CurrentTime: 3, Duration: 10, UpdatedAt: 2},
	} {
		if err := m.SaveProgress(rec); err != nil {
			t.Fatalf("SaveProgress(%s) failed: %v", rec.ItemID, err)
		}
	}

	recs, err := m.Unsynced()
	if err != nil {
		t.Fatalf("Unsynced failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len(Unsynced()) = %d, want 3", len(recs))
	}
	// Oldest first.
	if recs[0].ItemID != "b" || recs[1].ItemID != "c" || recs[2].ItemID != "a" {
		t.Errorf("unexpected order: %s, %s, %s", recs[0].ItemID, recs[1].ItemID, recs[2].ItemID)
	}

	if err := m.MarkSynced("b"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	recs, err = m.Unsynced()
	if err != nil {
		t.Fatalf("Unsynced failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("len(Unsynced()) after MarkSynced = %d, want 2", len(recs))
	}
}

func TestSaveFinished_RecordsEvent(t *testing.T) {
	m := setupTestManager(t)

	rec := ProgressRecord{ItemID: "book-1", CurrentTime: 5400, Duration: 5400, UpdatedAt: 42}
	if err := m.SaveFinished(rec); err != nil {
		t.Fatalf("SaveFinished failed: %v", err)
	}

	got, err := m.GetProgress("book-1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if !got.IsFinished {
		t.Error("IsFinished = false, want true")
	}

	var count int
	if err := m.db.QueryRow(`SELECT COUNT(*) FROM finish_events WHERE item_id = 'book-1'`).Scan(&count); err != nil {
		t.Fatalf("count finish_events: %v", err)
	}
	if count != 1 {
		t.Errorf("finish_events count = %d, want 1", count)
	}
}

func TestBookmarks_CRUD(t *testing.T) {
	m := setupTestManager(t)

	bms := []Bookmark{
		{ID: "bm-2", BookID: "book-1", Title: "Later", Time: 300, CreatedAt: 2},
		{ID: "bm-1", BookID: "book-1", Title: "Early", Time: 30, CreatedAt: 1},
		{ID: "bm-3", BookID: "book-2", Title: "Other book", Time: 10, CreatedAt: 3},
	}
	for _, bm := range bms {
		if err := m.SaveBookmark(bm); err != nil {
			t.Fatalf("SaveBookmark(%s) failed: %v", bm.ID, err)
		}
	}

	got, err := m.BookmarksFor("book-1")
	if err != nil {
		t.Fatalf("BookmarksFor failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(BookmarksFor) = %d, want 2", len(got))
	}
	// Ordered by time.
	if got[0].ID != "bm-1" || got[1].ID != "bm-2" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}

	if err := m.DeleteBookmark("book-1", "bm-1"); err != nil {
		t.Fatalf("DeleteBookmark failed: %v", err)
	}
	got, err = m.BookmarksFor("book-1")
	if err != nil {
		t.Fatalf("BookmarksFor failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "bm-2" {
		t.Errorf("after delete: got %+v, want only bm-2", got)
	}
}

func TestSaveBookmark_UpdatesExisting(t *testing.T) {
	m := setupTestManager(t)

	if err := m.SaveBookmark(Bookmark{ID: "bm-1", BookID: "book-1", Title: "Old", Time: 10, CreatedAt: 1}); err != nil {
		t.Fatalf("SaveBookmark failed: %v", err)
	}
	if err := m.SaveBookmark(Bookmark{ID: "bm-1", BookID: "book-1", Title: "New", Time: 20, CreatedAt: 1}); err != nil {
		t.Fatalf("SaveBookmark failed: %v", err)
	}

	got, err := m.BookmarksFor("book-1")
	if err != nil {
		t.Fatalf("BookmarksFor failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Title != "New" || got[0].Time != 20 {
		t.Errorf("bookmark not updated: %+v", got[0])
	}
}
