package store

import "sync"

// Mock is an in-memory test double for the store.
type Mock struct {
	mu        sync.Mutex
	progress  map[string]ProgressRecord
	bookmarks map[string][]Bookmark
	finishes  []string

	saveErr error
	getErr  error

	saveCalls int
}

// NewMock creates an empty in-memory store.
func NewMock() *Mock {
	return &Mock{
		progress:  make(map[string]ProgressRecord),
		bookmarks: make(map[string][]Bookmark),
	}
}

func (m *Mock) SaveProgress(rec ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	rec.Synced = false
	m.progress[rec.ItemID] = rec
	return nil
}

func (m *Mock) SaveFinished(rec ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	rec.Synced = false
	rec.IsFinished = true
	m.progress[rec.ItemID] = rec
	m.finishes = append(m.finishes, rec.ItemID)
	return nil
}

func (m *Mock) GetProgress(itemID string) (*ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.progress[itemID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Mock) MarkSynced(itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.progress[itemID]; ok {
		rec.Synced = true
		m.progress[itemID] = rec
	}
	return nil
}

func (m *Mock) Unsynced() ([]ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []ProgressRecord
	for _, rec := range m.progress {
		if !rec.Synced {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (m *Mock) SaveBookmark(bm Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.bookmarks[bm.BookID]
	for i, existing := range list {
		if existing.ID == bm.ID {
			list[i] = bm
			return nil
		}
	}
	m.bookmarks[bm.BookID] = append(list, bm)
	return nil
}

func (m *Mock) DeleteBookmark(bookID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.bookmarks[bookID]
	for i, bm := range list {
		if bm.ID == id {
			m.bookmarks[bookID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Mock) BookmarksFor(bookID string) ([]Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Bookmark(nil), m.bookmarks[bookID]...), nil
}

func (m *Mock) Close() error { return nil }

// Test helpers

func (m *Mock) SetSaveError(err error) { m.mu.Lock(); m.saveErr = err; m.mu.Unlock() }
func (m *Mock) SetGetError(err error)  { m.mu.Lock(); m.getErr = err; m.mu.Unlock() }

func (m *Mock) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

func (m *Mock) Finishes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.finishes...)
}
