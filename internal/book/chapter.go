package book

import (
	"fmt"
	"time"
)

// Chapter is one entry of a book's chapter list. Chapters are contiguous:
// each End equals the next chapter's Start, and the last End equals the
// book duration.
type Chapter struct {
	ID    int
	Start time.Duration
	End   time.Duration
	Title string
}

// Contains reports whether pos falls inside the chapter's range.
func (c Chapter) Contains(pos time.Duration) bool {
	return pos >= c.Start && pos < c.End
}

// Locate returns the index of the chapter containing pos.
//
// It scans backward and returns the first chapter whose Start is at or
// before pos. Chapter lists are short (tens of entries), and because the
// list is contiguous the backward scan needs no upper-bound check: a
// position past the last End (float drift near the end of the book) still
// resolves to the last chapter, and a position before the first Start
// resolves to 0. Callers must handle an empty list themselves; Locate
// returns 0 for it.
func Locate(chapters []Chapter, pos time.Duration) int {
	for i := len(chapters) - 1; i >= 0; i-- {
		if chapters[i].Start <= pos {
			return i
		}
	}
	return 0
}

// ValidateChapters checks the contiguity invariant: ascending, non-empty
// ranges, each End meeting the next Start, and the last End matching the
// book duration. An empty list is valid (chapterless book).
func ValidateChapters(chapters []Chapter, duration time.Duration) error {
	if len(chapters) == 0 {
		return nil
	}
	for i, c := range chapters {
		if c.Start >= c.End {
			return fmt.Errorf("chapter %d: start %v not before end %v", i, c.Start, c.End)
		}
		if i+1 < len(chapters) && c.End != chapters[i+1].Start {
			return fmt.Errorf("chapter %d: end %v does not meet next start %v", i, c.End, chapters[i+1].Start)
		}
	}
	if last := chapters[len(chapters)-1]; duration > 0 && last.End != duration {
		return fmt.Errorf("last chapter ends at %v, book duration is %v", last.End, duration)
	}
	return nil
}
