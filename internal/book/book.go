// Package book defines the audiobook model loaded into a playback session.
package book

import "time"

// Book describes a loadable audiobook. Tracks is empty for single-file
// books; multi-file books carry one Track per audio file, ordered by
// StartOffset.
type Book struct {
	ID       string
	Title    string
	Author   string
	URL      string // single-file source, unused when Tracks is set
	Duration time.Duration
	Chapters []Chapter
	Tracks   []Track
}

// Track is one file of a multi-file book.
type Track struct {
	URL         string
	Title       string
	StartOffset time.Duration
	Duration    time.Duration
}

// HasTracks reports whether the book is a multi-file book.
func (b *Book) HasTracks() bool {
	return len(b.Tracks) > 0
}
