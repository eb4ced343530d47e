package engine

import (
	"os"
	"path/filepath"

	"github.com/dhowden/tag"
)

// ReadMetadata extracts display metadata from a local audio file. Missing
// or unreadable tags fall back to the file name; only opening the file can
// fail.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	meta := Metadata{Title: filepath.Base(path)}

	m, err := tag.ReadFrom(f)
	if err != nil {
		return meta, nil
	}
	if t := m.Title(); t != "" {
		meta.Title = t
	}
	if a := m.AlbumArtist(); a != "" {
		meta.Author = a
	} else {
		meta.Author = m.Artist()
	}
	return meta, nil
}
