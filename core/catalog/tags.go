package catalog

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// TagFileReader reads ID3, MP4, FLAC and Ogg Vorbis tags from disk.
type TagFileReader struct{}

func (TagFileReader) ReadTags(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, fmt.Errorf("read tags of %s: %w", path, err)
	}
	return Tags{Title: m.Title(), Artist: m.Artist()}, nil
}
