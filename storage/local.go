package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore serves audio files below a directory.
type LocalStore struct {
	root string
	exts map[string]struct{}
}

// NewLocalStore serves files under root whose extension is one of exts.
func NewLocalStore(root string, exts []string) *LocalStore {
	return &LocalStore{root: root, exts: extensionSet(exts)}
}

func (s *LocalStore) Open(_ context.Context, id string) (*Audio, error) {
	id, err := CleanID(id)
	if err != nil {
		return nil, err
	}
	if !hasExtension(s.exts, id) {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(id)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", id, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return &Audio{
		Content:     f,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: ContentType(id),
	}, nil
}
