package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"day/a.ogg", true},
		{"night/Some Artist - Song.mp3", true},
		{"", false},
		{"/etc/passwd", false},
		{"../secret.ogg", false},
		{"day/../../x.ogg", false},
		{"day//a.ogg", false},
		{"day/.hidden.ogg", false},
		{"day\\a.ogg", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := CleanID(tt.id)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, got)
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/ogg", ContentType("day/a.OGG"))
	assert.Equal(t, "audio/mpeg", ContentType("a.mp3"))
	assert.Equal(t, "application/octet-stream", ContentType("cover.jpg"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "3.0 MB", FormatSize(3*1024*1024))
}

func TestLocalStoreOpen(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "day"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "day", "a.ogg"), []byte("OggS-audio"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "day", "notes.txt"), []byte("x"), 0o644))

	store := NewLocalStore(root, []string{".ogg", "mp3"})
	ctx := context.Background()

	audio, err := store.Open(ctx, "day/a.ogg")
	require.NoError(t, err)
	defer audio.Content.Close()
	assert.Equal(t, int64(10), audio.Size)
	assert.Equal(t, "audio/ogg", audio.ContentType)
	data, err := io.ReadAll(audio.Content)
	require.NoError(t, err)
	assert.Equal(t, "OggS-audio", string(data))

	_, err = store.Open(ctx, "day/missing.ogg")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Open(ctx, "day/notes.txt")
	assert.ErrorIs(t, err, ErrNotFound, "only audio extensions are served")
	_, err = store.Open(ctx, "../a.ogg")
	assert.Error(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir.ogg"), 0o755))
	_, err = store.Open(ctx, "dir.ogg")
	assert.ErrorIs(t, err, ErrNotFound)
}
