// Package storage opens track audio for the /music/ route, either from the
// local library or from a MinIO bucket mirroring it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when no audio exists for an id.
var ErrNotFound = errors.New("storage: audio not found")

// Audio is an opened track. Content must be closed by the caller.
type Audio struct {
	Content     io.ReadSeekCloser
	Size        int64
	ModTime     time.Time
	ContentType string
}

// AudioStore opens track audio by track id.
type AudioStore interface {
	Open(ctx context.Context, id string) (*Audio, error)
}

// CleanID validates a slash-separated track id taken from a URL.
func CleanID(id string) (string, error) {
	if id == "" || strings.HasPrefix(id, "/") || strings.Contains(id, "\\") {
		return "", fmt.Errorf("invalid track id %q", id)
	}
	clean := path.Clean(id)
	if clean != id || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid track id %q", id)
	}
	for _, part := range strings.Split(clean, "/") {
		if strings.HasPrefix(part, ".") {
			return "", fmt.Errorf("invalid track id %q", id)
		}
	}
	return clean, nil
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
}

// ContentType infers the media type of an audio file name.
func ContentType(name string) string {
	if ct, ok := audioTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// extensionSet builds a lookup of lowercase extensions with a leading dot.
func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

func hasExtension(set map[string]struct{}, name string) bool {
	_, ok := set[strings.ToLower(path.Ext(name))]
	return ok
}

// FormatSize renders a byte count for humans.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
