// Package catalog turns the per-mode audio directories into ordered track
// lists with display metadata.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"SyncFM/logger"
	"SyncFM/metrics"
	"SyncFM/model"
)

// ErrEmptyCatalog is returned when a mode's directory holds no playable files.
var ErrEmptyCatalog = errors.New("catalog: no playable tracks")

// Tags is the display metadata read from a file.
type Tags struct {
	Title  string
	Artist string
}

// TagReader extracts tags from one audio file.
type TagReader interface {
	ReadTags(path string) (Tags, error)
}

// MetadataCache remembers tags of files that have not changed since they
// were last read. Implementations must be safe for concurrent use.
type MetadataCache interface {
	Lookup(ctx context.Context, id string, size int64, modTime time.Time) (Tags, bool)
	Store(ctx context.Context, id string, size int64, modTime time.Time, tags Tags) error
}

// Options configures a Catalog.
type Options struct {
	Root       string                // music root; track ids are relative to it
	Dirs       map[model.Mode]string // per-mode directory, absolute or relative to the working directory
	Extensions []string              // lowercase, with leading dot
	Reader     TagReader
	Cache      MetadataCache // optional
	Workers    int
}

// Catalog scans mode directories. It holds no track state between builds.
type Catalog struct {
	root    string
	dirs    map[model.Mode]string
	exts    map[string]struct{}
	reader  TagReader
	cache   MetadataCache
	workers int
}

// New creates a Catalog.
func New(opts Options) *Catalog {
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	dirs := make(map[model.Mode]string, len(opts.Dirs))
	for mode, dir := range opts.Dirs {
		dirs[mode] = absPath(dir)
	}
	return &Catalog{
		root:    absPath(opts.Root),
		dirs:    dirs,
		exts:    exts,
		reader:  opts.Reader,
		cache:   opts.Cache,
		workers: workers,
	}
}

// Dir returns the directory scanned for mode.
func (c *Catalog) Dir(mode model.Mode) string {
	return c.dirs[mode]
}

// Playable reports whether path has one of the configured extensions.
func (c *Catalog) Playable(path string) bool {
	_, ok := c.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

type entry struct {
	id      string
	path    string
	size    int64
	modTime time.Time
}

// Build scans the directory of mode and returns its tracks sorted by id.
// Tag failures are per file and never fail the build.
func (c *Catalog) Build(ctx context.Context, mode model.Mode) ([]model.Track, error) {
	dir, ok := c.dirs[mode]
	if !ok {
		return nil, fmt.Errorf("catalog: no directory configured for mode %q", mode)
	}

	start := time.Now()
	entries, err := c.scan(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s catalog in %s: %w", mode, dir, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: mode %s, directory %s", ErrEmptyCatalog, mode, dir)
	}

	tracks := make([]model.Track, len(entries))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.workers && w < len(entries); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				tracks[i] = c.describe(ctx, entries[i])
			}
		}()
	}

feed:
	for i := range entries {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics.CatalogTracks.WithLabelValues(mode.String()).Set(float64(len(tracks)))
	metrics.CatalogBuildDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	logger.Info("Catalog built",
		logger.String("mode", mode.String()),
		logger.String("dir", dir),
		logger.Int("tracks", len(tracks)),
		logger.Duration("took", time.Since(start)))
	return tracks, nil
}

func (c *Catalog) scan(dir string) ([]entry, error) {
	var entries []entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !c.Playable(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		id, err := c.trackID(path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{id: id, path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return entries, nil
}

// trackID is the slash-separated path of file relative to the music root.
func (c *Catalog) trackID(path string) (string, error) {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the music root %s", path, c.root)
	}
	return filepath.ToSlash(rel), nil
}

func (c *Catalog) describe(ctx context.Context, e entry) model.Track {
	var tags Tags
	cached := false
	if c.cache != nil {
		tags, cached = c.cache.Lookup(ctx, e.id, e.size, e.modTime)
	}

	if !cached && c.reader != nil {
		read, err := c.reader.ReadTags(e.path)
		if err != nil {
			metrics.TagReadFailures.Inc()
			logger.Debug("Falling back to file name for track metadata",
				logger.String("track", e.id),
				logger.ErrorField(err))
		} else {
			tags = read
			if c.cache != nil {
				if err := c.cache.Store(ctx, e.id, e.size, e.modTime, tags); err != nil {
					logger.Warn("Failed to cache track tags", logger.String("track", e.id), logger.ErrorField(err))
				}
			}
		}
	}

	t := model.Track{
		ID:     e.id,
		Title:  strings.TrimSpace(tags.Title),
		Artist: strings.TrimSpace(tags.Artist),
	}
	if t.Title == "" {
		t.Title = model.FallbackTitle(e.id)
	}
	if t.Artist == "" {
		t.Artist = model.UnknownArtist
	}
	return t
}
