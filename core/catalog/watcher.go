package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"SyncFM/logger"
	"SyncFM/model"
)

// Watcher reports which mode directories changed on disk.
// Bursts of events (a copy of an album) are coalesced into one callback per
// mode once the directory has been quiet for the debounce period.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(model.Mode)

	mu     sync.Mutex
	timers map[model.Mode]*time.Timer
	closed chan struct{}
	once   sync.Once
}

// NewWatcher starts watching every mode directory of c, including
// subdirectories present now or created later.
func NewWatcher(c *Catalog, debounce time.Duration, onChange func(model.Mode)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		catalog:  c,
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
		timers:   make(map[model.Mode]*time.Timer),
		closed:   make(chan struct{}),
	}

	for _, dir := range c.dirs {
		if err := w.addTree(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("Catalog directory does not exist, not watching it", logger.String("dir", path))
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// modeOf finds the mode whose directory contains path.
func (w *Watcher) modeOf(path string) (model.Mode, bool) {
	for mode, dir := range w.catalog.dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return mode, true
		}
	}
	return "", false
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Catalog watcher error", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	mode, ok := w.modeOf(event.Name)
	if !ok {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("Failed to watch new directory", logger.String("dir", event.Name), logger.ErrorField(err))
			}
			w.schedule(mode)
			return
		}
	}

	// Removing or renaming a directory shows up without an extension.
	if !w.catalog.Playable(event.Name) && event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.schedule(mode)
}

func (w *Watcher) schedule(mode model.Mode) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.closed:
		return
	default:
	}

	if t, ok := w.timers[mode]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[mode] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, mode)
		w.mu.Unlock()

		logger.Info("Catalog directory changed", logger.String("mode", mode.String()))
		w.onChange(mode)
	})
}

// Close stops watching. Pending callbacks are cancelled.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		close(w.closed)
		for mode, t := range w.timers {
			t.Stop()
			delete(w.timers, mode)
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}
