package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors a directory of <name>.txt override files and keeps the
// library in sync as they change.
type Watcher struct {
	watcher            *fsnotify.Watcher
	dir                string
	library            *Library
	stabilityThreshold time.Duration
	done               chan struct{}
	debounceTimers     map[string]*time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
}

// NewWatcher creates a watcher for dir feeding overrides into library.
func NewWatcher(dir string, library *Library) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:            fw,
		dir:                dir,
		library:            library,
		stabilityThreshold: 100 * time.Millisecond,
		done:               make(chan struct{}),
		debounceTimers:     make(map[string]*time.Timer),
	}, nil
}

// Start loads existing overrides and begins watching for changes.
func (w *Watcher) Start() error {
	if err := w.loadExisting(); err != nil {
		return err
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch prompt directory: %w", err)
	}

	go w.eventLoop()

	log.Info().
		Str("dir", w.dir).
		Msg("Prompt override watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}

func (w *Watcher) loadExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read prompt directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.applyFile(filepath.Join(w.dir, entry.Name()))
	}

	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Prompt watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := overrideName(event.Name)
	if name == "" {
		return
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		w.library.ClearOverride(name)
		log.Info().Str("template", name).Msg("Prompt override removed")
		return
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	// Debounce rapid writes to the same file
	w.debounceMu.Lock()
	if timer, exists := w.debounceTimers[event.Name]; exists {
		timer.Stop()
	}
	path := event.Name
	w.debounceTimers[path] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.applyFile(path)
	})
	w.debounceMu.Unlock()
}

func (w *Watcher) applyFile(path string) {
	name := overrideName(path)
	if name == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to read prompt override")
		return
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		w.library.ClearOverride(name)
		return
	}

	w.library.SetOverride(name, text)
	log.Info().Str("template", name).Msg("Prompt override loaded")
}

// overrideName maps a file path to a template name, empty when the file is
// not a recognized override.
func overrideName(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".txt") {
		return ""
	}
	name := strings.TrimSuffix(base, ".txt")
	if !isKnownName(name) {
		return ""
	}
	return name
}
