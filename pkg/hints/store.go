// Package hints loads operator-supplied hint files.
//
// A hint is a JSON object stored as <name>.json in one of the configured hint
// directories. An empty file is a hint with no data; its presence alone is
// the signal. When a name appears in more than one directory the first
// directory wins.
package hints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const extension = ".json"

// DefaultDebounce is how long Watch waits for a burst of file events to
// settle before reporting a change.
const DefaultDebounce = 500 * time.Millisecond

// Store holds the hints read by the last Refresh.
type Store struct {
	paths    []string
	debounce time.Duration
	logger   zerolog.Logger

	mu    sync.RWMutex
	hints map[string]map[string]any
}

// NewStore creates a store over the given directories. Nothing is read until
// Refresh is called.
func NewStore(paths []string, logger zerolog.Logger) *Store {
	return &Store{
		paths:    append([]string(nil), paths...),
		debounce: DefaultDebounce,
		logger:   logger,
		hints:    make(map[string]map[string]any),
	}
}

// Refresh re-reads every hint directory. Missing directories are skipped.
// Files that fail to parse are left out and reported in the returned error;
// the remaining hints are still loaded.
func (s *Store) Refresh() error {
	loaded := make(map[string]map[string]any)
	var errs []error

	for _, dir := range s.paths {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+extension))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid hint path %s: %w", dir, err))
			continue
		}
		sort.Strings(matches)

		for _, path := range matches {
			name := strings.TrimSuffix(filepath.Base(path), extension)
			if _, exists := loaded[name]; exists {
				s.logger.Debug().Str("hint", name).Str("path", path).Msg("Hint shadowed by earlier path")
				continue
			}

			data, err := readHint(path)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("Failed to load hint file")
				errs = append(errs, err)
				continue
			}
			loaded[name] = data
		}
	}

	s.mu.Lock()
	s.hints = loaded
	s.mu.Unlock()

	s.logger.Debug().Int("hints", len(loaded)).Msg("Hints loaded")
	return errors.Join(errs...)
}

func readHint(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hint file: %w", err)
	}

	data := make(map[string]any)
	if len(bytes.TrimSpace(raw)) == 0 {
		return data, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse hint file %s: %w", path, err)
	}
	return data, nil
}

// Hint returns the named hint.
func (s *Store) Hint(name string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.hints[name]
	return data, ok
}

// Names returns the loaded hint names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.hints))
	for name := range s.hints {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Watch reports changes to hint files until ctx is done. Each value sent is
// the set of hint names touched by one burst of events, sorted. The store
// itself is not refreshed; the receiver decides when to call Refresh.
func (s *Store) Watch(ctx context.Context) (<-chan []string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := 0
	for _, dir := range s.paths {
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch hint directory")
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = watcher.Close()
		return nil, fmt.Errorf("no hint directory could be watched")
	}

	changes := make(chan []string)
	go s.processEvents(ctx, watcher, changes)

	s.logger.Info().Int("paths", watched).Msg("Started watching hint paths")
	return changes, nil
}

func (s *Store) processEvents(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- []string) {
	defer close(changes)
	defer watcher.Close()

	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != extension {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			name := strings.TrimSuffix(filepath.Base(event.Name), extension)
			s.logger.Debug().Str("hint", name).Str("op", event.Op.String()).Msg("Hint file changed")
			pending[name] = true

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(s.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			pending = make(map[string]bool)

			select {
			case changes <- names:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
