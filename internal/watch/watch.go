// Package watch turns filesystem notifications for a set of tracked files
// into debounced change events. It decides only WHEN a file changed; what
// to do about it belongs to the caller.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"snapstore/internal/store"
)

// Event reports that a tracked file changed and its debounce window passed.
type Event struct {
	Path string
}

// Watcher watches a set of tracked file paths. The watched set lives inside
// the Run loop and is only ever changed by commands delivered over a
// channel, so there is no shared watch-list to lock.
type Watcher struct {
	debounce time.Duration
	logger   store.Logger
	commands chan []string
	events   chan Event
}

// New creates a Watcher. Each tracked file's events are coalesced: a backup
// event fires only after debounce has elapsed with no further changes.
func New(debounce time.Duration, logger store.Logger) *Watcher {
	if logger == nil {
		logger = store.NewNopLogger()
	}
	return &Watcher{
		debounce: debounce,
		logger:   logger,
		commands: make(chan []string, 1),
		events:   make(chan Event, 16),
	}
}

// Events returns the channel on which debounced change events arrive.
func (w *Watcher) Events() <-chan Event { return w.events }

// SetWatched replaces the watched set. The latest replacement wins if
// several arrive before the Run loop picks one up.
func (w *Watcher) SetWatched(paths []string) {
	for {
		select {
		case w.commands <- paths:
			return
		default:
		}
		select {
		case <-w.commands:
		default:
		}
	}
}

// Run owns the fsnotify watcher and the watched set until ctx is done.
// Parent directories of tracked files are watched and events are filtered
// down to the tracked paths themselves, so files that are replaced by
// rename (the common editor save pattern) keep producing events.
func (w *Watcher) Run(ctx context.Context, initial []string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	tracked := make(map[string]bool)
	watchedDirs := make(map[string]bool)
	timers := make(map[string]*time.Timer)

	apply := func(paths []string) {
		next := make(map[string]bool, len(paths))
		nextDirs := make(map[string]bool, len(paths))
		for _, p := range paths {
			p = filepath.Clean(p)
			next[p] = true
			nextDirs[filepath.Dir(p)] = true
		}

		for dir := range watchedDirs {
			if !nextDirs[dir] {
				if err := fw.Remove(dir); err != nil {
					w.logger.Warn("unwatching directory", "dir", dir, "error", err)
				}
				delete(watchedDirs, dir)
			}
		}
		for dir := range nextDirs {
			if !watchedDirs[dir] {
				if err := fw.Add(dir); err != nil {
					w.logger.Error("watching directory", "dir", dir, "error", err)
					continue
				}
				watchedDirs[dir] = true
			}
		}

		tracked = next
		w.logger.Info("watch set updated", "files", len(tracked), "dirs", len(watchedDirs))
	}

	apply(initial)

	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case paths := <-w.commands:
			apply(paths)

		case ev, ok := <-fw.Events:
			if !ok {
				w.logger.Error("events channel closed")
				return nil
			}
			path := filepath.Clean(ev.Name)
			if !tracked[path] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("change detected", "path", path, "op", ev.Op.String())

			if t, exists := timers[path]; exists {
				t.Reset(w.debounce)
				continue
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				select {
				case w.events <- Event{Path: path}:
				case <-ctx.Done():
				}
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}
