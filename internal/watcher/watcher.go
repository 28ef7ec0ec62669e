// Package watcher provides file system watching with debouncing for the
// followup database. Another process writing the database (a CLI enroll,
// a contact import) nudges the scheduler into an early tick instead of
// waiting out the interval.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/followup/internal/log"
)

// DefaultDebounce is how long writes must stay quiet before a change
// notification fires.
const DefaultDebounce = time.Second

// Watcher coalesces writes to the database file and its sidecars into
// change notifications.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	names    map[string]struct{}
	debounce time.Duration
	onChange chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New builds a watcher for the database at dbPath. A non-positive
// debounce falls back to DefaultDebounce.
func New(dbPath string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	// Writers we don't control may run the database in rollback-journal
	// mode rather than WAL, so both sidecar names count as writes.
	base := filepath.Base(dbPath)
	return &Watcher{
		fsw: fsw,
		dir: filepath.Dir(dbPath),
		names: map[string]struct{}{
			base:              {},
			base + "-wal":     {},
			base + "-journal": {},
		},
		debounce: debounce,
		onChange: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directory holding the database and returns the
// channel that fires once writes go quiet for the debounce window.
func (w *Watcher) Start() (<-chan struct{}, error) {
	if err := w.fsw.Add(w.dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", w.dir, err)
	}
	log.Debug(log.CatWatcher, "watching database directory", "dir", w.dir)

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. Safe to call more
// than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

// loop coalesces bursts of file events into single notifications. A write
// restarts the debounce timer; only a quiet period fires onChange.
func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.isDatabaseWrite(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-fire:
			// Non-blocking send; a pending notification already covers this change.
			select {
			case w.onChange <- struct{}{}:
			default:
			}
			timer = nil
			fire = nil

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "file watch error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isDatabaseWrite reports whether the event is a write or create on the
// database or one of its sidecar files. Everything else in the watched
// directory is noise.
func (w *Watcher) isDatabaseWrite(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	_, ok := w.names[filepath.Base(event.Name)]
	return ok
}
