// Package watch flags a loaded save as stale when another process, usually
// the game server, writes its directory.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultGrace is how long after a Suspend returns events are still
// attributed to our own write.
const DefaultGrace = 500 * time.Millisecond

// Marker receives the stale notification. *savedb.Document implements it.
type Marker interface {
	MarkStale(reason string)
}

// Watcher watches a save directory and its Players subdirectory.
type Watcher struct {
	dir    string
	marker Marker
	fs     *fsnotify.Watcher
	grace  time.Duration

	mu        sync.Mutex
	suspended int
	quietTill time.Time
	fired     bool
}

// New starts watching dir. Call Run to process events and Close when done.
func New(dir string, marker Marker) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{dir: dir, marker: marker, fs: fs, grace: DefaultGrace}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch: %s: %w", dir, err)
	}
	players := filepath.Join(dir, "Players")
	if info, err := os.Stat(players); err == nil && info.IsDir() {
		if err := fs.Add(players); err != nil {
			fs.Close()
			return nil, fmt.Errorf("watch: %s: %w", players, err)
		}
	}
	return w, nil
}

// SetGrace overrides DefaultGrace.
func (w *Watcher) SetGrace(d time.Duration) {
	w.mu.Lock()
	w.grace = d
	w.mu.Unlock()
}

// Rearm lets the next external change mark the document again, after the
// caller reloaded it.
func (w *Watcher) Rearm() {
	w.mu.Lock()
	w.fired = false
	w.mu.Unlock()
}

// Close stops watching.
func (w *Watcher) Close() error { return w.fs.Close() }

// Suspend runs fn with change detection paused, for writes made by this
// process. Events arriving within the grace period after fn are ignored too.
func (w *Watcher) Suspend(fn func() error) error {
	w.mu.Lock()
	w.suspended++
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.suspended--
		w.quietTill = time.Now().Add(w.grace)
		w.mu.Unlock()
	}()
	return fn()
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("watch: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if ev.Has(fsnotify.Create) && name == "Players" && filepath.Dir(ev.Name) == filepath.Clean(w.dir) {
		if err := w.fs.Add(ev.Name); err != nil {
			log.Printf("watch: %s: %v", ev.Name, err)
		}
		return
	}
	if !relevant(ev) {
		return
	}

	w.mu.Lock()
	quiet := w.suspended > 0 || time.Now().Before(w.quietTill)
	first := !quiet && !w.fired
	if first {
		w.fired = true
	}
	w.mu.Unlock()
	if !first {
		return
	}

	rel, err := filepath.Rel(w.dir, ev.Name)
	if err != nil {
		rel = name
	}
	reason := fmt.Sprintf("%s: %s", filepath.ToSlash(rel), strings.ToLower(ev.Op.String()))
	log.Printf("watch: save changed on disk (%s)", reason)
	w.marker.MarkStale(reason)
}

// relevant reports whether ev touches a save file. Hidden files are the
// temp files of atomic writes; chmod alone changes no content.
func relevant(ev fsnotify.Event) bool {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".sav") {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
