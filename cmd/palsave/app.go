package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/crystal-mush/palsave/pkg/archive"
	"github.com/crystal-mush/palsave/pkg/config"
	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/journal"
	"github.com/crystal-mush/palsave/pkg/metrics"
	"github.com/crystal-mush/palsave/pkg/presetstore"
	"github.com/crystal-mush/palsave/pkg/refdata"
	"github.com/crystal-mush/palsave/pkg/savedb"
	"github.com/crystal-mush/palsave/pkg/watch"
)

// app is one editing session over a save directory.
type app struct {
	dir  string
	cfg  *config.Config
	opts *options
	out  io.Writer

	bus     *events.Bus
	names   entity.Names
	ref     *refdata.Names
	metrics *metrics.Metrics
	journal *journal.Journal
	store   *presetstore.Store
	watcher *watch.Watcher
	cancel  context.CancelFunc
	follows map[gvas.GUID]following

	mu    sync.Mutex // guards doc against the watcher goroutine
	doc   *savedb.Document
	dirty bool
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) load() error {
	a.printf("Loading save: %s\n", a.dir)
	doc, elapsed, err := loadTimed(a.dir, savedb.Options{
		Bus:      a.bus,
		Settings: a.cfg.Settings(),
		Names:    a.names,
	})
	if err != nil {
		return err
	}
	a.printf("Loaded in %v\n", elapsed.Round(time.Millisecond))
	a.mu.Lock()
	a.doc = doc
	a.mu.Unlock()
	a.dirty = false
	a.metrics.Attach(doc)
	a.metrics.Update()
	return nil
}

// watch starts marking the document stale on external writes. Reloading
// keeps the watcher and points it at the new document.
func (a *app) watch() error {
	w, err := watch.New(a.dir, markerFunc(func(reason string) {
		a.mu.Lock()
		doc := a.doc
		a.mu.Unlock()
		if doc != nil {
			doc.MarkStale(reason)
		}
	}))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.watcher, a.cancel = w, cancel
	go w.Run(ctx)
	return nil
}

type markerFunc func(reason string)

func (f markerFunc) MarkStale(reason string) { f(reason) }

// presets opens the preset store on first use.
func (a *app) presets() (*presetstore.Store, error) {
	if a.store == nil {
		s, err := presetstore.Open(a.cfg.PresetDB)
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	return a.store, nil
}

// save archives the directory as it is on disk, prunes old archives and
// writes the document. The watcher ignores the write.
func (a *app) save(label string) error {
	if a.opts.dryRun {
		a.printf("Dry run: changes not written\n")
		return nil
	}
	if reason, stale := a.doc.Stale(); stale {
		return fmt.Errorf("%w: %s (reload to discard changes)", savedb.ErrStale, reason)
	}
	if !a.opts.noBackup {
		path, err := archive.CreateArchive(archive.ArchiveParams{
			SaveDir:    a.dir,
			ArchiveDir: a.cfg.BackupDir,
			Label:      label,
		})
		if err != nil {
			return fmt.Errorf("backup before save: %w", err)
		}
		a.printf("Backup: %s\n", path)
		if _, err := archive.Prune(a.cfg.BackupDir, a.cfg.BackupRetain); err != nil {
			log.Printf("backup prune: %v", err)
		}
	}
	write := func() error { return a.doc.SaveDir(a.dir) }
	var err error
	if a.watcher != nil {
		err = a.watcher.Suspend(write)
	} else {
		err = write()
	}
	if err != nil {
		return err
	}
	a.dirty = false
	a.metrics.Update()
	a.printf("Saved %s\n", a.dir)
	return nil
}

func (a *app) close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
