package savedb

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
)

// File layout of a save directory.
const (
	LevelFile  = "Level.sav"
	MetaFile   = "LevelMeta.sav"
	PlayersDir = "Players"
)

// ErrStale is returned by SaveDir when files changed on disk after load.
var ErrStale = errors.New("savedb: save directory changed on disk since load")

// ReadDir reads the files of a save directory.
func ReadDir(dir string) (Input, error) {
	var in Input
	var err error
	if in.Level, err = os.ReadFile(filepath.Join(dir, LevelFile)); err != nil {
		return in, fmt.Errorf("savedb: %w", err)
	}
	if in.Meta, err = os.ReadFile(filepath.Join(dir, MetaFile)); err != nil && !os.IsNotExist(err) {
		return in, fmt.Errorf("savedb: %w", err)
	}
	in.Players = make(map[gvas.GUID][]byte)
	entries, err := os.ReadDir(filepath.Join(dir, PlayersDir))
	if err != nil {
		if os.IsNotExist(err) {
			return in, nil
		}
		return in, fmt.Errorf("savedb: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sav") {
			continue
		}
		uid, err := gvas.ParseGUID(strings.TrimSuffix(name, ".sav"))
		if err != nil {
			// Sidecar files such as <uid>_dps.sav are not player saves.
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, PlayersDir, name))
		if err != nil {
			return in, fmt.Errorf("savedb: %w", err)
		}
		in.Players[uid] = data
	}
	return in, nil
}

// LoadDir reads and loads a save directory.
func LoadDir(dir string, opts Options) (*Document, error) {
	in, err := ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return Load(in, opts)
}

// PlayerFileName is the file name of a player save.
func PlayerFileName(uid gvas.GUID) string {
	return strings.ToUpper(strings.ReplaceAll(uid.String(), "-", "")) + ".sav"
}

// MarkStale records that the files under the document changed externally.
func (d *Document) MarkStale(reason string) {
	d.mu.Lock()
	d.stale = reason
	d.mu.Unlock()
	d.bus.Emit(events.Event{Type: events.EvStale, Text: reason})
}

// Stale returns the reason recorded by MarkStale, if any.
func (d *Document) Stale() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stale, d.stale != ""
}

// SaveDir encodes the document and writes it to dir. Every file is written
// to a temporary name and renamed into place. Files of deleted players are
// removed. A poisoned or stale document is not written. After a successful
// write only later changes are written again.
func (d *Document) SaveDir(dir string) error {
	d.mu.Lock()
	stale := d.stale
	d.mu.Unlock()
	if stale != "" {
		return fmt.Errorf("%w: %s", ErrStale, stale)
	}
	out, err := d.Encode()
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, LevelFile), out.Level); err != nil {
		return err
	}
	if len(out.Players) > 0 {
		if err := os.MkdirAll(filepath.Join(dir, PlayersDir), 0o755); err != nil {
			return fmt.Errorf("savedb: %w", err)
		}
	}
	for uid, data := range out.Players {
		if err := writeAtomic(filepath.Join(dir, PlayersDir, PlayerFileName(uid)), data); err != nil {
			return err
		}
	}
	for _, uid := range out.Removed {
		path := filepath.Join(dir, PlayersDir, PlayerFileName(uid))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("savedb: %w", err)
		}
		log.Printf("savedb: removed %s", path)
	}
	d.written(out)
	d.bus.Emit(events.Event{Type: events.EvSaved, Text: fmt.Sprintf("saved %s", dir)})
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("savedb: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("savedb: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("savedb: write %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("savedb: rename %s: %w", path, err)
	}
	return nil
}
