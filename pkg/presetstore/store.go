// Package presetstore keeps item slot presets and pal presets in a bbolt
// file so they survive between editing sessions and can be applied to any
// save.
package presetstore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	bbolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a named preset does not exist.
var ErrNotFound = errors.New("presetstore: preset not found")

// Store wraps a bbolt database of presets.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("presetstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketSlots, bucketPals} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keySchema); v != nil {
			if n := keyToInt(v); n > schemaVersion {
				return fmt.Errorf("schema %d is newer than supported %d", n, schemaVersion)
			}
			return nil
		}
		return meta.Put(keySchema, intToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("presetstore: init %s: %w", path, err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutSlots persists a slot preset, replacing any preset of the same name.
func (s *Store) PutSlots(p *SlotPreset) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("presetstore: slot preset needs a name")
	}
	data, err := encodeGob(p)
	if err != nil {
		return fmt.Errorf("presetstore: encode slots %q: %w", p.Name, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSlots).Put(nameKey(p.Name), data)
	})
}

// Slots loads the slot preset called name.
func (s *Store) Slots(name string) (*SlotPreset, error) {
	var p *SlotPreset
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSlots).Get(nameKey(name))
		if v == nil {
			return fmt.Errorf("%w: slots %q", ErrNotFound, name)
		}
		var err error
		p, err = decodeSlotPreset(v)
		if err != nil {
			return fmt.Errorf("presetstore: decode slots %q: %w", name, err)
		}
		return nil
	})
	return p, err
}

// DeleteSlots removes a slot preset.
func (s *Store) DeleteSlots(name string) error {
	return s.delete(bucketSlots, "slots", name)
}

// SlotNames lists the stored slot presets by their display names.
func (s *Store) SlotNames() ([]string, error) {
	return s.names(bucketSlots, func(v []byte) (string, error) {
		p, err := decodeSlotPreset(v)
		if err != nil {
			return "", err
		}
		return p.Name, nil
	})
}

// PutPal persists a pal preset, replacing any preset of the same name.
func (s *Store) PutPal(p *PalPreset) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("presetstore: pal preset needs a name")
	}
	data, err := encodeGob(p)
	if err != nil {
		return fmt.Errorf("presetstore: encode pal %q: %w", p.Name, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPals).Put(nameKey(p.Name), data)
	})
}

// Pal loads the pal preset called name.
func (s *Store) Pal(name string) (*PalPreset, error) {
	var p *PalPreset
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketPals).Get(nameKey(name))
		if v == nil {
			return fmt.Errorf("%w: pal %q", ErrNotFound, name)
		}
		var err error
		p, err = decodePalPreset(v)
		if err != nil {
			return fmt.Errorf("presetstore: decode pal %q: %w", name, err)
		}
		return nil
	})
	return p, err
}

// DeletePal removes a pal preset.
func (s *Store) DeletePal(name string) error {
	return s.delete(bucketPals, "pal", name)
}

// PalNames lists the stored pal presets by their display names.
func (s *Store) PalNames() ([]string, error) {
	return s.names(bucketPals, func(v []byte) (string, error) {
		p, err := decodePalPreset(v)
		if err != nil {
			return "", err
		}
		return p.Name, nil
	})
}

func (s *Store) delete(bucket []byte, kind, name string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		k := nameKey(name)
		if b.Get(k) == nil {
			return fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
		}
		return b.Delete(k)
	})
}

func (s *Store) names(bucket []byte, name func(v []byte) (string, error)) ([]string, error) {
	var out []string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			n, err := name(v)
			if err != nil {
				return fmt.Errorf("presetstore: decode %q: %w", string(k), err)
			}
			out = append(out, n)
			return nil
		})
	})
	sort.Strings(out)
	return out, err
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("presetstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("presetstore: write backup: %w", err)
		}
		log.Printf("presetstore: backup written to %s", path)
		return nil
	})
}

// Counts returns the number of slot and pal presets.
func (s *Store) Counts() (slots, pals int) {
	s.bolt.View(func(tx *bbolt.Tx) error {
		slots = tx.Bucket(bucketSlots).Stats().KeyN
		pals = tx.Bucket(bucketPals).Stats().KeyN
		return nil
	})
	return slots, pals
}
