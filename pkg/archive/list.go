package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ArchiveInfo holds metadata about an existing archive file.
type ArchiveInfo struct {
	Path      string // Full filesystem path
	Filename  string // Base filename
	Size      int64  // File size in bytes
	Timestamp string // From manifest, or file mod time
	World     string // From manifest
	Label     string // From manifest
	Players   int    // From manifest
}

// ListArchives scans an archive directory for .tar.gz files and returns info
// about each, sorted newest-first. A missing directory holds no archives.
func ListArchives(archiveDir string) ([]ArchiveInfo, error) {
	pattern := filepath.Join(archiveDir, "*.tar.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("archive: glob %s: %w", pattern, err)
	}

	var archives []ArchiveInfo
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		ai := ArchiveInfo{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      info.Size(),
			Timestamp: info.ModTime().UTC().Format(time.RFC3339),
		}

		if m, err := ReadManifest(path); err == nil {
			ai.Timestamp = m.Timestamp
			ai.World = m.World
			ai.Label = m.Label
			ai.Players = m.Players
		}

		archives = append(archives, ai)
	}

	// RFC3339 sorts lexically. Same-second archives carry a growing -N
	// suffix, so the longer name is the newer one.
	sort.Slice(archives, func(i, j int) bool {
		a, b := archives[i], archives[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if len(a.Filename) != len(b.Filename) {
			return len(a.Filename) > len(b.Filename)
		}
		return a.Filename > b.Filename
	})

	return archives, nil
}

// Prune deletes all but the newest retain archives and returns the removed
// paths. A retain of zero or less keeps everything.
func Prune(archiveDir string, retain int) ([]string, error) {
	if retain <= 0 {
		return nil, nil
	}
	archives, err := ListArchives(archiveDir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, a := range archives[min(retain, len(archives)):] {
		if err := os.Remove(a.Path); err != nil {
			return removed, fmt.Errorf("archive: prune %s: %w", a.Filename, err)
		}
		log.Printf("archive: pruned %s", a.Filename)
		removed = append(removed, a.Path)
	}
	return removed, nil
}

// ReadManifest opens a .tar.gz file and extracts the manifest.json entry.
func ReadManifest(archivePath string) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name == manifestName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, err
			}
			var m Manifest
			if err := json.Unmarshal(data, &m); err != nil {
				return nil, err
			}
			return &m, nil
		}
	}
	return nil, fmt.Errorf("manifest.json not found in archive")
}
