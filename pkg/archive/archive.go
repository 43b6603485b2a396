// Package archive snapshots a save directory into a .tar.gz before it is
// overwritten, and restores such snapshots. Every archive carries a
// manifest.json with the SHA-256 of each file so a restore can refuse a
// damaged archive.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File types recorded in the manifest.
const (
	TypeLevel   = "level"
	TypeMeta    = "meta"
	TypePlayer  = "player"
	TypeSidecar = "sidecar"
	TypeOther   = "other"
)

const manifestName = "manifest.json"

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int                  `json:"version"`
	Tool      string               `json:"tool"`
	Timestamp string               `json:"timestamp"`
	World     string               `json:"world"`
	Label     string               `json:"label,omitempty"`
	Players   int                  `json:"players"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"`
}

// ArchiveParams holds all inputs needed to create an archive.
type ArchiveParams struct {
	SaveDir    string // World save directory holding Level.sav
	ArchiveDir string // Output directory for the archive
	Label      string // Free text stored in the manifest, e.g. the command that triggered it
	Now        func() time.Time
}

// CreateArchive writes a .tar.gz of every file under the save directory and
// returns the archive path. Paths inside the archive are relative to the
// save directory. Hidden files, which include half-written temp files, are
// skipped, as is the archive directory when it lives inside the save.
func CreateArchive(params ArchiveParams) (string, error) {
	now := time.Now
	if params.Now != nil {
		now = params.Now
	}
	if _, err := os.Stat(filepath.Join(params.SaveDir, "Level.sav")); err != nil {
		return "", fmt.Errorf("archive: %s is not a save directory: %w", params.SaveDir, err)
	}
	if err := os.MkdirAll(params.ArchiveDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", params.ArchiveDir, err)
	}

	ts := now()
	archivePath, err := uniquePath(params.ArchiveDir, "archive-"+ts.Format("20060102-150405"))
	if err != nil {
		return "", err
	}

	manifest := Manifest{
		Version:   1,
		Tool:      "palsave",
		Timestamp: ts.UTC().Format(time.RFC3339),
		World:     filepath.Base(filepath.Clean(params.SaveDir)),
		Label:     params.Label,
		Files:     make(map[string]FileEntry),
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	ok := false
	defer func() {
		if !ok {
			outFile.Close()
			os.Remove(archivePath)
		}
	}()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	skip, _ := filepath.Abs(params.ArchiveDir)
	entries, err := addDirToTar(tw, params.SaveDir, skip)
	if err != nil {
		return "", err
	}
	for k, v := range entries {
		if v.Type == TypePlayer {
			manifest.Players++
		}
		manifest.Files[k] = v
	}

	// Manifest goes last so it can describe everything before it.
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    manifestName,
		Size:    int64(len(manifestJSON)),
		Mode:    0644,
		ModTime: ts,
	}); err != nil {
		return "", fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return "", fmt.Errorf("archive: write manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("archive: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("archive: close gzip: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return "", fmt.Errorf("archive: close %s: %w", archivePath, err)
	}
	ok = true
	return archivePath, nil
}

// uniquePath returns dir/base.tar.gz, or dir/base-N.tar.gz when archives were
// taken within the same second.
func uniquePath(dir, base string) (string, error) {
	for n := 0; n < 1000; n++ {
		name := base + ".tar.gz"
		if n > 0 {
			name = fmt.Sprintf("%s-%d.tar.gz", base, n)
		}
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p, nil
		}
	}
	return "", fmt.Errorf("archive: too many archives named %s", base)
}

// fileType classifies an archive path.
func fileType(archName string) string {
	switch {
	case archName == "Level.sav":
		return TypeLevel
	case archName == "LevelMeta.sav":
		return TypeMeta
	case strings.HasPrefix(archName, "Players/") && strings.HasSuffix(archName, ".sav"):
		if strings.Contains(filepath.Base(archName), "_") {
			return TypeSidecar
		}
		return TypePlayer
	default:
		return TypeOther
	}
}

// addFileToTar adds a single file to the tar archive with the given archive name,
// computing its SHA-256 while writing.
func addFileToTar(tw *tar.Writer, srcPath, archName string) (FileEntry, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}

	if err := tw.WriteHeader(&tar.Header{
		Name:    archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", archName, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", archName, err)
	}

	return FileEntry{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   written,
		Type:   fileType(archName),
	}, nil
}

// addDirToTar recursively adds the files of srcDir to the tar archive.
func addDirToTar(tw *tar.Writer, srcDir, skipDir string) (map[string]FileEntry, error) {
	entries := make(map[string]FileEntry)
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != srcDir && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if abs, _ := filepath.Abs(path); abs == skipDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		archName := filepath.ToSlash(rel)
		entry, err := addFileToTar(tw, path, archName)
		if err != nil {
			return err
		}
		entries[archName] = entry
		return nil
	})
	return entries, err
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
