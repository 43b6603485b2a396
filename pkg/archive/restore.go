package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crystal-mush/palsave/pkg/sav"
)

// RestoreParams holds all inputs needed to restore an archive.
type RestoreParams struct {
	ArchivePath string // Path to the .tar.gz archive
	SaveDir     string // Save directory to restore into
	// KeepExtra leaves player files that are not in the archive in place.
	// By default they are removed so the directory matches the archive.
	KeepExtra bool
}

// RestoreResult summarizes a completed restore operation.
type RestoreResult struct {
	FilesRestored int
	Removed       []string
	Warnings      []string
}

// RestoreArchive extracts an archive into a temp directory, checks every
// file against the manifest and the level container header, and only then
// copies the files over the save directory.
func RestoreArchive(params RestoreParams) (*RestoreResult, error) {
	result := &RestoreResult{}

	tmpDir, err := os.MkdirTemp("", "palsave-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extractArchive(params.ArchivePath, tmpDir); err != nil {
		return nil, fmt.Errorf("restore: extract: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("restore: manifest.json not found in archive")
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("restore: parse manifest: %w", err)
	}

	names := make([]string, 0, len(manifest.Files))
	for archName, entry := range manifest.Files {
		extractedPath := filepath.Join(tmpDir, filepath.FromSlash(archName))
		ok, err := validateChecksum(extractedPath, entry.SHA256)
		if err != nil {
			return nil, fmt.Errorf("restore: checksum %s: %w", archName, err)
		}
		if !ok {
			return nil, fmt.Errorf("restore: checksum mismatch for %s, archive may be corrupt", archName)
		}
		names = append(names, archName)
	}
	sort.Strings(names)

	level, err := os.ReadFile(filepath.Join(tmpDir, "Level.sav"))
	if err != nil {
		return nil, fmt.Errorf("restore: archive has no Level.sav")
	}
	if _, err := sav.ReadHeader(level); err != nil {
		return nil, fmt.Errorf("restore: Level.sav: %w", err)
	}

	restored := make(map[string]bool, len(names))
	for _, archName := range names {
		src := filepath.Join(tmpDir, filepath.FromSlash(archName))
		dst := filepath.Join(params.SaveDir, filepath.FromSlash(archName))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, fmt.Errorf("restore: create dir: %w", err)
		}
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("restore: copy %s: %w", archName, err)
		}
		restored[archName] = true
		result.FilesRestored++
	}

	if params.KeepExtra {
		return result, nil
	}
	players := filepath.Join(params.SaveDir, "Players")
	entries, err := os.ReadDir(players)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("restore: read players: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sav") || restored["Players/"+e.Name()] {
			continue
		}
		p := filepath.Join(players, e.Name())
		if err := os.Remove(p); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not remove %s: %v", e.Name(), err))
			continue
		}
		log.Printf("archive: removed %s, not in %s", p, filepath.Base(params.ArchivePath))
		result.Removed = append(result.Removed, p)
	}

	return result, nil
}

// extractArchive extracts a .tar.gz to a destination directory.
func extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	root := filepath.Clean(destDir) + string(filepath.Separator)
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		// Reject entries escaping the destination.
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid archive entry: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

// validateChecksum checks a file's SHA-256 against the expected hex string.
func validateChecksum(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	actual := hex.EncodeToString(h.Sum(nil))
	return actual == expected, nil
}
