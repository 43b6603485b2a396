package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/palsave/pkg/savedb"
	"github.com/crystal-mush/palsave/pkg/savedb/savetest"
)

func writeSave(t *testing.T) (string, *savetest.World) {
	t.Helper()
	dir := t.TempDir()
	w := savetest.New()
	if err := w.WriteDir(dir); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Players", "notes_dps.sav"), []byte("dps"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".Level.sav.123"), []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, w
}

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		tm, _ := time.Parse(time.RFC3339, ts)
		return tm
	}
}

func TestCreateArchiveManifest(t *testing.T) {
	dir, w := writeSave(t)
	out := filepath.Join(dir, "backups")

	path, err := CreateArchive(ArchiveParams{SaveDir: dir, ArchiveDir: out, Label: "save", Now: fixedClock("2026-03-01T10:00:00Z")})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if filepath.Base(path) != "archive-20260301-100000.tar.gz" {
		t.Errorf("archive name = %s", filepath.Base(path))
	}

	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	types := map[string]string{}
	for name, e := range m.Files {
		types[name] = e.Type
	}
	want := map[string]string{
		"Level.sav": TypeLevel,
		"Players/" + savedb.PlayerFileName(w.Player.UID):      TypePlayer,
		"Players/" + savedb.PlayerFileName(w.OtherPlayer.UID): TypePlayer,
		"Players/notes_dps.sav":                               TypeSidecar,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("manifest files (-want +got):\n%s", diff)
	}
	if m.Players != 2 || m.Label != "save" || m.World != filepath.Base(dir) {
		t.Errorf("manifest = %+v", m)
	}
}

func TestCreateArchiveRequiresLevel(t *testing.T) {
	if _, err := CreateArchive(ArchiveParams{SaveDir: t.TempDir(), ArchiveDir: t.TempDir()}); err == nil {
		t.Error("archived a directory without Level.sav")
	}
}

func TestRestoreArchive(t *testing.T) {
	dir, w := writeSave(t)
	level, err := os.ReadFile(filepath.Join(dir, "Level.sav"))
	if err != nil {
		t.Fatal(err)
	}
	path, err := CreateArchive(ArchiveParams{SaveDir: dir, ArchiveDir: t.TempDir()})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "Level.sav"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	extra := filepath.Join(dir, "Players", "FFFFFFFF000000000000000000000001.sav")
	if err := os.WriteFile(extra, []byte("new player"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "Players", savedb.PlayerFileName(w.OtherPlayer.UID))); err != nil {
		t.Fatal(err)
	}

	res, err := RestoreArchive(RestoreParams{ArchivePath: path, SaveDir: dir})
	if err != nil {
		t.Fatalf("RestoreArchive: %v", err)
	}
	if res.FilesRestored != 4 {
		t.Errorf("restored %d files, want 4", res.FilesRestored)
	}
	if diff := cmp.Diff([]string{extra}, res.Removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	got, err := os.ReadFile(filepath.Join(dir, "Level.sav"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, level) {
		t.Error("Level.sav not restored")
	}

	doc, err := savedb.LoadDir(dir, savedb.Options{})
	if err != nil {
		t.Fatalf("LoadDir after restore: %v", err)
	}
	if n := len(doc.Players()); n != 2 {
		t.Errorf("players after restore = %d, want 2", n)
	}
}

func TestRestoreKeepExtra(t *testing.T) {
	dir, _ := writeSave(t)
	path, err := CreateArchive(ArchiveParams{SaveDir: dir, ArchiveDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	extra := filepath.Join(dir, "Players", "FFFFFFFF000000000000000000000001.sav")
	if err := os.WriteFile(extra, []byte("new player"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := RestoreArchive(RestoreParams{ArchivePath: path, SaveDir: dir, KeepExtra: true})
	if err != nil {
		t.Fatalf("RestoreArchive: %v", err)
	}
	if len(res.Removed) != 0 {
		t.Errorf("removed = %v", res.Removed)
	}
	if _, err := os.Stat(extra); err != nil {
		t.Errorf("extra file: %v", err)
	}
}

// writeTarGz writes a hand-built archive with the given entries in order.
func writeTarGz(t *testing.T, entries [][2]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hand.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: e[0], Size: int64(len(e[1])), Mode: 0644, Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(e[1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRestoreRejectsBadChecksum(t *testing.T) {
	m, _ := json.Marshal(Manifest{Version: 1, Files: map[string]FileEntry{
		"Level.sav": {SHA256: "00", Size: 4, Type: TypeLevel},
	}})
	path := writeTarGz(t, [][2]string{{"Level.sav", "PlZx"}, {manifestName, string(m)}})

	dir := t.TempDir()
	if _, err := RestoreArchive(RestoreParams{ArchivePath: path, SaveDir: dir}); err == nil {
		t.Fatal("restored an archive with a bad checksum")
	}
	if _, err := os.Stat(filepath.Join(dir, "Level.sav")); !os.IsNotExist(err) {
		t.Error("files were copied before validation finished")
	}
}

func TestRestoreRejectsTraversal(t *testing.T) {
	path := writeTarGz(t, [][2]string{{"../escape.sav", "x"}})
	if _, err := RestoreArchive(RestoreParams{ArchivePath: path, SaveDir: t.TempDir()}); err == nil {
		t.Fatal("restored an archive escaping its directory")
	}
}

func TestRestoreRejectsBadLevel(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Level.sav"), []byte("not a save container"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := CreateArchive(ArchiveParams{SaveDir: dir, ArchiveDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RestoreArchive(RestoreParams{ArchivePath: path, SaveDir: t.TempDir()}); err == nil {
		t.Fatal("restored an archive whose Level.sav is not a container")
	}
}

func TestListAndPrune(t *testing.T) {
	dir, _ := writeSave(t)
	out := t.TempDir()
	stamps := []string{"2026-03-01T10:00:00Z", "2026-03-02T10:00:00Z", "2026-03-02T10:00:00Z", "2026-03-03T10:00:00Z"}
	for _, ts := range stamps {
		if _, err := CreateArchive(ArchiveParams{SaveDir: dir, ArchiveDir: out, Now: fixedClock(ts)}); err != nil {
			t.Fatalf("CreateArchive %s: %v", ts, err)
		}
	}

	list, err := ListArchives(out)
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	var names []string
	for _, a := range list {
		names = append(names, a.Filename)
	}
	want := []string{
		"archive-20260303-100000.tar.gz",
		"archive-20260302-100000-1.tar.gz",
		"archive-20260302-100000.tar.gz",
		"archive-20260301-100000.tar.gz",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("list order (-want +got):\n%s", diff)
	}
	if list[0].Players != 2 {
		t.Errorf("players = %d", list[0].Players)
	}

	removed, err := Prune(out, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	var gone []string
	for _, p := range removed {
		gone = append(gone, filepath.Base(p))
	}
	sort.Strings(gone)
	if diff := cmp.Diff([]string{"archive-20260301-100000.tar.gz", "archive-20260302-100000.tar.gz"}, gone); diff != "" {
		t.Errorf("pruned (-want +got):\n%s", diff)
	}
	if left, _ := ListArchives(out); len(left) != 2 {
		t.Errorf("left %d archives", len(left))
	}
	if removed, _ := Prune(out, 0); removed != nil {
		t.Errorf("Prune(0) removed %v", removed)
	}
}
