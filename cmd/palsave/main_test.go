package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/palsave/pkg/archive"
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
	return dir, w
}

// palsave runs the command line and returns its output.
func palsave(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := palsave(t, "", args...)
	if err != nil {
		t.Fatalf("palsave %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func reload(t *testing.T, dir string) *savedb.Document {
	t.Helper()
	doc, err := savedb.LoadDir(dir, savedb.Options{})
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return doc
}

func TestUsage(t *testing.T) {
	t.Setenv("PALSAVE_DIR", "")
	if _, err := palsave(t, ""); !errors.Is(err, errUsage) {
		t.Errorf("no -dir = %v, want usage", err)
	}
	if _, err := palsave(t, "", "-bogus"); !errors.Is(err, errUsage) {
		t.Errorf("unknown flag = %v, want usage", err)
	}
	out := mustRun(t, "version")
	if !strings.Contains(out, Version) {
		t.Errorf("version output %q", out)
	}
}

func TestSummaryAndLists(t *testing.T) {
	dir, w := writeSave(t)
	out := mustRun(t, "-dir", dir)
	if !strings.Contains(out, "=== SAVE SUMMARY ===") || !strings.Contains(out, "Players:        2") {
		t.Errorf("summary:\n%s", out)
	}
	out = mustRun(t, "-dir", dir, "players")
	for _, name := range []string{w.Player.Name, w.OtherPlayer.Name, "Total: 2 players"} {
		if !strings.Contains(out, name) {
			t.Errorf("players output lacks %q:\n%s", name, out)
		}
	}
	out = mustRun(t, "-dir", dir, "pals", "-player", w.Player.UID.String())
	if !strings.Contains(out, w.Player.Pal.String()) || strings.Contains(out, w.OtherPlayer.Pal.String()) {
		t.Errorf("pals of %s:\n%s", w.Player.Name, out)
	}
	out = mustRun(t, "-dir", dir, "items", w.Player.Inventory.Common.String())
	if !strings.Contains(out, "durability 100") {
		t.Errorf("items output lacks the weapon:\n%s", out)
	}
	if _, err := palsave(t, "", "-dir", dir, "frobnicate"); err == nil {
		t.Error("unknown command succeeded")
	}
}

func TestDeletePalBacksUpAndJournals(t *testing.T) {
	dir, w := writeSave(t)
	jpath := filepath.Join(t.TempDir(), "journal.db")

	out := mustRun(t, "-dir", dir, "-journal", jpath, "pal", "delete", w.Player.Pal.String())
	if !strings.Contains(out, "Saved "+dir) {
		t.Errorf("output:\n%s", out)
	}
	if fi, err := os.Stat(jpath + "-wal"); err == nil && fi.Size() != 0 {
		t.Errorf("journal WAL holds %d bytes after exit", fi.Size())
	}
	if _, err := reload(t, dir).Pal(w.Player.Pal); !errors.Is(err, savedb.ErrNotFound) {
		t.Errorf("deleted pal lookup = %v, want ErrNotFound", err)
	}

	list, err := archive.ListArchives(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Label != "pal delete "+w.Player.Pal.String() {
		t.Fatalf("backups = %+v", list)
	}

	out = mustRun(t, "-dir", dir, "-journal", jpath, "journal", "-type", "pal_deleted")
	if !strings.Contains(out, "pal_deleted") || !strings.Contains(out, "Total: 1 entries") {
		t.Errorf("journal:\n%s", out)
	}
	out = mustRun(t, "-dir", dir, "-journal", jpath, "sessions")
	if !strings.Contains(out, dir) {
		t.Errorf("sessions:\n%s", out)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	dir, w := writeSave(t)
	out := mustRun(t, "-dir", dir, "-dry-run", "pal", "delete", w.Player.Pal.String())
	if !strings.Contains(out, "Dry run") {
		t.Errorf("output:\n%s", out)
	}
	if _, err := reload(t, dir).Pal(w.Player.Pal); err != nil {
		t.Errorf("pal gone after dry run: %v", err)
	}
	if list, _ := archive.ListArchives(filepath.Join(dir, "backups")); len(list) != 0 {
		t.Errorf("dry run made %d backups", len(list))
	}
}

func TestPalEditOnlyGivenFields(t *testing.T) {
	dir, w := writeSave(t)
	before, _ := reload(t, dir).Pal(w.Player.Pal)
	rank := before.Rank()

	mustRun(t, "-dir", dir, "-no-backup", "pal", "edit", "-level", "42", "-nick", "Zed", "-gender", "f", w.Player.Pal.String())
	p, err := reload(t, dir).Pal(w.Player.Pal)
	if err != nil {
		t.Fatal(err)
	}
	if p.Level() != 42 || p.Nickname() != "Zed" || p.Rank() != rank {
		t.Errorf("level=%d nick=%q rank=%d", p.Level(), p.Nickname(), p.Rank())
	}
	if _, err := palsave(t, "", "-dir", dir, "pal", "edit", w.Player.Pal.String()); err == nil {
		t.Error("edit without flags succeeded")
	}
	if _, err := palsave(t, "", "-dir", dir, "pal", "edit", "-gender", "x", w.Player.Pal.String()); err == nil {
		t.Error("bad gender accepted")
	}
}

func TestMoveAndGuildDelete(t *testing.T) {
	dir, w := writeSave(t)
	mustRun(t, "-dir", dir, "-no-backup", "pal", "move", w.Player.UID.String(), w.Player.Pal.String(), w.Player.Party.String())
	p, err := reload(t, dir).Pal(w.Player.Pal)
	if err != nil {
		t.Fatal(err)
	}
	if p.ContainerID() != w.Player.Party {
		t.Errorf("container = %s, want party %s", p.ContainerID(), w.Player.Party)
	}

	mustRun(t, "-dir", dir, "-no-backup", "guild", "delete", w.Guild.String())
	doc := reload(t, dir)
	if _, err := doc.Guild(w.Guild); !errors.Is(err, savedb.ErrNotFound) {
		t.Errorf("guild lookup = %v, want ErrNotFound", err)
	}
	if _, err := doc.Player(w.Player.UID); !errors.Is(err, savedb.ErrNotFound) {
		t.Errorf("member lookup = %v, want ErrNotFound", err)
	}
}

func TestPresets(t *testing.T) {
	dir, w := writeSave(t)
	store := filepath.Join(t.TempDir(), "presets.bolt")
	mustRun(t, "-dir", dir, "-no-backup", "-presets", store, "pal", "edit", "-level", "33", w.Player.Pal.String())
	mustRun(t, "-dir", dir, "-presets", store, "preset", "save-pal", "strong", w.Player.Pal.String())
	mustRun(t, "-dir", dir, "-presets", store, "preset", "save-slots", "kit", w.Player.Inventory.Common.String())

	out := mustRun(t, "-dir", dir, "-presets", store, "preset", "list")
	if !strings.Contains(out, "Slot presets: kit") || !strings.Contains(out, "Pal presets:  strong") {
		t.Errorf("preset list:\n%s", out)
	}

	mustRun(t, "-dir", dir, "-no-backup", "-presets", store, "preset", "apply-pal", "strong", w.OtherPlayer.Pal.String())
	mustRun(t, "-dir", dir, "-no-backup", "-presets", store, "preset", "load-slots", "kit", w.Loose.String())
	doc := reload(t, dir)
	p, _ := doc.Pal(w.OtherPlayer.Pal)
	if p.Level() != 33 || p.Owner() != w.OtherPlayer.UID {
		t.Errorf("applied pal level=%d owner=%s", p.Level(), p.Owner())
	}
	if _, ok := doc.ItemDynamic(w.Loose, 1); !ok {
		t.Error("loaded slots lack the weapon's dynamic item")
	}
}

func TestBackupRestore(t *testing.T) {
	dir, w := writeSave(t)
	out := mustRun(t, "-dir", dir, "backup", "create", "-label", "clean")
	if !strings.Contains(out, "Backup: ") {
		t.Fatalf("output:\n%s", out)
	}
	mustRun(t, "-dir", dir, "-no-backup", "pal", "delete", w.Player.Pal.String())

	list, err := archive.ListArchives(filepath.Join(dir, "backups"))
	if err != nil || len(list) != 1 {
		t.Fatalf("backups = %+v, %v", list, err)
	}
	out = mustRun(t, "-dir", dir, "backup", "list")
	if !strings.Contains(out, list[0].Filename) || !strings.Contains(out, "clean") {
		t.Errorf("backup list:\n%s", out)
	}

	mustRun(t, "-dir", dir, "backup", "restore", list[0].Path)
	if _, err := reload(t, dir).Pal(w.Player.Pal); err != nil {
		t.Errorf("pal after restore: %v", err)
	}
}

func TestValidateFix(t *testing.T) {
	dir := t.TempDir()
	w := savetest.New()
	w.DanglingRef = true
	if err := w.WriteDir(dir); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, "-dir", dir, "validate")
	if !strings.Contains(out, "dangling-ref-0") {
		t.Fatalf("validate:\n%s", out)
	}
	out = mustRun(t, "-dir", dir, "-no-backup", "validate", "-fix")
	if !strings.Contains(out, "[FIXED]") {
		t.Errorf("validate -fix:\n%s", out)
	}
	out = mustRun(t, "-dir", dir, "validate")
	if strings.Contains(out, "dangling-ref") {
		t.Errorf("finding survived the fix:\n%s", out)
	}
}

func TestShell(t *testing.T) {
	dir, w := writeSave(t)
	script := strings.Join([]string{
		`pal edit -nick "Big Sheep" ` + w.Player.Pal.String(),
		`bogus`,
		`save before rename`,
		`pal delete ` + w.OtherPlayer.Pal.String(),
		`quit`,
	}, "\n")
	out, err := palsave(t, script, "-dir", dir, "shell")
	if err != nil {
		t.Fatalf("shell: %v\n%s", err, out)
	}
	for _, want := range []string{"ERROR: unknown command \"bogus\"", "Saved " + dir, "Discarding unsaved changes"} {
		if !strings.Contains(out, want) {
			t.Errorf("shell output lacks %q:\n%s", want, out)
		}
	}
	doc := reload(t, dir)
	p, err := doc.Pal(w.Player.Pal)
	if err != nil || p.Nickname() != "Big Sheep" {
		t.Errorf("renamed pal = %v, %v", p, err)
	}
	if _, err := doc.Pal(w.OtherPlayer.Pal); err != nil {
		t.Errorf("unsaved delete reached disk: %v", err)
	}
}

func TestShellFollow(t *testing.T) {
	dir, w := writeSave(t)
	alice, bob := w.Player.UID.String(), w.OtherPlayer.UID.String()
	script := strings.Join([]string{
		`follow ` + alice,
		`follow ` + alice,
		`pal edit -nick Fluffy ` + w.Player.Pal.String(),
		`pal delete ` + w.OtherPlayer.Pal.String(),
		`follow`,
		`unfollow ` + alice,
		`unfollow ` + bob,
		`pal edit -level 7 ` + w.Player.Pal.String(),
		`quit`,
	}, "\n")
	out, err := palsave(t, script, "-dir", dir, "shell")
	if err != nil {
		t.Fatalf("shell: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Following Alice (" + alice + ")",
		"ERROR: already following " + alice,
		"[Alice] pal_edited " + w.Player.Pal.String(),
		"1 subscriber(s)",
		"Stopped following " + alice,
		"ERROR: not following " + bob,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("shell output lacks %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "[Alice]"); n != 1 {
		t.Errorf("followed events printed %d times, want 1:\n%s", n, out)
	}
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"  summary ", []string{"summary"}},
		{`pal edit -nick "Big Sheep" X`, []string{"pal", "edit", "-nick", "Big Sheep", "X"}},
		{`preset save-pal "" X`, []string{"preset", "save-pal", "", "X"}},
	}
	for _, tt := range tests {
		got, err := splitLine(tt.line)
		if err != nil {
			t.Errorf("splitLine(%q): %v", tt.line, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("splitLine(%q) (-want +got):\n%s", tt.line, diff)
		}
	}
	if _, err := splitLine(`pal edit -nick "open`); err == nil {
		t.Error("unterminated quote accepted")
	}
}
