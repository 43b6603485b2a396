package presetstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/savedb"
	"github.com/crystal-mush/palsave/pkg/savedb/savetest"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func loadDoc(t *testing.T, w *savetest.World) *savedb.Document {
	t.Helper()
	level, players, err := w.Files()
	if err != nil {
		t.Fatalf("building fixture: %v", err)
	}
	doc, err := savedb.Load(savedb.Input{Level: level, Players: players}, savedb.Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return doc
}

func TestSlotPresetRoundTrip(t *testing.T) {
	w := savetest.New()
	doc := loadDoc(t, w)
	exported, err := doc.ExportSlots(w.Player.Inventory.Common)
	if err != nil {
		t.Fatalf("ExportSlots: %v", err)
	}
	if len(exported) != 2 || exported[1].Dynamic == nil {
		t.Fatalf("exported = %+v", exported)
	}

	path := filepath.Join(t.TempDir(), "presets.bolt")
	s := openStore(t, path)
	p, err := NewSlotPreset("Starter Kit", exported)
	if err != nil {
		t.Fatalf("NewSlotPreset: %v", err)
	}
	if err := s.PutSlots(p); err != nil {
		t.Fatalf("PutSlots: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = openStore(t, path)
	defer s.Close()
	got, err := s.Slots("  starter kit")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if got.Name != "Starter Kit" {
		t.Errorf("name = %q", got.Name)
	}
	records, err := got.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if diff := cmp.Diff(exported, records, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}

	if err := doc.ImportSlots(w.Loose, records); err != nil {
		t.Fatalf("ImportSlots: %v", err)
	}
	dyn, ok := doc.ItemDynamic(w.Loose, 1)
	if !ok {
		t.Fatal("imported weapon has no dynamic item")
	}
	if dyn.LocalID() == w.Weapon || dyn.Item.Durability != 100 {
		t.Errorf("imported dynamic = %+v", dyn.Item)
	}
}

func TestPalPresetApply(t *testing.T) {
	w := savetest.New()
	doc := loadDoc(t, w)
	err := doc.EditPal(w.Player.Pal, func(p *entity.Pal) {
		p.SetLevel(30)
		p.SetExp(12345)
		p.SetRank(4)
		p.SetNickname("Fluffy")
		p.SetGender(entity.GenderFemale)
		p.SetTalents(entity.Talents{HP: 90, Shot: 80, Defense: 70})
		p.SetSouls(entity.Souls{HP: 3, Attack: 2})
		p.SetPassiveSkills([]string{"Legend", "Swift"})
		p.SetBoss(true)
	})
	if err != nil {
		t.Fatal(err)
	}
	src, _ := doc.Pal(w.Player.Pal)
	preset := CapturePal("alpha sheep", src)

	s := openStore(t, filepath.Join(t.TempDir(), "presets.bolt"))
	defer s.Close()
	if err := s.PutPal(preset); err != nil {
		t.Fatalf("PutPal: %v", err)
	}
	stored, err := s.Pal("Alpha Sheep")
	if err != nil {
		t.Fatalf("Pal: %v", err)
	}

	if err := doc.EditPal(w.OtherPlayer.Pal, stored.Apply); err != nil {
		t.Fatal(err)
	}
	dst, _ := doc.Pal(w.OtherPlayer.Pal)
	ignore := cmpopts.IgnoreFields(PalPreset{}, "Name", "Created")
	if diff := cmp.Diff(preset, CapturePal("", dst), ignore, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("applied preset (-want +got):\n%s", diff)
	}
	if !dst.IsBoss() || dst.Owner() != w.OtherPlayer.UID {
		t.Errorf("boss=%v owner=%s", dst.IsBoss(), dst.Owner())
	}
}

func TestNamesAndDelete(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "presets.bolt"))
	defer s.Close()
	for _, name := range []string{"b", "a"} {
		if err := s.PutSlots(&SlotPreset{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PutPal(&PalPreset{Name: "p"}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutSlots(&SlotPreset{Name: " "}); err == nil {
		t.Error("stored a preset without a name")
	}

	names, err := s.SlotNames()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("slot names (-want +got):\n%s", diff)
	}
	if slots, pals := s.Counts(); slots != 2 || pals != 1 {
		t.Errorf("counts = %d, %d", slots, pals)
	}

	if err := s.DeleteSlots("A"); err != nil {
		t.Fatalf("DeleteSlots: %v", err)
	}
	if err := s.DeleteSlots("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
	if _, err := s.Pal("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing pal = %v, want ErrNotFound", err)
	}
	if err := s.DeletePal("p"); err != nil {
		t.Fatal(err)
	}
	if names, _ := s.PalNames(); len(names) != 0 {
		t.Errorf("pal names after delete = %v", names)
	}
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, filepath.Join(dir, "presets.bolt"))
	if err := s.PutPal(&PalPreset{Name: "keep", Level: 10}); err != nil {
		t.Fatal(err)
	}
	backup := filepath.Join(dir, "copy.bolt")
	if err := s.Backup(backup); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	s.Close()

	b := openStore(t, backup)
	defer b.Close()
	p, err := b.Pal("keep")
	if err != nil || p.Level != 10 {
		t.Fatalf("backup pal = %+v, %v", p, err)
	}
}
