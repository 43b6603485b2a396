package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/savedb"
	"github.com/crystal-mush/palsave/pkg/savedb/savetest"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), 5)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func types(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}

func TestRecordsDocumentMutations(t *testing.T) {
	j := openJournal(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j.Now = func() time.Time { return clock }
	session, err := j.Begin("/saves/world")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	bus := events.NewBus()
	bus.SubscribeGlobal(j)
	w := savetest.New()
	level, players, err := w.Files()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := savedb.Load(savedb.Input{Level: level, Players: players}, savedb.Options{Bus: bus})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, err := doc.AddPal(w.Player.PalBox, "PinkCat", "", savedb.AnySlot)
	if err != nil || p == nil {
		t.Fatalf("AddPal: %v, %v", p, err)
	}
	added := p.InstanceID()
	if err := doc.EditPal(added, func(p *entity.Pal) { p.SetLevel(20) }); err != nil {
		t.Fatal(err)
	}
	if err := doc.DeletePal(added); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	all, err := j.Entries(ctx, Filter{Session: session})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if diff := cmp.Diff([]string{"pal_added", "pal_edited", "pal_deleted"}, types(all)); diff != "" {
		t.Fatalf("entry types (-want +got):\n%s", diff)
	}
	first := all[0]
	if first.Subject != added || first.Owner != w.Player.UID || !first.At.Equal(clock) || first.Session != session {
		t.Errorf("first entry = %+v", first)
	}

	edited, err := j.Entries(ctx, Filter{Type: "pal_edited"})
	if err != nil || len(edited) != 1 {
		t.Fatalf("filtered by type: %v, %v", edited, err)
	}
	byOwner, err := j.Entries(ctx, Filter{Subject: w.Player.UID, Limit: 2})
	if err != nil || len(byOwner) != 2 {
		t.Errorf("filtered by owner: %d entries, %v", len(byOwner), err)
	}

	sessions, err := j.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Entries != 3 || sessions[0].SaveDir != "/saves/world" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestEventsWithoutSessionAreDropped(t *testing.T) {
	j := openJournal(t)
	j.Receive(events.Event{Type: events.EvPalAdded, Text: "early"})
	j.Receive(events.Event{Type: events.EvProgress, Text: "ignored"})
	if _, err := j.Begin("dir"); err != nil {
		t.Fatal(err)
	}
	j.Receive(events.Event{Type: events.EvProgress, Text: "ignored"})
	j.Receive(events.Event{Type: events.EvSaved, Text: "saved dir"})

	all, err := j.Entries(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"saved"}, types(all)); diff != "" {
		t.Errorf("entry types (-want +got):\n%s", diff)
	}
	if err := j.Checkpoint(); err != nil {
		t.Errorf("Checkpoint: %v", err)
	}
}

func TestClosedJournal(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if !j.Closed() {
		t.Error("Closed() = false after Close")
	}
	j.Receive(events.Event{Type: events.EvSaved})
	if err := j.Checkpoint(); err == nil {
		t.Error("Checkpoint on a closed journal succeeded")
	}
}
