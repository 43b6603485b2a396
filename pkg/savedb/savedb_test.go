package savedb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
	"github.com/crystal-mush/palsave/pkg/sav"
	"github.com/crystal-mush/palsave/pkg/savedb/savetest"
)

type testSettings struct{ entity.DefaultSettings }

func (testSettings) CloneNicknamePrefix() string { return "Copy of " }
func (testSettings) NewPalNickname() string      { return "Newbie" }

func fixtureInput(t *testing.T, w *savetest.World) Input {
	t.Helper()
	level, players, err := w.Files()
	if err != nil {
		t.Fatalf("building fixture: %v", err)
	}
	return Input{Level: level, Players: players}
}

func loadFixture(t *testing.T, w *savetest.World) *Document {
	t.Helper()
	d, err := Load(fixtureInput(t, w), Options{Settings: testSettings{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return d
}

func decompress(t *testing.T, data []byte) []byte {
	t.Helper()
	raw, _, err := sav.Decode(data)
	if err != nil {
		t.Fatalf("sav.Decode: %v", err)
	}
	return raw
}

func mapObjectIDs(d *Document) []gvas.GUID {
	var out []gvas.GUID
	eachElem(worldArray(d.World(), arrMapObjects, false), func(elem *gvas.PropertyMap) {
		if m := rawdata.PartsOf(elem).Model; m != nil {
			out = append(out, m.InstanceID)
		}
	})
	return out
}

func TestLoadIndexes(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)

	if n := len(d.Players()); n != 2 {
		t.Errorf("players = %d, want 2", n)
	}
	if n := len(d.Pals()); n != 3 {
		t.Errorf("pals = %d, want 3", n)
	}
	if n := len(d.Guilds()); n != 2 {
		t.Errorf("guilds = %d, want 2 (neutral groups are not guilds)", n)
	}
	if n := len(d.ItemContainers()); n != 12 {
		t.Errorf("item containers = %d, want 12", n)
	}
	if n := len(d.CharacterContainers()); n != 5 {
		t.Errorf("character containers = %d, want 5", n)
	}
	if ws := d.Warnings(); len(ws) != 0 {
		t.Errorf("unexpected warnings: %q", ws)
	}

	p, err := d.Player(w.Player.UID)
	if err != nil {
		t.Fatalf("Player: %v", err)
	}
	if p.Character == nil || p.Character.Nickname() != "Alice" {
		t.Errorf("player character record not attached")
	}
	if p.Pals[w.Player.Pal] == nil || len(p.Pals) != 1 {
		t.Errorf("player pals = %v, want just %s", p.Pals, w.Player.Pal)
	}
	if p.PalBoxID() != w.Player.PalBox || p.PartyID() != w.Player.Party {
		t.Errorf("containers = %s/%s", p.PalBoxID(), p.PartyID())
	}
	g, ok := d.PlayerGuild(w.Player.UID)
	if !ok || g.ID != w.Guild {
		t.Errorf("PlayerGuild = %v, %v", g, ok)
	}
	b, err := d.Base(w.Base)
	if err != nil {
		t.Fatalf("Base: %v", err)
	}
	if b.Pals[w.Worker] == nil {
		t.Error("worker not attached to base")
	}
	item, err := d.DynamicItem(w.Weapon)
	if err != nil {
		t.Fatalf("DynamicItem: %v", err)
	}
	if item.Kind() != rawdata.KindWeapon || item.Durability() != 100 {
		t.Errorf("weapon = %v durability %v", item.Kind(), item.Durability())
	}
	if diff := cmp.Diff([]string{"Sharp"}, item.Item.PassiveSkills); diff != "" {
		t.Errorf("weapon passives (-want +got):\n%s", diff)
	}
}

func TestRoundTripIdentical(t *testing.T) {
	w := savetest.New()
	in := fixtureInput(t, w)
	d, err := Load(in, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := d.EncodeAll()
	if err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}
	if !bytes.Equal(decompress(t, in.Level), decompress(t, out.Level)) {
		t.Error("level payload changed by a load/encode round trip")
	}
	if len(out.Players) != len(in.Players) {
		t.Fatalf("players = %d, want %d", len(out.Players), len(in.Players))
	}
	for uid, data := range in.Players {
		if !bytes.Equal(decompress(t, data), decompress(t, out.Players[uid])) {
			t.Errorf("player %s payload changed by a round trip", uid)
		}
	}
}

func TestEncodeOnlyDirtyPlayers(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	out, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out.Players) != 0 {
		t.Errorf("untouched players written: %d", len(out.Players))
	}
	if _, err := d.EncodeAll(); err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}
	if out, _ = d.Encode(); len(out.Players) != 0 {
		t.Errorf("EncodeAll left %d players pending", len(out.Players))
	}
	if err := d.EditPlayer(w.OtherPlayer.UID, func(p *entity.Player) { p.SetLevel(20) }); err != nil {
		t.Fatalf("EditPlayer: %v", err)
	}
	out, err = d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, ok := out.Players[w.OtherPlayer.UID]; !ok || len(out.Players) != 1 {
		t.Errorf("players written = %d, want only the edited one", len(out.Players))
	}
}

func TestAddPal(t *testing.T) {
	w := savetest.New()
	bus := events.NewBus()
	var got []events.Event
	bus.SubscribeGlobal(events.SubscriberFunc(func(ev events.Event) {
		if ev.Type == events.EvPalAdded {
			got = append(got, ev)
		}
	}))
	d, err := Load(fixtureInput(t, w), Options{Bus: bus, Settings: testSettings{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, err := d.AddPal(w.Player.PalBox, "PinkCat", "", AnySlot)
	if err != nil || p == nil {
		t.Fatalf("AddPal = %v, %v", p, err)
	}
	if p.SlotIndex() != 1 {
		t.Errorf("slot = %d, want 1", p.SlotIndex())
	}
	if p.Owner() != w.Player.UID || p.GroupID() != w.Guild {
		t.Errorf("owner/group = %s/%s", p.Owner(), p.GroupID())
	}
	if p.Nickname() != "Newbie" {
		t.Errorf("nickname = %q", p.Nickname())
	}
	if p.HP() != p.MaxHP(defaultHPScale) {
		t.Errorf("HP = %d, want full %d", p.HP(), p.MaxHP(defaultHPScale))
	}
	g, _ := d.Guild(w.Guild)
	if !g.HasHandle(p.InstanceID()) {
		t.Error("guild has no handle for the new pal")
	}
	pl, _ := d.Player(w.Player.UID)
	if pl.Pals[p.InstanceID()] == nil {
		t.Error("new pal not attached to player")
	}
	c, _ := d.CharacterContainer(w.Player.PalBox)
	if idx, ok := c.Find(p.InstanceID()); !ok || idx != 1 {
		t.Errorf("container slot = %d, %v", idx, ok)
	}
	if len(got) != 1 || got[0].Subject != p.InstanceID() {
		t.Errorf("events = %v", got)
	}

	if _, err := d.AddPal(w.Player.PalBox, "PinkCat", "", 0); err == nil {
		t.Error("AddPal into an occupied slot succeeded")
	}
	if _, err := d.AddPal(w.Player.PalBox, "PinkCat", "", savetest.PalBoxCapacity); err == nil {
		t.Error("AddPal past capacity succeeded")
	}
	if _, err := d.AddPal(gvas.NewGUID(), "PinkCat", "", AnySlot); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddPal into unknown container: %v", err)
	}

	// The encoded result loads back with the pal in place.
	out, err := d.EncodeAll()
	if err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}
	again, err := Load(Input{Level: out.Level, Players: out.Players}, Options{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := again.Pal(p.InstanceID()); err != nil {
		t.Errorf("added pal lost on reload: %v", err)
	}
}

func TestAddPalFullContainer(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	for i := 0; i < savetest.PartyCapacity; i++ {
		p, err := d.AddPal(w.Player.Party, "PinkCat", "", AnySlot)
		if err != nil || p == nil {
			t.Fatalf("AddPal %d = %v, %v", i, p, err)
		}
		if p.SlotIndex() != i {
			t.Errorf("pal %d got slot %d", i, p.SlotIndex())
		}
	}
	before := len(d.Pals())
	p, err := d.AddPal(w.Player.Party, "PinkCat", "", AnySlot)
	if p != nil || err != nil {
		t.Fatalf("AddPal into full container = %v, %v; want nil, nil", p, err)
	}
	if len(d.Pals()) != before {
		t.Error("full container changed the pal count")
	}
	c, _ := d.CharacterContainer(w.Player.Party)
	if c.Occupied() > c.Capacity() {
		t.Errorf("occupied %d > capacity %d", c.Occupied(), c.Capacity())
	}
}

func TestClonePal(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	src, _ := d.Pal(w.Player.Pal)
	if err := d.EditPal(src.InstanceID(), func(p *entity.Pal) {
		p.SetLevel(30)
		p.SetPassiveSkills([]string{"Legend"})
	}); err != nil {
		t.Fatalf("EditPal: %v", err)
	}

	p, err := d.ClonePal(w.Player.Pal, AnySlot)
	if err != nil || p == nil {
		t.Fatalf("ClonePal = %v, %v", p, err)
	}
	if p.InstanceID() == src.InstanceID() {
		t.Error("clone shares the source instance id")
	}
	if p.Species() != src.Species() || p.Level() != 30 {
		t.Errorf("clone species/level = %s/%d", p.Species(), p.Level())
	}
	if diff := cmp.Diff(src.PassiveSkills(), p.PassiveSkills()); diff != "" {
		t.Errorf("passives (-src +clone):\n%s", diff)
	}
	if want := "Copy of SheepBall"; p.Nickname() != want {
		t.Errorf("nickname = %q, want %q", p.Nickname(), want)
	}
	if p.SlotIndex() != 1 || p.ContainerID() != w.Player.PalBox {
		t.Errorf("clone slot = %s/%d", p.ContainerID(), p.SlotIndex())
	}
	if len(p.OldOwners()) != 0 {
		t.Errorf("old owners = %v", p.OldOwners())
	}
	p.SetLevel(2)
	if src.Level() != 30 {
		t.Error("editing the clone changed the source")
	}
}

func TestMovePal(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	second, err := d.AddPal(w.Player.PalBox, "PinkCat", "", AnySlot)
	if err != nil {
		t.Fatalf("AddPal: %v", err)
	}

	for i, id := range []gvas.GUID{w.Player.Pal, second.InstanceID()} {
		ok, err := d.MovePal(w.Player.UID, id, w.Player.Party)
		if err != nil || !ok {
			t.Fatalf("MovePal %s = %v, %v", id, ok, err)
		}
		p, _ := d.Pal(id)
		if p.ContainerID() != w.Player.Party || p.SlotIndex() != i {
			t.Errorf("pal %s at %s/%d, want party/%d", id, p.ContainerID(), p.SlotIndex(), i)
		}
	}
	box, _ := d.CharacterContainer(w.Player.PalBox)
	if box.Occupied() != 0 {
		t.Errorf("box still holds %d pals", box.Occupied())
	}

	// Moving the first pal back compacts the party.
	if ok, err := d.MovePal(w.Player.UID, w.Player.Pal, w.Player.PalBox); err != nil || !ok {
		t.Fatalf("MovePal back = %v, %v", ok, err)
	}
	p, _ := d.Pal(second.InstanceID())
	if p.SlotIndex() != 0 {
		t.Errorf("party not reindexed: second pal at %d", p.SlotIndex())
	}
	party, _ := d.CharacterContainer(w.Player.Party)
	if diff := cmp.Diff([]gvas.GUID{second.InstanceID()}, party.Instances()); diff != "" {
		t.Errorf("party (-want +got):\n%s", diff)
	}

	if _, err := d.MovePal(w.Player.UID, w.Player.Pal, w.BaseContainer); err == nil {
		t.Error("move into a base container succeeded")
	}
	if _, err := d.MovePal(w.Player.UID, w.OtherPlayer.Pal, w.Player.Party); err == nil {
		t.Error("move of another player's pal succeeded")
	}
}

func TestDeletePal(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	if err := d.DeletePal(w.Player.Pal); err != nil {
		t.Fatalf("DeletePal: %v", err)
	}
	if _, err := d.Pal(w.Player.Pal); !errors.Is(err, ErrNotFound) {
		t.Errorf("Pal after delete: %v", err)
	}
	g, _ := d.Guild(w.Guild)
	if g.HasHandle(w.Player.Pal) {
		t.Error("guild still lists the deleted pal")
	}
	box, _ := d.CharacterContainer(w.Player.PalBox)
	if box.Contains(w.Player.Pal) {
		t.Error("pal box still holds the deleted pal")
	}
	p, _ := d.Player(w.Player.UID)
	if len(p.Pals) != 0 {
		t.Errorf("player still has %d pals", len(p.Pals))
	}
}

func TestUnknownIDsLeaveDocumentUnchanged(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	before := d.Summary()
	missing := gvas.NewGUID()

	var nf *NotFoundError
	if err := d.DeletePal(missing); !errors.As(err, &nf) || nf.Kind != "pal" {
		t.Errorf("DeletePal: %v", err)
	}
	if err := d.DeleteGuild(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteGuild: %v", err)
	}
	if err := d.DeletePlayer(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeletePlayer: %v", err)
	}
	if _, err := d.ClonePal(missing, AnySlot); !errors.Is(err, ErrNotFound) {
		t.Errorf("ClonePal: %v", err)
	}
	if err := d.SetItemSlot(missing, 0, "Wood", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetItemSlot: %v", err)
	}
	if after := d.Summary(); after != before {
		t.Errorf("summary changed: %q -> %q", before, after)
	}
	if _, poisoned := d.Poisoned(); poisoned {
		t.Error("not-found left the document poisoned")
	}
}

func TestDeleteGuild(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	if _, err := d.AddPal(w.Player.Party, "PinkCat", "", AnySlot); err != nil {
		t.Fatalf("AddPal: %v", err)
	}

	if err := d.DeleteGuild(w.Guild); err != nil {
		t.Fatalf("DeleteGuild: %v", err)
	}

	if _, err := d.Guild(w.Guild); !errors.Is(err, ErrNotFound) {
		t.Errorf("Guild after delete: %v", err)
	}
	if _, err := d.Player(w.Player.UID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Player after delete: %v", err)
	}
	for _, p := range d.Pals() {
		if p.Owner() == w.Player.UID || p.GroupID() == w.Guild {
			t.Errorf("pal %s of the deleted guild survived", p.InstanceID())
		}
	}
	for _, id := range []gvas.GUID{w.Player.PalBox, w.Player.Party, w.BaseContainer} {
		if _, err := d.CharacterContainer(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("character container %s survived", id)
		}
	}
	for _, id := range append(w.Player.Inventory.IDs(), w.GuildStorage) {
		if _, err := d.ItemContainer(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("item container %s survived", id)
		}
	}
	if _, err := d.DynamicItem(w.Weapon); !errors.Is(err, ErrNotFound) {
		t.Error("weapon of a deleted inventory survived")
	}
	if _, err := d.Base(w.Base); !errors.Is(err, ErrNotFound) {
		t.Error("base survived")
	}
	if diff := cmp.Diff([]gvas.GUID{w.Fence}, mapObjectIDs(d)); diff != "" {
		t.Errorf("map objects (-want +got):\n%s", diff)
	}
	if d.guildExtras.len() != 0 {
		t.Error("guild extra survived")
	}

	// The other guild is untouched.
	if _, err := d.Guild(w.Other); err != nil {
		t.Errorf("other guild: %v", err)
	}
	if _, err := d.Pal(w.OtherPlayer.Pal); err != nil {
		t.Errorf("other pal: %v", err)
	}
	if _, err := d.DynamicItem(w.Helmet); err != nil {
		t.Errorf("other player's helmet: %v", err)
	}
	if _, err := d.ItemContainer(w.Loose); err != nil {
		t.Errorf("loose container: %v", err)
	}

	out, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff([]gvas.GUID{w.Player.UID}, out.Removed); diff != "" {
		t.Errorf("removed files (-want +got):\n%s", diff)
	}
	players := fixtureInput(t, w).Players
	delete(players, w.Player.UID)
	again, err := Load(Input{Level: out.Level, Players: players}, Options{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ws := again.Warnings(); len(ws) != 0 {
		t.Errorf("reload warnings: %q", ws)
	}
	if n := len(again.Players()); n != 1 {
		t.Errorf("players after reload = %d, want 1", n)
	}
	if n := len(again.Pals()); n != 1 {
		t.Errorf("pals after reload = %d, want 1", n)
	}
}

func TestDeletePlayer(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	if err := d.DeletePlayer(w.Player.UID); err != nil {
		t.Fatalf("DeletePlayer: %v", err)
	}
	g, err := d.Guild(w.Guild)
	if err != nil {
		t.Fatalf("guild removed with its player: %v", err)
	}
	if g.HasMember(w.Player.UID) {
		t.Error("guild still lists the deleted player")
	}
	if _, err := d.Pal(w.Player.Pal); !errors.Is(err, ErrNotFound) {
		t.Error("player's pal survived")
	}
	if _, err := d.Pal(w.Worker); err != nil {
		t.Errorf("base worker removed with the player: %v", err)
	}
	if diff := cmp.Diff([]gvas.GUID{w.Wall, w.Fence}, mapObjectIDs(d)); diff != "" {
		t.Errorf("map objects (-want +got):\n%s", diff)
	}
}

func TestHostMigratedPlayer(t *testing.T) {
	w := savetest.New()
	w.PlayerFile = gvas.MustParseGUID("00000000-0000-0000-0000-000000000099")
	d := loadFixture(t, w)

	p, err := d.Player(w.PlayerFile)
	if err != nil {
		t.Fatalf("Player by file uid: %v", err)
	}
	if p.RecordedUID() != w.Player.UID {
		t.Errorf("recorded uid = %s", p.RecordedUID())
	}
	if p.Pals[w.Player.Pal] == nil {
		t.Error("pal owned under the recorded uid not attached")
	}
	if p.Character == nil {
		t.Error("character record not attached")
	}
	if byRecorded, err := d.Player(w.Player.UID); err != nil || byRecorded != p {
		t.Errorf("Player by recorded uid = %v, %v", byRecorded, err)
	}
	if n := len(d.Players()); n != 2 {
		t.Errorf("players = %d, want 2", n)
	}
	ws := d.Warnings()
	if len(ws) != 1 || !strings.Contains(ws[0], "records uid") {
		t.Errorf("warnings = %q", ws)
	}

	// New pals are owned under the uid the game knows the player by.
	np, err := d.AddPal(w.Player.PalBox, "PinkCat", "", AnySlot)
	if err != nil {
		t.Fatalf("AddPal: %v", err)
	}
	if np.Owner() != w.Player.UID {
		t.Errorf("new pal owner = %s, want %s", np.Owner(), w.Player.UID)
	}
}

func TestHostMigratedPlayerRecordPrecedence(t *testing.T) {
	w := savetest.New()
	w.PlayerFile = gvas.MustParseGUID("00000000-0000-0000-0000-000000000099")
	w.FileRecord = true
	for i := 0; i < 10; i++ {
		d := loadFixture(t, w)
		p, err := d.Player(w.PlayerFile)
		if err != nil {
			t.Fatalf("Player: %v", err)
		}
		if p.Character == nil || p.Character.Nickname() != w.Player.Name {
			t.Fatalf("load %d: character = %v, want the record under the recorded uid", i, p.Character)
		}
		found := false
		for _, msg := range d.Warnings() {
			if strings.Contains(msg, "character records under") {
				found = true
			}
		}
		if !found {
			t.Errorf("no warning about the duplicate record: %q", d.Warnings())
		}
		if n := len(d.Players()); n != 2 {
			t.Errorf("players = %d, want 2", n)
		}
	}
}

func TestDanglingDynamicRef(t *testing.T) {
	w := savetest.New()
	w.DanglingRef = true
	d := loadFixture(t, w)
	ws := d.Warnings()
	if len(ws) != 1 || !strings.Contains(ws[0], "missing dynamic item") {
		t.Fatalf("warnings = %q", ws)
	}
	c, _ := d.ItemContainer(w.Player.Inventory.Common)
	if c.Slot(1).Dynamic.LocalID != w.Weapon {
		t.Fatal("load modified the dangling slot")
	}
	if n := d.DropDanglingRefs(); n != 1 {
		t.Errorf("DropDanglingRefs = %d, want 1", n)
	}
	if s := c.Slot(1); !s.Empty() || !s.Dynamic.LocalID.IsZero() {
		t.Errorf("slot after fix = %+v", s)
	}
}

func TestItemSlots(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	common := w.Player.Inventory.Common

	if err := d.SetItemSlot(common, 5, "Stone", 20); err != nil {
		t.Fatalf("SetItemSlot: %v", err)
	}
	if err := d.SetItemSlot(common, 999, "Stone", 20); err == nil {
		t.Error("SetItemSlot out of range succeeded")
	}

	recs, err := d.ExportSlots(common)
	if err != nil {
		t.Fatalf("ExportSlots: %v", err)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].SlotIndex < recs[j].SlotIndex })
	if len(recs) != 3 || recs[1].Dynamic == nil || recs[1].Dynamic.ID.LocalID != w.Weapon {
		t.Fatalf("exported = %+v", recs)
	}

	if err := d.ImportSlots(w.Loose, recs); err != nil {
		t.Fatalf("ImportSlots: %v", err)
	}
	dyn, ok := d.ItemDynamic(w.Loose, 1)
	if !ok {
		t.Fatal("imported weapon has no dynamic item")
	}
	if dyn.LocalID() == w.Weapon {
		t.Error("imported dynamic item reuses the source id")
	}
	if dyn.Kind() != rawdata.KindWeapon || dyn.Durability() != 100 {
		t.Errorf("imported weapon = %v/%v", dyn.Kind(), dyn.Durability())
	}

	bad := []entity.ItemSlotRecord{{SlotIndex: 0, StaticID: "Wood", Count: 1}, {SlotIndex: 0, StaticID: "Wood", Count: 1}}
	if err := d.ImportSlots(w.Loose, bad); err == nil {
		t.Error("import with duplicate slots succeeded")
	}

	if err := d.ResetItemSlot(common, 1); err != nil {
		t.Fatalf("ResetItemSlot: %v", err)
	}
	if _, err := d.DynamicItem(w.Weapon); !errors.Is(err, ErrNotFound) {
		t.Error("reset slot left its dynamic item behind")
	}
	if _, ok := d.ItemDynamic(w.Loose, 1); !ok {
		t.Error("resetting the source dropped the imported copy")
	}
}

func TestHealPal(t *testing.T) {
	w := savetest.New()
	d := loadFixture(t, w)
	if err := d.EditPal(w.Player.Pal, func(p *entity.Pal) { p.SetHP(1) }); err != nil {
		t.Fatalf("EditPal: %v", err)
	}
	if err := d.HealPal(w.Player.Pal); err != nil {
		t.Fatalf("HealPal: %v", err)
	}
	p, _ := d.Pal(w.Player.Pal)
	if p.HP() != p.MaxHP(defaultHPScale) {
		t.Errorf("HP = %d, want %d", p.HP(), p.MaxHP(defaultHPScale))
	}
}

func TestPoisonedDocumentRefusesEncode(t *testing.T) {
	d := loadFixture(t, savetest.New())
	d.poison = "delete guild"
	if _, err := d.Encode(); !errors.Is(err, ErrPoisoned) {
		t.Errorf("Encode = %v, want ErrPoisoned", err)
	}
}

func writeFixtureDir(t *testing.T, w *savetest.World) string {
	t.Helper()
	dir := t.TempDir()
	in := fixtureInput(t, w)
	if err := os.WriteFile(filepath.Join(dir, LevelFile), in.Level, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, PlayersDir), 0o755); err != nil {
		t.Fatal(err)
	}
	for uid, data := range in.Players {
		if err := os.WriteFile(filepath.Join(dir, PlayersDir, PlayerFileName(uid)), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Not a player save.
	if err := os.WriteFile(filepath.Join(dir, PlayersDir, "notes_dps.sav"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSaveDir(t *testing.T) {
	w := savetest.New()
	dir := writeFixtureDir(t, w)
	d, err := LoadDir(dir, Options{})
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if err := d.DeleteGuild(w.Guild); err != nil {
		t.Fatalf("DeleteGuild: %v", err)
	}
	if err := d.EditPlayer(w.OtherPlayer.UID, func(p *entity.Player) { p.SetLevel(20) }); err != nil {
		t.Fatalf("EditPlayer: %v", err)
	}
	if err := d.SaveDir(dir); err != nil {
		t.Fatalf("SaveDir: %v", err)
	}
	// A second save has nothing pending beyond the level.
	pending, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(pending.Players) != 0 || len(pending.Removed) != 0 {
		t.Errorf("after save: %d players and %v removals still pending", len(pending.Players), pending.Removed)
	}
	if _, err := os.Stat(filepath.Join(dir, PlayersDir, PlayerFileName(w.Player.UID))); !os.IsNotExist(err) {
		t.Errorf("deleted player's file still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, PlayersDir, PlayerFileName(w.OtherPlayer.UID))); err != nil {
		t.Errorf("other player's file: %v", err)
	}
	again, err := LoadDir(dir, Options{})
	if err != nil {
		t.Fatalf("LoadDir after save: %v", err)
	}
	if n := len(again.Players()); n != 1 {
		t.Errorf("players = %d, want 1", n)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestStaleDocumentRefusesSave(t *testing.T) {
	w := savetest.New()
	dir := writeFixtureDir(t, w)
	d, err := LoadDir(dir, Options{})
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, LevelFile))
	d.MarkStale("Level.sav modified")
	if err := d.SaveDir(dir); !errors.Is(err, ErrStale) {
		t.Fatalf("SaveDir = %v, want ErrStale", err)
	}
	after, _ := os.ReadFile(filepath.Join(dir, LevelFile))
	if !bytes.Equal(before, after) {
		t.Error("stale save rewrote Level.sav")
	}
}

func TestPlayerFileName(t *testing.T) {
	uid := gvas.MustParseGUID("0a1b2c3d-0000-0000-0000-00000000abcd")
	if got, want := PlayerFileName(uid), "0A1B2C3D00000000000000000000ABCD.sav"; got != want {
		t.Errorf("PlayerFileName = %q, want %q", got, want)
	}
	back, err := gvas.ParseGUID(strings.TrimSuffix(PlayerFileName(uid), ".sav"))
	if err != nil || back != uid {
		t.Errorf("ParseGUID(file name) = %s, %v", back, err)
	}
}
