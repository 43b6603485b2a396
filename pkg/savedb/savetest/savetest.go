// Package savetest synthesizes small but complete save directories for
// tests: two guilds with one player each, their pals, inventories and
// containers, a base with a worker, a guild chest, a few map objects and a
// skipped subsystem.
package savetest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
	"github.com/crystal-mush/palsave/pkg/sav"
)

func id(n int) gvas.GUID {
	return gvas.MustParseGUID(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// Member is one player of a synthesized world.
type Member struct {
	UID       gvas.GUID
	Instance  gvas.GUID
	Name      string
	Inventory entity.Inventory
	PalBox    gvas.GUID
	Party     gvas.GUID
	// Pal is the single pal in the member's pal box, at slot 0.
	Pal gvas.GUID
}

// World holds the ids of everything in the synthesized save.
type World struct {
	Guild  gvas.GUID
	Player Member

	Other       gvas.GUID
	OtherPlayer Member

	Neutral gvas.GUID

	Base          gvas.GUID
	BaseContainer gvas.GUID
	Worker        gvas.GUID
	GuildStorage  gvas.GUID

	// Weapon is the dynamic item held in slot 1 of Player's common inventory.
	Weapon gvas.GUID
	// Helmet is the dynamic item held in slot 0 of OtherPlayer's common inventory.
	Helmet gvas.GUID
	// Loose is an item container nobody owns.
	Loose gvas.GUID

	// Chest is built and password locked by Player; Wall belongs to Guild;
	// Fence belongs to Other.
	Chest, Wall, Fence gvas.GUID

	// PlayerFile, when set, names Player's file instead of Player.UID, as
	// after a host migration.
	PlayerFile gvas.GUID
	// FileRecord adds a second character record for Player keyed by
	// PlayerFile, named "Alice (old)".
	FileRecord bool
	// DanglingRef makes Player's common slot 1 reference a dynamic item that
	// is missing from the world.
	DanglingRef bool
	// GhostMember, when set, is listed as a member of Guild without any
	// player file or character record.
	GhostMember gvas.GUID
	// OrphanBase adds a second base owned by a guild that does not exist.
	OrphanBase gvas.GUID
}

// New returns a world with fixed ids.
func New() *World {
	return &World{
		Guild: id(1),
		Player: Member{
			UID: id(10), Instance: id(11), Name: "Alice",
			Inventory: entity.Inventory{Common: id(20), Essential: id(21), WeaponLoadOut: id(22), Armor: id(23), Food: id(24)},
			PalBox:    id(12), Party: id(13), Pal: id(14),
		},
		Other: id(2),
		OtherPlayer: Member{
			UID: id(30), Instance: id(31), Name: "Bob",
			Inventory: entity.Inventory{Common: id(40), Essential: id(41), WeaponLoadOut: id(42), Armor: id(43), Food: id(44)},
			PalBox:    id(32), Party: id(33), Pal: id(34),
		},
		Neutral:       id(3),
		Base:          id(50),
		BaseContainer: id(51),
		Worker:        id(52),
		GuildStorage:  id(53),
		Weapon:        id(60),
		Helmet:        id(61),
		Loose:         id(62),
		Chest:         id(70),
		Wall:          id(71),
		Fence:         id(72),
	}
}

// PalBoxCapacity and PartyCapacity are the sizes of every member's containers.
const (
	PalBoxCapacity = 30
	PartyCapacity  = 5
)

// Level builds the world archive.
func (w *World) Level() *gvas.Archive {
	world := gvas.NewPropertyMap()
	chars := addMap(world, "CharacterSaveParameterMap", "StructProperty")
	items := addMap(world, "ItemContainerSaveData", "StructProperty")
	containers := addMap(world, "CharacterContainerSaveData", "StructProperty")
	groups := addMap(world, "GroupSaveDataMap", "Guid")
	bases := addMap(world, "BaseCampSaveData", "Guid")
	extras := addMap(world, "GuildExtraSaveDataMap", "Guid")
	dynamic := addArray(world, "DynamicItemSaveData", "PalDynamicItemSaveData")
	objects := addArray(world, "MapObjectSaveData", "PalMapObjectSaveData")

	addChar := func(p *entity.Pal) {
		chars.Entries = append(chars.Entries, gvas.MapEntry{Key: p.Key, Value: p.Value})
	}
	addContainer := func(c *entity.CharacterContainer) {
		containers.Entries = append(containers.Entries, gvas.MapEntry{Key: c.Key, Value: c.Value})
	}
	addItems := func(c *entity.ItemContainer) {
		items.Entries = append(items.Entries, gvas.MapEntry{Key: c.Key, Value: c.Value})
	}

	for _, m := range []struct {
		member  Member
		group   gvas.GUID
		species string
		level   int
	}{
		{w.Player, w.Guild, "SheepBall", 10},
		{w.OtherPlayer, w.Other, "PinkCat", 5},
	} {
		addChar(entity.NewPlayerRecord(m.member.UID, m.member.Instance, m.group, m.member.Name, m.level))
		addChar(entity.NewPalRecord(entity.PalSpec{
			InstanceID: m.member.Pal, Species: m.species, Owner: m.member.UID, Group: m.group,
			Container: m.member.PalBox, Slot: 0, HPScale: 70, MaxStomach: 150,
		}))
		box := entity.NewCharacterContainerRecord(m.member.PalBox, PalBoxCapacity)
		mustInsert(box, 0, m.member.UID, m.member.Pal)
		addContainer(box)
		addContainer(entity.NewCharacterContainerRecord(m.member.Party, PartyCapacity))
		for _, inv := range m.member.Inventory.IDs() {
			addItems(entity.NewItemContainerRecord(inv, gvas.ZeroGUID, 42))
		}
	}

	if w.FileRecord && !w.PlayerFile.IsZero() {
		addChar(entity.NewPlayerRecord(w.PlayerFile, id(15), w.Guild, w.Player.Name+" (old)", 1))
	}

	worker := entity.NewPalRecord(entity.PalSpec{
		InstanceID: w.Worker, Species: "ChickenPal", Group: w.Guild,
		Container: w.BaseContainer, Slot: 0, HPScale: 60, MaxStomach: 150,
	})
	addChar(worker)
	baseBox := entity.NewCharacterContainerRecord(w.BaseContainer, 15)
	mustInsert(baseBox, 0, gvas.ZeroGUID, w.Worker)
	addContainer(baseBox)

	common := entity.NewItemContainer(items.Entries[0].Key.(*gvas.PropertyMap), items.Entries[0].Value.(*gvas.PropertyMap))
	mustSlot(common, 0, "Wood", 10)
	sword := mustSlot(common, 1, "Sword", 1)
	sword.Dynamic = rawdata.DynamicID{LocalID: w.Weapon}
	if !w.DanglingRef {
		dynamic.Values = append(dynamic.Values, entity.NewDynamicItemRecord(&rawdata.DynamicItem{
			ID: rawdata.DynamicID{LocalID: w.Weapon}, StaticID: "Sword", Kind: rawdata.KindWeapon,
			Durability: 100, RemainingBullets: 0, PassiveSkills: []string{"Sharp"},
		}))
	}
	otherCommon := entity.NewItemContainer(items.Entries[5].Key.(*gvas.PropertyMap), items.Entries[5].Value.(*gvas.PropertyMap))
	helmet := mustSlot(otherCommon, 0, "Helmet", 1)
	helmet.Dynamic = rawdata.DynamicID{LocalID: w.Helmet}
	dynamic.Values = append(dynamic.Values, entity.NewDynamicItemRecord(&rawdata.DynamicItem{
		ID: rawdata.DynamicID{LocalID: w.Helmet}, StaticID: "Helmet", Kind: rawdata.KindArmor, Durability: 50,
	}))
	addItems(entity.NewItemContainerRecord(w.GuildStorage, w.Guild, 30))
	addItems(entity.NewItemContainerRecord(w.Loose, gvas.ZeroGUID, 10))

	guild := entity.NewGuildRecord(w.Guild, w.Player.UID, "Crystal", w.Player.Name)
	g := rawdata.RawPayload(guild).(*rawdata.Group)
	g.BaseIDs = []gvas.GUID{w.Base}
	g.Handles = []rawdata.Handle{
		{GUID: w.Player.UID, InstanceID: w.Player.Instance},
		{InstanceID: w.Player.Pal},
		{InstanceID: w.Worker},
	}
	if !w.GhostMember.IsZero() {
		g.Players = append(g.Players, rawdata.GuildPlayer{PlayerUID: w.GhostMember, Name: "Ghost"})
	}
	other := entity.NewGuildRecord(w.Other, w.OtherPlayer.UID, "Other", w.OtherPlayer.Name)
	o := rawdata.RawPayload(other).(*rawdata.Group)
	o.Handles = []rawdata.Handle{
		{GUID: w.OtherPlayer.UID, InstanceID: w.OtherPlayer.Instance},
		{InstanceID: w.OtherPlayer.Pal},
	}
	groups.Entries = append(groups.Entries,
		gvas.MapEntry{Key: w.Guild, Value: guild},
		gvas.MapEntry{Key: w.Neutral, Value: neutralGroup(w.Neutral)},
		gvas.MapEntry{Key: w.Other, Value: other},
	)

	bases.Entries = append(bases.Entries, gvas.MapEntry{Key: w.Base, Value: entity.NewBaseRecord(w.Base, w.Guild, w.BaseContainer, "Home")})
	if !w.OrphanBase.IsZero() {
		bases.Entries = append(bases.Entries, gvas.MapEntry{Key: w.OrphanBase, Value: entity.NewBaseRecord(w.OrphanBase, id(99), gvas.ZeroGUID, "Ruins")})
	}
	extras.Entries = append(extras.Entries, gvas.MapEntry{Key: w.Guild, Value: entity.NewGuildExtraRecord(w.GuildStorage)})

	objects.Values = append(objects.Values,
		mapObject("ItemChest",
			&rawdata.MapModel{InstanceID: w.Chest, BuildPlayerUID: w.Player.UID, CurrentHP: 100, MaxHP: 100},
			&rawdata.ConcreteModel{InstanceID: id(80), ModelInstanceID: w.Chest, Layout: rawdata.LayoutPrivateLock, PrivateLockPlayerUID: w.Player.UID},
			&rawdata.PasswordLock{LockState: 1, Password: "1234", PlayerInfos: []rawdata.LockPlayer{{PlayerUID: w.Player.UID, TrySuccessCache: true}}}),
		mapObject("Wall",
			&rawdata.MapModel{InstanceID: w.Wall, GroupIDBelongTo: w.Guild, CurrentHP: 500, MaxHP: 500},
			&rawdata.ConcreteModel{InstanceID: id(81), ModelInstanceID: w.Wall}, nil),
		mapObject("Fence",
			&rawdata.MapModel{InstanceID: w.Fence, GroupIDBelongTo: w.Other, BuildPlayerUID: w.OtherPlayer.UID, CurrentHP: 300, MaxHP: 300},
			&rawdata.ConcreteModel{InstanceID: id(82), ModelInstanceID: w.Fence}, nil),
	)

	clock := gvas.NewPropertyMap()
	gvas.Int64Field("GameDateTimeTicks", 0).Set(clock, 638000000000000000)
	gvas.Int64Field("RealDateTimeTicks", 0).Set(clock, 638000000000001234)
	world.Set("GameTimeSaveData", gvas.NewStruct("PalGameTimeSaveData", clock))

	a := gvas.NewArchive("/Script/Pal.PalWorldSaveGame")
	gvas.IntField("Version", 0).Set(a.Properties, 100)
	a.Properties.Set("worldSaveData", gvas.NewStruct("PalWorldSaveData", world))
	return a
}

// Players builds the player archives keyed by file uid.
func (w *World) Players() map[gvas.GUID]*gvas.Archive {
	file := w.Player.UID
	if !w.PlayerFile.IsZero() {
		file = w.PlayerFile
	}
	out := make(map[gvas.GUID]*gvas.Archive)
	for uid, m := range map[gvas.GUID]Member{file: w.Player, w.OtherPlayer.UID: w.OtherPlayer} {
		out[uid] = entity.NewPlayerSave(entity.PlayerSpec{
			UID: m.UID, InstanceID: m.Instance, Inventory: m.Inventory, PalBox: m.PalBox, Party: m.Party,
		})
	}
	return out
}

// Files encodes and compresses the world and player archives.
func (w *World) Files() (level []byte, players map[gvas.GUID][]byte, err error) {
	if level, err = Compress(w.Level(), rawdata.World()); err != nil {
		return nil, nil, fmt.Errorf("savetest: level: %w", err)
	}
	players = make(map[gvas.GUID][]byte)
	for uid, a := range w.Players() {
		if players[uid], err = Compress(a, rawdata.Player()); err != nil {
			return nil, nil, fmt.Errorf("savetest: player %s: %w", uid, err)
		}
	}
	return level, players, nil
}

// WriteDir writes the world as a save directory under dir: Level.sav and
// one Players/<UID>.sav per player file.
func (w *World) WriteDir(dir string) error {
	level, players, err := w.Files()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, "Players"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "Level.sav"), level, 0o644); err != nil {
		return err
	}
	for uid, data := range players {
		name := strings.ToUpper(strings.ReplaceAll(uid.String(), "-", "")) + ".sav"
		if err := os.WriteFile(filepath.Join(dir, "Players", name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Compress encodes a and wraps it in a double-zlib container.
func Compress(a *gvas.Archive, reg *gvas.Registry) ([]byte, error) {
	raw, err := a.Encode(reg)
	if err != nil {
		return nil, err
	}
	return sav.Encode(raw, sav.TypeZlibDouble)
}

func addMap(world *gvas.PropertyMap, name, keyStruct string) *gvas.Map {
	m := &gvas.Map{
		KeyType:         gvas.StructProperty,
		ValueType:       gvas.StructProperty,
		KeyStructType:   keyStruct,
		ValueStructType: "StructProperty",
	}
	world.Set(name, &gvas.Property{Type: gvas.MapProperty, Value: m})
	return m
}

func addArray(world *gvas.PropertyMap, name, typeName string) *gvas.StructArray {
	sa := &gvas.StructArray{PropName: name, PropType: gvas.StructProperty, TypeName: typeName}
	world.Set(name, &gvas.Property{Type: gvas.ArrayProperty, Value: &gvas.Array{ElemType: gvas.StructProperty, Structs: sa}})
	return sa
}

func rawBytes(pl gvas.Payload) *gvas.Property {
	return &gvas.Property{Type: gvas.ArrayProperty, Value: &gvas.Array{ElemType: gvas.ByteProperty, Payload: pl}}
}

func neutralGroup(id gvas.GUID) *gvas.PropertyMap {
	value := gvas.NewPropertyMap()
	gvas.EnumField("GroupType", "EPalGroupType", "").Set(value, rawdata.GroupNeutral)
	value.Set("RawData", rawBytes(&rawdata.Group{Type: rawdata.GroupNeutral, ID: id, Name: "Neutral"}))
	return value
}

func mapObject(objectID string, model *rawdata.MapModel, concrete *rawdata.ConcreteModel, lock *rawdata.PasswordLock) *gvas.PropertyMap {
	elem := gvas.NewPropertyMap()
	gvas.NameField("MapObjectId", "").Set(elem, objectID)
	m := gvas.NewPropertyMap()
	m.Set("RawData", rawBytes(model))
	elem.Set("Model", gvas.NewStruct("PalMapObjectModelSaveData", m))
	c := gvas.NewPropertyMap()
	c.Set("RawData", rawBytes(concrete))
	if lock != nil {
		module := gvas.NewPropertyMap()
		module.Set("RawData", rawBytes(lock))
		c.Set("ModuleMap", &gvas.Property{Type: gvas.MapProperty, Value: &gvas.Map{
			KeyType:         gvas.EnumProperty,
			ValueType:       gvas.StructProperty,
			ValueStructType: "StructProperty",
			Entries:         []gvas.MapEntry{{Key: gvas.Name(rawdata.PasswordLockModule), Value: module}},
		}})
	}
	elem.Set("ConcreteModel", gvas.NewStruct("PalMapObjectConcreteModelSaveData", c))
	return elem
}

func mustInsert(c *entity.CharacterContainer, index int, player, instance gvas.GUID) {
	if err := c.Insert(index, player, instance); err != nil {
		panic(err)
	}
}

func mustSlot(c *entity.ItemContainer, index int32, staticID string, count int32) *rawdata.ItemSlot {
	s, err := c.SetSlot(index, staticID, count)
	if err != nil {
		panic(err)
	}
	return s
}
