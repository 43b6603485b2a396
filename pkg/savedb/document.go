// Package savedb owns a decoded save: the world archive, the per-player
// archives and the id indexes over the world's flat record arrays. Every
// mutation goes through a Document so that indexes and the raw tree stay in
// step, and so that a re-encode yields a structurally valid save.
//
// A Document serializes all access with a single mutex. Entity views it
// returns point into the tree and must not be used after the Document is
// discarded or concurrently with mutations.
package savedb

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
	"github.com/crystal-mush/palsave/pkg/sav"
)

// Input is the compressed content of a save directory.
type Input struct {
	Level []byte
	// Meta is the optional world-meta container, passed through unchanged.
	Meta []byte
	// Players maps the uid a player file is addressed by to its bytes.
	Players map[gvas.GUID][]byte
}

// Output is the re-encoded content of a save directory.
type Output struct {
	Level []byte
	Meta  []byte
	// Players holds the modified player files only.
	Players map[gvas.GUID][]byte
	// Removed lists players whose files must be deleted.
	Removed []gvas.GUID
}

// Options configures the collaborators of a Document. Zero values are
// replaced with defaults.
type Options struct {
	Bus      *events.Bus
	Settings entity.Settings
	Names    entity.Names
}

type playerFile struct {
	archive  *gvas.Archive
	saveType sav.SaveType
	dirty    bool
}

// Document is a loaded save.
type Document struct {
	mu sync.Mutex

	bus      *events.Bus
	settings entity.Settings
	names    entity.Names
	reg      *gvas.Registry

	level     *gvas.Archive
	levelType sav.SaveType
	meta      []byte
	files     map[gvas.GUID]*playerFile
	removed   []gvas.GUID
	world     *gvas.PropertyMap

	pals           *index[*entity.Pal]
	records        *index[*entity.Pal] // player character records by PlayerUId
	players        *index[*entity.Player]
	guilds         *index[*entity.Guild]
	bases          *index[*entity.Base]
	charContainers *index[*entity.CharacterContainer]
	itemContainers *index[*entity.ItemContainer]
	dynamicItems   *index[*entity.DynamicItem]
	guildExtras    *index[*entity.GuildExtra]

	warnings []string
	// poison names an operation that stopped halfway. Encode refuses to
	// write while it is set.
	poison string
	// stale is set when the files under the document changed on disk.
	stale string
}

// Load decodes and indexes a save. Any container or archive error aborts
// the load; anomalies found while indexing are logged and collected in
// Warnings.
func Load(in Input, opts Options) (*Document, error) {
	d := &Document{
		bus:      opts.Bus,
		settings: opts.Settings,
		names:    opts.Names,
		reg:      rawdata.World(),
		meta:     in.Meta,
		files:    make(map[gvas.GUID]*playerFile),
	}
	if d.settings == nil {
		d.settings = entity.DefaultSettings{}
	}

	d.bus.Progress("decompressing level")
	raw, typ, err := sav.Decode(in.Level)
	if err != nil {
		return nil, fmt.Errorf("savedb: level: %w", err)
	}
	d.levelType = typ
	d.bus.Progress("decoding level (%d bytes)", len(raw))
	if d.level, err = gvas.Decode(raw, d.reg); err != nil {
		return nil, fmt.Errorf("savedb: level: %w", err)
	}
	if d.world = d.level.Properties.Struct("worldSaveData"); d.world == nil {
		return nil, fmt.Errorf("savedb: level has no worldSaveData")
	}
	if len(in.Meta) > 0 {
		if _, err := sav.ReadHeader(in.Meta); err != nil {
			return nil, fmt.Errorf("savedb: level meta: %w", err)
		}
	}

	uids := make([]gvas.GUID, 0, len(in.Players))
	for uid := range in.Players {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i].String() < uids[j].String() })
	for _, uid := range uids {
		d.bus.Progress("decoding player %s", uid)
		raw, typ, err := sav.Decode(in.Players[uid])
		if err != nil {
			return nil, fmt.Errorf("savedb: player %s: %w", uid, err)
		}
		a, err := gvas.Decode(raw, rawdata.Player())
		if err != nil {
			return nil, fmt.Errorf("savedb: player %s: %w", uid, err)
		}
		d.files[uid] = &playerFile{archive: a, saveType: typ}
	}

	d.build(uids)
	d.bus.Emit(events.Event{Type: events.EvLoaded, Text: d.summary()})
	return d, nil
}

// warn logs an indexing anomaly and keeps it for Warnings.
func (d *Document) warn(subject gvas.GUID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("savedb: %s", msg)
	d.warnings = append(d.warnings, msg)
	d.bus.Emit(events.Event{Type: events.EvWarning, Subject: subject, Text: msg})
}

// build derives every index from the tree.
func (d *Document) build(uids []gvas.GUID) {
	d.pals = newIndex[*entity.Pal]()
	d.records = newIndex[*entity.Pal]()
	d.players = newIndex[*entity.Player]()
	d.guilds = newIndex[*entity.Guild]()
	d.bases = newIndex[*entity.Base]()
	d.charContainers = newIndex[*entity.CharacterContainer]()
	d.itemContainers = newIndex[*entity.ItemContainer]()
	d.dynamicItems = newIndex[*entity.DynamicItem]()
	d.guildExtras = newIndex[*entity.GuildExtra]()

	d.bus.Progress("indexing characters")
	eachStructEntry(worldMap(d.world, arrCharacters, false), func(key, value *gvas.PropertyMap) {
		p, err := entity.NewPal(key, value)
		if err != nil {
			d.warn(gvas.ZeroGUID, "skipping character %s: %v", gvas.GUIDField("InstanceId").Get(key), err)
			return
		}
		if p.IsPlayer() {
			d.records.put(gvas.GUIDField("PlayerUId").Get(key), p)
			return
		}
		d.pals.put(p.InstanceID(), p)
	})

	d.bus.Progress("indexing containers")
	eachStructEntry(worldMap(d.world, arrCharContainers, false), func(key, value *gvas.PropertyMap) {
		c := entity.NewCharacterContainer(key, value)
		d.charContainers.put(c.ID, c)
	})
	eachStructEntry(worldMap(d.world, arrItemContainers, false), func(key, value *gvas.PropertyMap) {
		c := entity.NewItemContainer(key, value)
		d.itemContainers.put(c.ID, c)
	})
	eachElem(worldArray(d.world, arrDynamicItems, false), func(elem *gvas.PropertyMap) {
		if item, ok := entity.NewDynamicItem(elem); ok {
			d.dynamicItems.put(item.LocalID(), item)
		}
	})
	d.checkDynamicRefs()

	d.bus.Progress("indexing guilds and bases")
	eachGUIDEntry(worldMap(d.world, arrGroups, false), func(id gvas.GUID, value *gvas.PropertyMap) {
		if entity.GroupType(value) != rawdata.GroupGuild {
			return
		}
		g, err := entity.NewGuild(id, value)
		if err != nil {
			d.warn(id, "skipping guild: %v", err)
			return
		}
		d.guilds.put(id, g)
	})
	eachGUIDEntry(worldMap(d.world, arrGuildExtra, false), func(id gvas.GUID, value *gvas.PropertyMap) {
		d.guildExtras.put(id, &entity.GuildExtra{ID: id, Value: value})
	})
	eachGUIDEntry(worldMap(d.world, arrBases, false), func(id gvas.GUID, value *gvas.PropertyMap) {
		b, err := entity.NewBase(id, value)
		if err != nil {
			d.warn(id, "skipping base: %v", err)
			return
		}
		d.bases.put(id, b)
	})
	for _, b := range d.bases.values() {
		for _, p := range d.pals.values() {
			if c := b.ContainerID(); !c.IsZero() && p.ContainerID() == c {
				b.Pals[p.InstanceID()] = p
			}
		}
	}

	d.bus.Progress("indexing players")
	for _, uid := range uids {
		d.addPlayer(uid, d.files[uid].archive)
	}
	for _, uid := range d.records.ids() {
		if _, ok := d.players.get(uid); ok {
			continue
		}
		if d.playerByRecorded(uid) != nil {
			continue
		}
		d.warn(uid, "player %s has a character record but no player file", uid)
		d.addPlayer(uid, nil)
	}
}

// addPlayer merges a player file with its character record and pals. The
// file uid and the uid recorded inside the file can differ after a host
// migration; pals owned under either are attached and the mismatch logged.
// The character record under the recorded uid wins over one under the file
// uid, since that is the uid the game looks the player up by.
func (d *Document) addPlayer(uid gvas.GUID, save *gvas.Archive) *entity.Player {
	p := entity.NewPlayer(uid, save, nil)
	ids := idSet{}
	ids.add(uid)
	lookup := []gvas.GUID{uid}
	if rec := p.RecordedUID(); save != nil && !rec.IsZero() && rec != uid {
		d.warn(uid, "player file %s records uid %s; matching pals under both", uid, rec)
		ids.add(rec)
		lookup = []gvas.GUID{rec, uid}
	}
	for _, id := range lookup {
		r, ok := d.records.get(id)
		if !ok {
			continue
		}
		if p.Character == nil {
			p.Character = r
			continue
		}
		d.warn(uid, "player %s has character records under %s and %s; using %s",
			uid, lookup[0], id, lookup[0])
	}
	for _, pal := range d.pals.values() {
		if ids.has(pal.Owner()) {
			p.Pals[pal.InstanceID()] = pal
		}
	}
	d.players.put(uid, p)
	return p
}

// playerByRecorded finds a player whose file records uid.
func (d *Document) playerByRecorded(uid gvas.GUID) *entity.Player {
	for _, p := range d.players.values() {
		if p.RecordedUID() == uid {
			return p
		}
	}
	return nil
}

// checkDynamicRefs logs item slots pointing at missing dynamic items. The
// tree is left untouched; validate offers the fix.
func (d *Document) checkDynamicRefs() {
	for _, c := range d.itemContainers.values() {
		for _, s := range c.DynamicRefs() {
			if _, ok := d.dynamicItems.get(s.Dynamic.LocalID); !ok {
				d.warn(c.ID, "container %s slot %d references missing dynamic item %s", c.ID, s.SlotIndex, s.Dynamic.LocalID)
			}
		}
	}
}

// Counts is the number of indexed entities of each kind.
type Counts struct {
	Players, Pals, Guilds, Bases        int
	CharacterContainers, ItemContainers int
	DynamicItems, Warnings              int
}

func (d *Document) counts() Counts {
	return Counts{
		Players:             d.players.len(),
		Pals:                d.pals.len(),
		Guilds:              d.guilds.len(),
		Bases:               d.bases.len(),
		CharacterContainers: d.charContainers.len(),
		ItemContainers:      d.itemContainers.len(),
		DynamicItems:        d.dynamicItems.len(),
		Warnings:            len(d.warnings),
	}
}

// Counts returns the current entity counts.
func (d *Document) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts()
}

func (d *Document) summary() string {
	c := d.counts()
	return fmt.Sprintf("%d players, %d pals, %d guilds, %d bases, %d character containers, %d item containers",
		c.Players, c.Pals, c.Guilds, c.Bases, c.CharacterContainers, c.ItemContainers)
}

// Summary describes the indexed contents.
func (d *Document) Summary() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary()
}

// Warnings returns the anomalies found while loading and editing.
func (d *Document) Warnings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.warnings...)
}

// Bus returns the event bus, which may be nil.
func (d *Document) Bus() *events.Bus { return d.bus }

// Names returns the reference data lookup, which may be nil.
func (d *Document) Names() entity.Names { return d.names }

// Level returns the world archive.
func (d *Document) Level() *gvas.Archive { return d.level }

// World returns the worldSaveData struct body.
func (d *Document) World() *gvas.PropertyMap { return d.world }

// Poisoned reports the operation that left the document inconsistent.
func (d *Document) Poisoned() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poison, d.poison != ""
}

// Encode re-serializes the save. Untouched substructures come out byte
// identical to the input. Only player files changed since the last write
// are included.
func (d *Document) Encode() (*Output, error) { return d.encode(false) }

// EncodeAll is Encode with every player file included.
func (d *Document) EncodeAll() (*Output, error) { return d.encode(true) }

func (d *Document) encode(all bool) (*Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.poison != "" {
		return nil, fmt.Errorf("%w: %s", ErrPoisoned, d.poison)
	}
	d.bus.Progress("encoding level")
	raw, err := d.level.Encode(d.reg)
	if err != nil {
		return nil, fmt.Errorf("savedb: encode level: %w", err)
	}
	out := &Output{Meta: d.meta, Players: make(map[gvas.GUID][]byte), Removed: append([]gvas.GUID(nil), d.removed...)}
	if out.Level, err = sav.Encode(raw, d.levelType); err != nil {
		return nil, fmt.Errorf("savedb: compress level: %w", err)
	}
	for uid, f := range d.files {
		if !f.dirty && !all {
			continue
		}
		raw, err := f.archive.Encode(rawdata.Player())
		if err != nil {
			return nil, fmt.Errorf("savedb: encode player %s: %w", uid, err)
		}
		if out.Players[uid], err = sav.Encode(raw, f.saveType); err != nil {
			return nil, fmt.Errorf("savedb: compress player %s: %w", uid, err)
		}
	}
	return out, nil
}

// written forgets the pending player writes and removals that out carried.
func (d *Document) written(out *Output) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for uid := range out.Players {
		if f, ok := d.files[uid]; ok {
			f.dirty = false
		}
	}
	done := idSet{}
	done.add(out.Removed...)
	kept := d.removed[:0]
	for _, uid := range d.removed {
		if !done.has(uid) {
			kept = append(kept, uid)
		}
	}
	d.removed = kept
}
