package savedb

import (
	"fmt"
	"log"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
)

// AnySlot asks AddPal and ClonePal for the lowest free slot.
const AnySlot = -1

// defaultHPScale is used for species missing from the reference data.
const defaultHPScale = 100

// allocate picks the slot a new pal goes to. ok is false when the
// container is full; err reports a bad explicit slot.
func allocate(c *entity.CharacterContainer, slot int) (int, bool, error) {
	if slot == AnySlot {
		idx, ok := c.FreeSlot(true)
		return idx, ok, nil
	}
	if err := c.CanInsert(slot); err != nil {
		return 0, false, err
	}
	return slot, true, nil
}

// placement resolves owner and group of a character container.
func (d *Document) placement(container gvas.GUID) (owner containerOwner, ownerID, group gvas.GUID) {
	owner = d.ownerOf(container)
	switch {
	case owner.player != nil:
		ownerID = ownerUID(owner.player)
		if g := d.playerGuild(owner.player.UID); g != nil {
			group = g.ID
		} else {
			group = owner.player.GroupID()
		}
	case owner.base != nil:
		group = owner.base.GuildID()
	}
	return owner, ownerID, group
}

// insertPal links a fully built record into the tree and indexes. Nothing
// is changed when the slot is taken.
func (d *Document) insertPal(p *entity.Pal, c *entity.CharacterContainer, idx int, owner containerOwner, ownerID gvas.GUID) error {
	id := p.InstanceID()
	if err := c.Insert(idx, ownerID, id); err != nil {
		return err
	}
	p.SetSlot(c.ID, idx)
	m := worldMap(d.world, arrCharacters, true)
	m.Entries = append(m.Entries, gvas.MapEntry{Key: p.Key, Value: p.Value})
	d.pals.put(id, p)
	switch {
	case owner.player != nil:
		owner.player.Pals[id] = p
	case owner.base != nil:
		owner.base.Pals[id] = p
	}
	if g, ok := d.guilds.get(p.GroupID()); ok {
		g.AddHandle(id)
	}
	return nil
}

func (d *Document) hpScale(species string) float64 {
	if d.names != nil {
		if s, ok := d.names.HPScale(species); ok {
			return s
		}
	}
	return defaultHPScale
}

// AddPal creates a pal of species in container at slot, or at the lowest
// free slot for AnySlot. It returns a nil pal and no error when the
// container is full.
func (d *Document) AddPal(container gvas.GUID, species, nickname string, slot int) (*entity.Pal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.charContainers.get(container)
	if !ok {
		return nil, notFound("character container", container)
	}
	if species == "" {
		return nil, fmt.Errorf("savedb: add pal: empty species")
	}
	idx, ok, err := allocate(c, slot)
	if err != nil {
		return nil, fmt.Errorf("savedb: add pal: %w", err)
	}
	if !ok {
		return nil, nil
	}
	if nickname == "" {
		nickname = d.settings.NewPalNickname()
	}

	owner, ownerID, group := d.placement(container)
	p := entity.NewPalRecord(entity.PalSpec{
		InstanceID: gvas.NewGUID(),
		Species:    species,
		Nickname:   nickname,
		Owner:      ownerID,
		Group:      group,
		Container:  container,
		Slot:       idx,
		HPScale:    d.hpScale(species),
		MaxStomach: d.settings.MaxStomach(),
	})
	if err := d.insertPal(p, c, idx, owner, ownerID); err != nil {
		return nil, fmt.Errorf("savedb: add pal: %w", err)
	}
	d.bus.Emit(events.Event{Type: events.EvPalAdded, Subject: p.InstanceID(), Owner: ownerID,
		Text: fmt.Sprintf("added %s to %s slot %d", species, container, idx)})
	return p, nil
}

// ClonePal copies pal id into its own container at slot, or at the lowest
// free slot for AnySlot. The copy gets a new instance id, the configured
// nickname prefix and no previous owners. A full container yields a nil pal
// and no error.
func (d *Document) ClonePal(id gvas.GUID, slot int) (*entity.Pal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, ok := d.pals.get(id)
	if !ok {
		return nil, notFound("pal", id)
	}
	container := src.ContainerID()
	c, ok := d.charContainers.get(container)
	if !ok {
		return nil, notFound("character container", container)
	}
	idx, ok, err := allocate(c, slot)
	if err != nil {
		return nil, fmt.Errorf("savedb: clone pal: %w", err)
	}
	if !ok {
		return nil, nil
	}

	owner, ownerID, _ := d.placement(container)
	p := src.Clone(gvas.NewGUID())
	p.SetNickname(d.settings.CloneNicknamePrefix() + src.DisplayName(d.names))
	if err := d.insertPal(p, c, idx, owner, ownerID); err != nil {
		return nil, fmt.Errorf("savedb: clone pal: %w", err)
	}
	d.bus.Emit(events.Event{Type: events.EvPalAdded, Subject: p.InstanceID(), Owner: ownerID,
		Text: fmt.Sprintf("cloned %s into %s slot %d", id, container, idx)})
	return p, nil
}

// DeletePal removes a pal from its container, the character table and its
// guild's handle list.
func (d *Document) DeletePal(id gvas.GUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pals.get(id)
	if !ok {
		return notFound("pal", id)
	}
	d.deletePal(p)
	return nil
}

// deletePal unlinks p everywhere it is referenced. Collections that do not
// list it are left alone.
func (d *Document) deletePal(p *entity.Pal) {
	id := p.InstanceID()
	if c, ok := d.charContainers.get(p.ContainerID()); ok && c.Remove(id) {
		d.afterRemove(c)
	} else {
		for _, c := range d.charContainers.values() {
			if c.Remove(id) {
				d.afterRemove(c)
				break
			}
		}
	}
	removeValue(worldMap(d.world, arrCharacters, false), p.Value)
	d.pals.remove(id)
	for _, g := range d.guilds.values() {
		g.RemoveHandle(id)
	}
	owner := p.Owner()
	for _, pl := range d.players.values() {
		delete(pl.Pals, id)
	}
	for _, b := range d.bases.values() {
		delete(b.Pals, id)
	}
	d.bus.Emit(events.Event{Type: events.EvPalDeleted, Subject: id, Owner: owner,
		Text: fmt.Sprintf("deleted pal %s (%s)", id, p.CharacterID())})
}

// afterRemove compacts party containers, which must stay contiguous, and
// updates the slot recorded on every pal that moved.
func (d *Document) afterRemove(c *entity.CharacterContainer) {
	if !d.isParty(c.ID) {
		return
	}
	for id, idx := range c.Reindex() {
		if p, ok := d.pals.get(id); ok {
			p.SetSlot(c.ID, idx)
		}
	}
}

func (d *Document) isParty(container gvas.GUID) bool {
	for _, p := range d.players.values() {
		if p.PartyID() == container {
			return true
		}
	}
	return false
}

// MovePal moves a pal between the player's pal box and party. The target
// must be one of those two containers; anything else aborts the move. ok is
// false when the target is full.
func (d *Document) MovePal(player, id, target gvas.GUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pl, err := d.player(player)
	if err != nil {
		return false, err
	}
	p, ok := d.pals.get(id)
	if !ok {
		return false, notFound("pal", id)
	}
	box, party := pl.PalBoxID(), pl.PartyID()
	source := p.ContainerID()
	if target != box && target != party {
		log.Printf("savedb: move pal %s: target %s is not a container of player %s", id, target, player)
		return false, fmt.Errorf("savedb: move pal: %s is neither pal box nor party of %s", target, player)
	}
	if source != box && source != party {
		log.Printf("savedb: move pal %s: source %s is not a container of player %s", id, source, player)
		return false, fmt.Errorf("savedb: move pal: pal %s is not held by player %s", id, player)
	}
	if source == target {
		return true, nil
	}
	from, ok := d.charContainers.get(source)
	if !ok {
		return false, notFound("character container", source)
	}
	to, ok := d.charContainers.get(target)
	if !ok {
		return false, notFound("character container", target)
	}
	idx, ok := to.FreeSlot(true)
	if !ok {
		return false, nil
	}

	if err := to.Insert(idx, ownerUID(pl), id); err != nil {
		return false, fmt.Errorf("savedb: move pal: %w", err)
	}
	from.Remove(id)
	p.SetSlot(target, idx)
	d.afterRemove(from)
	d.bus.Emit(events.Event{Type: events.EvPalMoved, Subject: id, Owner: pl.UID,
		Text: fmt.Sprintf("moved pal %s to %s slot %d", id, target, idx)})
	return true, nil
}

// EditPal runs fn on pal id under the document lock.
func (d *Document) EditPal(id gvas.GUID, fn func(*entity.Pal)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pals.get(id)
	if !ok {
		return notFound("pal", id)
	}
	fn(p)
	d.bus.Emit(events.Event{Type: events.EvPalEdited, Subject: id, Owner: p.Owner(),
		Text: fmt.Sprintf("edited pal %s", id)})
	return nil
}

// HealPal heals pal id to full.
func (d *Document) HealPal(id gvas.GUID) error {
	return d.EditPal(id, func(p *entity.Pal) {
		p.Heal(d.settings.MaxStomach())
		p.SetHP(p.MaxHP(d.hpScale(p.Species())))
	})
}

// EditPlayer runs fn on player uid under the document lock and marks the
// player's file for rewriting.
func (d *Document) EditPlayer(uid gvas.GUID, fn func(*entity.Player)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.player(uid)
	if err != nil {
		return err
	}
	fn(p)
	if f, ok := d.files[p.UID]; ok {
		f.dirty = true
	}
	return nil
}
