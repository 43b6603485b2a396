package savedb

import (
	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/gvas"
)

// Pal returns the pal with instance id.
func (d *Document) Pal(id gvas.GUID) (*entity.Pal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pals.get(id); ok {
		return p, nil
	}
	return nil, notFound("pal", id)
}

// Pals returns every non-player character in archive order.
func (d *Document) Pals() []*entity.Pal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pals.values()
}

// Player returns the player addressed by uid.
func (d *Document) Player(uid gvas.GUID) (*entity.Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.player(uid)
}

func (d *Document) player(uid gvas.GUID) (*entity.Player, error) {
	if p, ok := d.players.get(uid); ok {
		return p, nil
	}
	if p := d.playerByRecorded(uid); p != nil {
		return p, nil
	}
	return nil, notFound("player", uid)
}

// Players returns all players.
func (d *Document) Players() []*entity.Player {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.players.values()
}

// Guild returns the guild with id.
func (d *Document) Guild(id gvas.GUID) (*entity.Guild, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.guilds.get(id); ok {
		return g, nil
	}
	return nil, notFound("guild", id)
}

// Guilds returns all guilds.
func (d *Document) Guilds() []*entity.Guild {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guilds.values()
}

// PlayerGuild returns the guild listing the player as a member, derived by
// reverse lookup.
func (d *Document) PlayerGuild(uid gvas.GUID) (*entity.Guild, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.playerGuild(uid)
	return g, g != nil
}

func (d *Document) playerGuild(uid gvas.GUID) *entity.Guild {
	ids := idSet{}
	ids.add(uid)
	if p, ok := d.players.get(uid); ok {
		ids.add(p.RecordedUID())
	}
	for _, g := range d.guilds.values() {
		for _, m := range g.Members() {
			if ids.has(m) {
				return g
			}
		}
	}
	return nil
}

// Base returns the base with id.
func (d *Document) Base(id gvas.GUID) (*entity.Base, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.bases.get(id); ok {
		return b, nil
	}
	return nil, notFound("base", id)
}

// Bases returns all bases.
func (d *Document) Bases() []*entity.Base {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bases.values()
}

// GuildBases returns the bases owned by guild id.
func (d *Document) GuildBases(id gvas.GUID) []*entity.Base {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guildBases(id)
}

func (d *Document) guildBases(id gvas.GUID) []*entity.Base {
	var out []*entity.Base
	for _, b := range d.bases.values() {
		if b.GuildID() == id {
			out = append(out, b)
		}
	}
	return out
}

// CharacterContainer returns the character container with id.
func (d *Document) CharacterContainer(id gvas.GUID) (*entity.CharacterContainer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.charContainers.get(id); ok {
		return c, nil
	}
	return nil, notFound("character container", id)
}

// ItemContainer returns the item container with id.
func (d *Document) ItemContainer(id gvas.GUID) (*entity.ItemContainer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.itemContainers.get(id); ok {
		return c, nil
	}
	return nil, notFound("item container", id)
}

// ItemContainers returns all item containers.
func (d *Document) ItemContainers() []*entity.ItemContainer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.itemContainers.values()
}

// CharacterContainers returns all character containers.
func (d *Document) CharacterContainers() []*entity.CharacterContainer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.charContainers.values()
}

// DynamicItem returns the dynamic item with local id.
func (d *Document) DynamicItem(id gvas.GUID) (*entity.DynamicItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if it, ok := d.dynamicItems.get(id); ok {
		return it, nil
	}
	return nil, notFound("dynamic item", id)
}

// containerOwner describes who a character container belongs to.
type containerOwner struct {
	player *entity.Player
	base   *entity.Base
}

func (d *Document) ownerOf(container gvas.GUID) containerOwner {
	for _, p := range d.players.values() {
		for _, id := range p.CharacterContainerIDs() {
			if id == container {
				return containerOwner{player: p}
			}
		}
	}
	for _, b := range d.bases.values() {
		if b.ContainerID() == container {
			return containerOwner{base: b}
		}
	}
	return containerOwner{}
}

// ownerUID is the uid stored as OwnerPlayerUId on a player's pals.
func ownerUID(p *entity.Player) gvas.GUID {
	if rec := p.RecordedUID(); !rec.IsZero() {
		return rec
	}
	return p.UID
}
