package savedb

import (
	"fmt"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// purge collects the ids swept up by a cascade.
type purge struct {
	players        idSet // file and recorded uids of removed players
	itemContainers idSet
	charContainers idSet
	group          gvas.GUID
}

func newPurge(group gvas.GUID) *purge {
	return &purge{players: idSet{}, itemContainers: idSet{}, charContainers: idSet{}, group: group}
}

// ownsObject reports whether a map object belongs to the purged group or
// to any purged player. Any single match qualifies.
func (pg *purge) ownsObject(parts rawdata.MapObjectParts) bool {
	if m := parts.Model; m != nil {
		if !pg.group.IsZero() && m.GroupIDBelongTo == pg.group {
			return true
		}
		if pg.players.has(m.BuildPlayerUID) {
			return true
		}
	}
	if c := parts.Concrete; c != nil {
		if pg.players.has(c.PrivateLockPlayerUID) {
			return true
		}
		for _, t := range c.TradeInfos {
			if pg.players.has(t.SellerPlayerUID) {
				return true
			}
		}
	}
	if l := parts.Lock; l != nil {
		for _, p := range l.PlayerInfos {
			if pg.players.has(p.PlayerUID) {
				return true
			}
		}
	}
	return false
}

// DeleteGuild removes a guild and everything it owns: member players with
// their pals, files and containers, map objects built or locked by them or
// the guild, the guild's bases with their workers, and the guild records.
// Sub-records that are already missing are skipped.
func (d *Document) DeleteGuild(id gvas.GUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.guilds.get(id)
	if !ok {
		return notFound("guild", id)
	}
	d.poison = fmt.Sprintf("delete guild %s", id)
	pg := newPurge(id)

	// 1. members
	var members []*entity.Player
	for _, uid := range g.Members() {
		pg.players.add(uid)
		if p, err := d.player(uid); err == nil {
			members = append(members, p)
			pg.players.add(p.UID, p.RecordedUID())
		}
	}
	d.bus.Progress("delete guild %s: %d members", id, len(members))

	// 2. map objects
	n := d.removeMapObjects(pg)
	d.bus.Progress("delete guild %s: removed %d map objects", id, n)

	// 3. member players
	for _, p := range members {
		d.purgePlayer(p, pg)
	}

	// 4. guild extra
	if extra, ok := d.guildExtras.get(id); ok {
		pg.itemContainers.add(extra.StorageID())
		removeValue(worldMap(d.world, arrGuildExtra, false), extra.Value)
		d.guildExtras.remove(id)
	}

	// 5. bases
	bases := d.guildBases(id)
	for _, b := range bases {
		d.deleteBase(b, pg)
	}
	for _, bid := range append([]gvas.GUID(nil), g.BaseIDs()...) {
		if b, ok := d.bases.get(bid); ok {
			d.deleteBase(b, pg)
		}
	}
	d.bus.Progress("delete guild %s: removed %d bases", id, len(bases))

	// 6, 7. containers
	items, chars := d.removeContainers(pg)
	d.bus.Progress("delete guild %s: removed %d item and %d character containers", id, items, chars)

	// 8. the guild itself
	removeValue(worldMap(d.world, arrGroups, false), g.Value)
	d.guilds.remove(id)

	d.poison = ""
	d.bus.Emit(events.Event{Type: events.EvGuildDeleted, Subject: id,
		Text: fmt.Sprintf("deleted guild %s (%s)", id, g.Name())})
	return nil
}

// DeletePlayer removes one player the same way DeleteGuild removes each
// member, and drops them from their guild.
func (d *Document) DeletePlayer(uid gvas.GUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.player(uid)
	if err != nil {
		return err
	}
	d.poison = fmt.Sprintf("delete player %s", uid)
	pg := newPurge(gvas.ZeroGUID)
	pg.players.add(p.UID, p.RecordedUID())

	n := d.removeMapObjects(pg)
	d.bus.Progress("delete player %s: removed %d map objects", uid, n)
	guild := d.playerGuild(p.UID)
	d.purgePlayer(p, pg)
	if guild != nil {
		for id := range pg.players {
			guild.Group.RemovePlayer(id)
		}
		if pg.players.has(guild.Admin()) && len(guild.Group.Players) > 0 {
			guild.Group.AdminPlayerUID = guild.Group.Players[0].PlayerUID
		}
	}
	items, chars := d.removeContainers(pg)
	d.bus.Progress("delete player %s: removed %d item and %d character containers", uid, items, chars)

	d.poison = ""
	d.bus.Emit(events.Event{Type: events.EvPlayerDeleted, Subject: p.UID, Owner: p.UID, Text: fmt.Sprintf("deleted player %s", p.UID)})
	return nil
}

// RemoveGuildMember drops uid from the member list of guild id. The admin
// passes to the first remaining member when uid held it.
func (d *Document) RemoveGuildMember(id, uid gvas.GUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.guilds.get(id)
	if !ok {
		return notFound("guild", id)
	}
	if !g.Group.RemovePlayer(uid) {
		return notFound("guild member", uid)
	}
	if g.Admin() == uid && len(g.Group.Players) > 0 {
		g.Group.AdminPlayerUID = g.Group.Players[0].PlayerUID
	}
	return nil
}

// removeMapObjects drops every map object owned per pg.ownsObject.
func (d *Document) removeMapObjects(pg *purge) int {
	return removeElems(worldArray(d.world, arrMapObjects, false), func(elem *gvas.PropertyMap) bool {
		return pg.ownsObject(rawdata.PartsOf(elem))
	})
}

// purgePlayer deletes a player's pals, character record and file, and
// collects their containers into pg.
func (d *Document) purgePlayer(p *entity.Player, pg *purge) {
	pals := make([]*entity.Pal, 0, len(p.Pals))
	for _, pal := range p.Pals {
		pals = append(pals, pal)
	}
	for _, pal := range d.pals.values() {
		if pg.players.has(pal.Owner()) && p.Pals[pal.InstanceID()] == nil {
			pals = append(pals, pal)
		}
	}
	for _, pal := range pals {
		if _, ok := d.pals.get(pal.InstanceID()); ok {
			d.deletePal(pal)
		}
	}
	d.bus.Progress("delete player %s: removed %d pals", p.UID, len(pals))

	pg.itemContainers.add(p.Inventory().IDs()...)
	pg.charContainers.add(p.CharacterContainerIDs()...)

	if rec := p.Character; rec != nil {
		removeValue(worldMap(d.world, arrCharacters, false), rec.Value)
		for _, g := range d.guilds.values() {
			g.RemoveHandle(rec.InstanceID())
		}
	}
	for id := range pg.players {
		d.records.remove(id)
	}
	d.players.remove(p.UID)
	if _, ok := d.files[p.UID]; ok {
		delete(d.files, p.UID)
		d.removed = append(d.removed, p.UID)
	}
}

// deleteBase deletes a base's workers and record and collects its container.
func (d *Document) deleteBase(b *entity.Base, pg *purge) {
	if _, ok := d.bases.get(b.ID); !ok {
		return
	}
	container := b.ContainerID()
	for _, pal := range d.pals.values() {
		if !container.IsZero() && pal.ContainerID() == container {
			d.deletePal(pal)
		}
	}
	pg.charContainers.add(container)
	removeValue(worldMap(d.world, arrBases, false), b.Value)
	d.bases.remove(b.ID)
	for _, g := range d.guilds.values() {
		if g.ID == b.GuildID() {
			g.RemoveBase(b.ID)
		}
	}
}

// removeContainers deletes the collected containers plus every item
// container belonging to the purged group or players, and the dynamic items
// their slots referenced.
func (d *Document) removeContainers(pg *purge) (items, chars int) {
	dynamic := idSet{}
	for _, c := range d.itemContainers.values() {
		owner := c.GroupID()
		if !pg.itemContainers.has(c.ID) && !(!pg.group.IsZero() && owner == pg.group) && !pg.players.has(owner) {
			continue
		}
		for _, s := range c.DynamicRefs() {
			dynamic.add(s.Dynamic.LocalID)
		}
		removeValue(worldMap(d.world, arrItemContainers, false), c.Value)
		d.itemContainers.remove(c.ID)
		items++
	}
	for _, c := range d.charContainers.values() {
		if !pg.charContainers.has(c.ID) {
			continue
		}
		removeValue(worldMap(d.world, arrCharContainers, false), c.Value)
		d.charContainers.remove(c.ID)
		chars++
	}
	if len(dynamic) > 0 {
		removeElems(worldArray(d.world, arrDynamicItems, false), func(elem *gvas.PropertyMap) bool {
			it, ok := entity.NewDynamicItem(elem)
			return ok && dynamic.has(it.LocalID())
		})
		for id := range dynamic {
			d.dynamicItems.remove(id)
		}
	}
	return items, chars
}
