package validate

import (
	"fmt"

	"github.com/crystal-mush/palsave/pkg/savedb"
)

// DanglingRefChecker finds item slots whose dynamic item is missing from
// the world. The fix empties the slot.
type DanglingRefChecker struct{}

func (c *DanglingRefChecker) Name() string { return "dangling-ref" }

func (c *DanglingRefChecker) Check(doc *savedb.Document) []Finding {
	var findings []Finding
	for _, ic := range doc.ItemContainers() {
		for _, s := range ic.DynamicRefs() {
			if _, err := doc.DynamicItem(s.Dynamic.LocalID); err == nil {
				continue
			}
			container, index := ic.ID, s.SlotIndex
			findings = append(findings, Finding{
				Category:    CatDanglingRef,
				Severity:    SevError,
				Subject:     container,
				Related:     s.Dynamic.LocalID,
				Slot:        int(index),
				Description: fmt.Sprintf("container %s slot %d (%s) references missing dynamic item %s", container, index, s.StaticID, s.Dynamic.LocalID),
				Effect:      "slot is emptied",
				Fixable:     true,
				fixFunc: func() error {
					if !doc.ClearDanglingRef(container, index) {
						return fmt.Errorf("slot %d of %s no longer dangles", index, container)
					}
					return nil
				},
			})
		}
	}
	return findings
}

// ContainerChecker finds pals whose recorded slot does not match the
// container that should hold them.
type ContainerChecker struct{}

func (c *ContainerChecker) Name() string { return "container" }

func (c *ContainerChecker) Check(doc *savedb.Document) []Finding {
	var findings []Finding
	for _, p := range doc.Pals() {
		id, container := p.InstanceID(), p.ContainerID()
		if container.IsZero() {
			continue
		}
		cc, err := doc.CharacterContainer(container)
		if err != nil {
			findings = append(findings, Finding{
				Category:    CatContainerMismatch,
				Severity:    SevError,
				Subject:     id,
				Related:     container,
				Description: fmt.Sprintf("pal %s (%s) is placed in missing container %s", id, p.CharacterID(), container),
			})
			continue
		}
		idx, ok := cc.Find(id)
		switch {
		case !ok:
			findings = append(findings, Finding{
				Category:    CatContainerMismatch,
				Severity:    SevWarning,
				Subject:     id,
				Related:     container,
				Description: fmt.Sprintf("pal %s (%s) is not listed by its container %s", id, p.CharacterID(), container),
			})
		case idx != p.SlotIndex():
			findings = append(findings, Finding{
				Category:    CatContainerMismatch,
				Severity:    SevWarning,
				Subject:     id,
				Related:     container,
				Slot:        idx,
				Description: fmt.Sprintf("pal %s records slot %d but container %s lists it at %d", id, p.SlotIndex(), container, idx),
			})
		}
	}
	return findings
}

// MemberChecker finds guild members that have neither a player file nor a
// character record. The fix removes them from the guild.
type MemberChecker struct{}

func (c *MemberChecker) Name() string { return "member" }

func (c *MemberChecker) Check(doc *savedb.Document) []Finding {
	var findings []Finding
	for _, g := range doc.Guilds() {
		for _, uid := range g.Members() {
			if _, err := doc.Player(uid); err == nil {
				continue
			}
			guild, member := g.ID, uid
			findings = append(findings, Finding{
				Category:    CatOrphanMember,
				Severity:    SevWarning,
				Subject:     guild,
				Related:     member,
				Description: fmt.Sprintf("guild %s (%s) lists unknown player %s", guild, g.Name(), member),
				Effect:      "member is removed from the guild",
				Fixable:     true,
				fixFunc:     func() error { return doc.RemoveGuildMember(guild, member) },
			})
		}
	}
	return findings
}

// BaseChecker finds bases owned by a guild that does not exist.
type BaseChecker struct{}

func (c *BaseChecker) Name() string { return "base" }

func (c *BaseChecker) Check(doc *savedb.Document) []Finding {
	var findings []Finding
	for _, b := range doc.Bases() {
		if _, err := doc.Guild(b.GuildID()); err == nil {
			continue
		}
		findings = append(findings, Finding{
			Category:    CatOrphanBase,
			Severity:    SevWarning,
			Subject:     b.ID,
			Related:     b.GuildID(),
			Description: fmt.Sprintf("base %s (%s) belongs to missing guild %s", b.ID, b.Name(), b.GuildID()),
		})
	}
	return findings
}
