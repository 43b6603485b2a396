package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/crystal-mush/palsave/pkg/archive"
	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/journal"
	"github.com/crystal-mush/palsave/pkg/validate"
)

func (a *app) printSummary() {
	c := a.doc.Counts()
	a.printf("=== SAVE SUMMARY ===\n")
	a.printf("Directory:      %s\n", a.dir)
	a.printf("Players:        %d\n", c.Players)
	a.printf("Pals:           %d\n", c.Pals)
	a.printf("Guilds:         %d\n", c.Guilds)
	a.printf("Bases:          %d\n", c.Bases)
	a.printf("Char containers:%d\n", c.CharacterContainers)
	a.printf("Item containers:%d\n", c.ItemContainers)
	a.printf("Dynamic items:  %d\n", c.DynamicItems)
	a.printf("Warnings:       %d\n", c.Warnings)
	if reason, poisoned := a.doc.Poisoned(); poisoned {
		a.printf("POISONED:       %s\n", reason)
	}
	if reason, stale := a.doc.Stale(); stale {
		a.printf("STALE:          %s\n", reason)
	}
	if warnings := a.doc.Warnings(); len(warnings) > 0 {
		a.printf("\n--- Warnings ---\n")
		for _, w := range warnings {
			a.printf("  %s\n", w)
		}
	}
}

func (a *app) printPlayers() {
	a.printf("=== PLAYERS ===\n")
	a.printf("%-36s %-20s %5s %5s  %s\n", "UID", "Name", "Level", "Pals", "Guild")
	a.printf("%s\n", strings.Repeat("-", 110))
	players := a.doc.Players()
	sort.Slice(players, func(i, j int) bool { return players[i].Nickname() < players[j].Nickname() })
	for _, p := range players {
		guild := "(none)"
		if g, ok := a.doc.PlayerGuild(p.UID); ok {
			guild = fmt.Sprintf("%s %s", g.ID, truncate(g.Name(), 20))
		}
		a.printf("%-36s %-20s %5d %5d  %s\n", p.UID, truncate(p.Nickname(), 20), p.Level(), len(p.Pals), guild)
	}
	a.printf("\nTotal: %d players\n", len(players))
}

// printPals lists pals, optionally only those of owner or in container.
func (a *app) printPals(owner, container gvas.GUID) {
	a.printf("=== PALS ===\n")
	a.printf("%-36s %-20s %-16s %5s %4s  %-36s %s\n", "ID", "Name", "Species", "Level", "Rank", "Container", "Slot")
	a.printf("%s\n", strings.Repeat("-", 130))
	n := 0
	for _, p := range a.doc.Pals() {
		if !owner.IsZero() && p.Owner() != owner {
			continue
		}
		if !container.IsZero() && p.ContainerID() != container {
			continue
		}
		species := p.Species()
		if p.IsBoss() {
			species += "*"
		}
		a.printf("%-36s %-20s %-16s %5d %4d  %-36s %d\n", p.InstanceID(), truncate(p.DisplayName(a.names), 20),
			truncate(species, 16), p.Level(), p.Rank(), p.ContainerID(), p.SlotIndex())
		n++
	}
	a.printf("\nTotal: %d pals\n", n)
}

func (a *app) printPal(id gvas.GUID) error {
	p, err := a.doc.Pal(id)
	if err != nil {
		return err
	}
	scale := 0.0
	if a.ref != nil {
		scale, _ = a.ref.HPScale(p.Species())
	}
	a.printf("=== PAL %s ===\n", id)
	a.printf("Name:       %s\n", p.DisplayName(a.names))
	a.printf("Species:    %s\n", p.CharacterID())
	a.printf("Gender:     %s\n", strings.TrimPrefix(p.Gender(), "EPalGenderType::"))
	a.printf("Level:      %d (exp %d)\n", p.Level(), p.Exp())
	a.printf("Rank:       %d\n", p.Rank())
	a.printf("Flags:      %s\n", palFlags(p))
	if scale > 0 {
		a.printf("HP:         %d / %d\n", p.HP(), p.MaxHP(scale))
	} else {
		a.printf("HP:         %d\n", p.HP())
	}
	a.printf("Stomach:    %.0f  Sanity: %.0f\n", p.Stomach(), p.Sanity())
	t, s := p.Talents(), p.Souls()
	a.printf("Talents:    HP %d  Shot %d  Defense %d\n", t.HP, t.Shot, t.Defense)
	a.printf("Souls:      %+v\n", s)
	a.printf("Passives:   %s\n", a.skills(p.PassiveSkills()))
	a.printf("Actives:    %s\n", a.skills(p.ActiveSkills()))
	a.printf("Learned:    %s\n", a.skills(p.LearnedSkills()))
	a.printf("Owner:      %s\n", p.Owner())
	a.printf("Guild:      %s\n", p.GroupID())
	a.printf("Container:  %s slot %d\n", p.ContainerID(), p.SlotIndex())
	return nil
}

func palFlags(p *entity.Pal) string {
	var flags []string
	if p.IsBoss() {
		flags = append(flags, "ALPHA")
	}
	if p.IsLucky() {
		flags = append(flags, "LUCKY")
	}
	if p.IsPlayer() {
		flags = append(flags, "PLAYER")
	}
	if len(flags) == 0 {
		return "(none)"
	}
	return strings.Join(flags, " ")
}

func (a *app) skills(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id
		if a.names != nil {
			if n := a.names.SkillName(id); n != "" {
				out[i] = n
			}
		}
	}
	return strings.Join(out, ", ")
}

func (a *app) printGuilds() {
	a.printf("=== GUILDS ===\n")
	a.printf("%-36s %-24s %5s %7s %5s  %s\n", "ID", "Name", "Camp", "Members", "Bases", "Admin")
	a.printf("%s\n", strings.Repeat("-", 120))
	guilds := a.doc.Guilds()
	for _, g := range guilds {
		admin := g.Admin().String()
		if p, err := a.doc.Player(g.Admin()); err == nil {
			admin = p.Nickname()
		}
		a.printf("%-36s %-24s %5d %7d %5d  %s\n", g.ID, truncate(g.Name(), 24), g.BaseCampLevel(),
			len(g.Members()), len(g.BaseIDs()), admin)
	}
	a.printf("\nTotal: %d guilds\n", len(guilds))
}

func (a *app) printBases() {
	a.printf("=== BASES ===\n")
	a.printf("%-36s %-20s %-36s %s\n", "ID", "Name", "Guild", "Workers")
	a.printf("%s\n", strings.Repeat("-", 105))
	bases := a.doc.Bases()
	for _, b := range bases {
		a.printf("%-36s %-20s %-36s %d\n", b.ID, truncate(b.Name(), 20), b.GuildID(), len(b.Pals))
	}
	a.printf("\nTotal: %d bases\n", len(bases))
}

func (a *app) printItems(id gvas.GUID) error {
	c, err := a.doc.ItemContainer(id)
	if err != nil {
		return err
	}
	a.printf("=== ITEMS %s (%d slots) ===\n", id, c.Capacity())
	a.printf("%4s  %-28s %-28s %6s  %s\n", "Slot", "Item", "Name", "Count", "Dynamic")
	a.printf("%s\n", strings.Repeat("-", 90))
	for _, s := range c.Slots() {
		if s.Empty() {
			continue
		}
		name := ""
		if a.names != nil {
			name = a.names.ItemName(s.StaticID)
		}
		dyn := ""
		if d, ok := a.doc.ItemDynamic(id, s.SlotIndex); ok {
			dyn = fmt.Sprintf("durability %.0f", d.Item.Durability)
			if len(d.Item.PassiveSkills) > 0 {
				dyn += " [" + a.skills(d.Item.PassiveSkills) + "]"
			}
		} else if !s.Dynamic.LocalID.IsZero() {
			dyn = "MISSING " + s.Dynamic.LocalID.String()
		}
		a.printf("%4d  %-28s %-28s %6d  %s\n", s.SlotIndex, truncate(s.StaticID, 28), truncate(name, 28), s.Count, dyn)
	}
	return nil
}

func (a *app) printFindings(findings []validate.Finding) {
	a.printf("=== VALIDATION ===\n")
	errors, warnings, fixed := 0, 0, 0
	for _, f := range findings {
		status := ""
		if f.Fixed {
			status = " [FIXED]"
			fixed++
		}
		a.printf("%s: %s %s%s\n", strings.ToUpper(f.Severity.String()), f.ID, f.Description, status)
		switch f.Severity {
		case validate.SevError:
			errors++
		case validate.SevWarning:
			warnings++
		}
	}
	a.printf("\nValidation complete: %d errors, %d warnings, %d fixed\n", errors, warnings, fixed)
}

func (a *app) printArchives(list []archive.ArchiveInfo) {
	a.printf("=== BACKUPS (%s) ===\n", a.cfg.BackupDir)
	for _, ai := range list {
		label := ""
		if ai.Label != "" {
			label = " " + ai.Label
		}
		a.printf("%-40s %-20s %3d players %8d bytes%s\n", ai.Filename, ai.Timestamp, ai.Players, ai.Size, label)
	}
	a.printf("\nTotal: %d backups\n", len(list))
}

func (a *app) printEntries(entries []journal.Entry) {
	a.printf("=== JOURNAL ===\n")
	for _, e := range entries {
		a.printf("#%-5d s%-3d %s %-14s %s\n", e.ID, e.Session, e.At.Local().Format(time.DateTime), e.Type, e.Text)
	}
	a.printf("\nTotal: %d entries\n", len(entries))
}

func (a *app) printSessions(sessions []journal.Session) {
	a.printf("=== SESSIONS ===\n")
	for _, s := range sessions {
		a.printf("%-5d %s %5d entries  %s\n", s.ID, s.Started.Local().Format(time.DateTime), s.Entries, s.SaveDir)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
