package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/crystal-mush/palsave/pkg/archive"
	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/journal"
	"github.com/crystal-mush/palsave/pkg/presetstore"
	"github.com/crystal-mush/palsave/pkg/savedb"
	"github.com/crystal-mush/palsave/pkg/validate"
)

// exec runs one command. Commands that change the document set a.dirty.
func (a *app) exec(args []string) error {
	switch args[0] {
	case "summary":
		a.printSummary()
	case "players":
		a.printPlayers()
	case "pals":
		return a.cmdPals(args[1:])
	case "guilds":
		a.printGuilds()
	case "bases":
		a.printBases()
	case "items":
		if len(args) != 2 {
			return fmt.Errorf("usage: items CONTAINER")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		return a.printItems(id)
	case "pal":
		return a.cmdPal(args[1:])
	case "player":
		return a.cmdPlayer(args[1:])
	case "guild":
		return a.cmdGuild(args[1:])
	case "item":
		return a.cmdItem(args[1:])
	case "validate":
		return a.cmdValidate(args[1:])
	case "preset":
		return a.cmdPreset(args[1:])
	case "backup":
		return a.cmdBackup(args[1:])
	case "journal":
		return a.cmdJournal(args[1:])
	case "sessions":
		return a.cmdSessions()
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func parseID(s string) (gvas.GUID, error) {
	id, err := gvas.ParseGUID(s)
	if err != nil {
		return gvas.GUID{}, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]gvas.GUID, error) {
	ids := make([]gvas.GUID, len(args))
	for i, s := range args {
		var err error
		if ids[i], err = parseID(s); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// subFlags returns a flag set for a subcommand. Flags come before the
// positional arguments.
func (a *app) subFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// positional parses fs and checks the number of remaining arguments.
func positional(fs *flag.FlagSet, args []string, n int, usage string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%v\nusage: %s", err, usage)
	}
	if fs.NArg() != n {
		return nil, fmt.Errorf("usage: %s", usage)
	}
	return fs.Args(), nil
}

func (a *app) cmdPals(args []string) error {
	fs := a.subFlags("pals")
	player := fs.String("player", "", "only pals owned by this player")
	container := fs.String("container", "", "only pals in this container")
	if _, err := positional(fs, args, 0, "pals [-player UID] [-container ID]"); err != nil {
		return err
	}
	var owner, in gvas.GUID
	var err error
	if *player != "" {
		if owner, err = parseID(*player); err != nil {
			return err
		}
	}
	if *container != "" {
		if in, err = parseID(*container); err != nil {
			return err
		}
	}
	a.printPals(owner, in)
	return nil
}

func (a *app) cmdPal(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: pal show|add|clone|move|delete|heal|edit ...")
	}
	switch args[0] {
	case "show":
		rest, err := positional(a.subFlags("pal show"), args[1:], 1, "pal show PAL")
		if err != nil {
			return err
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		return a.printPal(id)

	case "add":
		fs := a.subFlags("pal add")
		nick := fs.String("nick", "", "nickname, default from config")
		slot := fs.Int("slot", savedb.AnySlot, "slot index, default lowest free")
		rest, err := positional(fs, args[1:], 2, "pal add [-nick NAME] [-slot N] CONTAINER SPECIES")
		if err != nil {
			return err
		}
		container, err := parseID(rest[0])
		if err != nil {
			return err
		}
		p, err := a.doc.AddPal(container, rest[1], *nick, *slot)
		if err != nil {
			return err
		}
		a.dirty = true
		a.printf("Added %s %s at slot %d\n", p.InstanceID(), p.DisplayName(a.names), p.SlotIndex())

	case "clone":
		fs := a.subFlags("pal clone")
		slot := fs.Int("slot", savedb.AnySlot, "slot index, default lowest free")
		rest, err := positional(fs, args[1:], 1, "pal clone [-slot N] PAL")
		if err != nil {
			return err
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		p, err := a.doc.ClonePal(id, *slot)
		if err != nil {
			return err
		}
		a.dirty = true
		a.printf("Cloned %s as %s %q\n", id, p.InstanceID(), p.DisplayName(a.names))

	case "move":
		rest, err := positional(a.subFlags("pal move"), args[1:], 3, "pal move PLAYER PAL CONTAINER")
		if err != nil {
			return err
		}
		ids, err := parseIDs(rest)
		if err != nil {
			return err
		}
		moved, err := a.doc.MovePal(ids[0], ids[1], ids[2])
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("container %s is full", ids[2])
		}
		a.dirty = true
		a.printf("Moved %s to %s\n", ids[1], ids[2])

	case "delete":
		rest, err := positional(a.subFlags("pal delete"), args[1:], 1, "pal delete PAL")
		if err != nil {
			return err
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		if err := a.doc.DeletePal(id); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Deleted pal %s\n", id)

	case "heal":
		rest, err := positional(a.subFlags("pal heal"), args[1:], 1, "pal heal PAL")
		if err != nil {
			return err
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		if err := a.doc.HealPal(id); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Healed %s\n", id)

	case "edit":
		return a.cmdPalEdit(args[1:])

	default:
		return fmt.Errorf("unknown pal command %q", args[0])
	}
	return nil
}

// cmdPalEdit changes only the fields whose flags were given.
func (a *app) cmdPalEdit(args []string) error {
	fs := a.subFlags("pal edit")
	nick := fs.String("nick", "", "nickname")
	level := fs.Int("level", 0, "level")
	exp := fs.Int64("exp", 0, "experience")
	rank := fs.Int("rank", 0, "condenser rank")
	gender := fs.String("gender", "", "male or female")
	boss := fs.Bool("boss", false, "alpha variant")
	lucky := fs.Bool("lucky", false, "lucky variant")
	passives := fs.String("passives", "", "comma-separated passive skill ids")
	species := fs.String("species", "", "character id")
	rest, err := positional(fs, args, 1, "pal edit [-nick S] [-level N] [-exp N] [-rank N] [-gender G] [-boss] [-lucky] [-passives A,B] [-species ID] PAL")
	if err != nil {
		return err
	}
	id, err := parseID(rest[0])
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if len(set) == 0 {
		return fmt.Errorf("pal edit: nothing to change")
	}
	var g string
	if set["gender"] {
		switch strings.ToLower(*gender) {
		case "male", "m":
			g = entity.GenderMale
		case "female", "f":
			g = entity.GenderFemale
		default:
			return fmt.Errorf("pal edit: bad gender %q", *gender)
		}
	}

	err = a.doc.EditPal(id, func(p *entity.Pal) {
		if set["species"] {
			p.SetCharacterID(*species)
		}
		if set["nick"] {
			p.SetNickname(*nick)
		}
		if set["level"] {
			p.SetLevel(*level)
		}
		if set["exp"] {
			p.SetExp(*exp)
		}
		if set["rank"] {
			p.SetRank(*rank)
		}
		if set["gender"] {
			p.SetGender(g)
		}
		if set["boss"] {
			p.SetBoss(*boss)
		}
		if set["lucky"] {
			p.SetLucky(*lucky)
		}
		if set["passives"] {
			p.SetPassiveSkills(splitList(*passives))
		}
	})
	if err != nil {
		return err
	}
	a.dirty = true
	a.printf("Edited %s\n", id)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *app) cmdPlayer(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: player delete|edit ...")
	}
	switch args[0] {
	case "delete":
		rest, err := positional(a.subFlags("player delete"), args[1:], 1, "player delete UID")
		if err != nil {
			return err
		}
		uid, err := parseID(rest[0])
		if err != nil {
			return err
		}
		if err := a.doc.DeletePlayer(uid); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Deleted player %s\n", uid)

	case "edit":
		fs := a.subFlags("player edit")
		nick := fs.String("nick", "", "nickname")
		level := fs.Int("level", 0, "level")
		rest, err := positional(fs, args[1:], 1, "player edit [-nick S] [-level N] UID")
		if err != nil {
			return err
		}
		uid, err := parseID(rest[0])
		if err != nil {
			return err
		}
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if len(set) == 0 {
			return fmt.Errorf("player edit: nothing to change")
		}
		err = a.doc.EditPlayer(uid, func(p *entity.Player) {
			if set["nick"] {
				p.SetNickname(*nick)
			}
			if set["level"] {
				p.SetLevel(*level)
			}
		})
		if err != nil {
			return err
		}
		a.dirty = true
		a.printf("Edited player %s\n", uid)

	default:
		return fmt.Errorf("unknown player command %q", args[0])
	}
	return nil
}

func (a *app) cmdGuild(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: guild delete|kick ...")
	}
	switch args[0] {
	case "delete":
		rest, err := positional(a.subFlags("guild delete"), args[1:], 1, "guild delete GUILD")
		if err != nil {
			return err
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		if err := a.doc.DeleteGuild(id); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Deleted guild %s\n", id)

	case "kick":
		rest, err := positional(a.subFlags("guild kick"), args[1:], 2, "guild kick GUILD UID")
		if err != nil {
			return err
		}
		ids, err := parseIDs(rest)
		if err != nil {
			return err
		}
		if err := a.doc.RemoveGuildMember(ids[0], ids[1]); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Removed %s from guild %s\n", ids[1], ids[0])

	default:
		return fmt.Errorf("unknown guild command %q", args[0])
	}
	return nil
}

func (a *app) cmdItem(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: item set|reset|unlink ...")
	}
	switch args[0] {
	case "set":
		rest, err := positional(a.subFlags("item set"), args[1:], 4, "item set CONTAINER SLOT ITEM COUNT")
		if err != nil {
			return err
		}
		container, err := parseID(rest[0])
		if err != nil {
			return err
		}
		slot, err := strconv.ParseInt(rest[1], 10, 32)
		if err != nil {
			return fmt.Errorf("bad slot %q", rest[1])
		}
		count, err := strconv.ParseInt(rest[3], 10, 32)
		if err != nil {
			return fmt.Errorf("bad count %q", rest[3])
		}
		if err := a.doc.SetItemSlot(container, int32(slot), rest[2], int32(count)); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Slot %d of %s: %s x%d\n", slot, container, rest[2], count)

	case "reset", "unlink":
		rest, err := positional(a.subFlags("item "+args[0]), args[1:], 2, "item "+args[0]+" CONTAINER SLOT")
		if err != nil {
			return err
		}
		container, err := parseID(rest[0])
		if err != nil {
			return err
		}
		slot, err := strconv.ParseInt(rest[1], 10, 32)
		if err != nil {
			return fmt.Errorf("bad slot %q", rest[1])
		}
		if args[0] == "unlink" {
			if !a.doc.ClearDanglingRef(container, int32(slot)) {
				return fmt.Errorf("slot %d of %s has no dangling reference", slot, container)
			}
		} else if err := a.doc.ResetItemSlot(container, int32(slot)); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Cleared slot %d of %s\n", slot, container)

	default:
		return fmt.Errorf("unknown item command %q", args[0])
	}
	return nil
}

func (a *app) cmdValidate(args []string) error {
	fs := a.subFlags("validate")
	fix := fs.Bool("fix", false, "apply every available fix")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if _, err := positional(fs, args, 0, "validate [-fix] [-json]"); err != nil {
		return err
	}
	v := validate.New(a.doc)
	findings := v.Run()
	if *fix {
		fixed := 0
		for _, f := range findings {
			if !f.Fixable {
				continue
			}
			if err := v.ApplyFix(f.ID); err != nil {
				a.printf("Fix %s failed: %v\n", f.ID, err)
				continue
			}
			fixed++
		}
		if fixed > 0 {
			a.dirty = true
		}
	}
	if *asJSON {
		return validate.GenerateReport(v).WriteJSON(a.out)
	}
	a.printFindings(v.Findings())
	return nil
}

func (a *app) cmdPreset(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: preset list|save-slots|load-slots|save-pal|apply-pal|delete-slots|delete-pal ...")
	}
	s, err := a.presets()
	if err != nil {
		return err
	}
	switch args[0] {
	case "list":
		slots, err := s.SlotNames()
		if err != nil {
			return err
		}
		pals, err := s.PalNames()
		if err != nil {
			return err
		}
		a.printf("=== PRESETS (%s) ===\n", s.Path())
		a.printf("Slot presets: %s\n", joinOrNone(slots))
		a.printf("Pal presets:  %s\n", joinOrNone(pals))

	case "save-slots":
		rest, err := positional(a.subFlags("preset save-slots"), args[1:], 2, "preset save-slots NAME CONTAINER")
		if err != nil {
			return err
		}
		container, err := parseID(rest[1])
		if err != nil {
			return err
		}
		records, err := a.doc.ExportSlots(container)
		if err != nil {
			return err
		}
		p, err := presetstore.NewSlotPreset(rest[0], records)
		if err != nil {
			return err
		}
		if err := s.PutSlots(p); err != nil {
			return err
		}
		a.printf("Saved %d slots as %q\n", len(p.Slots), p.Name)

	case "load-slots":
		rest, err := positional(a.subFlags("preset load-slots"), args[1:], 2, "preset load-slots NAME CONTAINER")
		if err != nil {
			return err
		}
		container, err := parseID(rest[1])
		if err != nil {
			return err
		}
		p, err := s.Slots(rest[0])
		if err != nil {
			return err
		}
		records, err := p.Records()
		if err != nil {
			return err
		}
		if err := a.doc.ImportSlots(container, records); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Loaded %q into %s\n", p.Name, container)

	case "save-pal":
		rest, err := positional(a.subFlags("preset save-pal"), args[1:], 2, "preset save-pal NAME PAL")
		if err != nil {
			return err
		}
		id, err := parseID(rest[1])
		if err != nil {
			return err
		}
		pal, err := a.doc.Pal(id)
		if err != nil {
			return err
		}
		if err := s.PutPal(presetstore.CapturePal(rest[0], pal)); err != nil {
			return err
		}
		a.printf("Saved %s as %q\n", pal.DisplayName(a.names), rest[0])

	case "apply-pal":
		rest, err := positional(a.subFlags("preset apply-pal"), args[1:], 2, "preset apply-pal NAME PAL")
		if err != nil {
			return err
		}
		id, err := parseID(rest[1])
		if err != nil {
			return err
		}
		p, err := s.Pal(rest[0])
		if err != nil {
			return err
		}
		if err := a.doc.EditPal(id, p.Apply); err != nil {
			return err
		}
		a.dirty = true
		a.printf("Applied %q to %s\n", p.Name, id)

	case "delete-slots", "delete-pal":
		rest, err := positional(a.subFlags("preset "+args[0]), args[1:], 1, "preset "+args[0]+" NAME")
		if err != nil {
			return err
		}
		if args[0] == "delete-slots" {
			err = s.DeleteSlots(rest[0])
		} else {
			err = s.DeletePal(rest[0])
		}
		if err != nil {
			return err
		}
		a.printf("Deleted %q\n", rest[0])

	default:
		return fmt.Errorf("unknown preset command %q", args[0])
	}
	return nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func (a *app) cmdBackup(args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		list, err := archive.ListArchives(a.cfg.BackupDir)
		if err != nil {
			return err
		}
		a.printArchives(list)

	case "create":
		fs := a.subFlags("backup create")
		label := fs.String("label", "", "label stored in the manifest")
		if _, err := positional(fs, args[1:], 0, "backup create [-label S]"); err != nil {
			return err
		}
		path, err := archive.CreateArchive(archive.ArchiveParams{SaveDir: a.dir, ArchiveDir: a.cfg.BackupDir, Label: *label})
		if err != nil {
			return err
		}
		a.printf("Backup: %s\n", path)
		if _, err := archive.Prune(a.cfg.BackupDir, a.cfg.BackupRetain); err != nil {
			return err
		}

	case "restore":
		fs := a.subFlags("backup restore")
		keep := fs.Bool("keep-extra", false, "keep player files that are not in the archive")
		rest, err := positional(fs, args[1:], 1, "backup restore [-keep-extra] ARCHIVE")
		if err != nil {
			return err
		}
		res, err := archive.RestoreArchive(archive.RestoreParams{ArchivePath: rest[0], SaveDir: a.dir, KeepExtra: *keep})
		if err != nil {
			return err
		}
		a.printf("Restore complete: %d files restored, %d removed\n", res.FilesRestored, len(res.Removed))
		for _, w := range res.Warnings {
			a.printf("Restore warning: %s\n", w)
		}
		// A loaded document no longer matches the directory.
		if a.doc != nil {
			return a.reload()
		}

	default:
		return fmt.Errorf("unknown backup command %q", args[0])
	}
	return nil
}

func (a *app) cmdJournal(args []string) error {
	if a.journal == nil {
		return fmt.Errorf("journal disabled, set -journal or journal_db")
	}
	fs := a.subFlags("journal")
	session := fs.Int64("session", 0, "session id")
	typ := fs.String("type", "", "event type, e.g. pal_deleted")
	subject := fs.String("subject", "", "entity or owner id")
	limit := fs.Int("limit", 50, "maximum entries")
	if _, err := positional(fs, args, 0, "journal [-session N] [-type T] [-subject ID] [-limit N]"); err != nil {
		return err
	}
	f := journal.Filter{Session: *session, Type: *typ, Limit: *limit}
	if *subject != "" {
		id, err := parseID(*subject)
		if err != nil {
			return err
		}
		f.Subject = id
	}
	entries, err := a.journal.Entries(context.Background(), f)
	if err != nil {
		return err
	}
	a.printEntries(entries)
	return nil
}

func (a *app) cmdSessions() error {
	if a.journal == nil {
		return fmt.Errorf("journal disabled, set -journal or journal_db")
	}
	sessions, err := a.journal.Sessions(context.Background())
	if err != nil {
		return err
	}
	a.printSessions(sessions)
	return nil
}
