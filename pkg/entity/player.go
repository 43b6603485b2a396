package entity

import (
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// Inventory holds the ids of a player's five item containers.
type Inventory struct {
	Common        gvas.GUID
	Essential     gvas.GUID
	WeaponLoadOut gvas.GUID
	Armor         gvas.GUID
	Food          gvas.GUID
}

// IDs returns the non-zero container ids.
func (inv Inventory) IDs() []gvas.GUID {
	var out []gvas.GUID
	for _, id := range []gvas.GUID{inv.Common, inv.Essential, inv.WeaponLoadOut, inv.Armor, inv.Food} {
		if !id.IsZero() {
			out = append(out, id)
		}
	}
	return out
}

// Player merges a player's standalone save with their character record.
// Either part may be missing in a damaged save.
type Player struct {
	// UID is the id the player is addressed by (the save file name).
	UID gvas.GUID
	// Save is the per-player archive, nil when the file is missing.
	Save *gvas.Archive
	// Character is the player's record in the world, nil when missing.
	Character *Pal
	// Pals are the pals owned by the player, keyed by instance id.
	Pals map[gvas.GUID]*Pal
}

// NewPlayer returns a player with an empty pal map.
func NewPlayer(uid gvas.GUID, save *gvas.Archive, character *Pal) *Player {
	return &Player{UID: uid, Save: save, Character: character, Pals: make(map[gvas.GUID]*Pal)}
}

// SaveData returns the root struct of the standalone save, or nil.
func (p *Player) SaveData() *gvas.PropertyMap {
	if p.Save == nil {
		return nil
	}
	return p.Save.Properties.Struct("SaveData")
}

// RecordedUID is the player uid stored inside the standalone save. It can
// differ from UID after a host migration.
func (p *Player) RecordedUID() gvas.GUID {
	return guidStruct(p.SaveData(), "PlayerUId")
}

// InstanceID is the player's character instance id.
func (p *Player) InstanceID() gvas.GUID {
	if id := guidStruct(p.SaveData().Struct("IndividualId"), "InstanceId"); !id.IsZero() {
		return id
	}
	if p.Character != nil {
		return p.Character.InstanceID()
	}
	return gvas.ZeroGUID
}

func (p *Player) Nickname() string {
	if p.Character == nil {
		return ""
	}
	return p.Character.Nickname()
}

func (p *Player) SetNickname(s string) {
	if p.Character != nil {
		p.Character.SetNickname(s)
	}
}

func (p *Player) Level() int {
	if p.Character == nil {
		return 0
	}
	return p.Character.Level()
}

func (p *Player) SetLevel(level int) {
	if p.Character != nil {
		p.Character.SetLevel(level)
	}
}

// GroupID is the group recorded on the player's character.
func (p *Player) GroupID() gvas.GUID {
	if p.Character == nil {
		return gvas.ZeroGUID
	}
	return p.Character.GroupID()
}

// Inventory returns the ids of the five item containers.
func (p *Player) Inventory() Inventory {
	info := p.SaveData().Struct("InventoryInfo")
	return Inventory{
		Common:        idStruct(info, "CommonContainerId"),
		Essential:     idStruct(info, "EssentialContainerId"),
		WeaponLoadOut: idStruct(info, "WeaponLoadOutContainerId"),
		Armor:         idStruct(info, "PlayerEquipArmorContainerId"),
		Food:          idStruct(info, "FoodEquipContainerId"),
	}
}

// PalBoxID is the pal storage container.
func (p *Player) PalBoxID() gvas.GUID { return idStruct(p.SaveData(), "PalStorageContainerId") }

// PartyID is the party ("otomo") container.
func (p *Player) PartyID() gvas.GUID { return idStruct(p.SaveData(), "OtomoCharacterContainerId") }

// CharacterContainerIDs returns the pal box and party ids.
func (p *Player) CharacterContainerIDs() []gvas.GUID {
	var out []gvas.GUID
	for _, id := range []gvas.GUID{p.PalBoxID(), p.PartyID()} {
		if !id.IsZero() {
			out = append(out, id)
		}
	}
	return out
}

// OwnsContainer reports whether id is one of the player's seven containers.
func (p *Player) OwnsContainer(id gvas.GUID) bool {
	for _, c := range append(p.Inventory().IDs(), p.CharacterContainerIDs()...) {
		if c == id {
			return true
		}
	}
	return false
}

// PlayerSpec describes a new standalone player save, used by tests and
// tooling that synthesize saves.
type PlayerSpec struct {
	UID        gvas.GUID
	InstanceID gvas.GUID
	Inventory  Inventory
	PalBox     gvas.GUID
	Party      gvas.GUID
}

// NewPlayerSave builds a standalone player archive.
func NewPlayerSave(s PlayerSpec) *gvas.Archive {
	a := gvas.NewArchive("/Script/Pal.PalWorldPlayerSaveGame")
	data := gvas.NewPropertyMap()
	keepGUID("PlayerUId").Set(data, s.UID)
	ind := gvas.NewPropertyMap()
	keepGUID("PlayerUId").Set(ind, s.UID)
	keepGUID("InstanceId").Set(ind, s.InstanceID)
	data.Set("IndividualId", gvas.NewStruct("PalInstanceID", ind))
	data.Set("PalStorageContainerId", newIDStruct("PalContainerId", s.PalBox))
	data.Set("OtomoCharacterContainerId", newIDStruct("PalContainerId", s.Party))
	info := gvas.NewPropertyMap()
	info.Set("CommonContainerId", newIDStruct("PalContainerId", s.Inventory.Common))
	info.Set("EssentialContainerId", newIDStruct("PalContainerId", s.Inventory.Essential))
	info.Set("WeaponLoadOutContainerId", newIDStruct("PalContainerId", s.Inventory.WeaponLoadOut))
	info.Set("PlayerEquipArmorContainerId", newIDStruct("PalContainerId", s.Inventory.Armor))
	info.Set("FoodEquipContainerId", newIDStruct("PalContainerId", s.Inventory.Food))
	data.Set("InventoryInfo", gvas.NewStruct("PalPlayerDataInventoryInfo", info))
	a.Properties.Set("SaveData", gvas.NewStruct("PalWorldPlayerSaveData", data))
	return a
}

// NewPlayerRecord builds the character map entry of a player.
func NewPlayerRecord(uid, instance, group gvas.GUID, nickname string, level int) *Pal {
	key := gvas.NewPropertyMap()
	keepGUID("PlayerUId").Set(key, uid)
	keepGUID("InstanceId").Set(key, instance)
	debug := gvas.StrField("DebugName", "")
	debug.Keep = true
	debug.Set(key, "")

	param := gvas.NewPropertyMap()
	c := rawdata.NewCharacter(param, group)
	value := gvas.NewPropertyMap()
	value.Set("RawData", rawdata.RawProperty(rawdata.CharacterCustom, c))
	p := &Pal{Key: key, Value: value, Char: c, param: param}
	fIsPlayer.Set(param, true)
	p.SetNickname(nickname)
	p.SetLevel(level)
	return p
}
