package presetstore

import (
	"fmt"
	"time"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// SlotRecord is an item slot as stored in a preset. The dynamic item, if
// any, is kept as its RawData bytes.
type SlotRecord struct {
	SlotIndex int32
	StaticID  string
	Count     int32
	Dynamic   []byte
}

// SlotPreset is a named set of item slots, typically exported from one
// container and imported into another.
type SlotPreset struct {
	Name    string
	Created time.Time
	Slots   []SlotRecord
}

// NewSlotPreset converts exported slot records for storage.
func NewSlotPreset(name string, records []entity.ItemSlotRecord) (*SlotPreset, error) {
	p := &SlotPreset{Name: name, Created: time.Now().UTC()}
	for _, r := range records {
		rec := SlotRecord{SlotIndex: r.SlotIndex, StaticID: r.StaticID, Count: r.Count}
		if r.Dynamic != nil {
			b, err := rawdata.MarshalDynamicItem(r.Dynamic)
			if err != nil {
				return nil, fmt.Errorf("presetstore: slot %d: %w", r.SlotIndex, err)
			}
			rec.Dynamic = b
		}
		p.Slots = append(p.Slots, rec)
	}
	return p, nil
}

// Records converts the preset back into slot records for import.
func (p *SlotPreset) Records() ([]entity.ItemSlotRecord, error) {
	out := make([]entity.ItemSlotRecord, 0, len(p.Slots))
	for _, s := range p.Slots {
		rec := entity.ItemSlotRecord{SlotIndex: s.SlotIndex, StaticID: s.StaticID, Count: s.Count}
		if len(s.Dynamic) > 0 {
			d, err := rawdata.UnmarshalDynamicItem(s.Dynamic)
			if err != nil {
				return nil, fmt.Errorf("presetstore: %s slot %d: %w", p.Name, s.SlotIndex, err)
			}
			rec.Dynamic = d
		}
		out = append(out, rec)
	}
	return out, nil
}

// PalPreset captures the editable attributes of a pal. Identity, owner and
// placement are not part of a preset.
type PalPreset struct {
	Name        string
	Created     time.Time
	CharacterID string
	Nickname    string
	Gender      string
	Level       int
	Exp         int64
	Rank        int
	Lucky       bool
	Souls       entity.Souls
	Talents     entity.Talents
	Passives    []string
	Actives     []string
	Learned     []string
}

// CapturePal records the editable attributes of p under name.
func CapturePal(name string, p *entity.Pal) *PalPreset {
	return &PalPreset{
		Name:        name,
		Created:     time.Now().UTC(),
		CharacterID: p.CharacterID(),
		Nickname:    p.Nickname(),
		Gender:      p.Gender(),
		Level:       p.Level(),
		Exp:         p.Exp(),
		Rank:        p.Rank(),
		Lucky:       p.IsLucky(),
		Souls:       p.Souls(),
		Talents:     p.Talents(),
		Passives:    p.PassiveSkills(),
		Actives:     p.ActiveSkills(),
		Learned:     p.LearnedSkills(),
	}
}

// Apply writes the preset onto p. Empty strings leave the pal's value alone.
func (pp *PalPreset) Apply(p *entity.Pal) {
	if pp.CharacterID != "" {
		p.SetCharacterID(pp.CharacterID)
	}
	p.SetLucky(pp.Lucky)
	if pp.Nickname != "" {
		p.SetNickname(pp.Nickname)
	}
	if pp.Gender != "" {
		p.SetGender(pp.Gender)
	}
	p.SetLevel(pp.Level)
	p.SetExp(pp.Exp)
	p.SetRank(pp.Rank)
	p.SetSouls(pp.Souls)
	p.SetTalents(pp.Talents)
	p.SetPassiveSkills(pp.Passives)
	p.SetActiveSkills(pp.Actives)
	p.SetLearnedSkills(pp.Learned)
}
