package entity

import (
	"fmt"
	"math"
	"strings"

	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// BossPrefix marks the species id of an alpha pal.
const BossPrefix = "BOSS_"

// Gender values.
const (
	GenderMale   = "EPalGenderType::Male"
	GenderFemale = "EPalGenderType::Female"
)

// Limits applied by the setters.
const (
	MaxLevel  = 65
	MaxRank   = 5
	MaxSouls  = 10
	MaxIV     = 100
	MaxSanity = 100
)

var (
	fCharacterID = gvas.NameField("CharacterID", "")
	fNickName    = gvas.StrField("NickName", "")
	fLevel       = keepByte("Level", 1)
	fExp         = gvas.Int64Field("Exp", 0)
	fRank        = gvas.ByteField("Rank", 0)
	fRankHP      = gvas.ByteField("Rank_HP", 0)
	fRankAttack  = gvas.ByteField("Rank_Attack", 0)
	fRankDefence = gvas.ByteField("Rank_Defence", 0)
	fRankCraft   = gvas.ByteField("Rank_CraftSpeed", 0)
	fTalentHP    = gvas.ByteField("Talent_HP", 0)
	fTalentShot  = gvas.ByteField("Talent_Shot", 0)
	fTalentDef   = gvas.ByteField("Talent_Defense", 0)
	fGender      = gvas.EnumField("Gender", "EPalGenderType", "")
	fIsPlayer    = gvas.BoolField("IsPlayer", false)
	fIsRarePal   = gvas.BoolField("IsRarePal", false)
	fOwner       = keepGUID("OwnerPlayerUId")
	fStomach     = gvas.FloatField("FullStomach", 0)
	fSanity      = gvas.FloatField("SanityValue", 0)

	fPassives = gvas.ListField{Name: "PassiveSkillList", ElemType: gvas.NameProperty}
	fEquip    = gvas.ListField{Name: "EquipWaza", ElemType: gvas.EnumProperty}
	fMastered = gvas.ListField{Name: "MasteredWaza", ElemType: gvas.EnumProperty}
)

// afflictions are the status markers Heal removes.
var afflictions = []string{"WorkerSick", "HungerType", "PhysicalHealth", "PalReviveTimer", "DyingTimer"}

func keepByte(name string, def uint8) gvas.Field[uint8] {
	f := gvas.ByteField(name, def)
	f.Keep = true
	return f
}

// Pal is a view over one non-player record of CharacterSaveParameterMap.
type Pal struct {
	Key   *gvas.PropertyMap
	Value *gvas.PropertyMap
	Char  *rawdata.Character
	param *gvas.PropertyMap
}

// NewPal wraps a character map entry. It fails when the entry has no decoded
// character payload.
func NewPal(key, value *gvas.PropertyMap) (*Pal, error) {
	c := characterOf(value)
	if c == nil {
		return nil, fmt.Errorf("entity: character record has no decoded RawData")
	}
	param := c.SaveParameter()
	if param == nil {
		return nil, fmt.Errorf("entity: character record has no SaveParameter")
	}
	return &Pal{Key: key, Value: value, Char: c, param: param}, nil
}

// Params returns the raw SaveParameter struct body.
func (p *Pal) Params() *gvas.PropertyMap { return p.param }

func (p *Pal) InstanceID() gvas.GUID { return guidStruct(p.Key, "InstanceId") }

// IsPlayer reports whether the record is a player character.
func (p *Pal) IsPlayer() bool { return fIsPlayer.Get(p.param) }

// CharacterID is the raw species id, including any boss prefix.
func (p *Pal) CharacterID() string { return fCharacterID.Get(p.param) }

func (p *Pal) SetCharacterID(id string) { fCharacterID.Set(p.param, id) }

// Species is the species id without the boss prefix.
func (p *Pal) Species() string {
	id := p.CharacterID()
	if strings.HasPrefix(strings.ToUpper(id), BossPrefix) {
		return id[len(BossPrefix):]
	}
	return id
}

func (p *Pal) Nickname() string { return fNickName.Get(p.param) }

func (p *Pal) SetNickname(s string) { fNickName.Set(p.param, s) }

// DisplayName is the nickname, or the localized species name when unset.
func (p *Pal) DisplayName(names Names) string {
	if n := p.Nickname(); n != "" {
		return n
	}
	if names != nil {
		if n := names.PalName(p.Species()); n != "" {
			return n
		}
	}
	return p.Species()
}

func (p *Pal) Level() int { return int(fLevel.Get(p.param)) }

func (p *Pal) SetLevel(level int) { fLevel.Set(p.param, uint8(clamp(level, 1, MaxLevel))) }

func (p *Pal) Exp() int64 { return fExp.Get(p.param) }

func (p *Pal) SetExp(exp int64) {
	if exp < 0 {
		exp = 0
	}
	fExp.Set(p.param, exp)
}

// Rank is the condenser rank; zero and one both mean "not condensed".
func (p *Pal) Rank() int { return int(fRank.Get(p.param)) }

func (p *Pal) SetRank(rank int) { fRank.Set(p.param, uint8(clamp(rank, 0, MaxRank))) }

// Souls are the statue upgrade counts.
type Souls struct {
	HP, Attack, Defence, CraftSpeed int
}

func (p *Pal) Souls() Souls {
	return Souls{
		HP:         int(fRankHP.Get(p.param)),
		Attack:     int(fRankAttack.Get(p.param)),
		Defence:    int(fRankDefence.Get(p.param)),
		CraftSpeed: int(fRankCraft.Get(p.param)),
	}
}

func (p *Pal) SetSouls(s Souls) {
	fRankHP.Set(p.param, uint8(clamp(s.HP, 0, MaxSouls)))
	fRankAttack.Set(p.param, uint8(clamp(s.Attack, 0, MaxSouls)))
	fRankDefence.Set(p.param, uint8(clamp(s.Defence, 0, MaxSouls)))
	fRankCraft.Set(p.param, uint8(clamp(s.CraftSpeed, 0, MaxSouls)))
}

// Talents are the individual values (IVs).
type Talents struct {
	HP, Shot, Defense int
}

func (p *Pal) Talents() Talents {
	return Talents{
		HP:      int(fTalentHP.Get(p.param)),
		Shot:    int(fTalentShot.Get(p.param)),
		Defense: int(fTalentDef.Get(p.param)),
	}
}

func (p *Pal) SetTalents(t Talents) {
	fTalentHP.Set(p.param, uint8(clamp(t.HP, 0, MaxIV)))
	fTalentShot.Set(p.param, uint8(clamp(t.Shot, 0, MaxIV)))
	fTalentDef.Set(p.param, uint8(clamp(t.Defense, 0, MaxIV)))
}

func (p *Pal) Gender() string { return fGender.Get(p.param) }

func (p *Pal) SetGender(g string) { fGender.Set(p.param, g) }

// IsLucky reports the rare ("lucky") flag.
func (p *Pal) IsLucky() bool { return fIsRarePal.Get(p.param) }

// IsBoss reports an alpha pal. Lucky pals are never alphas even when their
// species id carries the boss prefix.
func (p *Pal) IsBoss() bool {
	return strings.HasPrefix(strings.ToUpper(p.CharacterID()), BossPrefix) && !p.IsLucky()
}

// SetBoss adds or removes the boss prefix. Making a pal an alpha clears the
// lucky flag.
func (p *Pal) SetBoss(boss bool) {
	species := p.Species()
	if boss {
		fIsRarePal.Set(p.param, false)
		p.SetCharacterID(BossPrefix + species)
	} else {
		p.SetCharacterID(species)
	}
}

// SetLucky sets the lucky flag. A lucky pal loses the boss prefix.
func (p *Pal) SetLucky(lucky bool) {
	if lucky {
		p.SetCharacterID(p.Species())
	}
	fIsRarePal.Set(p.param, lucky)
}

// Owner is the owning player uid; zero for base workers and wild pals.
func (p *Pal) Owner() gvas.GUID { return fOwner.Get(p.param) }

func (p *Pal) SetOwner(uid gvas.GUID) { fOwner.Set(p.param, uid) }

// GroupID is the group recorded alongside the character.
func (p *Pal) GroupID() gvas.GUID { return p.Char.GroupID }

func (p *Pal) SetGroupID(g gvas.GUID) { p.Char.GroupID = g }

// ContainerID is the character container holding the pal.
func (p *Pal) ContainerID() gvas.GUID {
	return idStruct(p.param.Struct("SlotID"), "ContainerId")
}

// SlotIndex is the pal's index within its container.
func (p *Pal) SlotIndex() int {
	return int(gvas.IntField("SlotIndex", 0).Get(p.param.Struct("SlotID")))
}

// SetSlot records the container and slot index the pal occupies.
func (p *Pal) SetSlot(container gvas.GUID, index int) {
	slot := gvas.NewPropertyMap()
	slot.Set("ContainerId", newIDStruct("PalContainerId", container))
	idx := gvas.IntField("SlotIndex", 0)
	idx.Keep = true
	idx.Set(slot, int32(index))
	if s := p.param.Get("SlotID"); s != nil {
		if st, ok := s.Value.(*gvas.Struct); ok {
			st.Body = slot
			return
		}
	}
	p.param.Set("SlotID", gvas.NewStruct("PalCharacterSlotId", slot))
}

func (p *Pal) PassiveSkills() []string { return fPassives.Get(p.param) }

func (p *Pal) SetPassiveSkills(ids []string) { fPassives.Set(p.param, ids) }

// ActiveSkills are the equipped moves.
func (p *Pal) ActiveSkills() []string { return fEquip.Get(p.param) }

func (p *Pal) SetActiveSkills(ids []string) { fEquip.Set(p.param, ids) }

// LearnedSkills are all mastered moves.
func (p *Pal) LearnedSkills() []string { return fMastered.Get(p.param) }

func (p *Pal) SetLearnedSkills(ids []string) { fMastered.Set(p.param, ids) }

// HP is the current health in fixed-point (x1000).
func (p *Pal) HP() int64 {
	return gvas.Int64Field("Value", 0).Get(p.param.Struct("Hp"))
}

func (p *Pal) SetHP(hp int64) {
	body := gvas.NewPropertyMap()
	f := gvas.Int64Field("Value", 0)
	f.Keep = true
	f.Set(body, hp)
	if s := p.param.Get("Hp"); s != nil {
		if st, ok := s.Value.(*gvas.Struct); ok {
			st.Body = body
			return
		}
	}
	p.param.Set("Hp", gvas.NewStruct("FixedPoint64", body))
}

func (p *Pal) Stomach() float32 { return fStomach.Get(p.param) }

func (p *Pal) Sanity() float32 { return fSanity.Get(p.param) }

// MaxHP derives the maximum health in fixed-point (x1000) from level, HP
// talent, condenser rank, HP souls and the species' HP scaling.
func (p *Pal) MaxHP(hpScale float64) int64 {
	level := float64(p.Level())
	talentIV := float64(fTalentHP.Get(p.param)) * 0.3 / 100
	alpha := 1.0
	if p.IsBoss() || p.IsLucky() {
		alpha = 1.2
	}
	base := math.Floor(500 + 5*level + hpScale*0.5*level*(1+talentIV)*alpha)
	rank := max(p.Rank(), 1)
	condenser := 0.05 * float64(rank-1)
	soul := 0.03 * float64(fRankHP.Get(p.param))
	return int64(math.Floor(base * (1 + condenser) * (1 + soul) * 1000))
}

// Heal clears affliction markers and refills stomach and sanity.
func (p *Pal) Heal(maxStomach float32) {
	for _, name := range afflictions {
		p.param.Delete(name)
	}
	fStomach.Set(p.param, maxStomach)
	fSanity.Set(p.param, MaxSanity)
}

// Reset turns the record into an unused placeholder in place: only the
// owner and slot survive, and the species becomes "None".
func (p *Pal) Reset() {
	blank := gvas.NewPropertyMap()
	for _, name := range []string{"OwnerPlayerUId", "SlotID"} {
		if prop := p.param.Get(name); prop != nil {
			blank.Set(name, prop)
		}
	}
	fCharacterID.Set(blank, "None")
	p.Char.Object.Get("SaveParameter").Value.(*gvas.Struct).Body = blank
	p.param = blank
}

// Clone deep-copies the record under a new instance id. The previous-owner
// list is cleared; placement and nickname are left to the caller.
func (p *Pal) Clone(id gvas.GUID) *Pal {
	key := p.Key.Clone()
	keepGUID("InstanceId").Set(key, id)
	value := p.Value.Clone()
	c := characterOf(value)
	out := &Pal{Key: key, Value: value, Char: c, param: c.SaveParameter()}
	out.param.Delete("OldOwnerPlayerUIds")
	return out
}

// OldOwners returns the previous owner uids.
func (p *Pal) OldOwners() []gvas.GUID {
	prop := p.param.Get("OldOwnerPlayerUIds")
	if prop == nil {
		return nil
	}
	a, ok := prop.Value.(*gvas.Array)
	if !ok || a.Structs == nil {
		return nil
	}
	var out []gvas.GUID
	for _, v := range a.Structs.Values {
		if g, ok := v.(gvas.GUID); ok {
			out = append(out, g)
		}
	}
	return out
}

// PalSpec describes a new pal record.
type PalSpec struct {
	InstanceID gvas.GUID
	Species    string
	Nickname   string
	Owner      gvas.GUID
	Group      gvas.GUID
	Container  gvas.GUID
	Slot       int
	Gender     string
	HPScale    float64
	MaxStomach float32
}

// NewPalRecord builds the key and value of a fresh character map entry.
func NewPalRecord(s PalSpec) *Pal {
	key := gvas.NewPropertyMap()
	keepGUID("PlayerUId").Set(key, gvas.ZeroGUID)
	keepGUID("InstanceId").Set(key, s.InstanceID)
	debug := gvas.StrField("DebugName", "")
	debug.Keep = true
	debug.Set(key, "")

	param := gvas.NewPropertyMap()
	c := rawdata.NewCharacter(param, s.Group)
	value := gvas.NewPropertyMap()
	value.Set("RawData", rawdata.RawProperty(rawdata.CharacterCustom, c))

	p := &Pal{Key: key, Value: value, Char: c, param: param}
	p.SetCharacterID(s.Species)
	p.SetNickname(s.Nickname)
	p.SetLevel(1)
	gender := s.Gender
	if gender == "" {
		gender = GenderFemale
	}
	p.SetGender(gender)
	p.SetOwner(s.Owner)
	p.SetSlot(s.Container, s.Slot)
	p.SetHP(p.MaxHP(s.HPScale))
	p.Heal(s.MaxStomach)
	return p
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
