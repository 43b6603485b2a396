package rawdata

import "github.com/crystal-mush/palsave/pkg/gvas"

// DynamicID identifies a dynamic item: the world that created it and its
// local id there. A zero LocalID means the slot holds a plain stack.
type DynamicID struct {
	CreatedWorldID gvas.GUID
	LocalID        gvas.GUID
}

func readDynamicID(r *gvas.Reader) DynamicID {
	return DynamicID{CreatedWorldID: r.GUID(), LocalID: r.GUID()}
}

func writeDynamicID(w *gvas.Writer, id DynamicID) {
	w.GUID(id.CreatedWorldID)
	w.GUID(id.LocalID)
}

// ItemSlot is the RawData of one item container slot.
type ItemSlot struct {
	SlotIndex int32
	Count     int32
	StaticID  string
	Dynamic   DynamicID
	Trailer   []byte
}

// Empty reports whether the slot holds nothing.
func (s *ItemSlot) Empty() bool {
	return s.Count == 0 || s.StaticID == "" || s.StaticID == "None"
}

// Clear resets the slot to the vacant placeholder, keeping its index.
func (s *ItemSlot) Clear() {
	s.Count = 0
	s.StaticID = "None"
	s.Dynamic = DynamicID{}
}

func (s *ItemSlot) Encode(w *gvas.Writer) {
	w.I32(s.SlotIndex)
	w.I32(s.Count)
	w.FString(s.StaticID)
	writeDynamicID(w, s.Dynamic)
	w.Write(s.Trailer)
}

func (s *ItemSlot) Clone() gvas.Payload {
	out := *s
	out.Trailer = cloneBytes(s.Trailer)
	return &out
}

func decodeItemSlot(r *gvas.Reader, path string) (gvas.Payload, error) {
	s := &ItemSlot{SlotIndex: r.I32(), Count: r.I32(), StaticID: r.FString(), Dynamic: readDynamicID(r)}
	s.Trailer = r.Rest()
	return s, r.Err()
}

// ItemKind selects which type-specific fields a DynamicItem carries.
type ItemKind int

const (
	KindUnknown ItemKind = iota
	KindArmor
	KindWeapon
	KindEgg
)

func (k ItemKind) String() string {
	switch k {
	case KindArmor:
		return "armor"
	case KindWeapon:
		return "weapon"
	case KindEgg:
		return "egg"
	default:
		return "unknown"
	}
}

// DynamicItem is the RawData of one DynamicItemSaveData entry. Durability is
// shared by armor and weapons; the remaining type fields are exclusive to
// one kind and must be zero for the others (see SetKind).
type DynamicItem struct {
	// Empty marks a zero-length RawData blob.
	Empty    bool
	ID       DynamicID
	StaticID string
	Kind     ItemKind

	Durability       float32
	RemainingBullets int32
	PassiveSkills    []string

	CharacterID string
	Object      *gvas.PropertyMap
	EggUnknown  [4]byte
	EggID       gvas.GUID

	Trailer []byte
}

// SetKind switches the item type and strips the fields that are illegal for it.
func (d *DynamicItem) SetKind(k ItemKind) {
	d.Kind = k
	switch k {
	case KindArmor:
		d.RemainingBullets = 0
		d.PassiveSkills = nil
		d.clearEgg()
	case KindWeapon:
		d.clearEgg()
	case KindEgg:
		d.Durability = 0
		d.RemainingBullets = 0
		d.PassiveSkills = nil
		if d.Object == nil {
			d.Object = gvas.NewPropertyMap()
		}
	default:
		d.Durability = 0
		d.RemainingBullets = 0
		d.PassiveSkills = nil
		d.clearEgg()
	}
}

func (d *DynamicItem) clearEgg() {
	d.CharacterID = ""
	d.Object = nil
	d.EggUnknown = [4]byte{}
	d.EggID = gvas.GUID{}
}

func (d *DynamicItem) Encode(w *gvas.Writer) {
	if d.Empty {
		return
	}
	writeDynamicID(w, d.ID)
	w.FString(d.StaticID)
	switch d.Kind {
	case KindEgg:
		w.FString(d.CharacterID)
		w.Properties(d.Object, dynamicItemPath)
		w.Write(d.EggUnknown[:])
		w.GUID(d.EggID)
	case KindArmor:
		w.F32(d.Durability)
	case KindWeapon:
		w.F32(d.Durability)
		w.I32(d.RemainingBullets)
		gvas.WriteTArray(w, d.PassiveSkills, writeFString)
	}
	w.Write(d.Trailer)
}

func (d *DynamicItem) Clone() gvas.Payload {
	out := *d
	out.PassiveSkills = append([]string(nil), d.PassiveSkills...)
	out.Object = d.Object.Clone()
	out.Trailer = cloneBytes(d.Trailer)
	return &out
}

// decodeDynamicItem identifies the item kind by trying each layout against
// the bytes after the common prefix: egg first, then armor (exactly one
// float remains), then weapon. Anything else keeps the rest as Trailer.
func decodeDynamicItem(r *gvas.Reader, path string) (gvas.Payload, error) {
	if r.Len() == 0 {
		return &DynamicItem{Empty: true}, nil
	}
	d := &DynamicItem{ID: readDynamicID(r), StaticID: r.FString()}
	if r.Err() != nil {
		return nil, r.Err()
	}
	rest := r.Rest()
	if len(rest) == 0 {
		return d, nil
	}

	if egg, sub, ok := speculate(r, rest, func(s *gvas.Reader) *DynamicItem {
		e := &DynamicItem{CharacterID: s.FString()}
		if s.Err() != nil || !isCharacterID(e.CharacterID) {
			s.Fail(path, "not an egg")
			return nil
		}
		e.Object = s.Properties(path)
		copy(e.EggUnknown[:], s.Bytes(4))
		e.EggID = s.GUID()
		return e
	}); ok {
		d.Kind = KindEgg
		d.CharacterID, d.Object, d.EggUnknown, d.EggID = egg.CharacterID, egg.Object, egg.EggUnknown, egg.EggID
		d.Trailer = sub.Rest()
		return d, nil
	}

	if len(rest) == 4 {
		s := r.Sub(rest)
		d.Kind = KindArmor
		d.Durability = s.F32()
		return d, s.Err()
	}

	if weapon, sub, ok := speculate(r, rest, func(s *gvas.Reader) *DynamicItem {
		return &DynamicItem{
			Durability:       s.F32(),
			RemainingBullets: s.I32(),
			PassiveSkills:    gvas.TArray(s, readFString),
		}
	}); ok {
		d.Kind = KindWeapon
		d.Durability, d.RemainingBullets, d.PassiveSkills = weapon.Durability, weapon.RemainingBullets, weapon.PassiveSkills
		d.Trailer = sub.Rest()
		return d, nil
	}

	d.Trailer = rest
	return d, nil
}

// isCharacterID reports whether s looks like a species id: a non-empty
// identifier of letters, digits and underscores.
func isCharacterID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

// MarshalDynamicItem returns the RawData bytes of d as they appear in the
// world's dynamic item array.
func MarshalDynamicItem(d *DynamicItem) ([]byte, error) {
	w := gvas.NewWriter(World())
	d.Encode(w)
	return w.Bytes(), w.Err()
}

// UnmarshalDynamicItem parses bytes written by MarshalDynamicItem.
func UnmarshalDynamicItem(b []byte) (*DynamicItem, error) {
	r := gvas.NewReader(b, World())
	pl, err := decodeDynamicItem(r, dynamicItemPath)
	if err == nil {
		err = r.Err()
	}
	if err != nil {
		return nil, err
	}
	return pl.(*DynamicItem), nil
}
