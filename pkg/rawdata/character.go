package rawdata

import "github.com/crystal-mush/palsave/pkg/gvas"

// Character is the RawData of a CharacterSaveParameterMap value: the
// character's property object followed by the group it belongs to.
type Character struct {
	Object  *gvas.PropertyMap
	Unknown [4]byte
	GroupID gvas.GUID
	Trailer []byte
}

// SaveParameter returns the character's parameter struct, or nil.
func (c *Character) SaveParameter() *gvas.PropertyMap {
	return c.Object.Struct("SaveParameter")
}

func (c *Character) Encode(w *gvas.Writer) {
	w.Properties(c.Object, characterPath)
	w.Write(c.Unknown[:])
	w.GUID(c.GroupID)
	w.Write(c.Trailer)
}

func (c *Character) Clone() gvas.Payload {
	out := *c
	out.Object = c.Object.Clone()
	out.Trailer = cloneBytes(c.Trailer)
	return &out
}

func decodeCharacter(r *gvas.Reader, path string) (gvas.Payload, error) {
	c := &Character{Object: r.Properties(path)}
	copy(c.Unknown[:], r.Bytes(4))
	c.GroupID = r.GUID()
	c.Trailer = r.Rest()
	return c, r.Err()
}

// NewCharacter returns a Character wrapping a fresh SaveParameter struct.
func NewCharacter(param *gvas.PropertyMap, group gvas.GUID) *Character {
	obj := gvas.NewPropertyMap()
	obj.Set("SaveParameter", gvas.NewStruct("PalIndividualCharacterSaveParameter", param))
	return &Character{Object: obj, GroupID: group}
}
