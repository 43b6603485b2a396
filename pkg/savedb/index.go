package savedb

import (
	"github.com/crystal-mush/palsave/pkg/gvas"
)

// Names of the flat world arrays under worldSaveData.
const (
	arrCharacters     = "CharacterSaveParameterMap"
	arrItemContainers = "ItemContainerSaveData"
	arrCharContainers = "CharacterContainerSaveData"
	arrDynamicItems   = "DynamicItemSaveData"
	arrGroups         = "GroupSaveDataMap"
	arrBases          = "BaseCampSaveData"
	arrMapObjects     = "MapObjectSaveData"
	arrGuildExtra     = "GuildExtraSaveDataMap"
)

// mapKeyStruct is the struct type of each world map's keys, used when a
// missing map has to be created.
var mapKeyStruct = map[string]string{
	arrCharacters:     "StructProperty",
	arrItemContainers: "StructProperty",
	arrCharContainers: "StructProperty",
	arrGroups:         "Guid",
	arrBases:          "Guid",
	arrGuildExtra:     "Guid",
}

// structArrayType is the element type name of each world struct array.
var structArrayType = map[string]string{
	arrDynamicItems: "PalDynamicItemSaveData",
	arrMapObjects:   "PalMapObjectSaveData",
}

// worldMap returns the named map of the world struct. When absent it is
// treated as empty; create attaches a new empty map instead of returning nil.
func worldMap(world *gvas.PropertyMap, name string, create bool) *gvas.Map {
	if p := world.Get(name); p != nil {
		if m, ok := p.Value.(*gvas.Map); ok {
			return m
		}
	}
	if !create {
		return nil
	}
	m := &gvas.Map{
		KeyType:         gvas.StructProperty,
		ValueType:       gvas.StructProperty,
		KeyStructType:   mapKeyStruct[name],
		ValueStructType: "StructProperty",
	}
	world.Set(name, &gvas.Property{Type: gvas.MapProperty, Value: m})
	return m
}

// worldArray returns the named struct array of the world struct, with the
// same absent-means-empty rule as worldMap.
func worldArray(world *gvas.PropertyMap, name string, create bool) *gvas.StructArray {
	if p := world.Get(name); p != nil {
		if a, ok := p.Value.(*gvas.Array); ok && a.Structs != nil {
			return a.Structs
		}
	}
	if !create {
		return nil
	}
	sa := &gvas.StructArray{PropName: name, PropType: gvas.StructProperty, TypeName: structArrayType[name]}
	world.Set(name, &gvas.Property{Type: gvas.ArrayProperty, Value: &gvas.Array{ElemType: gvas.StructProperty, Structs: sa}})
	return sa
}

// eachStructEntry calls fn for every entry whose key and value are property
// lists. A nil map has no entries.
func eachStructEntry(m *gvas.Map, fn func(key, value *gvas.PropertyMap)) {
	if m == nil {
		return
	}
	for _, e := range m.Entries {
		k, ok1 := e.Key.(*gvas.PropertyMap)
		v, ok2 := e.Value.(*gvas.PropertyMap)
		if ok1 && ok2 {
			fn(k, v)
		}
	}
}

// eachGUIDEntry calls fn for every entry keyed by a Guid.
func eachGUIDEntry(m *gvas.Map, fn func(key gvas.GUID, value *gvas.PropertyMap)) {
	if m == nil {
		return
	}
	for _, e := range m.Entries {
		k, ok1 := e.Key.(gvas.GUID)
		v, ok2 := e.Value.(*gvas.PropertyMap)
		if ok1 && ok2 {
			fn(k, v)
		}
	}
}

// eachElem calls fn for every property-list element of a struct array.
func eachElem(sa *gvas.StructArray, fn func(elem *gvas.PropertyMap)) {
	if sa == nil {
		return
	}
	for _, v := range sa.Values {
		if elem, ok := v.(*gvas.PropertyMap); ok {
			fn(elem)
		}
	}
}

// removeEntries deletes the entries for which drop returns true, keeping
// the order of the rest, and returns how many were removed.
func removeEntries(m *gvas.Map, drop func(gvas.MapEntry) bool) int {
	if m == nil {
		return 0
	}
	kept := m.Entries[:0]
	n := 0
	for _, e := range m.Entries {
		if drop(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	clear(m.Entries[len(kept):])
	m.Entries = kept
	return n
}

// removeValue deletes the entry whose value is exactly value.
func removeValue(m *gvas.Map, value *gvas.PropertyMap) bool {
	return removeEntries(m, func(e gvas.MapEntry) bool {
		v, ok := e.Value.(*gvas.PropertyMap)
		return ok && v == value
	}) > 0
}

// removeElems deletes the struct array elements for which drop returns true.
func removeElems(sa *gvas.StructArray, drop func(*gvas.PropertyMap) bool) int {
	if sa == nil {
		return 0
	}
	kept := sa.Values[:0]
	n := 0
	for _, v := range sa.Values {
		if elem, ok := v.(*gvas.PropertyMap); ok && drop(elem) {
			n++
			continue
		}
		kept = append(kept, v)
	}
	clear(sa.Values[len(kept):])
	sa.Values = kept
	return n
}

// idSet is a set of non-zero ids.
type idSet map[gvas.GUID]struct{}

func (s idSet) add(ids ...gvas.GUID) {
	for _, id := range ids {
		if !id.IsZero() {
			s[id] = struct{}{}
		}
	}
}

func (s idSet) has(id gvas.GUID) bool {
	_, ok := s[id]
	return ok
}

// index maps ids to entity views of one flat array. It is kept in step with
// the array by every mutation. Removal leaves a hole in entries that is
// compacted once holes outnumber live entries.
type index[V any] struct {
	pos     map[gvas.GUID]int
	entries []indexEntry[V]
	holes   int
}

type indexEntry[V any] struct {
	id   gvas.GUID
	v    V
	live bool
}

func newIndex[V any]() *index[V] {
	return &index[V]{pos: make(map[gvas.GUID]int)}
}

func (x *index[V]) get(id gvas.GUID) (V, bool) {
	i, ok := x.pos[id]
	if !ok {
		var zero V
		return zero, false
	}
	return x.entries[i].v, true
}

func (x *index[V]) put(id gvas.GUID, v V) {
	if i, ok := x.pos[id]; ok {
		x.entries[i].v = v
		return
	}
	x.pos[id] = len(x.entries)
	x.entries = append(x.entries, indexEntry[V]{id: id, v: v, live: true})
}

func (x *index[V]) remove(id gvas.GUID) bool {
	i, ok := x.pos[id]
	if !ok {
		return false
	}
	delete(x.pos, id)
	x.entries[i] = indexEntry[V]{}
	x.holes++
	if x.holes > len(x.pos) {
		x.compact()
	}
	return true
}

func (x *index[V]) compact() {
	kept := x.entries[:0]
	for _, e := range x.entries {
		if e.live {
			x.pos[e.id] = len(kept)
			kept = append(kept, e)
		}
	}
	clear(x.entries[len(kept):])
	x.entries = kept
	x.holes = 0
}

func (x *index[V]) len() int { return len(x.pos) }

// values returns the views in insertion order.
func (x *index[V]) values() []V {
	out := make([]V, 0, len(x.pos))
	for _, e := range x.entries {
		if e.live {
			out = append(out, e.v)
		}
	}
	return out
}

func (x *index[V]) ids() []gvas.GUID {
	out := make([]gvas.GUID, 0, len(x.pos))
	for _, e := range x.entries {
		if e.live {
			out = append(out, e.id)
		}
	}
	return out
}
