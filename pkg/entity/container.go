package entity

import (
	"fmt"
	"sort"

	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

var (
	fSlotNum   = gvas.IntField("SlotNum", 0)
	fSlotIndex = gvas.IntField("SlotIndex", 0)
)

// ContainerKeyID returns the id of a container map key ({ID: Guid}).
func ContainerKeyID(key gvas.Value) gvas.GUID {
	m, ok := key.(*gvas.PropertyMap)
	if !ok {
		return gvas.ZeroGUID
	}
	return guidStruct(m, "ID")
}

// NewContainerKey returns the map key of a container record.
func NewContainerKey(id gvas.GUID) *gvas.PropertyMap {
	m := gvas.NewPropertyMap()
	keepGUID("ID").Set(m, id)
	return m
}

// slotArray returns the Slots struct array of a container value, creating
// an empty one when absent.
func slotArray(value *gvas.PropertyMap, typeName string) *gvas.StructArray {
	if p := value.Get("Slots"); p != nil {
		if a, ok := p.Value.(*gvas.Array); ok && a.Structs != nil {
			return a.Structs
		}
	}
	sa := &gvas.StructArray{PropName: "Slots", PropType: gvas.StructProperty, TypeName: typeName}
	value.Set("Slots", &gvas.Property{Type: gvas.ArrayProperty, Value: &gvas.Array{ElemType: gvas.StructProperty, Structs: sa}})
	return sa
}

// CharacterSlot is one occupied placement of a character container.
type CharacterSlot struct {
	Index int
	Slot  *rawdata.CharacterSlot
	elem  *gvas.PropertyMap
}

// CharacterContainer is a view over a CharacterContainerSaveData entry: a
// pal box, a party or a base's worker container.
type CharacterContainer struct {
	ID    gvas.GUID
	Key   *gvas.PropertyMap
	Value *gvas.PropertyMap
}

// NewCharacterContainer wraps a map entry.
func NewCharacterContainer(key, value *gvas.PropertyMap) *CharacterContainer {
	return &CharacterContainer{ID: guidStruct(key, "ID"), Key: key, Value: value}
}

// NewCharacterContainerRecord builds an empty container of the given capacity.
func NewCharacterContainerRecord(id gvas.GUID, capacity int) *CharacterContainer {
	value := gvas.NewPropertyMap()
	c := &CharacterContainer{ID: id, Key: NewContainerKey(id), Value: value}
	c.SetCapacity(capacity)
	slotArray(value, "PalCharacterSlotSaveData")
	return c
}

// Capacity is the fixed number of slots.
func (c *CharacterContainer) Capacity() int { return int(fSlotNum.Get(c.Value)) }

func (c *CharacterContainer) SetCapacity(n int) {
	f := fSlotNum
	f.Keep = true
	f.Set(c.Value, int32(n))
}

func (c *CharacterContainer) slots() *gvas.StructArray {
	return slotArray(c.Value, "PalCharacterSlotSaveData")
}

// Slots returns the occupied slots sorted by index. Elements whose RawData
// did not decode or that hold no instance are skipped.
func (c *CharacterContainer) Slots() []CharacterSlot {
	var out []CharacterSlot
	for _, s := range c.allSlots() {
		if !s.Slot.Empty() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Occupied returns the number of occupied slots.
func (c *CharacterContainer) Occupied() int { return len(c.Slots()) }

// Free returns the number of unoccupied slots.
func (c *CharacterContainer) Free() int { return max(c.Capacity()-c.Occupied(), 0) }

// Find returns the slot index holding instance.
func (c *CharacterContainer) Find(instance gvas.GUID) (int, bool) {
	for _, s := range c.Slots() {
		if s.Slot.InstanceID == instance {
			return s.Index, true
		}
	}
	return 0, false
}

// Contains reports whether instance occupies a slot.
func (c *CharacterContainer) Contains(instance gvas.GUID) bool {
	_, ok := c.Find(instance)
	return ok
}

// At returns the slot at index.
func (c *CharacterContainer) At(index int) (CharacterSlot, bool) {
	for _, s := range c.Slots() {
		if s.Index == index {
			return s, true
		}
	}
	return CharacterSlot{}, false
}

// FreeSlot scans 0..capacity for the lowest (or highest) unoccupied index.
// It returns false when the container is full.
func (c *CharacterContainer) FreeSlot(lowest bool) (int, bool) {
	used := make(map[int]bool)
	for _, s := range c.Slots() {
		used[s.Index] = true
	}
	n := c.Capacity()
	for i := 0; i < n; i++ {
		idx := i
		if !lowest {
			idx = n - 1 - i
		}
		if !used[idx] {
			return idx, true
		}
	}
	return 0, false
}

// CanInsert checks that index is in range and unoccupied.
func (c *CharacterContainer) CanInsert(index int) error {
	if index < 0 || index >= c.Capacity() {
		return fmt.Errorf("entity: slot %d out of range for container %s (capacity %d)", index, c.ID, c.Capacity())
	}
	if _, taken := c.At(index); taken {
		return fmt.Errorf("entity: slot %d of container %s is occupied", index, c.ID)
	}
	return nil
}

// Insert places instance at index. A placeholder element already holding
// index is filled in place; otherwise a new element is appended.
func (c *CharacterContainer) Insert(index int, player, instance gvas.GUID) error {
	if err := c.CanInsert(index); err != nil {
		return err
	}
	if s := c.placeholder(index); s != nil {
		s.PlayerUID = player
		s.InstanceID = instance
		return nil
	}
	elem := gvas.NewPropertyMap()
	idx := fSlotIndex
	idx.Keep = true
	idx.Set(elem, int32(index))
	elem.Set("RawData", rawdata.RawProperty(rawdata.CharacterSlotCustom, &rawdata.CharacterSlot{
		PlayerUID:  player,
		InstanceID: instance,
	}))
	sa := c.slots()
	sa.Values = append(sa.Values, elem)
	return nil
}

// placeholder returns the empty slot record stored for index, if any.
func (c *CharacterContainer) placeholder(index int) *rawdata.CharacterSlot {
	for _, s := range c.allSlots() {
		if s.Slot.Empty() && s.Index == index {
			return s.Slot
		}
	}
	return nil
}

// allSlots returns every decoded slot element, placeholders included, in
// stored order.
func (c *CharacterContainer) allSlots() []CharacterSlot {
	var out []CharacterSlot
	for _, v := range c.slots().Values {
		elem, ok := v.(*gvas.PropertyMap)
		if !ok {
			continue
		}
		if s, ok := rawdata.RawPayload(elem).(*rawdata.CharacterSlot); ok {
			out = append(out, CharacterSlot{Index: int(fSlotIndex.Get(elem)), Slot: s, elem: elem})
		}
	}
	return out
}

// Remove deletes the slot holding instance and reports whether it existed.
func (c *CharacterContainer) Remove(instance gvas.GUID) bool {
	sa := c.slots()
	for i, v := range sa.Values {
		elem, ok := v.(*gvas.PropertyMap)
		if !ok {
			continue
		}
		if s, ok := rawdata.RawPayload(elem).(*rawdata.CharacterSlot); ok && s.InstanceID == instance {
			sa.Values = append(sa.Values[:i:i], sa.Values[i+1:]...)
			return true
		}
	}
	return false
}

// Reindex renumbers the occupied slots to 0..n-1 keeping their order and
// returns the new index of every instance whose index changed. Placeholder
// elements follow at n, n+1, ... so no index is stored twice.
func (c *CharacterContainer) Reindex() map[gvas.GUID]int {
	var empty []CharacterSlot
	for _, s := range c.allSlots() {
		if s.Slot.Empty() {
			empty = append(empty, s)
		}
	}
	sort.SliceStable(empty, func(i, j int) bool { return empty[i].Index < empty[j].Index })

	idx := fSlotIndex
	idx.Keep = true
	moved := make(map[gvas.GUID]int)
	occupied := c.Slots()
	for i, s := range occupied {
		if s.Index == i {
			continue
		}
		idx.Set(s.elem, int32(i))
		moved[s.Slot.InstanceID] = i
	}
	for i, s := range empty {
		if n := len(occupied) + i; s.Index != n {
			idx.Set(s.elem, int32(n))
		}
	}
	return moved
}

// Instances returns the instance ids of all occupied slots in index order.
func (c *CharacterContainer) Instances() []gvas.GUID {
	slots := c.Slots()
	out := make([]gvas.GUID, len(slots))
	for i, s := range slots {
		out[i] = s.Slot.InstanceID
	}
	return out
}

// ItemSlotRecord is the portable form of one item slot, as imported and
// exported by the preset store.
type ItemSlotRecord struct {
	SlotIndex int32
	StaticID  string
	Count     int32
	// Dynamic is the dynamic item carried by the slot, if any.
	Dynamic *rawdata.DynamicItem
}

// ItemContainer is a view over an ItemContainerSaveData entry.
type ItemContainer struct {
	ID    gvas.GUID
	Key   *gvas.PropertyMap
	Value *gvas.PropertyMap
}

// NewItemContainer wraps a map entry.
func NewItemContainer(key, value *gvas.PropertyMap) *ItemContainer {
	return &ItemContainer{ID: guidStruct(key, "ID"), Key: key, Value: value}
}

// GroupID is the owning group recorded in BelongInfo.
func (c *ItemContainer) GroupID() gvas.GUID {
	return guidStruct(c.Value.Struct("BelongInfo"), "GroupID")
}

// Capacity is the number of slots.
func (c *ItemContainer) Capacity() int { return int(fSlotNum.Get(c.Value)) }

func (c *ItemContainer) slots() *gvas.StructArray {
	return slotArray(c.Value, "PalItemSlotSaveData")
}

// Slots returns the decoded slots in stored order.
func (c *ItemContainer) Slots() []*rawdata.ItemSlot {
	var out []*rawdata.ItemSlot
	for _, v := range c.slots().Values {
		elem, ok := v.(*gvas.PropertyMap)
		if !ok {
			continue
		}
		if s, ok := rawdata.RawPayload(elem).(*rawdata.ItemSlot); ok {
			out = append(out, s)
		}
	}
	return out
}

// Slot returns the slot with the given index.
func (c *ItemContainer) Slot(index int32) *rawdata.ItemSlot {
	for _, s := range c.Slots() {
		if s.SlotIndex == index {
			return s
		}
	}
	return nil
}

// SetSlot stores staticID x count at index, appending the slot when the
// container has no element for it yet. Any dynamic reference is cleared.
func (c *ItemContainer) SetSlot(index int32, staticID string, count int32) (*rawdata.ItemSlot, error) {
	if n := c.Capacity(); n > 0 && (index < 0 || int(index) >= n) {
		return nil, fmt.Errorf("entity: item slot %d out of range for container %s (capacity %d)", index, c.ID, n)
	}
	if count <= 0 || staticID == "" {
		return nil, fmt.Errorf("entity: item slot needs a static id and a positive count")
	}
	s := c.Slot(index)
	if s == nil {
		s = &rawdata.ItemSlot{SlotIndex: index}
		elem := gvas.NewPropertyMap()
		elem.Set("RawData", rawdata.RawProperty(rawdata.ItemSlotCustom, s))
		sa := c.slots()
		sa.Values = append(sa.Values, elem)
	}
	s.StaticID = staticID
	s.Count = count
	s.Dynamic = rawdata.DynamicID{}
	return s, nil
}

// ResetSlot empties the slot at index and returns the dynamic item id it
// referenced, if any.
func (c *ItemContainer) ResetSlot(index int32) (rawdata.DynamicID, bool) {
	s := c.Slot(index)
	if s == nil {
		return rawdata.DynamicID{}, false
	}
	dyn := s.Dynamic
	s.Clear()
	return dyn, !dyn.LocalID.IsZero()
}

// DynamicRefs returns the slots referencing a dynamic item.
func (c *ItemContainer) DynamicRefs() []*rawdata.ItemSlot {
	var out []*rawdata.ItemSlot
	for _, s := range c.Slots() {
		if !s.Dynamic.LocalID.IsZero() {
			out = append(out, s)
		}
	}
	return out
}

// NewItemContainerRecord builds an empty container of capacity n owned by group.
func NewItemContainerRecord(id, group gvas.GUID, n int) *ItemContainer {
	value := gvas.NewPropertyMap()
	belong := gvas.NewPropertyMap()
	keepGUID("GroupID").Set(belong, group)
	value.Set("BelongInfo", gvas.NewStruct("PalItemContainerBelongInfo", belong))
	f := fSlotNum
	f.Keep = true
	f.Set(value, int32(n))
	slotArray(value, "PalItemSlotSaveData")
	return &ItemContainer{ID: id, Key: NewContainerKey(id), Value: value}
}
