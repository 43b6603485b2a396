package savedb

import (
	"fmt"
	"log"

	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// SetItemSlot stores staticID x count in slot index of container.
func (d *Document) SetItemSlot(container gvas.GUID, index int32, staticID string, count int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.itemContainers.get(container)
	if !ok {
		return notFound("item container", container)
	}
	if _, err := c.SetSlot(index, staticID, count); err != nil {
		return err
	}
	d.bus.Emit(events.Event{Type: events.EvItemEdited, Subject: container,
		Text: fmt.Sprintf("set %s slot %d to %s x%d", container, index, staticID, count)})
	return nil
}

// ResetItemSlot empties slot index of container. The dynamic item it held,
// if any, is dropped with it.
func (d *Document) ResetItemSlot(container gvas.GUID, index int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.itemContainers.get(container)
	if !ok {
		return notFound("item container", container)
	}
	if dyn, ok := c.ResetSlot(index); ok {
		d.dropDynamic(dyn.LocalID)
	}
	d.bus.Emit(events.Event{Type: events.EvItemEdited, Subject: container,
		Text: fmt.Sprintf("reset %s slot %d", container, index)})
	return nil
}

func (d *Document) dropDynamic(id gvas.GUID) {
	it, ok := d.dynamicItems.get(id)
	if !ok {
		return
	}
	sa := worldArray(d.world, arrDynamicItems, false)
	removeElems(sa, func(elem *gvas.PropertyMap) bool { return elem == it.Elem })
	d.dynamicItems.remove(id)
}

// ItemDynamic returns the dynamic item referenced by a slot, if any.
func (d *Document) ItemDynamic(container gvas.GUID, index int32) (*entity.DynamicItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.itemContainers.get(container)
	if !ok {
		return nil, false
	}
	s := c.Slot(index)
	if s == nil || s.Dynamic.LocalID.IsZero() {
		return nil, false
	}
	return d.dynamicItems.get(s.Dynamic.LocalID)
}

// ExportSlots returns the occupied slots of container as portable records,
// with copies of their dynamic items.
func (d *Document) ExportSlots(container gvas.GUID) ([]entity.ItemSlotRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.itemContainers.get(container)
	if !ok {
		return nil, notFound("item container", container)
	}
	var out []entity.ItemSlotRecord
	for _, s := range c.Slots() {
		if s.Empty() {
			continue
		}
		rec := entity.ItemSlotRecord{SlotIndex: s.SlotIndex, StaticID: s.StaticID, Count: s.Count}
		if it, ok := d.dynamicItems.get(s.Dynamic.LocalID); ok {
			rec.Dynamic = it.Item.Clone().(*rawdata.DynamicItem)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ImportSlots writes records into container. All records are checked
// before anything is changed. Dynamic items are copied under new ids.
func (d *Document) ImportSlots(container gvas.GUID, records []entity.ItemSlotRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.itemContainers.get(container)
	if !ok {
		return notFound("item container", container)
	}
	n := int32(c.Capacity())
	seen := make(map[int32]bool)
	for _, r := range records {
		if r.StaticID == "" || r.Count <= 0 {
			return fmt.Errorf("savedb: import slot %d: needs a static id and a positive count", r.SlotIndex)
		}
		if n > 0 && (r.SlotIndex < 0 || r.SlotIndex >= n) {
			return fmt.Errorf("savedb: import slot %d: out of range (capacity %d)", r.SlotIndex, n)
		}
		if seen[r.SlotIndex] {
			return fmt.Errorf("savedb: import slot %d: duplicate index", r.SlotIndex)
		}
		seen[r.SlotIndex] = true
	}

	for _, r := range records {
		if dyn, ok := c.ResetSlot(r.SlotIndex); ok {
			d.dropDynamic(dyn.LocalID)
		}
		s, err := c.SetSlot(r.SlotIndex, r.StaticID, r.Count)
		if err != nil {
			return err
		}
		if r.Dynamic == nil {
			continue
		}
		item := r.Dynamic.Clone().(*rawdata.DynamicItem)
		item.ID.LocalID = gvas.NewGUID()
		item.StaticID = r.StaticID
		elem := entity.NewDynamicItemRecord(item)
		sa := worldArray(d.world, arrDynamicItems, true)
		sa.Values = append(sa.Values, elem)
		view, _ := entity.NewDynamicItem(elem)
		d.dynamicItems.put(item.ID.LocalID, view)
		s.Dynamic = item.ID
	}
	d.bus.Emit(events.Event{Type: events.EvItemEdited, Subject: container,
		Text: fmt.Sprintf("imported %d slots into %s", len(records), container)})
	return nil
}

// DropDanglingRefs clears item slots that reference missing dynamic items
// and returns how many were cleared.
func (d *Document) DropDanglingRefs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.itemContainers.values() {
		for _, s := range c.DynamicRefs() {
			if d.clearDangling(c, s.SlotIndex) {
				n++
			}
		}
	}
	return n
}

// ClearDanglingRef clears slot index of container if it references a
// missing dynamic item, and reports whether it did.
func (d *Document) ClearDanglingRef(container gvas.GUID, index int32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.itemContainers.get(container)
	if !ok {
		return false
	}
	return d.clearDangling(c, index)
}

func (d *Document) clearDangling(c *entity.ItemContainer, index int32) bool {
	s := c.Slot(index)
	if s == nil || s.Dynamic.LocalID.IsZero() {
		return false
	}
	if _, ok := d.dynamicItems.get(s.Dynamic.LocalID); ok {
		return false
	}
	log.Printf("savedb: clearing %s slot %d (missing dynamic item %s)", c.ID, index, s.Dynamic.LocalID)
	s.Clear()
	return true
}
