package entity

import (
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// DynamicItem is a view over one DynamicItemSaveData element.
type DynamicItem struct {
	Elem *gvas.PropertyMap
	Item *rawdata.DynamicItem
}

// NewDynamicItem wraps an element; ok is false when its RawData is missing.
func NewDynamicItem(elem *gvas.PropertyMap) (*DynamicItem, bool) {
	item, ok := rawdata.RawPayload(elem).(*rawdata.DynamicItem)
	if !ok || item.Empty {
		return nil, false
	}
	return &DynamicItem{Elem: elem, Item: item}, true
}

// LocalID is the id item slots reference.
func (d *DynamicItem) LocalID() gvas.GUID { return d.Item.ID.LocalID }

func (d *DynamicItem) Kind() rawdata.ItemKind { return d.Item.Kind }

// SetKind changes the item type, stripping fields that are illegal for it.
func (d *DynamicItem) SetKind(k rawdata.ItemKind) { d.Item.SetKind(k) }

func (d *DynamicItem) Durability() float32 { return d.Item.Durability }

// SetDurability is ignored for eggs.
func (d *DynamicItem) SetDurability(v float32) {
	if d.Item.Kind == rawdata.KindArmor || d.Item.Kind == rawdata.KindWeapon {
		d.Item.Durability = max(v, 0)
	}
}

// SetPassiveSkills is ignored for anything but weapons.
func (d *DynamicItem) SetPassiveSkills(ids []string) {
	if d.Item.Kind == rawdata.KindWeapon {
		d.Item.PassiveSkills = append([]string(nil), ids...)
	}
}

// NewDynamicItemRecord builds a DynamicItemSaveData element for item.
func NewDynamicItemRecord(item *rawdata.DynamicItem) *gvas.PropertyMap {
	elem := gvas.NewPropertyMap()
	elem.Set("RawData", rawdata.RawProperty(rawdata.DynamicItemCustom, item))
	return elem
}
