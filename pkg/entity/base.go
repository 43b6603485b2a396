package entity

import (
	"fmt"

	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// Base is a view over a BaseCampSaveData entry.
type Base struct {
	ID       gvas.GUID
	Value    *gvas.PropertyMap
	Camp     *rawdata.BaseCamp
	Director *rawdata.WorkerDirector
	// Pals are the workers whose container id matches the base's.
	Pals map[gvas.GUID]*Pal
}

// NewBase wraps a base camp map entry.
func NewBase(id gvas.GUID, value *gvas.PropertyMap) (*Base, error) {
	camp, ok := rawdata.RawPayload(value).(*rawdata.BaseCamp)
	if !ok {
		return nil, fmt.Errorf("entity: base %s has no decoded RawData", id)
	}
	b := &Base{ID: id, Value: value, Camp: camp, Pals: make(map[gvas.GUID]*Pal)}
	b.Director, _ = rawdata.RawPayload(value.Struct("WorkerDirector")).(*rawdata.WorkerDirector)
	return b, nil
}

func (b *Base) Name() string { return b.Camp.Name }

// GuildID is the owning group.
func (b *Base) GuildID() gvas.GUID { return b.Camp.GroupID }

// ContainerID is the worker container, zero when the director is missing.
func (b *Base) ContainerID() gvas.GUID {
	if b.Director == nil {
		return gvas.ZeroGUID
	}
	return b.Director.ContainerID
}

// NewBaseRecord builds a base camp value owned by group with its workers in
// container.
func NewBaseRecord(id, group, container gvas.GUID, name string) *gvas.PropertyMap {
	value := gvas.NewPropertyMap()
	value.Set("RawData", rawdata.RawProperty(rawdata.BaseCampCustom, &rawdata.BaseCamp{ID: id, Name: name, GroupID: group}))
	director := gvas.NewPropertyMap()
	director.Set("RawData", rawdata.RawProperty(rawdata.WorkerCustom, &rawdata.WorkerDirector{ID: id, ContainerID: container}))
	value.Set("WorkerDirector", gvas.NewStruct("PalBaseCampSaveData_WorkerDirector", director))
	return value
}
