package entity

import (
	"fmt"

	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// Guild is a view over a GroupSaveDataMap entry of the guild kind.
type Guild struct {
	ID    gvas.GUID
	Value *gvas.PropertyMap
	Group *rawdata.Group
}

// NewGuild wraps a group map entry. It fails for entries without a decoded
// guild payload.
func NewGuild(id gvas.GUID, value *gvas.PropertyMap) (*Guild, error) {
	g, ok := rawdata.RawPayload(value).(*rawdata.Group)
	if !ok {
		return nil, fmt.Errorf("entity: group %s has no decoded RawData", id)
	}
	if g.Type != rawdata.GroupGuild {
		return nil, fmt.Errorf("entity: group %s is %s, not a guild", id, g.Type)
	}
	return &Guild{ID: id, Value: value, Group: g}, nil
}

// GroupType returns the kind stored in a group map value.
func GroupType(value *gvas.PropertyMap) string {
	return gvas.EnumField("GroupType", "EPalGroupType", "").Get(value)
}

func (g *Guild) Name() string { return g.Group.GuildName }

func (g *Guild) SetName(name string) { g.Group.GuildName = name }

func (g *Guild) Admin() gvas.GUID { return g.Group.AdminPlayerUID }

func (g *Guild) BaseCampLevel() int { return int(g.Group.BaseCampLevel) }

// Members returns the member player uids in stored order.
func (g *Guild) Members() []gvas.GUID {
	out := make([]gvas.GUID, len(g.Group.Players))
	for i, p := range g.Group.Players {
		out[i] = p.PlayerUID
	}
	return out
}

// HasMember reports whether uid is listed.
func (g *Guild) HasMember(uid gvas.GUID) bool {
	for _, p := range g.Group.Players {
		if p.PlayerUID == uid {
			return true
		}
	}
	return false
}

// BaseIDs returns the ids of the guild's base camps.
func (g *Guild) BaseIDs() []gvas.GUID { return g.Group.BaseIDs }

// RemoveBase drops id from the base lists.
func (g *Guild) RemoveBase(id gvas.GUID) {
	g.Group.BaseIDs = without(g.Group.BaseIDs, id)
	g.Group.BaseCampPointIDs = without(g.Group.BaseCampPointIDs, id)
}

// HasHandle reports whether the member-pal handle list lists instance.
func (g *Guild) HasHandle(instance gvas.GUID) bool {
	for _, h := range g.Group.Handles {
		if h.InstanceID == instance {
			return true
		}
	}
	return false
}

// AddHandle lists instance in the member-pal handles.
func (g *Guild) AddHandle(instance gvas.GUID) {
	g.Group.AddHandle(rawdata.Handle{InstanceID: instance})
}

// RemoveHandle drops instance from the member-pal handles.
func (g *Guild) RemoveHandle(instance gvas.GUID) bool { return g.Group.RemoveHandle(instance) }

func without(ids []gvas.GUID, id gvas.GUID) []gvas.GUID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// GuildExtra is a view over a GuildExtraSaveDataMap entry, which carries
// the guild's shared chest.
type GuildExtra struct {
	ID    gvas.GUID
	Value *gvas.PropertyMap
}

// StorageID returns the shared chest's item container id.
func (e *GuildExtra) StorageID() gvas.GUID {
	if s, ok := rawdata.RawPayload(e.Value.Struct("GuildItemStorage")).(*rawdata.GuildItemStorage); ok {
		return s.ContainerID
	}
	return gvas.ZeroGUID
}

// NewGuildRecord builds a group map value for a guild with a single admin.
func NewGuildRecord(id, admin gvas.GUID, name, adminName string) *gvas.PropertyMap {
	value := gvas.NewPropertyMap()
	gvas.EnumField("GroupType", "EPalGroupType", "").Set(value, rawdata.GroupGuild)
	g := &rawdata.Group{
		Type:           rawdata.GroupGuild,
		ID:             id,
		Name:           name,
		GuildName:      name,
		BaseCampLevel:  1,
		AdminPlayerUID: admin,
		Players:        []rawdata.GuildPlayer{{PlayerUID: admin, Name: adminName}},
	}
	value.Set("RawData", &gvas.Property{
		Type:  gvas.ArrayProperty,
		Value: &gvas.Array{ElemType: gvas.ByteProperty, Payload: g},
	})
	return value
}

// NewGuildExtraRecord builds a guild-extra value pointing at storage.
func NewGuildExtraRecord(storage gvas.GUID) *gvas.PropertyMap {
	inner := gvas.NewPropertyMap()
	inner.Set("RawData", rawdata.RawProperty(rawdata.GuildStorageCustom, &rawdata.GuildItemStorage{ContainerID: storage}))
	value := gvas.NewPropertyMap()
	value.Set("GuildItemStorage", gvas.NewStruct("PalGuildItemStorageSaveData", inner))
	return value
}
