package rawdata

import (
	"fmt"

	"github.com/crystal-mush/palsave/pkg/gvas"
)

// Group kinds as stored in the GroupType enum.
const (
	GroupGuild            = "EPalGroupType::Guild"
	GroupIndependentGuild = "EPalGroupType::IndependentGuild"
	GroupOrganization     = "EPalGroupType::Organization"
	GroupNeutral          = "EPalGroupType::Neutral"
)

// GuildPlayer is one member entry of a guild.
type GuildPlayer struct {
	PlayerUID  gvas.GUID
	LastOnline int64
	Name       string
}

// Group is the RawData of a GroupSaveDataMap value. Which sections are
// present depends on Type.
type Group struct {
	Type    string
	ID      gvas.GUID
	Name    string
	Handles []Handle

	// Organization and guild kinds.
	OrgType uint8
	BaseIDs []gvas.GUID

	// Guild kinds.
	BaseCampLevel    int32
	BaseCampPointIDs []gvas.GUID
	GuildName        string

	// Independent guilds.
	IndependentPlayer gvas.GUID
	IndependentName   string
	IndependentInfo   GuildPlayer

	// Guilds.
	AdminPlayerUID gvas.GUID
	Players        []GuildPlayer

	Trailer []byte
}

func (g *Group) isOrg() bool {
	return g.Type == GroupGuild || g.Type == GroupIndependentGuild || g.Type == GroupOrganization
}

func (g *Group) isGuild() bool {
	return g.Type == GroupGuild || g.Type == GroupIndependentGuild
}

func (g *Group) Encode(w *gvas.Writer) {
	w.GUID(g.ID)
	w.FString(g.Name)
	gvas.WriteTArray(w, g.Handles, writeHandle)
	if g.isOrg() {
		w.U8(g.OrgType)
		gvas.WriteTArray(w, g.BaseIDs, writeGUID)
	}
	if g.isGuild() {
		w.I32(g.BaseCampLevel)
		gvas.WriteTArray(w, g.BaseCampPointIDs, writeGUID)
		w.FString(g.GuildName)
	}
	switch g.Type {
	case GroupIndependentGuild:
		w.GUID(g.IndependentPlayer)
		w.FString(g.IndependentName)
		w.I64(g.IndependentInfo.LastOnline)
		w.FString(g.IndependentInfo.Name)
	case GroupGuild:
		w.GUID(g.AdminPlayerUID)
		gvas.WriteTArray(w, g.Players, func(w *gvas.Writer, p GuildPlayer) {
			w.GUID(p.PlayerUID)
			w.I64(p.LastOnline)
			w.FString(p.Name)
		})
	}
	w.Write(g.Trailer)
}

func (g *Group) Clone() gvas.Payload {
	out := *g
	out.Handles = append([]Handle(nil), g.Handles...)
	out.BaseIDs = append([]gvas.GUID(nil), g.BaseIDs...)
	out.BaseCampPointIDs = append([]gvas.GUID(nil), g.BaseCampPointIDs...)
	out.Players = append([]GuildPlayer(nil), g.Players...)
	out.Trailer = cloneBytes(g.Trailer)
	return &out
}

// RemoveHandle drops every handle for instance and reports whether one existed.
func (g *Group) RemoveHandle(instance gvas.GUID) bool {
	found := false
	kept := g.Handles[:0]
	for _, h := range g.Handles {
		if h.InstanceID == instance {
			found = true
			continue
		}
		kept = append(kept, h)
	}
	g.Handles = kept
	return found
}

// AddHandle appends a handle unless instance is already listed.
func (g *Group) AddHandle(h Handle) {
	for _, e := range g.Handles {
		if e.InstanceID == h.InstanceID {
			return
		}
	}
	g.Handles = append(g.Handles, h)
}

// RemovePlayer drops uid from the member list.
func (g *Group) RemovePlayer(uid gvas.GUID) bool {
	for i, p := range g.Players {
		if p.PlayerUID == uid {
			g.Players = append(g.Players[:i], g.Players[i+1:]...)
			return true
		}
	}
	return false
}

func groupDecoder(groupType string) gvas.PayloadDecoder {
	return func(r *gvas.Reader, path string) (gvas.Payload, error) {
		g := &Group{Type: groupType, ID: r.GUID(), Name: r.FString()}
		g.Handles = gvas.TArray(r, readHandle)
		if g.isOrg() {
			g.OrgType = r.U8()
			g.BaseIDs = gvas.TArray(r, readGUID)
		}
		if g.isGuild() {
			g.BaseCampLevel = r.I32()
			g.BaseCampPointIDs = gvas.TArray(r, readGUID)
			g.GuildName = r.FString()
		}
		switch groupType {
		case GroupIndependentGuild:
			g.IndependentPlayer = r.GUID()
			g.IndependentName = r.FString()
			g.IndependentInfo = GuildPlayer{PlayerUID: g.IndependentPlayer, LastOnline: r.I64(), Name: r.FString()}
		case GroupGuild:
			g.AdminPlayerUID = r.GUID()
			g.Players = gvas.TArray(r, func(r *gvas.Reader) GuildPlayer {
				return GuildPlayer{PlayerUID: r.GUID(), LastOnline: r.I64(), Name: r.FString()}
			})
		}
		g.Trailer = r.Rest()
		return g, r.Err()
	}
}

// groupMapCodec decodes the group map generically, then parses each value's
// RawData according to its GroupType.
var groupMapCodec = gvas.CodecFuncs{
	DecodeFunc: func(r *gvas.Reader, typ gvas.Type, size uint64, path string) (*gvas.Property, error) {
		p := r.Property(typ, size, path, true)
		if err := r.Err(); err != nil {
			return nil, err
		}
		m, ok := p.Value.(*gvas.Map)
		if !ok {
			return nil, fmt.Errorf("rawdata: %s is %T, expected a map", path, p.Value)
		}
		rawPath := path + ".Value.RawData"
		for _, e := range m.Entries {
			v, ok := e.Value.(*gvas.PropertyMap)
			if !ok {
				continue
			}
			var gt gvas.Enum
			if t := v.Get("GroupType"); t != nil {
				gt, _ = t.Value.(gvas.Enum)
			}
			raw := v.Get("RawData")
			if raw == nil {
				continue
			}
			a, ok := raw.Value.(*gvas.Array)
			if !ok || a.ElemType != gvas.ByteProperty {
				continue
			}
			if err := gvas.DecodePayload(r, a, rawPath, groupDecoder(gt.Value)); err != nil {
				return nil, err
			}
		}
		return p, nil
	},
	EncodeFunc: gvas.EncodeGeneric,
}
