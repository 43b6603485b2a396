package rawdata

import (
	"fmt"

	"github.com/crystal-mush/palsave/pkg/gvas"
)

// MapModel is the RawData of a map object's Model struct.
type MapModel struct {
	InstanceID              gvas.GUID
	ConcreteModelInstanceID gvas.GUID
	BaseCampIDBelongTo      gvas.GUID
	GroupIDBelongTo         gvas.GUID
	CurrentHP               int32
	MaxHP                   int32
	InitialTransform        Transform
	RepairWorkID            gvas.GUID
	OwnerSpawnerID          gvas.GUID
	OwnerInstanceID         gvas.GUID
	BuildPlayerUID          gvas.GUID
	InteractRestrictType    uint8
	StageInstanceID         gvas.GUID
	StageValid              uint32
	CreatedAt               int64
	Trailer                 []byte
}

func (m *MapModel) Encode(w *gvas.Writer) {
	w.GUID(m.InstanceID)
	w.GUID(m.ConcreteModelInstanceID)
	w.GUID(m.BaseCampIDBelongTo)
	w.GUID(m.GroupIDBelongTo)
	w.I32(m.CurrentHP)
	w.I32(m.MaxHP)
	writeTransform(w, m.InitialTransform)
	w.GUID(m.RepairWorkID)
	w.GUID(m.OwnerSpawnerID)
	w.GUID(m.OwnerInstanceID)
	w.GUID(m.BuildPlayerUID)
	w.U8(m.InteractRestrictType)
	w.GUID(m.StageInstanceID)
	w.U32(m.StageValid)
	w.I64(m.CreatedAt)
	w.Write(m.Trailer)
}

func (m *MapModel) Clone() gvas.Payload {
	out := *m
	out.Trailer = cloneBytes(m.Trailer)
	return &out
}

func decodeMapModel(r *gvas.Reader, path string) (gvas.Payload, error) {
	m := &MapModel{
		InstanceID:              r.GUID(),
		ConcreteModelInstanceID: r.GUID(),
		BaseCampIDBelongTo:      r.GUID(),
		GroupIDBelongTo:         r.GUID(),
		CurrentHP:               r.I32(),
		MaxHP:                   r.I32(),
		InitialTransform:        readTransform(r),
		RepairWorkID:            r.GUID(),
		OwnerSpawnerID:          r.GUID(),
		OwnerInstanceID:         r.GUID(),
		BuildPlayerUID:          r.GUID(),
		InteractRestrictType:    r.U8(),
		StageInstanceID:         r.GUID(),
		StageValid:              r.U32(),
		CreatedAt:               r.I64(),
	}
	m.Trailer = r.Rest()
	return m, r.Err()
}

// ConcreteLayout selects the class-specific section of a concrete model.
type ConcreteLayout int

const (
	LayoutPlain ConcreteLayout = iota
	LayoutPrivateLock
	LayoutTrade
)

// concreteLayouts maps map object ids to the layout of their concrete model.
var concreteLayouts = map[string]ConcreteLayout{
	"ItemChest":    LayoutPrivateLock,
	"ItemChest_02": LayoutPrivateLock,
	"ItemChest_03": LayoutPrivateLock,
	"ItemChest_04": LayoutPrivateLock,
	"CoolerBox":    LayoutPrivateLock,
	"Refrigerator": LayoutPrivateLock,
	"ItemBooth":    LayoutTrade,
	"PalBooth":     LayoutTrade,
}

// LayoutFor returns the concrete model layout for a map object id.
func LayoutFor(mapObjectID string) ConcreteLayout { return concreteLayouts[mapObjectID] }

// TradeInfo is one listing of a trade booth.
type TradeInfo struct {
	ID              gvas.GUID
	SellerPlayerUID gvas.GUID
	ProductID       string
	ProductCount    int32
	Price           int32
}

// ConcreteModel is the RawData of a map object's ConcreteModel struct.
type ConcreteModel struct {
	InstanceID      gvas.GUID
	ModelInstanceID gvas.GUID
	Layout          ConcreteLayout

	PrivateLockPlayerUID gvas.GUID
	TradeInfos           []TradeInfo

	Trailer []byte
}

func (c *ConcreteModel) Encode(w *gvas.Writer) {
	w.GUID(c.InstanceID)
	w.GUID(c.ModelInstanceID)
	switch c.Layout {
	case LayoutPrivateLock:
		w.GUID(c.PrivateLockPlayerUID)
	case LayoutTrade:
		gvas.WriteTArray(w, c.TradeInfos, func(w *gvas.Writer, t TradeInfo) {
			w.GUID(t.ID)
			w.GUID(t.SellerPlayerUID)
			w.FString(t.ProductID)
			w.I32(t.ProductCount)
			w.I32(t.Price)
		})
	}
	w.Write(c.Trailer)
}

func (c *ConcreteModel) Clone() gvas.Payload {
	out := *c
	out.TradeInfos = append([]TradeInfo(nil), c.TradeInfos...)
	out.Trailer = cloneBytes(c.Trailer)
	return &out
}

func concreteDecoder(layout ConcreteLayout) gvas.PayloadDecoder {
	return func(r *gvas.Reader, path string) (gvas.Payload, error) {
		c := &ConcreteModel{InstanceID: r.GUID(), ModelInstanceID: r.GUID()}
		if err := r.Err(); err != nil {
			return nil, err
		}
		rest := r.Rest()
		var sub *gvas.Reader
		var ok bool
		switch layout {
		case LayoutPrivateLock:
			var uid gvas.GUID
			if uid, sub, ok = speculate(r, rest, readGUID); ok {
				c.Layout = LayoutPrivateLock
				c.PrivateLockPlayerUID = uid
			}
		case LayoutTrade:
			var infos []TradeInfo
			if infos, sub, ok = speculate(r, rest, func(s *gvas.Reader) []TradeInfo {
				return gvas.TArray(s, func(s *gvas.Reader) TradeInfo {
					return TradeInfo{ID: s.GUID(), SellerPlayerUID: s.GUID(), ProductID: s.FString(), ProductCount: s.I32(), Price: s.I32()}
				})
			}); ok {
				c.Layout = LayoutTrade
				c.TradeInfos = infos
			}
		}
		if ok {
			c.Trailer = sub.Rest()
		} else {
			c.Trailer = rest
		}
		return c, nil
	}
}

// PasswordLockModule is the ModuleMap key of the password lock module.
const PasswordLockModule = "EPalMapObjectConcreteModelModuleType::PasswordLock"

// LockPlayer is one player entry of a password lock.
type LockPlayer struct {
	PlayerUID       gvas.GUID
	TryFailedCount  int32
	TrySuccessCache bool
}

// PasswordLock is the RawData of a password lock module.
type PasswordLock struct {
	LockState   uint8
	Password    string
	PlayerInfos []LockPlayer
	Trailer     []byte
}

// Authorizes reports whether uid is listed among the lock's players.
func (p *PasswordLock) Authorizes(uid gvas.GUID) bool {
	for _, pi := range p.PlayerInfos {
		if pi.PlayerUID == uid {
			return true
		}
	}
	return false
}

func (p *PasswordLock) Encode(w *gvas.Writer) {
	w.U8(p.LockState)
	w.FString(p.Password)
	gvas.WriteTArray(w, p.PlayerInfos, func(w *gvas.Writer, pi LockPlayer) {
		w.GUID(pi.PlayerUID)
		w.I32(pi.TryFailedCount)
		w.Bool(pi.TrySuccessCache)
	})
	w.Write(p.Trailer)
}

func (p *PasswordLock) Clone() gvas.Payload {
	out := *p
	out.PlayerInfos = append([]LockPlayer(nil), p.PlayerInfos...)
	out.Trailer = cloneBytes(p.Trailer)
	return &out
}

func decodePasswordLock(r *gvas.Reader, path string) (gvas.Payload, error) {
	p := &PasswordLock{LockState: r.U8(), Password: r.FString()}
	p.PlayerInfos = gvas.TArray(r, func(r *gvas.Reader) LockPlayer {
		return LockPlayer{PlayerUID: r.GUID(), TryFailedCount: r.I32(), TrySuccessCache: r.Bool()}
	})
	p.Trailer = r.Rest()
	return p, r.Err()
}

// MapObjectParts are the decoded payloads of one map object record. Any of
// them may be nil when the record lacks the corresponding RawData.
type MapObjectParts struct {
	Model    *MapModel
	Concrete *ConcreteModel
	Lock     *PasswordLock
}

// PartsOf returns the decoded payloads of a MapObjectSaveData element.
func PartsOf(elem *gvas.PropertyMap) MapObjectParts {
	var parts MapObjectParts
	if a := rawArray(elem.Struct("Model")); a != nil {
		parts.Model, _ = a.Payload.(*MapModel)
	}
	concrete := elem.Struct("ConcreteModel")
	if a := rawArray(concrete); a != nil {
		parts.Concrete, _ = a.Payload.(*ConcreteModel)
	}
	if mp := concrete.Get("ModuleMap"); mp != nil {
		if m, ok := mp.Value.(*gvas.Map); ok {
			for _, e := range m.Entries {
				if k, _ := e.Key.(gvas.Name); string(k) != PasswordLockModule {
					continue
				}
				if v, ok := e.Value.(*gvas.PropertyMap); ok {
					if a := rawArray(v); a != nil {
						parts.Lock, _ = a.Payload.(*PasswordLock)
					}
				}
			}
		}
	}
	return parts
}

// rawArray returns the RawData byte array of a record, or nil.
func rawArray(m *gvas.PropertyMap) *gvas.Array {
	p := m.Get("RawData")
	if p == nil {
		return nil
	}
	a, _ := p.Value.(*gvas.Array)
	return a
}

// RawPayload returns the decoded RawData payload of a record, or nil.
func RawPayload(m *gvas.PropertyMap) gvas.Payload {
	if a := rawArray(m); a != nil {
		return a.Payload
	}
	return nil
}

// mapObjectCodec decodes the map object array generically, then parses the
// model, concrete model and password lock blobs of every element. The
// concrete model layout depends on the element's MapObjectId.
var mapObjectCodec = gvas.CodecFuncs{
	DecodeFunc: func(r *gvas.Reader, typ gvas.Type, size uint64, path string) (*gvas.Property, error) {
		p := r.Property(typ, size, path, true)
		if err := r.Err(); err != nil {
			return nil, err
		}
		a, ok := p.Value.(*gvas.Array)
		if !ok || a.Structs == nil {
			return nil, fmt.Errorf("rawdata: %s is not an array of structs", path)
		}
		elemPath := path + "." + a.Structs.PropName
		for _, v := range a.Structs.Values {
			elem, ok := v.(*gvas.PropertyMap)
			if !ok {
				continue
			}
			if err := decodeMapObject(r, elem, elemPath); err != nil {
				return nil, err
			}
		}
		return p, nil
	},
	EncodeFunc: gvas.EncodeGeneric,
}

func decodeMapObject(r *gvas.Reader, elem *gvas.PropertyMap, path string) error {
	var id string
	if p := elem.Get("MapObjectId"); p != nil {
		n, _ := p.Value.(gvas.Name)
		id = string(n)
	}
	if a := rawArray(elem.Struct("Model")); a != nil && a.Bytes != nil {
		if err := gvas.DecodePayload(r, a, path+".Model.RawData", decodeMapModel); err != nil {
			return err
		}
	}
	concrete := elem.Struct("ConcreteModel")
	if a := rawArray(concrete); a != nil && a.Bytes != nil {
		if err := gvas.DecodePayload(r, a, path+".ConcreteModel.RawData", concreteDecoder(LayoutFor(id))); err != nil {
			return err
		}
	}
	mp := concrete.Get("ModuleMap")
	if mp == nil {
		return nil
	}
	m, ok := mp.Value.(*gvas.Map)
	if !ok {
		return nil
	}
	for _, e := range m.Entries {
		if k, _ := e.Key.(gvas.Name); string(k) != PasswordLockModule {
			continue
		}
		v, ok := e.Value.(*gvas.PropertyMap)
		if !ok {
			continue
		}
		if a := rawArray(v); a != nil && a.Bytes != nil {
			if err := gvas.DecodePayload(r, a, path+".ConcreteModel.ModuleMap.Value.RawData", decodePasswordLock); err != nil {
				return err
			}
		}
	}
	return nil
}
