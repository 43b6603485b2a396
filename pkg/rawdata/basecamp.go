package rawdata

import "github.com/crystal-mush/palsave/pkg/gvas"

// BaseCamp is the RawData of a BaseCampSaveData value.
type BaseCamp struct {
	ID                  gvas.GUID
	Name                string
	State               uint8
	Transform           Transform
	AreaRange           float32
	GroupID             gvas.GUID
	FastTravelTransform Transform
	OwnerMapObjectID    gvas.GUID
	Trailer             []byte
}

func (b *BaseCamp) Encode(w *gvas.Writer) {
	w.GUID(b.ID)
	w.FString(b.Name)
	w.U8(b.State)
	writeTransform(w, b.Transform)
	w.F32(b.AreaRange)
	w.GUID(b.GroupID)
	writeTransform(w, b.FastTravelTransform)
	w.GUID(b.OwnerMapObjectID)
	w.Write(b.Trailer)
}

func (b *BaseCamp) Clone() gvas.Payload {
	out := *b
	out.Trailer = cloneBytes(b.Trailer)
	return &out
}

func decodeBaseCamp(r *gvas.Reader, path string) (gvas.Payload, error) {
	b := &BaseCamp{
		ID:                  r.GUID(),
		Name:                r.FString(),
		State:               r.U8(),
		Transform:           readTransform(r),
		AreaRange:           r.F32(),
		GroupID:             r.GUID(),
		FastTravelTransform: readTransform(r),
		OwnerMapObjectID:    r.GUID(),
	}
	b.Trailer = r.Rest()
	return b, r.Err()
}

// WorkerDirector is the RawData of a base camp's worker director: where
// workers spawn and which character container holds them.
type WorkerDirector struct {
	ID             gvas.GUID
	SpawnTransform Transform
	OrderType      uint8
	BattleType     uint8
	ContainerID    gvas.GUID
	Trailer        []byte
}

func (d *WorkerDirector) Encode(w *gvas.Writer) {
	w.GUID(d.ID)
	writeTransform(w, d.SpawnTransform)
	w.U8(d.OrderType)
	w.U8(d.BattleType)
	w.GUID(d.ContainerID)
	w.Write(d.Trailer)
}

func (d *WorkerDirector) Clone() gvas.Payload {
	out := *d
	out.Trailer = cloneBytes(d.Trailer)
	return &out
}

func decodeWorkerDirector(r *gvas.Reader, path string) (gvas.Payload, error) {
	d := &WorkerDirector{
		ID:             r.GUID(),
		SpawnTransform: readTransform(r),
		OrderType:      r.U8(),
		BattleType:     r.U8(),
		ContainerID:    r.GUID(),
	}
	d.Trailer = r.Rest()
	return d, r.Err()
}
