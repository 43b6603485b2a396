// Package rawdata decodes the RawData byte blobs embedded in world saves
// into typed payloads, and assembles the path table that tells the archive
// reader which substructures to decode, post-process or skip.
//
// Every payload keeps the bytes it did not consume in Trailer so that
// re-encoding an untouched payload reproduces the input exactly.
package rawdata

import (
	"github.com/crystal-mush/palsave/pkg/gvas"
)

// Transform is the engine's rotation, translation and scale triple.
type Transform struct {
	Rotation    gvas.Quat
	Translation gvas.Vector
	Scale       gvas.Vector
}

func readTransform(r *gvas.Reader) Transform {
	return Transform{
		Rotation:    gvas.Quat{X: r.F64(), Y: r.F64(), Z: r.F64(), W: r.F64()},
		Translation: gvas.Vector{X: r.F64(), Y: r.F64(), Z: r.F64()},
		Scale:       gvas.Vector{X: r.F64(), Y: r.F64(), Z: r.F64()},
	}
}

func writeTransform(w *gvas.Writer, t Transform) {
	w.F64(t.Rotation.X)
	w.F64(t.Rotation.Y)
	w.F64(t.Rotation.Z)
	w.F64(t.Rotation.W)
	w.F64(t.Translation.X)
	w.F64(t.Translation.Y)
	w.F64(t.Translation.Z)
	w.F64(t.Scale.X)
	w.F64(t.Scale.Y)
	w.F64(t.Scale.Z)
}

// Handle addresses one character: the owning player (zero for pals) and the
// character instance.
type Handle struct {
	GUID       gvas.GUID
	InstanceID gvas.GUID
}

func readHandle(r *gvas.Reader) Handle {
	return Handle{GUID: r.GUID(), InstanceID: r.GUID()}
}

func writeHandle(w *gvas.Writer, h Handle) {
	w.GUID(h.GUID)
	w.GUID(h.InstanceID)
}

func readGUID(r *gvas.Reader) gvas.GUID { return r.GUID() }

func writeGUID(w *gvas.Writer, g gvas.GUID) { w.GUID(g) }

func readFString(r *gvas.Reader) string { return r.FString() }

func writeFString(w *gvas.Writer, s string) { w.FString(s) }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// speculate runs decode on a fresh reader over data and reports whether it
// succeeded without error. The caller's reader is not advanced.
func speculate[T any](r *gvas.Reader, data []byte, decode func(*gvas.Reader) T) (T, *gvas.Reader, bool) {
	sub := r.Sub(data)
	v := decode(sub)
	if sub.Err() != nil {
		var zero T
		return zero, nil, false
	}
	return v, sub, true
}
