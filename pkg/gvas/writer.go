package gvas

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Writer encodes archive primitives and property trees. Like Reader its
// error is sticky; check Err once after a sequence of writes.
type Writer struct {
	buf bytes.Buffer
	reg *Registry
	err error
}

// NewWriter returns an empty Writer dispatching custom nodes through reg.
func NewWriter(reg *Registry) *Writer {
	return &Writer{reg: reg}
}

// Sub returns an empty Writer sharing w's registry. Its error is propagated
// into w by Append.
func (w *Writer) Sub() *Writer {
	return &Writer{reg: w.reg}
}

// Append writes the contents of a sub-writer and adopts its error.
func (w *Writer) Append(s *Writer) {
	if s.err != nil && w.err == nil {
		w.err = s.err
	}
	w.Write(s.buf.Bytes())
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Fail records a format error unless one is already set.
func (w *Writer) Fail(path, format string, args ...any) {
	if w.err == nil {
		w.err = &FormatError{Path: path, Pos: w.buf.Len(), Msg: fmt.Sprintf(format, args...)}
	}
}

// Write appends raw bytes.
func (w *Writer) Write(b []byte) {
	if w.err != nil {
		return
	}
	w.buf.Write(b)
}

func (w *Writer) U8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf.WriteByte(v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

func (w *Writer) U16(v uint16) { w.Write(binary.LittleEndian.AppendUint16(nil, v)) }

func (w *Writer) U32(v uint32) { w.Write(binary.LittleEndian.AppendUint32(nil, v)) }

func (w *Writer) I32(v int32) { w.U32(uint32(v)) }

func (w *Writer) U64(v uint64) { w.Write(binary.LittleEndian.AppendUint64(nil, v)) }

func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

func (w *Writer) GUID(g GUID) { w.Write(g[:]) }

// OptionalGUID writes the presence byte and, when g is set, the GUID.
func (w *Writer) OptionalGUID(g *GUID) {
	if g == nil {
		w.U8(0)
		return
	}
	w.U8(1)
	w.GUID(*g)
}

// FString writes a length-prefixed string and returns the bytes written.
// ASCII and byte strings that are not valid UTF-8 are written 8-bit; any
// other text is written as UTF-16LE with a negative length.
func (w *Writer) FString(s string) int {
	start := w.buf.Len()
	switch {
	case s == "":
		w.I32(0)
	case isASCII(s) || !utf8.ValidString(s):
		w.I32(int32(len(s) + 1))
		w.Write([]byte(s))
		w.U8(0)
	default:
		units := utf16.Encode([]rune(s))
		w.I32(-int32(len(units) + 1))
		for _, u := range units {
			w.U16(u)
		}
		w.U16(0)
	}
	return w.buf.Len() - start
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// WriteTArray writes a u32 count followed by each element.
func WriteTArray[T any](w *Writer, items []T, elem func(*Writer, T)) {
	w.U32(uint32(len(items)))
	for _, it := range items {
		elem(w, it)
	}
}

// Properties writes every property of m followed by the "None" terminator.
func (w *Writer) Properties(m *PropertyMap, path string) {
	if m != nil {
		for _, name := range m.names {
			w.property(name, m.props[name], path+"."+name)
		}
	}
	w.FString("None")
}

func (w *Writer) property(name string, p *Property, path string) {
	if p == nil {
		w.Fail(path, "nil property")
		return
	}
	w.FString(name)
	w.FString(string(p.Type))
	sub := w.Sub()
	size := sub.PropertyInner(p, path, false)
	w.U64(size)
	w.Append(sub)
}

// PropertyInner writes the type-specific header and body of p and returns the
// size recorded in the tag. Nodes produced by a registry codec are handed back
// to it unless nested is set, which codecs use to reach the generic encoder.
func (w *Writer) PropertyInner(p *Property, path string, nested bool) uint64 {
	if w.err != nil {
		return 0
	}
	if p.Custom != "" && !nested {
		c := w.reg.codec(p.Custom)
		if c == nil {
			w.Fail(path, "no codec registered for custom node %q", p.Custom)
			return 0
		}
		size, err := c.Encode(w, p)
		if err != nil && w.err == nil {
			w.err = err
		}
		return size
	}

	switch p.Type {
	case StructProperty:
		s := as[*Struct](w, p.Value, path)
		if s == nil {
			return 0
		}
		w.FString(s.Type)
		w.GUID(s.StructID)
		w.OptionalGUID(p.ID)
		start := w.Len()
		w.structBody(s.Body, path)
		return uint64(w.Len() - start)
	case IntProperty:
		w.OptionalGUID(p.ID)
		w.I32(int32(as[Int](w, p.Value, path)))
		return 4
	case Int64Property:
		w.OptionalGUID(p.ID)
		w.I64(int64(as[Int64](w, p.Value, path)))
		return 8
	case UInt16Property:
		w.OptionalGUID(p.ID)
		w.U16(uint16(as[UInt16](w, p.Value, path)))
		return 2
	case UInt32Property:
		w.OptionalGUID(p.ID)
		w.U32(uint32(as[UInt32](w, p.Value, path)))
		return 4
	case UInt64Property:
		w.OptionalGUID(p.ID)
		w.U64(uint64(as[UInt64](w, p.Value, path)))
		return 8
	case FloatProperty:
		w.OptionalGUID(p.ID)
		w.F32(float32(as[Float](w, p.Value, path)))
		return 4
	case DoubleProperty:
		w.OptionalGUID(p.ID)
		w.F64(float64(as[Double](w, p.Value, path)))
		return 8
	case StrProperty:
		w.OptionalGUID(p.ID)
		return uint64(w.FString(string(as[Str](w, p.Value, path))))
	case NameProperty:
		w.OptionalGUID(p.ID)
		return uint64(w.FString(string(as[Name](w, p.Value, path))))
	case EnumProperty:
		e := as[Enum](w, p.Value, path)
		w.FString(e.Type)
		w.OptionalGUID(p.ID)
		return uint64(w.FString(e.Value))
	case BoolProperty:
		w.Bool(bool(as[Bool](w, p.Value, path)))
		w.OptionalGUID(p.ID)
		return 0
	case ByteProperty:
		b := as[Byte](w, p.Value, path)
		w.FString(b.Type)
		w.OptionalGUID(p.ID)
		if b.Type == "None" {
			w.U8(b.Byte)
			return 1
		}
		return uint64(w.FString(b.Name))
	case ArrayProperty:
		a := as[*Array](w, p.Value, path)
		if a == nil {
			return 0
		}
		w.FString(string(a.ElemType))
		w.OptionalGUID(p.ID)
		sub := w.Sub()
		sub.arrayBody(a, path)
		size := sub.Len()
		w.Append(sub)
		return uint64(size)
	case MapProperty:
		m := as[*Map](w, p.Value, path)
		if m == nil {
			return 0
		}
		w.FString(string(m.KeyType))
		w.FString(string(m.ValueType))
		w.OptionalGUID(p.ID)
		sub := w.Sub()
		sub.mapBody(m, path)
		size := sub.Len()
		w.Append(sub)
		return uint64(size)
	default:
		w.Fail(path, "unknown property type %q", p.Type)
		return 0
	}
}

func as[T Value](w *Writer, v Value, path string) T {
	t, ok := v.(T)
	if !ok {
		w.Fail(path, "value %T does not match property type", v)
	}
	return t
}

func (w *Writer) structBody(v Value, path string) {
	switch v := v.(type) {
	case Vector:
		w.F64(v.X)
		w.F64(v.Y)
		w.F64(v.Z)
	case Quat:
		w.F64(v.X)
		w.F64(v.Y)
		w.F64(v.Z)
		w.F64(v.W)
	case LinearColor:
		w.F32(v.R)
		w.F32(v.G)
		w.F32(v.B)
		w.F32(v.A)
	case DateTime:
		w.U64(uint64(v))
	case GUID:
		w.GUID(v)
	case *PropertyMap:
		w.Properties(v, path)
	default:
		w.Fail(path, "unsupported struct body %T", v)
	}
}

func (w *Writer) arrayBody(a *Array, path string) {
	switch a.ElemType {
	case ByteProperty:
		data := a.Bytes
		if a.Payload != nil {
			pw := w.Sub()
			a.Payload.Encode(pw)
			if pw.err != nil {
				w.Fail(path, "encode payload: %v", pw.err)
				return
			}
			data = pw.Bytes()
		}
		w.U32(uint32(len(data)))
		w.Write(data)
	case StructProperty:
		sa := a.Structs
		if sa == nil {
			w.Fail(path, "struct array without element tag")
			return
		}
		w.U32(uint32(len(sa.Values)))
		w.FString(sa.PropName)
		w.FString(string(sa.PropType))
		elemPath := path + "." + sa.PropName
		body := w.Sub()
		for _, v := range sa.Values {
			body.structBody(v, elemPath)
		}
		w.U64(uint64(body.Len()))
		w.FString(sa.TypeName)
		w.GUID(sa.ID)
		w.OptionalGUID(sa.InnerID)
		w.Append(body)
	default:
		w.U32(uint32(len(a.Values)))
		for _, v := range a.Values {
			w.scalar(a.ElemType, v, path)
		}
	}
}

func (w *Writer) mapBody(m *Map, path string) {
	w.U32(m.Removed)
	w.U32(uint32(len(m.Entries)))
	keyPath, valuePath := path+".Key", path+".Value"
	for _, e := range m.Entries {
		w.mapValue(m.KeyType, e.Key, keyPath)
		w.mapValue(m.ValueType, e.Value, valuePath)
	}
}

func (w *Writer) mapValue(typ Type, v Value, path string) {
	if typ == StructProperty {
		w.structBody(v, path)
		return
	}
	w.scalar(typ, v, path)
}

func (w *Writer) scalar(typ Type, v Value, path string) {
	switch typ {
	case EnumProperty, NameProperty:
		w.FString(string(as[Name](w, v, path)))
	case StrProperty:
		w.FString(string(as[Str](w, v, path)))
	case IntProperty:
		w.I32(int32(as[Int](w, v, path)))
	case Int64Property:
		w.I64(int64(as[Int64](w, v, path)))
	case UInt16Property:
		w.U16(uint16(as[UInt16](w, v, path)))
	case UInt32Property:
		w.U32(uint32(as[UInt32](w, v, path)))
	case UInt64Property:
		w.U64(uint64(as[UInt64](w, v, path)))
	case FloatProperty:
		w.F32(float32(as[Float](w, v, path)))
	case DoubleProperty:
		w.F64(float64(as[Double](w, v, path)))
	case BoolProperty:
		w.Bool(bool(as[Bool](w, v, path)))
	case ByteProperty:
		w.U8(as[Byte](w, v, path).Byte)
	default:
		w.Fail(path, "unknown element type %q", typ)
	}
}
