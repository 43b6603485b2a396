package gvas

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Reader decodes archive primitives and property trees from a byte slice.
// Errors are sticky: after the first failure every read returns a zero value
// and Err reports the cause.
type Reader struct {
	data []byte
	pos  int
	reg  *Registry
	err  error
}

// NewReader returns a Reader over data using reg for custom paths and map
// struct type hints. reg may be nil.
func NewReader(data []byte, reg *Registry) *Reader {
	return &Reader{data: data, reg: reg}
}

// Sub returns a Reader over data sharing r's registry. RawData decoders
// use it to parse nested byte blobs.
func (r *Reader) Sub(data []byte) *Reader {
	return &Reader{data: data, reg: r.reg}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Pos returns the current offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the total length of the underlying data.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// EOF reports whether all bytes have been consumed.
func (r *Reader) EOF() bool { return r.pos >= len(r.data) }

// Fail records a format error at the current offset unless one is already set.
func (r *Reader) Fail(path, format string, args ...any) {
	if r.err == nil {
		r.err = &FormatError{Path: path, Pos: r.pos, Msg: fmt.Sprintf(format, args...)}
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.Fail("", "short read: need %d bytes, have %d", n, len(r.data)-r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Rest returns a copy of all unread bytes, or nil when none remain.
func (r *Reader) Rest() []byte {
	if r.err != nil || r.EOF() {
		return nil
	}
	return r.Bytes(r.Remaining())
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool { return r.U8() != 0 }

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) I32() int32 { return int32(r.U32()) }

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) I64() int64 { return int64(r.U64()) }

func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

func (r *Reader) F64() float64 { return math.Float64frombits(r.U64()) }

// GUID reads 16 raw bytes.
func (r *Reader) GUID() GUID {
	var g GUID
	copy(g[:], r.take(16))
	return g
}

// OptionalGUID reads a presence byte followed by a GUID when set.
func (r *Reader) OptionalGUID() *GUID {
	if r.U8() == 0 {
		return nil
	}
	g := r.GUID()
	return &g
}

// FString reads a length-prefixed string. Positive lengths are 8-bit with a
// trailing NUL, negative lengths are UTF-16LE code units with a trailing NUL.
func (r *Reader) FString() string {
	size := r.I32()
	switch {
	case r.err != nil || size == 0:
		return ""
	case size > 0:
		b := r.take(int(size))
		if b == nil {
			return ""
		}
		return string(b[:len(b)-1])
	default:
		n := int(-size)
		b := r.take(n * 2)
		if b == nil {
			return ""
		}
		units := make([]uint16, n-1)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(b[i*2:])
		}
		return string(utf16.Decode(units))
	}
}

// TArray reads a u32 count followed by count elements. An empty array
// yields nil.
func TArray[T any](r *Reader, elem func(*Reader) T) []T {
	n := r.U32()
	if r.err != nil || n == 0 {
		return nil
	}
	if int(n) > r.Remaining() {
		r.Fail("", "array count %d exceeds remaining %d bytes", n, r.Remaining())
		return nil
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		out = append(out, elem(r))
	}
	return out
}

// Properties reads named properties until the "None" terminator.
func (r *Reader) Properties(path string) *PropertyMap {
	m := NewPropertyMap()
	for r.err == nil {
		name := r.FString()
		if r.err != nil || name == "None" {
			break
		}
		typ := Type(r.FString())
		size := r.U64()
		p := r.Property(typ, size, path+"."+name, false)
		if r.err != nil {
			break
		}
		m.Set(name, p)
	}
	return m
}

// Property reads the body of a property whose tag has already been consumed.
// When nested is false and path is registered, the registry codec decodes it;
// codecs pass nested=true to fall back to generic decoding of their own path.
func (r *Reader) Property(typ Type, size uint64, path string, nested bool) *Property {
	if r.err != nil {
		return nil
	}
	if c := r.reg.codec(path); c != nil && !nested {
		p, err := c.Decode(r, typ, size, path)
		if err != nil {
			if r.err == nil {
				r.err = err
			}
			return nil
		}
		p.Type = typ
		p.Custom = path
		return p
	}

	p := &Property{Type: typ}
	switch typ {
	case StructProperty:
		s := &Struct{Type: r.FString(), StructID: r.GUID()}
		p.ID = r.OptionalGUID()
		s.Body = r.structBody(s.Type, path)
		p.Value = s
	case IntProperty:
		p.ID = r.OptionalGUID()
		p.Value = Int(r.I32())
	case Int64Property:
		p.ID = r.OptionalGUID()
		p.Value = Int64(r.I64())
	case UInt16Property:
		p.ID = r.OptionalGUID()
		p.Value = UInt16(r.U16())
	case UInt32Property:
		p.ID = r.OptionalGUID()
		p.Value = UInt32(r.U32())
	case UInt64Property:
		p.ID = r.OptionalGUID()
		p.Value = UInt64(r.U64())
	case FloatProperty:
		p.ID = r.OptionalGUID()
		p.Value = Float(r.F32())
	case DoubleProperty:
		p.ID = r.OptionalGUID()
		p.Value = Double(r.F64())
	case StrProperty:
		p.ID = r.OptionalGUID()
		p.Value = Str(r.FString())
	case NameProperty:
		p.ID = r.OptionalGUID()
		p.Value = Name(r.FString())
	case EnumProperty:
		e := Enum{Type: r.FString()}
		p.ID = r.OptionalGUID()
		e.Value = r.FString()
		p.Value = e
	case BoolProperty:
		v := r.Bool()
		p.ID = r.OptionalGUID()
		p.Value = Bool(v)
	case ByteProperty:
		b := Byte{Type: r.FString()}
		p.ID = r.OptionalGUID()
		if b.Type == "None" {
			b.Byte = r.U8()
		} else {
			b.Name = r.FString()
		}
		p.Value = b
	case ArrayProperty:
		elem := Type(r.FString())
		p.ID = r.OptionalGUID()
		p.Value = r.arrayBody(elem, size, path)
	case MapProperty:
		m := &Map{KeyType: Type(r.FString()), ValueType: Type(r.FString())}
		p.ID = r.OptionalGUID()
		r.mapBody(m, path)
		p.Value = m
	default:
		r.Fail(path, "unknown property type %q", typ)
		return nil
	}
	if r.err != nil {
		return nil
	}
	return p
}

func (r *Reader) structBody(structType, path string) Value {
	switch structType {
	case "Vector":
		return Vector{X: r.F64(), Y: r.F64(), Z: r.F64()}
	case "Quat":
		return Quat{X: r.F64(), Y: r.F64(), Z: r.F64(), W: r.F64()}
	case "LinearColor":
		return LinearColor{R: r.F32(), G: r.F32(), B: r.F32(), A: r.F32()}
	case "DateTime":
		return DateTime(r.U64())
	case "Guid":
		return r.GUID()
	default:
		return r.Properties(path)
	}
}

func (r *Reader) arrayBody(elem Type, size uint64, path string) *Array {
	a := &Array{ElemType: elem}
	count := r.U32()
	if r.err != nil {
		return a
	}
	switch elem {
	case ByteProperty:
		// Size includes the u32 count.
		if uint64(count)+4 != size {
			r.Fail(path, "byte array count %d does not match size %d", count, size)
			return a
		}
		a.Bytes = r.Bytes(int(count))
	case StructProperty:
		sa := &StructArray{PropName: r.FString(), PropType: Type(r.FString())}
		r.U64() // inner size, recomputed on write
		sa.TypeName = r.FString()
		sa.ID = r.GUID()
		sa.InnerID = r.OptionalGUID()
		elemPath := path + "." + sa.PropName
		sa.Values = make([]Value, 0, count)
		for i := uint32(0); i < count && r.err == nil; i++ {
			sa.Values = append(sa.Values, r.structBody(sa.TypeName, elemPath))
		}
		a.Structs = sa
	default:
		a.Values = make([]Value, 0, count)
		for i := uint32(0); i < count && r.err == nil; i++ {
			a.Values = append(a.Values, r.scalar(elem, path))
		}
	}
	return a
}

func (r *Reader) mapBody(m *Map, path string) {
	m.Removed = r.U32()
	count := r.U32()
	keyPath, valuePath := path+".Key", path+".Value"
	if m.KeyType == StructProperty {
		m.KeyStructType = r.reg.hint(keyPath, "Guid")
	}
	if m.ValueType == StructProperty {
		m.ValueStructType = r.reg.hint(valuePath, "StructProperty")
	}
	m.Entries = make([]MapEntry, 0, min(int(count), r.Remaining()))
	for i := uint32(0); i < count && r.err == nil; i++ {
		k := r.mapValue(m.KeyType, m.KeyStructType, keyPath)
		v := r.mapValue(m.ValueType, m.ValueStructType, valuePath)
		m.Entries = append(m.Entries, MapEntry{Key: k, Value: v})
	}
}

func (r *Reader) mapValue(typ Type, structType, path string) Value {
	if typ == StructProperty {
		return r.structBody(structType, path)
	}
	return r.scalar(typ, path)
}

// scalar reads an untagged element as found inside arrays and maps.
func (r *Reader) scalar(typ Type, path string) Value {
	switch typ {
	case EnumProperty, NameProperty:
		return Name(r.FString())
	case StrProperty:
		return Str(r.FString())
	case IntProperty:
		return Int(r.I32())
	case Int64Property:
		return Int64(r.I64())
	case UInt16Property:
		return UInt16(r.U16())
	case UInt32Property:
		return UInt32(r.U32())
	case UInt64Property:
		return UInt64(r.U64())
	case FloatProperty:
		return Float(r.F32())
	case DoubleProperty:
		return Double(r.F64())
	case BoolProperty:
		return Bool(r.Bool())
	case ByteProperty:
		return Byte{Type: "None", Byte: r.U8()}
	default:
		r.Fail(path, "unknown element type %q", typ)
		return nil
	}
}
