// Package gvas decodes and encodes the engine's self-describing property
// archive. Every node is a Property carrying its type tag, an optional
// correlation GUID and a Value. Order is preserved everywhere so that an
// untouched tree re-encodes to the same bytes.
//
// Substructures registered in a Registry are intercepted by path and either
// decoded semantically or kept as opaque bytes (see Skip).
package gvas

import "fmt"

// Type is a property type tag as written in the archive.
type Type string

const (
	StrProperty    Type = "StrProperty"
	NameProperty   Type = "NameProperty"
	BoolProperty   Type = "BoolProperty"
	IntProperty    Type = "IntProperty"
	Int64Property  Type = "Int64Property"
	UInt16Property Type = "UInt16Property"
	UInt32Property Type = "UInt32Property"
	UInt64Property Type = "UInt64Property"
	FloatProperty  Type = "FloatProperty"
	DoubleProperty Type = "DoubleProperty"
	EnumProperty   Type = "EnumProperty"
	ByteProperty   Type = "ByteProperty"
	StructProperty Type = "StructProperty"
	ArrayProperty  Type = "ArrayProperty"
	MapProperty    Type = "MapProperty"
)

// Value is the tagged union of everything a Property can hold.
type Value interface {
	value()
}

// Scalar values.
type (
	Int    int32
	Int64  int64
	UInt16 uint16
	UInt32 uint32
	UInt64 uint64
	Float  float32
	Double float64
	Str    string
	Name   string
	Bool   bool
)

func (Int) value()    {}
func (Int64) value()  {}
func (UInt16) value() {}
func (UInt32) value() {}
func (UInt64) value() {}
func (Float) value()  {}
func (Double) value() {}
func (Str) value()    {}
func (Name) value()   {}
func (Bool) value()   {}

// Enum is an EnumProperty: the enum type name and the selected member.
type Enum struct {
	Type  string
	Value string
}

func (Enum) value() {}

// Byte is a ByteProperty. When Type is "None" the payload is the raw Byte,
// otherwise it is the enum member Name.
type Byte struct {
	Type string
	Byte uint8
	Name string
}

func (Byte) value() {}

// Built-in struct bodies.
type (
	Vector      struct{ X, Y, Z float64 }
	Quat        struct{ X, Y, Z, W float64 }
	LinearColor struct{ R, G, B, A float32 }
	DateTime    uint64
)

func (Vector) value()      {}
func (Quat) value()        {}
func (LinearColor) value() {}
func (DateTime) value()    {}

// Struct is a StructProperty. Body is one of the built-in bodies, a GUID, or
// a *PropertyMap for user structs.
type Struct struct {
	Type     string
	StructID GUID
	Body     Value
}

func (*Struct) value() {}

// Array is an ArrayProperty. Exactly one representation is used depending on
// ElemType: Bytes (optionally decoded into Payload) for ByteProperty,
// Structs for StructProperty, Values otherwise.
type Array struct {
	ElemType Type
	Values   []Value
	Bytes    []byte
	Payload  Payload
	Structs  *StructArray
}

func (*Array) value() {}

// StructArray holds the inner tag and elements of an array of structs.
type StructArray struct {
	PropName string
	PropType Type
	TypeName string
	ID       GUID
	InnerID  *GUID
	Values   []Value
}

// Map is a MapProperty. Entry keys and values are scalars or struct bodies.
type Map struct {
	KeyType         Type
	ValueType       Type
	KeyStructType   string
	ValueStructType string
	Removed         uint32
	Entries         []MapEntry
}

func (*Map) value() {}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   Value
	Value Value
}

// Property is one typed node of the tree.
type Property struct {
	Type  Type
	ID    *GUID
	Value Value
	// Custom is the structural path of the registry codec that produced
	// Value, or empty for generically decoded nodes.
	Custom string
}

// Payload is the semantic form of a RawData byte array.
type Payload interface {
	Encode(w *Writer)
	Clone() Payload
}

// PropertyMap is an insertion-ordered name -> Property list.
type PropertyMap struct {
	names []string
	props map[string]*Property
}

func (*PropertyMap) value() {}

// NewPropertyMap returns an empty map.
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{props: make(map[string]*Property)}
}

// Len returns the number of properties.
func (m *PropertyMap) Len() int { return len(m.names) }

// Names returns property names in archive order.
func (m *PropertyMap) Names() []string { return m.names }

// Get returns the named property or nil.
func (m *PropertyMap) Get(name string) *Property {
	if m == nil {
		return nil
	}
	return m.props[name]
}

// Has reports whether name is present.
func (m *PropertyMap) Has(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.props[name]
	return ok
}

// Set replaces name in place, or appends it when absent.
func (m *PropertyMap) Set(name string, p *Property) {
	if _, ok := m.props[name]; !ok {
		m.names = append(m.names, name)
	}
	m.props[name] = p
}

// Delete removes name and reports whether it was present.
func (m *PropertyMap) Delete(name string) bool {
	if _, ok := m.props[name]; !ok {
		return false
	}
	delete(m.props, name)
	for i, n := range m.names {
		if n == name {
			m.names = append(m.names[:i], m.names[i+1:]...)
			break
		}
	}
	return true
}

// Struct returns the *PropertyMap body of a struct-typed property, or nil.
func (m *PropertyMap) Struct(name string) *PropertyMap {
	p := m.Get(name)
	if p == nil {
		return nil
	}
	if s, ok := p.Value.(*Struct); ok {
		if pm, ok := s.Body.(*PropertyMap); ok {
			return pm
		}
	}
	return nil
}

// Path follows a chain of struct-typed properties.
func (m *PropertyMap) Path(names ...string) *PropertyMap {
	cur := m
	for _, n := range names {
		if cur = cur.Struct(n); cur == nil {
			return nil
		}
	}
	return cur
}

// Clone deep-copies the map.
func (m *PropertyMap) Clone() *PropertyMap {
	if m == nil {
		return nil
	}
	out := &PropertyMap{
		names: append([]string(nil), m.names...),
		props: make(map[string]*Property, len(m.props)),
	}
	for k, p := range m.props {
		out.props[k] = p.Clone()
	}
	return out
}

// Clone deep-copies the property.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	out := *p
	if p.ID != nil {
		id := *p.ID
		out.ID = &id
	}
	out.Value = CloneValue(p.Value)
	return &out
}

// CloneValue deep-copies any Value.
func CloneValue(v Value) Value {
	switch v := v.(type) {
	case *PropertyMap:
		return v.Clone()
	case *Struct:
		out := *v
		out.Body = CloneValue(v.Body)
		return &out
	case *Array:
		out := &Array{ElemType: v.ElemType}
		if v.Values != nil {
			out.Values = make([]Value, len(v.Values))
			for i, e := range v.Values {
				out.Values[i] = CloneValue(e)
			}
		}
		if v.Bytes != nil {
			out.Bytes = append([]byte(nil), v.Bytes...)
		}
		if v.Payload != nil {
			out.Payload = v.Payload.Clone()
		}
		if v.Structs != nil {
			sa := *v.Structs
			if v.Structs.InnerID != nil {
				id := *v.Structs.InnerID
				sa.InnerID = &id
			}
			sa.Values = make([]Value, len(v.Structs.Values))
			for i, e := range v.Structs.Values {
				sa.Values[i] = CloneValue(e)
			}
			out.Structs = &sa
		}
		return out
	case *Map:
		out := *v
		out.Entries = make([]MapEntry, len(v.Entries))
		for i, e := range v.Entries {
			out.Entries[i] = MapEntry{Key: CloneValue(e.Key), Value: CloneValue(e.Value)}
		}
		return &out
	case *Opaque:
		out := *v
		out.Data = append([]byte(nil), v.Data...)
		return &out
	default:
		// Scalars, built-in struct bodies and GUIDs are plain values.
		return v
	}
}

// FormatError reports a malformed archive. It always aborts the load.
type FormatError struct {
	Path string
	Pos  int
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("gvas: %s at offset %d (%s)", e.Msg, e.Pos, e.Path)
	}
	return fmt.Sprintf("gvas: %s at offset %d", e.Msg, e.Pos)
}
