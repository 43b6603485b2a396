package gvas

// Field describes one optional scalar property of a record. The engine omits
// a property whose value equals its implicit default, so Set deletes the
// property in that case unless Keep is set.
type Field[T comparable] struct {
	Name    string
	Default T
	Keep    bool

	typ    Type
	wrap   func(T) Value
	unwrap func(Value) (T, bool)
}

// Get returns the field value, or Default when absent or of another type.
func (f Field[T]) Get(m *PropertyMap) T {
	p := m.Get(f.Name)
	if p == nil {
		return f.Default
	}
	if v, ok := f.unwrap(p.Value); ok {
		return v
	}
	return f.Default
}

// Present reports whether the property is stored.
func (f Field[T]) Present(m *PropertyMap) bool { return m.Has(f.Name) }

// Set stores v, keeping the existing tag (and its correlation id) when the
// property already exists.
func (f Field[T]) Set(m *PropertyMap, v T) {
	if v == f.Default && !f.Keep {
		m.Delete(f.Name)
		return
	}
	if p := m.Get(f.Name); p != nil && p.Type == f.typ {
		p.Value = f.wrap(v)
		return
	}
	m.Set(f.Name, &Property{Type: f.typ, Value: f.wrap(v)})
}

func scalarField[T comparable, V Value](typ Type, name string, def T, wrap func(T) V, unwrap func(V) T) Field[T] {
	return Field[T]{
		Name:    name,
		Default: def,
		typ:     typ,
		wrap:    func(v T) Value { return wrap(v) },
		unwrap: func(v Value) (T, bool) {
			x, ok := v.(V)
			if !ok {
				var zero T
				return zero, false
			}
			return unwrap(x), true
		},
	}
}

func IntField(name string, def int32) Field[int32] {
	return scalarField(IntProperty, name, def, func(v int32) Int { return Int(v) }, func(v Int) int32 { return int32(v) })
}

func Int64Field(name string, def int64) Field[int64] {
	return scalarField(Int64Property, name, def, func(v int64) Int64 { return Int64(v) }, func(v Int64) int64 { return int64(v) })
}

func FloatField(name string, def float32) Field[float32] {
	return scalarField(FloatProperty, name, def, func(v float32) Float { return Float(v) }, func(v Float) float32 { return float32(v) })
}

func StrField(name string, def string) Field[string] {
	return scalarField(StrProperty, name, def, func(v string) Str { return Str(v) }, func(v Str) string { return string(v) })
}

func NameField(name string, def string) Field[string] {
	return scalarField(NameProperty, name, def, func(v string) Name { return Name(v) }, func(v Name) string { return string(v) })
}

func BoolField(name string, def bool) Field[bool] {
	return scalarField(BoolProperty, name, def, func(v bool) Bool { return Bool(v) }, func(v Bool) bool { return bool(v) })
}

// ByteField is a raw ByteProperty (enum type "None").
func ByteField(name string, def uint8) Field[uint8] {
	return scalarField(ByteProperty, name, def,
		func(v uint8) Byte { return Byte{Type: "None", Byte: v} },
		func(v Byte) uint8 { return v.Byte })
}

// EnumField stores the member name of enumType, e.g. "EPalGenderType::Male".
func EnumField(name, enumType, def string) Field[string] {
	return scalarField(EnumProperty, name, def,
		func(v string) Enum { return Enum{Type: enumType, Value: v} },
		func(v Enum) string { return v.Value })
}

// GUIDField is a Guid struct property.
func GUIDField(name string) Field[GUID] {
	return Field[GUID]{
		Name: name,
		typ:  StructProperty,
		wrap: func(g GUID) Value { return &Struct{Type: "Guid", Body: g} },
		unwrap: func(v Value) (GUID, bool) {
			s, ok := v.(*Struct)
			if !ok {
				return GUID{}, false
			}
			g, ok := s.Body.(GUID)
			return g, ok
		},
	}
}

// ListField is an array of names or enum members. An empty list is omitted.
type ListField struct {
	Name     string
	ElemType Type
}

// Get returns the list elements in order.
func (f ListField) Get(m *PropertyMap) []string {
	p := m.Get(f.Name)
	if p == nil {
		return nil
	}
	a, ok := p.Value.(*Array)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(a.Values))
	for _, v := range a.Values {
		switch v := v.(type) {
		case Name:
			out = append(out, string(v))
		case Str:
			out = append(out, string(v))
		}
	}
	return out
}

// Set replaces the list, deleting the property when vals is empty.
func (f ListField) Set(m *PropertyMap, vals []string) {
	if len(vals) == 0 {
		m.Delete(f.Name)
		return
	}
	values := make([]Value, len(vals))
	for i, s := range vals {
		if f.ElemType == StrProperty {
			values[i] = Str(s)
		} else {
			values[i] = Name(s)
		}
	}
	if p := m.Get(f.Name); p != nil {
		if a, ok := p.Value.(*Array); ok {
			a.Values = values
			return
		}
	}
	m.Set(f.Name, &Property{Type: ArrayProperty, Value: &Array{ElemType: f.ElemType, Values: values}})
}

// NewStruct returns a new Struct property holding a user struct body.
func NewStruct(structType string, body *PropertyMap) *Property {
	return &Property{Type: StructProperty, Value: &Struct{Type: structType, Body: body}}
}
