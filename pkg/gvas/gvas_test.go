package gvas

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var cmpOpts = cmp.Options{cmp.AllowUnexported(PropertyMap{})}

func sampleArchive() *Archive {
	a := NewArchive("/Script/Pal.PalWorldSaveGame")
	a.Header.CustomVersions = []CustomVersion{{ID: MustParseGUID("22d5549c-be4f-26a8-4607-2194d082b461"), Version: 43}}

	inner := NewPropertyMap()
	inner.Set("CharacterID", &Property{Type: NameProperty, Value: Name("SheepBall")})
	inner.Set("NickName", &Property{Type: StrProperty, Value: Str("Lämmy")})
	inner.Set("Level", &Property{Type: ByteProperty, Value: Byte{Type: "None", Byte: 12}})
	inner.Set("Exp", &Property{Type: Int64Property, Value: Int64(4200)})
	inner.Set("Gender", &Property{Type: EnumProperty, Value: Enum{Type: "EPalGenderType", Value: "EPalGenderType::Female"}})
	inner.Set("IsPlayer", &Property{Type: BoolProperty, Value: Bool(false)})
	inner.Set("Hp", &Property{Type: FloatProperty, Value: Float(1.5)})
	inner.Set("Temp", &Property{Type: DoubleProperty, Value: Double(-3.25)})
	inner.Set("Small", &Property{Type: UInt16Property, Value: UInt16(7)})
	inner.Set("Mid", &Property{Type: UInt32Property, Value: UInt32(70000)})
	inner.Set("Big", &Property{Type: UInt64Property, Value: UInt64(1 << 40)})
	inner.Set("Rank", &Property{Type: IntProperty, Value: Int(3)})
	inner.Set("PassiveSkillList", &Property{Type: ArrayProperty, Value: &Array{ElemType: NameProperty, Values: []Value{Name("Legend"), Name("PAL_ALLAttack_up1")}}})
	inner.Set("Loc", &Property{Type: StructProperty, Value: &Struct{Type: "Vector", Body: Vector{X: 1, Y: 2, Z: 3}}})
	inner.Set("Rot", &Property{Type: StructProperty, Value: &Struct{Type: "Quat", Body: Quat{W: 1}}})
	inner.Set("Color", &Property{Type: StructProperty, Value: &Struct{Type: "LinearColor", Body: LinearColor{R: 1, A: 1}}})
	inner.Set("When", &Property{Type: StructProperty, Value: &Struct{Type: "DateTime", Body: DateTime(638400000000000000)}})
	inner.Set("Owner", &Property{Type: StructProperty, Value: &Struct{Type: "Guid", Body: MustParseGUID("00000000-0000-0000-0000-000000000001")}})
	inner.Set("Blob", &Property{Type: ArrayProperty, Value: &Array{ElemType: ByteProperty, Bytes: []byte{1, 2, 3, 4, 5}}})

	slot := NewPropertyMap()
	slot.Set("SlotIndex", &Property{Type: IntProperty, Value: Int(0)})
	structs := &StructArray{
		PropName: "Slots",
		PropType: StructProperty,
		TypeName: "PalCharacterSlotSaveData",
		Values:   []Value{slot, slot.Clone()},
	}

	mapValue := NewPropertyMap()
	mapValue.Set("RawData", &Property{Type: ArrayProperty, Value: &Array{ElemType: ByteProperty, Bytes: []byte{9, 9}}})
	key := MustParseGUID("11111111-2222-3333-4444-555555555555")

	world := NewPropertyMap()
	world.Set("Character", NewStruct("PalIndividualCharacterSaveParameter", inner))
	world.Set("Containers", &Property{Type: ArrayProperty, Value: &Array{ElemType: StructProperty, Structs: structs}})
	world.Set("ById", &Property{Type: MapProperty, Value: &Map{
		KeyType: StructProperty, ValueType: StructProperty,
		KeyStructType: "Guid", ValueStructType: "StructProperty",
		Entries: []MapEntry{{Key: key, Value: mapValue}},
	}})
	world.Set("Names", &Property{Type: MapProperty, Value: &Map{
		KeyType: NameProperty, ValueType: IntProperty,
		Entries: []MapEntry{{Key: Name("a"), Value: Int(1)}, {Key: Name("b"), Value: Int(2)}},
	}})
	a.Properties.Set("worldSaveData", NewStruct("PalWorldSaveData", world))
	return a
}

func TestArchiveRoundTrip(t *testing.T) {
	a := sampleArchive()
	enc, err := a.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(enc, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(a, got, cmpOpts); diff != "" {
		t.Errorf("decoded tree differs (-want +got):\n%s", diff)
	}
	again, err := got.Encode(nil)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(enc, again) {
		t.Errorf("re-encoded archive is not byte-identical (%d vs %d bytes)", len(enc), len(again))
	}
}

func TestPropertyOrderPreserved(t *testing.T) {
	a := sampleArchive()
	enc, _ := a.Encode(nil)
	got, err := Decode(enc, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := a.Properties.Path("worldSaveData", "Character").Names()
	have := got.Properties.Path("worldSaveData", "Character").Names()
	if diff := cmp.Diff(want, have); diff != "" {
		t.Errorf("property order changed (-want +got):\n%s", diff)
	}
}

func TestSkipCodecPreservesBytes(t *testing.T) {
	a := sampleArchive()
	plain, _ := a.Encode(nil)

	reg := NewRegistry().
		Register(".worldSaveData.ById", Skip).
		Register(".worldSaveData.Containers", Skip).
		Register(".worldSaveData.Character", Skip)
	got, err := Decode(plain, reg)
	if err != nil {
		t.Fatalf("Decode with skips: %v", err)
	}
	world := got.Properties.Struct("worldSaveData")
	for _, name := range []string{"ById", "Containers", "Character"} {
		p := world.Get(name)
		if _, ok := p.Value.(*Opaque); !ok {
			t.Errorf("%s: expected *Opaque, got %T", name, p.Value)
		}
		if p.Custom != ".worldSaveData."+name {
			t.Errorf("%s: custom path %q", name, p.Custom)
		}
	}
	again, err := got.Encode(reg)
	if err != nil {
		t.Fatalf("Encode with skips: %v", err)
	}
	if !bytes.Equal(plain, again) {
		t.Error("skipped nodes did not round-trip byte-exact")
	}
}

func TestSkipRejectsScalar(t *testing.T) {
	a := NewArchive("X")
	a.Properties.Set("N", &Property{Type: IntProperty, Value: Int(1)})
	enc, _ := a.Encode(nil)
	_, err := Decode(enc, NewRegistry().Register(".N", Skip))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestUnknownTypeAborts(t *testing.T) {
	a := NewArchive("X")
	a.Properties.Set("N", &Property{Type: "TextProperty", Value: Str("x")})
	if _, err := a.Encode(nil); err == nil {
		t.Error("encoding an unknown type must fail")
	}

	w := NewWriter(nil)
	writeHeader(w, a.Header)
	w.FString("N")
	w.FString("TextProperty")
	w.U64(0)
	_, err := Decode(w.Bytes(), nil)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestUnregisteredCustomNodeFailsOnWrite(t *testing.T) {
	a := NewArchive("X")
	a.Properties.Set("N", &Property{Type: ArrayProperty, Value: &Opaque{SkipType: ArrayProperty}, Custom: ".N"})
	if _, err := a.Encode(NewRegistry()); err == nil {
		t.Error("expected an error for a custom node with no codec")
	}
}

func TestTruncatedInput(t *testing.T) {
	enc, _ := sampleArchive().Encode(nil)
	for _, n := range []int{3, 40, len(enc) / 2, len(enc) - 6} {
		if _, err := Decode(enc[:n], nil); err == nil {
			t.Errorf("decode of %d/%d bytes succeeded", n, len(enc))
		}
	}
}

type pairPayload struct {
	A     uint32
	Name  string
	Extra []byte
}

func (p *pairPayload) Encode(w *Writer) {
	w.U32(p.A)
	w.FString(p.Name)
	w.Write(p.Extra)
}

func (p *pairPayload) Clone() Payload {
	c := *p
	c.Extra = append([]byte(nil), p.Extra...)
	return &c
}

func TestPayloadCodec(t *testing.T) {
	w := NewWriter(nil)
	(&pairPayload{A: 5, Name: "hi", Extra: []byte{0xff}}).Encode(w)

	a := NewArchive("X")
	a.Properties.Set("RawData", &Property{Type: ArrayProperty, Value: &Array{ElemType: ByteProperty, Bytes: w.Bytes()}})
	plain, _ := a.Encode(nil)

	reg := NewRegistry().Register(".RawData", PayloadCodec(func(r *Reader, path string) (Payload, error) {
		return &pairPayload{A: r.U32(), Name: r.FString(), Extra: r.Rest()}, nil
	}))
	got, err := Decode(plain, reg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	arr := got.Properties.Get("RawData").Value.(*Array)
	pl, ok := arr.Payload.(*pairPayload)
	if !ok {
		t.Fatalf("expected *pairPayload, got %T", arr.Payload)
	}
	if pl.A != 5 || pl.Name != "hi" || !bytes.Equal(pl.Extra, []byte{0xff}) {
		t.Errorf("unexpected payload %+v", pl)
	}
	again, err := got.Encode(reg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(plain, again) {
		t.Error("payload did not round-trip byte-exact")
	}

	pl.Name = "longer name"
	edited, err := got.Encode(reg)
	if err != nil {
		t.Fatalf("Encode edited: %v", err)
	}
	back, err := Decode(edited, reg)
	if err != nil {
		t.Fatalf("Decode edited: %v", err)
	}
	if n := back.Properties.Get("RawData").Value.(*Array).Payload.(*pairPayload).Name; n != "longer name" {
		t.Errorf("edited name = %q", n)
	}
}

func TestFString(t *testing.T) {
	tests := []struct {
		in   string
		size int32
	}{
		{"", 0},
		{"abc", 4},
		{"Lämmy", -6},
		{"\xe9t\xe9", 4}, // latin-1 bytes stay 8-bit
	}
	for _, tt := range tests {
		w := NewWriter(nil)
		w.FString(tt.in)
		r := NewReader(w.Bytes(), nil)
		if size := r.I32(); size != tt.size {
			t.Errorf("%q: size prefix %d, expected %d", tt.in, size, tt.size)
		}
		r = NewReader(w.Bytes(), nil)
		if got := r.FString(); got != tt.in {
			t.Errorf("round-trip of %q gave %q", tt.in, got)
		}
	}
}

func TestGUIDConversions(t *testing.T) {
	const s = "01234567-89ab-cdef-0011-223344556677"
	g := MustParseGUID(s)
	if g.String() != s {
		t.Errorf("String() = %s", g.String())
	}
	if g[0] != 0x67 || g[3] != 0x01 {
		t.Errorf("unexpected serialized order % x", g[:4])
	}
	nodash, err := ParseGUID("0123456789abcdef0011223344556677")
	if err != nil || nodash != g {
		t.Errorf("ParseGUID without dashes = %v, %v", nodash, err)
	}
	if NewGUID() == NewGUID() {
		t.Error("NewGUID returned duplicates")
	}
}

func TestFieldDefaultOmission(t *testing.T) {
	m := NewPropertyMap()
	exp := Int64Field("Exp", 0)
	exp.Set(m, 100)
	if !exp.Present(m) || exp.Get(m) != 100 {
		t.Fatalf("Exp not stored")
	}
	exp.Set(m, 0)
	if exp.Present(m) {
		t.Error("Exp at default must be omitted")
	}
	if exp.Get(m) != 0 {
		t.Error("absent Exp must read as default")
	}

	level := ByteField("Level", 1)
	level.Keep = true
	level.Set(m, 1)
	if !level.Present(m) {
		t.Error("Keep field must be stored at default")
	}

	skills := ListField{Name: "PassiveSkillList", ElemType: NameProperty}
	skills.Set(m, []string{"Legend"})
	if diff := cmp.Diff([]string{"Legend"}, skills.Get(m)); diff != "" {
		t.Error(diff)
	}
	skills.Set(m, nil)
	if m.Has("PassiveSkillList") {
		t.Error("empty list must be omitted")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := sampleArchive()
	c := a.Properties.Clone()
	ch := c.Path("worldSaveData", "Character")
	ch.Get("NickName").Value = Str("changed")
	ch.Get("Blob").Value.(*Array).Bytes[0] = 42
	orig := a.Properties.Path("worldSaveData", "Character")
	if orig.Get("NickName").Value != Str("Lämmy") {
		t.Error("clone shares scalar storage")
	}
	if orig.Get("Blob").Value.(*Array).Bytes[0] != 1 {
		t.Error("clone shares byte storage")
	}
}
