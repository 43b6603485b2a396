package gvas

import (
	"fmt"
	"sort"
)

// Codec decodes and encodes the property found at one structural path.
// Decode is called after the property tag (name, type, size) has been read;
// Encode must write the same type-specific header and body and return the
// size for the tag.
type Codec interface {
	Decode(r *Reader, typ Type, size uint64, path string) (*Property, error)
	Encode(w *Writer, p *Property) (uint64, error)
}

// CodecFuncs adapts a pair of functions to Codec.
type CodecFuncs struct {
	DecodeFunc func(r *Reader, typ Type, size uint64, path string) (*Property, error)
	EncodeFunc func(w *Writer, p *Property) (uint64, error)
}

func (c CodecFuncs) Decode(r *Reader, typ Type, size uint64, path string) (*Property, error) {
	return c.DecodeFunc(r, typ, size, path)
}

func (c CodecFuncs) Encode(w *Writer, p *Property) (uint64, error) {
	return c.EncodeFunc(w, p)
}

// Registry maps structural paths to codecs and records the struct types of
// map keys and values, which the archive itself does not carry.
type Registry struct {
	codecs map[string]Codec
	hints  map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec), hints: make(map[string]string)}
}

// Register binds c to path, replacing any previous codec.
func (g *Registry) Register(path string, c Codec) *Registry {
	g.codecs[path] = c
	return g
}

// Hint records the struct type of a map key or value path.
func (g *Registry) Hint(path, structType string) *Registry {
	g.hints[path] = structType
	return g
}

// Paths returns the registered codec paths in sorted order.
func (g *Registry) Paths() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.codecs))
	for p := range g.codecs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (g *Registry) codec(path string) Codec {
	if g == nil {
		return nil
	}
	return g.codecs[path]
}

func (g *Registry) hint(path, def string) string {
	if g == nil {
		return def
	}
	if t, ok := g.hints[path]; ok {
		return t
	}
	return def
}

// Opaque is the value of a skipped property: the type-specific header fields
// needed to rewrite the tag, and the body bytes exactly as read.
type Opaque struct {
	SkipType   Type
	ArrayType  Type
	KeyType    Type
	ValueType  Type
	StructType string
	StructID   GUID
	Data       []byte
}

func (*Opaque) value() {}

// Skip keeps a property's body as uninterpreted bytes. Only array, map and
// struct properties can be skipped.
var Skip Codec = skipCodec{}

type skipCodec struct{}

func (skipCodec) Decode(r *Reader, typ Type, size uint64, path string) (*Property, error) {
	o := &Opaque{SkipType: typ}
	p := &Property{Value: o}
	switch typ {
	case ArrayProperty:
		o.ArrayType = Type(r.FString())
		p.ID = r.OptionalGUID()
	case MapProperty:
		o.KeyType = Type(r.FString())
		o.ValueType = Type(r.FString())
		p.ID = r.OptionalGUID()
	case StructProperty:
		o.StructType = r.FString()
		o.StructID = r.GUID()
		p.ID = r.OptionalGUID()
	default:
		return nil, &FormatError{Path: path, Pos: r.Pos(), Msg: fmt.Sprintf("cannot skip %s", typ)}
	}
	if size > uint64(r.Remaining()) {
		return nil, &FormatError{Path: path, Pos: r.Pos(), Msg: fmt.Sprintf("skipped body of %d bytes exceeds remaining %d", size, r.Remaining())}
	}
	o.Data = r.Bytes(int(size))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func (skipCodec) Encode(w *Writer, p *Property) (uint64, error) {
	o, ok := p.Value.(*Opaque)
	if !ok {
		return 0, &FormatError{Path: p.Custom, Pos: w.Len(), Msg: fmt.Sprintf("skipped node holds %T", p.Value)}
	}
	switch o.SkipType {
	case ArrayProperty:
		w.FString(string(o.ArrayType))
		w.OptionalGUID(p.ID)
	case MapProperty:
		w.FString(string(o.KeyType))
		w.FString(string(o.ValueType))
		w.OptionalGUID(p.ID)
	case StructProperty:
		w.FString(o.StructType)
		w.GUID(o.StructID)
		w.OptionalGUID(p.ID)
	default:
		return 0, &FormatError{Path: p.Custom, Pos: w.Len(), Msg: fmt.Sprintf("cannot skip %s", o.SkipType)}
	}
	w.Write(o.Data)
	return uint64(len(o.Data)), w.Err()
}

// PayloadDecoder parses the bytes of a RawData array into a Payload.
type PayloadDecoder func(r *Reader, path string) (Payload, error)

// PayloadCodec returns a codec for a byte array property whose bytes are
// parsed by decode. The array is read generically, then its Bytes are
// replaced by the decoded Payload. Encoding writes the Payload back through
// the generic array encoder.
func PayloadCodec(decode PayloadDecoder) Codec {
	return CodecFuncs{
		DecodeFunc: func(r *Reader, typ Type, size uint64, path string) (*Property, error) {
			p := r.Property(typ, size, path, true)
			if err := r.Err(); err != nil {
				return nil, err
			}
			a, ok := p.Value.(*Array)
			if !ok || a.ElemType != ByteProperty {
				return nil, &FormatError{Path: path, Pos: r.Pos(), Msg: "expected a byte array"}
			}
			if err := DecodePayload(r, a, path, decode); err != nil {
				return nil, err
			}
			return p, nil
		},
		EncodeFunc: EncodeGeneric,
	}
}

// DecodePayload parses a.Bytes with decode and stores the result in a.Payload.
func DecodePayload(r *Reader, a *Array, path string, decode PayloadDecoder) error {
	sub := r.Sub(a.Bytes)
	pl, err := decode(sub, path)
	if err == nil {
		err = sub.Err()
	}
	if err != nil {
		return fmt.Errorf("gvas: decode %s: %w", path, err)
	}
	a.Payload = pl
	a.Bytes = nil
	return nil
}

// EncodeGeneric encodes p with the generic encoder. Codecs that only
// post-process a generically decoded node use it as their Encode.
func EncodeGeneric(w *Writer, p *Property) (uint64, error) {
	size := w.PropertyInner(p, p.Custom, true)
	return size, w.Err()
}
