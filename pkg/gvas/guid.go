package gvas

import (
	"fmt"

	"github.com/google/uuid"
)

// GUID is an engine GUID in its serialized byte order: four little-endian
// uint32 words. String and ParseGUID convert to and from the canonical form
// the game shows in file names and logs.
type GUID [16]byte

// ZeroGUID is the empty sentinel used for "no owner" and vacant slots.
var ZeroGUID GUID

func (GUID) value() {}

// IsZero reports whether g is the empty sentinel.
func (g GUID) IsZero() bool { return g == ZeroGUID }

// UUID returns g rearranged into RFC 4122 byte order.
func (g GUID) UUID() uuid.UUID {
	var u uuid.UUID
	for w := 0; w < 4; w++ {
		for i := 0; i < 4; i++ {
			u[w*4+i] = g[w*4+3-i]
		}
	}
	return u
}

func (g GUID) String() string { return g.UUID().String() }

// FromUUID converts a canonical UUID into serialized GUID byte order.
func FromUUID(u uuid.UUID) GUID {
	var g GUID
	for w := 0; w < 4; w++ {
		for i := 0; i < 4; i++ {
			g[w*4+3-i] = u[w*4+i]
		}
	}
	return g
}

// ParseGUID accepts the canonical dashed form, or 32 hex digits without
// dashes as used in player save file names.
func ParseGUID(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("gvas: parse guid %q: %w", s, err)
	}
	return FromUUID(u), nil
}

// MustParseGUID is ParseGUID for constants and tests.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

// NewGUID returns a random GUID.
func NewGUID() GUID { return FromUUID(uuid.New()) }

// MarshalText writes the canonical form, so GUIDs read naturally in JSON
// and YAML documents.
func (g GUID) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *GUID) UnmarshalText(b []byte) error {
	v, err := ParseGUID(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}
