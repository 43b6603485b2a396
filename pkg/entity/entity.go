// Package entity provides typed views over the raw records of a decoded
// save: pals, players, guilds, bases, item and character containers, and
// dynamic items. A view holds pointers into the property tree, so setters
// write straight back to the document that produced it. Views must not
// outlive their document.
package entity

import (
	"github.com/crystal-mush/palsave/pkg/gvas"
	"github.com/crystal-mush/palsave/pkg/rawdata"
)

// Settings is the read-only settings provider the core consults for
// naming and limits.
type Settings interface {
	Language() string
	CloneNicknamePrefix() string
	NewPalNickname() string
	MaxStomach() float32
}

// Names is the localized reference data lookup keyed by internal ids.
type Names interface {
	PalName(species string) string
	ItemName(staticID string) string
	SkillName(id string) string
	// HPScale returns the species' HP scaling stat used by MaxHP.
	HPScale(species string) (float64, bool)
}

// DefaultSettings is used when no provider is configured.
type DefaultSettings struct{}

func (DefaultSettings) Language() string            { return "en" }
func (DefaultSettings) CloneNicknamePrefix() string { return "" }
func (DefaultSettings) NewPalNickname() string      { return "" }
func (DefaultSettings) MaxStomach() float32         { return 150 }

// keepGUID is a Guid field that is written even when zero.
func keepGUID(name string) gvas.Field[gvas.GUID] {
	f := gvas.GUIDField(name)
	f.Keep = true
	return f
}

// guidStruct returns the Guid stored in a struct property, e.g. InstanceId.
func guidStruct(m *gvas.PropertyMap, name string) gvas.GUID {
	return gvas.GUIDField(name).Get(m)
}

// idStruct reads a container id struct ({ID: Guid}) nested under name.
func idStruct(m *gvas.PropertyMap, name string) gvas.GUID {
	return guidStruct(m.Struct(name), "ID")
}

func newIDStruct(structType string, id gvas.GUID) *gvas.Property {
	body := gvas.NewPropertyMap()
	keepGUID("ID").Set(body, id)
	return gvas.NewStruct(structType, body)
}

// characterOf returns the decoded RawData of a character map value.
func characterOf(value *gvas.PropertyMap) *rawdata.Character {
	c, _ := rawdata.RawPayload(value).(*rawdata.Character)
	return c
}
