package events

import "github.com/crystal-mush/palsave/pkg/gvas"

// EventType classifies events emitted while a save document is loaded,
// edited and written.
type EventType int

const (
	EvProgress      EventType = iota // Human-readable step of a long operation
	EvLoaded                         // Document decoded and indexed
	EvSaved                          // Document encoded and written
	EvWarning                        // Consistency warning (logged, not fatal)
	EvPalAdded                       // Pal created or cloned
	EvPalDeleted                     // Pal removed
	EvPalMoved                       // Pal moved between containers
	EvPalEdited                      // Pal fields changed
	EvPlayerDeleted                  // Player and everything they own removed
	EvGuildDeleted                   // Guild cascade finished
	EvItemEdited                     // Item container slot changed
	EvStale                          // Files changed on disk under a loaded document
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvProgress:
		return "progress"
	case EvLoaded:
		return "loaded"
	case EvSaved:
		return "saved"
	case EvWarning:
		return "warning"
	case EvPalAdded:
		return "pal_added"
	case EvPalDeleted:
		return "pal_deleted"
	case EvPalMoved:
		return "pal_moved"
	case EvPalEdited:
		return "pal_edited"
	case EvPlayerDeleted:
		return "player_deleted"
	case EvGuildDeleted:
		return "guild_deleted"
	case EvItemEdited:
		return "item_edited"
	case EvStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Event is a structured notification flowing through the bus. Subject is the
// entity the event is about (pal, player, guild or container); Text is the
// pre-formatted line a progress sink prints.
type Event struct {
	Type    EventType
	Subject gvas.GUID
	Owner   gvas.GUID // Player or guild the subject belongs to, if any
	Text    string
	Data    map[string]any
}
