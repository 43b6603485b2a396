package rawdata

import "github.com/crystal-mush/palsave/pkg/gvas"

// CharacterSlot is the RawData of one character container slot.
type CharacterSlot struct {
	PlayerUID  gvas.GUID
	InstanceID gvas.GUID
	Permission uint8
	Trailer    []byte
}

// Empty reports whether no character occupies the slot.
func (s *CharacterSlot) Empty() bool { return s.InstanceID.IsZero() }

func (s *CharacterSlot) Encode(w *gvas.Writer) {
	w.GUID(s.PlayerUID)
	w.GUID(s.InstanceID)
	w.U8(s.Permission)
	w.Write(s.Trailer)
}

func (s *CharacterSlot) Clone() gvas.Payload {
	out := *s
	out.Trailer = cloneBytes(s.Trailer)
	return &out
}

func decodeCharacterSlot(r *gvas.Reader, path string) (gvas.Payload, error) {
	s := &CharacterSlot{PlayerUID: r.GUID(), InstanceID: r.GUID(), Permission: r.U8()}
	s.Trailer = r.Rest()
	return s, r.Err()
}

// GuildItemStorage is the RawData of a guild's shared chest record.
type GuildItemStorage struct {
	ContainerID gvas.GUID
	Trailer     []byte
}

func (g *GuildItemStorage) Encode(w *gvas.Writer) {
	w.GUID(g.ContainerID)
	w.Write(g.Trailer)
}

func (g *GuildItemStorage) Clone() gvas.Payload {
	out := *g
	out.Trailer = cloneBytes(g.Trailer)
	return &out
}

func decodeGuildItemStorage(r *gvas.Reader, path string) (gvas.Payload, error) {
	g := &GuildItemStorage{ContainerID: r.GUID()}
	g.Trailer = r.Rest()
	return g, r.Err()
}
