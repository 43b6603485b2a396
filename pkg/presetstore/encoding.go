package presetstore

import (
	"bytes"
	"encoding/gob"
)

func init() {
	gob.Register(SlotPreset{})
	gob.Register(PalPreset{})
}

// encodeGob serializes v to bytes using gob.
func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeSlotPreset deserializes bytes back into a SlotPreset.
func decodeSlotPreset(data []byte) (*SlotPreset, error) {
	var p SlotPreset
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// decodePalPreset deserializes bytes back into a PalPreset.
func decodePalPreset(data []byte) (*PalPreset, error) {
	var p PalPreset
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
