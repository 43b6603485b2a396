package presetstore

import (
	"encoding/binary"
	"strings"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta  = []byte("meta")
	bucketSlots = []byte("slots")
	bucketPals  = []byte("pals")
)

// Meta key constants.
var (
	keySchema = []byte("schema")
)

const schemaVersion = 1

// nameKey folds a preset name to its bucket key. Names are matched
// case-insensitively and trimmed.
func nameKey(name string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(name)))
}

// intToKey converts an int to an 8-byte big-endian value.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian value back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
