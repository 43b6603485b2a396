// Package sav reads and writes the compressed envelope that wraps every
// world and player save file. The payload inside is a property archive
// (see package gvas); this package only deals with the header and zlib.
package sav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// SaveType identifies the compression scheme recorded in the header.
type SaveType byte

const (
	TypeOodle      SaveType = 0x30 // not supported
	TypeZlib       SaveType = 0x31 // single zlib pass
	TypeZlibDouble SaveType = 0x32 // zlib applied twice
)

func (t SaveType) String() string {
	switch t {
	case TypeOodle:
		return "oodle"
	case TypeZlib:
		return "zlib"
	case TypeZlibDouble:
		return "zlib-double"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

var (
	magicPlZ = [3]byte{'P', 'l', 'Z'}
	magicCNK = [3]byte{'C', 'N', 'K'}
)

const (
	headerSize      = 12
	chunkHeaderSize = 24
)

// Kind classifies a FormatError.
type Kind int

const (
	KindTruncated   Kind = iota // buffer shorter than a header
	KindCorrupted               // magic and both lengths are zero
	KindBadMagic                // magic is not PlZ
	KindUnsupported             // save type not handled
	KindLength                  // a recorded length does not match the data
	KindZlib                    // zlib stream error
)

func (k Kind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindCorrupted:
		return "corrupted"
	case KindBadMagic:
		return "bad-magic"
	case KindUnsupported:
		return "unsupported"
	case KindLength:
		return "length-mismatch"
	case KindZlib:
		return "zlib"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is against a FormatError of the matching kind.
var (
	ErrCorrupted = errors.New("sav: corrupted or empty save")
	ErrBadMagic  = errors.New("sav: not a compressed save")
)

// FormatError reports why a buffer could not be decoded. No partial payload
// accompanies a FormatError.
type FormatError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sav: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("sav: %s: %s", e.Kind, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *FormatError) Is(target error) bool {
	switch target {
	case ErrCorrupted:
		return e.Kind == KindCorrupted
	case ErrBadMagic:
		return e.Kind == KindBadMagic
	}
	return false
}

func formatErr(kind Kind, format string, args ...any) *FormatError {
	return &FormatError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Header is the decoded fixed-size prefix of a save file.
type Header struct {
	UncompressedLen uint32
	CompressedLen   uint32
	Magic           [3]byte
	Type            SaveType
	DataOffset      int
}

// ReadHeader parses the envelope header, following the chunk wrapper if present.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, formatErr(KindTruncated, "need %d header bytes, have %d", headerSize, len(data))
	}
	h := parseHeader(data[:headerSize])
	h.DataOffset = headerSize
	if h.Magic == magicCNK {
		if len(data) < chunkHeaderSize {
			return Header{}, formatErr(KindTruncated, "need %d chunk header bytes, have %d", chunkHeaderSize, len(data))
		}
		h = parseHeader(data[headerSize:chunkHeaderSize])
		h.DataOffset = chunkHeaderSize
	}
	if h.Magic != magicPlZ {
		if h.Magic == [3]byte{} && h.UncompressedLen == 0 && h.CompressedLen == 0 {
			return Header{}, formatErr(KindCorrupted, "header is all zero bytes")
		}
		return Header{}, formatErr(KindBadMagic, "found magic %q instead of %q", h.Magic[:], magicPlZ[:])
	}
	return h, nil
}

func parseHeader(b []byte) Header {
	var h Header
	h.UncompressedLen = binary.LittleEndian.Uint32(b[0:4])
	h.CompressedLen = binary.LittleEndian.Uint32(b[4:8])
	copy(h.Magic[:], b[8:11])
	h.Type = SaveType(b[11])
	return h
}

// Decode validates the header and returns the decompressed payload.
func Decode(data []byte) ([]byte, SaveType, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, 0, err
	}
	switch h.Type {
	case TypeZlib, TypeZlibDouble:
	case TypeOodle:
		return nil, 0, formatErr(KindUnsupported, "save type %s is not supported", h.Type)
	default:
		return nil, 0, formatErr(KindUnsupported, "unhandled save type %s", h.Type)
	}

	body := data[h.DataOffset:]
	if h.Type == TypeZlib && int(h.CompressedLen) != len(body) {
		return nil, 0, formatErr(KindLength, "compressed length %d, have %d bytes", h.CompressedLen, len(body))
	}

	out, err := inflate(body)
	if err != nil {
		return nil, 0, err
	}
	if h.Type == TypeZlibDouble {
		if int(h.CompressedLen) != len(out) {
			return nil, 0, formatErr(KindLength, "compressed length %d, first pass produced %d bytes", h.CompressedLen, len(out))
		}
		if out, err = inflate(out); err != nil {
			return nil, 0, err
		}
	}
	if int(h.UncompressedLen) != len(out) {
		return nil, 0, formatErr(KindLength, "uncompressed length %d, have %d bytes", h.UncompressedLen, len(out))
	}
	return out, h.Type, nil
}

// Encode compresses payload and prepends a header for the given save type.
func Encode(payload []byte, t SaveType) ([]byte, error) {
	if t != TypeZlib && t != TypeZlibDouble {
		return nil, formatErr(KindUnsupported, "cannot encode save type %s", t)
	}
	compressed, err := deflate(payload)
	if err != nil {
		return nil, err
	}
	compressedLen := len(compressed)
	if t == TypeZlibDouble {
		if compressed, err = deflate(compressed); err != nil {
			return nil, err
		}
	}

	out := make([]byte, headerSize, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(compressedLen))
	copy(out[8:11], magicPlZ[:])
	out[11] = byte(t)
	return append(out, compressed...), nil
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, &FormatError{Kind: KindZlib, Msg: "open stream", Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &FormatError{Kind: KindZlib, Msg: "inflate", Err: err}
	}
	return out, nil
}

func deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("sav: deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("sav: deflate: %w", err)
	}
	return buf.Bytes(), nil
}
