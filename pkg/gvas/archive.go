package gvas

import "fmt"

const magicGVAS = 0x53415647 // "GVAS"

// CustomVersion is one entry of the header's custom version table.
type CustomVersion struct {
	ID      GUID
	Version int32
}

// Header is the archive preamble preceding the property list.
type Header struct {
	Magic                 int32
	SaveGameVersion       int32
	PackageFileVersionUE4 int32
	PackageFileVersionUE5 int32
	EngineMajor           uint16
	EngineMinor           uint16
	EnginePatch           uint16
	EngineChangelist      uint32
	EngineBranch          string
	CustomVersionFormat   int32
	CustomVersions        []CustomVersion
	SaveGameClass         string
}

func readHeader(r *Reader) Header {
	h := Header{
		Magic:                 r.I32(),
		SaveGameVersion:       r.I32(),
		PackageFileVersionUE4: r.I32(),
		PackageFileVersionUE5: r.I32(),
		EngineMajor:           r.U16(),
		EngineMinor:           r.U16(),
		EnginePatch:           r.U16(),
		EngineChangelist:      r.U32(),
		EngineBranch:          r.FString(),
		CustomVersionFormat:   r.I32(),
	}
	h.CustomVersions = TArray(r, func(r *Reader) CustomVersion {
		return CustomVersion{ID: r.GUID(), Version: r.I32()}
	})
	h.SaveGameClass = r.FString()
	return h
}

func writeHeader(w *Writer, h Header) {
	w.I32(h.Magic)
	w.I32(h.SaveGameVersion)
	w.I32(h.PackageFileVersionUE4)
	w.I32(h.PackageFileVersionUE5)
	w.U16(h.EngineMajor)
	w.U16(h.EngineMinor)
	w.U16(h.EnginePatch)
	w.U32(h.EngineChangelist)
	w.FString(h.EngineBranch)
	w.I32(h.CustomVersionFormat)
	WriteTArray(w, h.CustomVersions, func(w *Writer, cv CustomVersion) {
		w.GUID(cv.ID)
		w.I32(cv.Version)
	})
	w.FString(h.SaveGameClass)
}

// Archive is a decoded property archive.
type Archive struct {
	Header     Header
	Properties *PropertyMap
	// Trailer holds the bytes after the root "None", written back verbatim.
	Trailer []byte
}

// Decode parses data into an Archive. Any error aborts the whole decode and
// no partial archive is returned.
func Decode(data []byte, reg *Registry) (*Archive, error) {
	r := NewReader(data, reg)
	h := readHeader(r)
	if r.Err() == nil && h.Magic != magicGVAS {
		return nil, &FormatError{Pos: 0, Msg: fmt.Sprintf("bad archive magic 0x%08x", uint32(h.Magic))}
	}
	props := r.Properties("")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &Archive{Header: h, Properties: props, Trailer: r.Rest()}, nil
}

// Encode serializes the archive.
func (a *Archive) Encode(reg *Registry) ([]byte, error) {
	w := NewWriter(reg)
	writeHeader(w, a.Header)
	w.Properties(a.Properties, "")
	w.Write(a.Trailer)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// NewArchive returns an archive with a standard header for saveClass.
func NewArchive(saveClass string) *Archive {
	return &Archive{
		Header: Header{
			Magic:           magicGVAS,
			SaveGameVersion: 3,
			EngineMajor:     5,
			EngineMinor:     1,
			EngineBranch:    "++UE5+Release-5.1",
			SaveGameClass:   saveClass,
		},
		Properties: NewPropertyMap(),
		Trailer:    make([]byte, 4),
	}
}
