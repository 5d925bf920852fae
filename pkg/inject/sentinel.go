package inject

import (
	"bytes"
	"encoding/binary"
)

// Sentinel is the fixed-layout marker compiled into compatible binaries.
//
// Layout (little-endian, no padding):
//
//	0  TagA          int32
//	4  TagB          int32
//	8  Version       int32
//	12 PayloadSize   int32
//	16 PayloadOffset int32 (relative to the sentinel's own offset)
//	20 Compressed    uint8
type Sentinel struct {
	TagA          int32
	TagB          int32
	Version       int32
	PayloadSize   int32
	PayloadOffset int32
	Compressed    bool
}

// NewSentinel returns a sentinel carrying the standard tags and version.
func NewSentinel(size, offset int32, compressed bool) Sentinel {
	return Sentinel{
		TagA:          TagA,
		TagB:          TagB,
		Version:       SentinelVersion,
		PayloadSize:   size,
		PayloadOffset: offset,
		Compressed:    compressed,
	}
}

// Encode returns the SentinelSize-byte wire form of s.
func (s Sentinel) Encode() []byte {
	var buf [SentinelSize]byte
	encodeSentinel(buf[:], s)
	return buf[:]
}

func encodeSentinel(dst []byte, s Sentinel) bool {
	if len(dst) < SentinelSize {
		return false
	}
	le := binary.LittleEndian
	le.PutUint32(dst[0:4], uint32(s.TagA))
	le.PutUint32(dst[4:8], uint32(s.TagB))
	le.PutUint32(dst[8:12], uint32(s.Version))
	le.PutUint32(dst[12:16], uint32(s.PayloadSize))
	le.PutUint32(dst[16:20], uint32(s.PayloadOffset))
	dst[20] = 0
	if s.Compressed {
		dst[20] = 1
	}
	return true
}

// DecodeSentinel reads a sentinel from the first SentinelSize bytes of b.
func DecodeSentinel(b []byte) (Sentinel, bool) {
	if len(b) < SentinelSize {
		return Sentinel{}, false
	}
	le := binary.LittleEndian
	return Sentinel{
		TagA:          int32(le.Uint32(b[0:4])),
		TagB:          int32(le.Uint32(b[4:8])),
		Version:       int32(le.Uint32(b[8:12])),
		PayloadSize:   int32(le.Uint32(b[12:16])),
		PayloadOffset: int32(le.Uint32(b[16:20])),
		Compressed:    b[20] != 0,
	}, true
}

// Valid reports whether the tags match the fixed markers.
func (s Sentinel) Valid() bool {
	return s.TagA == TagA && s.TagB == TagB
}

var sentinelTags = func() []byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(TagA))
	binary.LittleEndian.PutUint32(b[4:8], uint32(TagB))
	return b[:]
}()

// FindSentinel returns the offset of the first tag pair that starts no later
// than len(data)-SentinelSize. The first match wins even if the tag bytes occur
// by accident elsewhere in the binary.
func FindSentinel(data []byte) (int, bool) {
	return findSentinel(data, 0, nil)
}

// FindSentinelVersion is FindSentinel restricted to sentinels whose version
// field equals version. Matches with any other version are skipped.
func FindSentinelVersion(data []byte, version int32) (int, bool) {
	return findSentinel(data, 0, &version)
}

func findSentinel(data []byte, from int, version *int32) (int, bool) {
	last := len(data) - SentinelSize
	for from <= last {
		idx := bytes.Index(data[from:], sentinelTags)
		if idx < 0 {
			return -1, false
		}
		off := from + idx
		if off > last {
			return -1, false
		}
		if version == nil {
			return off, true
		}
		if s, _ := DecodeSentinel(data[off:]); s.Version == *version {
			return off, true
		}
		from = off + 1
	}
	return -1, false
}
