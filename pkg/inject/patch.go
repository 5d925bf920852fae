package inject

import (
	"fmt"
	"math"
)

// location is the post-injection position of the sentinel and the payload section.
type location struct {
	sentinel int
	section  int64
}

// locate re-scans data for the sentinel and resolves the named section.
// The sentinel offset is never carried over from the pre-injection buffer.
func locate(data []byte, name string, find func([]byte) (int, bool)) (location, error) {
	off, ok := find(data)
	if !ok {
		return location{}, fmt.Errorf("%w: sentinel tags %#08x %#08x not found after injection (%d bytes)", ErrStructure, uint32(TagA), uint32(TagB), len(data))
	}
	secOff, err := sectionOffset(data, name)
	if err != nil {
		return location{}, fmt.Errorf("%w: resolve section %q: %v", ErrStructure, name, err)
	}
	return location{sentinel: off, section: secOff}, nil
}

// patchSentinel overwrites the SentinelSize bytes at loc.sentinel so the
// sentinel describes a payload of payloadLen bytes in the located section.
// Tags and version are preserved from the bytes already present.
func patchSentinel(data []byte, loc location, payloadLen int, compressed bool) (Sentinel, error) {
	cur, ok := DecodeSentinel(data[loc.sentinel:])
	if !ok || !cur.Valid() {
		return Sentinel{}, fmt.Errorf("%w: no sentinel at offset %d", ErrStructure, loc.sentinel)
	}

	rel := loc.section - int64(loc.sentinel)
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return Sentinel{}, fmt.Errorf("%w: payload offset %d (section %d - sentinel %d) overflows int32", ErrStructure, rel, loc.section, loc.sentinel)
	}
	if payloadLen > math.MaxInt32 {
		return Sentinel{}, fmt.Errorf("%w: payload of %d bytes overflows int32", ErrStructure, payloadLen)
	}

	next := cur
	next.PayloadSize = int32(payloadLen)
	next.PayloadOffset = int32(rel)
	next.Compressed = compressed

	if !encodeSentinel(data[loc.sentinel:loc.sentinel+SentinelSize], next) {
		return Sentinel{}, fmt.Errorf("%w: encode sentinel at offset %d", ErrStructure, loc.sentinel)
	}
	return next, nil
}
