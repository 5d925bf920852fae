package inject

import "fmt"

// Embedded is a payload located through the sentinel of a patched binary.
type Embedded struct {
	Offset   int
	Sentinel Sentinel
	Payload  []byte
}

// Extract finds the sentinel in data and returns the payload bytes it points at.
// The returned payload aliases data.
func Extract(data []byte) (*Embedded, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	off, ok := FindSentinel(data)
	if !ok {
		return nil, fmt.Errorf("%w: sentinel not found", ErrStructure)
	}
	s, _ := DecodeSentinel(data[off:])
	if s.PayloadSize == 0 && s.PayloadOffset == 0 {
		return nil, fmt.Errorf("%w: sentinel at offset %d carries no payload", ErrStructure, off)
	}
	if s.PayloadSize < 0 {
		return nil, fmt.Errorf("%w: negative payload size %d", ErrStructure, s.PayloadSize)
	}

	start := int64(off) + int64(s.PayloadOffset)
	end := start + int64(s.PayloadSize)
	if start < 0 || end > int64(len(data)) {
		return nil, fmt.Errorf("%w: payload [%d,%d) outside %d byte binary", ErrStructure, start, end, len(data))
	}
	return &Embedded{
		Offset:   off,
		Sentinel: s,
		Payload:  data[start:end],
	}, nil
}

// Record decodes the payload, decompressing it when the sentinel says so.
func (e *Embedded) Record() (Record, error) {
	return DecodePayload(e.Payload, e.Sentinel.Compressed)
}
