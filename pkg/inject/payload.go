package inject

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/ulikunitz/xz"
)

// Mode selects how the runtime consumes the payload.
type Mode int32

const (
	// ModeEmbedJS runs the embedded script content.
	ModeEmbedJS Mode = 1
)

// xzDictCap matches the dictionary size of the xz "-6" preset.
const xzDictCap = 8 << 20

// Record is the logical payload stored in the injected section.
// Field order is part of the wire form; nil pointers encode as null.
type Record struct {
	Mode       Mode    `json:"mode"`
	JSFilepath *string `json:"js_filepath"`
	JSContent  *string `json:"js_content"`
}

// NewEmbedJS returns a ModeEmbedJS record referencing path and carrying content.
func NewEmbedJS(path, content string) Record {
	return Record{
		Mode:       ModeEmbedJS,
		JSFilepath: &path,
		JSContent:  &content,
	}
}

// Marshal returns the canonical JSON form of r.
func (r Record) Marshal() ([]byte, error) {
	b, err := json.MarshalNoEscape(r)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal record: %v", ErrCodec, err)
	}
	return b, nil
}

// EncodePayload serializes r and, when compress is set, runs the result
// through a single xz stream. There is no fallback to uncompressed bytes.
func EncodePayload(r Record, compress bool) ([]byte, error) {
	raw, err := r.Marshal()
	if err != nil {
		return nil, err
	}
	if !compress {
		return raw, nil
	}
	return compressXZ(raw)
}

// DecodePayload reverses EncodePayload.
func DecodePayload(b []byte, compressed bool) (Record, error) {
	raw := b
	if compressed {
		var err error
		if raw, err = decompressXZ(b); err != nil {
			return Record{}, err
		}
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("%w: unmarshal record: %v", ErrCodec, err)
	}
	return r, nil
}

func compressXZ(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := xz.WriterConfig{
		DictCap:  xzDictCap,
		CheckSum: xz.CRC64,
	}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("%w: xz writer: %v", ErrCodec, err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("%w: xz write: %v", ErrCodec, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: xz close: %v", ErrCodec, err)
	}
	return buf.Bytes(), nil
}

func decompressXZ(b []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: xz reader: %v", ErrCodec, err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: xz read: %v", ErrCodec, err)
	}
	return raw, nil
}
