package inject

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelEncodingLittleEndian(t *testing.T) {
	t.Parallel()

	s := NewSentinel(0x11223344, -8, true)
	raw := s.Encode()
	require.Len(t, raw, SentinelSize)

	assert.Equal(t, []byte{0x21, 0x07, 0x00, 0x0d}, raw[0:4])
	assert.Equal(t, []byte{0x2b, 0x4e, 0x8a, 0x1f}, raw[4:8])
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, raw[8:12])
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, raw[12:16])
	assert.Equal(t, []byte{0xf8, 0xff, 0xff, 0xff}, raw[16:20])
	assert.Equal(t, byte(1), raw[20])

	decoded, ok := DecodeSentinel(raw)
	require.True(t, ok)
	assert.Equal(t, s, decoded)
	assert.True(t, decoded.Valid())
}

func TestDecodeSentinelShortBuffer(t *testing.T) {
	t.Parallel()

	_, ok := DecodeSentinel(make([]byte, SentinelSize-1))
	assert.False(t, ok)
	assert.False(t, encodeSentinel(make([]byte, SentinelSize-1), Sentinel{}))
}

func TestFindSentinel(t *testing.T) {
	t.Parallel()

	blank := NewSentinel(0, 0, false).Encode()
	tags := blank[:8]

	tests := []struct {
		name   string
		data   []byte
		offset int
		found  bool
	}{
		{name: "empty", data: nil, found: false},
		{name: "shorter than sentinel", data: tags, found: false},
		{name: "exact size", data: blank, offset: 0, found: true},
		{
			name:   "last valid offset",
			data:   append(bytes.Repeat([]byte{0xEE}, 10), blank...),
			offset: 10,
			found:  true,
		},
		{
			name:  "tags too close to the end",
			data:  append(bytes.Repeat([]byte{0xEE}, 20), tags...),
			found: false,
		},
		{
			name:   "first match wins",
			data:   append(append(append([]byte{1, 2, 3}, blank...), 0, 0), blank...),
			offset: 3,
			found:  true,
		},
		{
			name:  "only one tag",
			data:  append(append([]byte{}, tags[:4]...), bytes.Repeat([]byte{0}, 30)...),
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, ok := FindSentinel(tt.data)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.offset, off)
			} else {
				assert.Equal(t, -1, off)
			}
		})
	}
}

func TestFindSentinelVersionSkipsDecoys(t *testing.T) {
	t.Parallel()

	decoy := NewSentinel(0, 0, false)
	decoy.Version = 7
	genuine := NewSentinel(0, 0, false)

	data := append(append(append([]byte{}, decoy.Encode()...), 0xFF, 0xFF, 0xFF), genuine.Encode()...)

	off, ok := FindSentinel(data)
	require.True(t, ok)
	assert.Equal(t, 0, off)

	off, ok = FindSentinelVersion(data, SentinelVersion)
	require.True(t, ok)
	assert.Equal(t, SentinelSize+3, off)

	_, ok = FindSentinelVersion(data, 2)
	assert.False(t, ok)
}
