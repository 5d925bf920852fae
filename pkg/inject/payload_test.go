package inject

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMarshalCanonical(t *testing.T) {
	t.Parallel()

	t.Run("both fields", func(t *testing.T) {
		got, err := NewEmbedJS("main.js", "console.log(1)").Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"mode":1,"js_filepath":"main.js","js_content":"console.log(1)"}`, string(got))
	})

	t.Run("inline only", func(t *testing.T) {
		script := "console.log(1)"
		got, err := Record{Mode: ModeEmbedJS, JSContent: &script}.Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"mode":1,"js_filepath":null,"js_content":"console.log(1)"}`, string(got))
	})

	t.Run("no html escaping", func(t *testing.T) {
		got, err := NewEmbedJS("a.js", "if (a < b && c > d) {}").Marshal()
		require.NoError(t, err)
		assert.Contains(t, string(got), `"if (a < b && c > d) {}"`)
	})
}

func TestEncodePayloadUncompressed(t *testing.T) {
	t.Parallel()

	rec := NewEmbedJS("main.js", "send('hi')")
	raw, err := rec.Marshal()
	require.NoError(t, err)

	got, err := EncodePayload(rec, false)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	decoded, err := DecodePayload(got, false)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestEncodePayloadCompressed(t *testing.T) {
	t.Parallel()

	rec := NewEmbedJS("main.js", string(bytes.Repeat([]byte("Interceptor.attach(ptr(0x1234), {});\n"), 200)))
	raw, err := rec.Marshal()
	require.NoError(t, err)

	got, err := EncodePayload(rec, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}, got[:6], "xz stream magic")
	assert.Less(t, len(got), len(raw))

	plain, err := decompressXZ(got)
	require.NoError(t, err)
	assert.Equal(t, raw, plain)

	decoded, err := DecodePayload(got, true)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestDecodePayloadErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload([]byte("not xz"), true)
	assert.True(t, errors.Is(err, ErrCodec))

	_, err = DecodePayload([]byte("{broken"), false)
	assert.True(t, errors.Is(err, ErrCodec))
}
