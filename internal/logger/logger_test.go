package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, `"key":"value"`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	assert.Zero(t, buf.Len())

	log.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Text(&buf, slog.LevelInfo).Info("cached", "platform", "arm64-v8a")
	assert.Contains(t, buf.String(), "msg=cached")
	assert.Contains(t, buf.String(), "platform=arm64-v8a")
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped")
	log.With("k", "v").Info("dropped")
}

func TestForFormat(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "pretty", "json", "text", "JSON"} {
		var buf bytes.Buffer
		log, err := ForFormat(format, &buf, slog.LevelInfo)
		require.NoError(t, err, format)
		log.Info("probe")
		assert.Contains(t, buf.String(), "probe", format)
	}

	_, err := ForFormat("xml", &bytes.Buffer{}, slog.LevelInfo)
	assert.ErrorContains(t, err, `unknown log format "xml"`)
}

func TestPrettyGlyphs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}).WithoutColor())

	log.Debug("d")
	log.Info("i", "key", "value")
	log.Warn("w")
	log.Error("e")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"· d", "→ i key=value", "! w", "✗ e"}, lines)
}

func TestPrettyColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Pretty(&buf, slog.LevelInfo).Error("boom")
	assert.True(t, strings.HasPrefix(buf.String(), colorRed+colorBold+"✗"+colorReset), buf.String())
}

func TestPrettyDebugFiltered(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Pretty(&buf, slog.LevelInfo).Debug("hidden")
	assert.Zero(t, buf.Len())
}

func TestWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.With("component", "builder").Info("child message")

	assert.Contains(t, buf.String(), `"component":"builder"`)
	assert.Contains(t, buf.String(), "child message")
}

func TestWithGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.WithGroup("target").Info("grouped", "name", "agent")
	assert.Contains(t, buf.String(), `"target":{"name":"agent"}`)
}

func TestFromContextDefault(t *testing.T) {
	t.Parallel()
	require.NotNil(t, FromContext(context.Background()))
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip test")
	assert.Contains(t, buf.String(), "roundtrip test")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelInfo},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, ParseLevel(tc.input), "ParseLevel(%q)", tc.input)
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestPrettyHandlerGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).WithoutColor()

	slog.New(h.WithAttrs([]slog.Attr{slog.String("run", "r1")}).WithGroup("a").WithGroup("b")).
		Info("nested", "key", "val")
	assert.Equal(t, "→ nested run=r1 a.b.key=val\n", buf.String())

	assert.Same(t, h, h.WithGroup(""))
}

func TestPrettyAttrFormatting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil).WithoutColor())

	log.Info("m",
		"spaced", "hello world",
		"simple", "plain",
		"took", 1500*time.Millisecond,
		slog.Group("asset", "name", "x.so", "size", 3),
	)
	assert.Equal(t, `→ m spaced="hello world" simple=plain took=1.5s asset={name=x.so size=3}`+"\n", buf.String())
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bool
	}{
		{"simple", false},
		{"has space", true},
		{"has\ttab", true},
		{"has\nnewline", true},
		{`has"quote`, true},
		{"k=v", true},
		{"", true},
		{"no-special-chars", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, needsQuoting(tc.input), "needsQuoting(%q)", tc.input)
	}
}
