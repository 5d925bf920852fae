package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// PrettyHandler is a slog.Handler for terminal output. Each record is one line:
// a level glyph, the message, then key=value attributes.
//
//	→ patched binary out=build/agent-arm64-v8a.so size=41231
//	! no version-specific asset found platform=arm64-v8a
type PrettyHandler struct {
	opts    slog.HandlerOptions
	w       io.Writer
	mu      *sync.Mutex
	group   string
	attrs   []slog.Attr
	noColor bool
}

// NewPrettyHandler creates a new PrettyHandler.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{
		opts: *opts,
		w:    w,
		mu:   &sync.Mutex{},
	}
}

// WithoutColor returns a copy of h that writes no ANSI escapes.
func (h *PrettyHandler) WithoutColor() *PrettyHandler {
	c := *h
	c.noColor = true
	return &c
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes a log record.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)

	buf = h.color(buf, levelColor(r.Level)+colorBold)
	buf = append(buf, levelGlyph(r.Level)...)
	buf = h.color(buf, colorReset)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	if len(attrs) > 0 {
		buf = append(buf, ' ')
		buf = h.color(buf, colorCyan)
		for i, attr := range attrs {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendAttr(buf, attr, h.group)
		}
		buf = h.color(buf, colorReset)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns a new handler with additional attributes.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	c := *h
	c.attrs = newAttrs
	return &c
}

// WithGroup returns a new handler with a group name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if h.group != "" {
		c.group = h.group + "." + name
	} else {
		c.group = name
	}
	return &c
}

func (h *PrettyHandler) color(buf []byte, code string) []byte {
	if h.noColor {
		return buf
	}
	return append(buf, code...)
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

func levelGlyph(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "✗"
	case level >= slog.LevelWarn:
		return "!"
	case level >= slog.LevelInfo:
		return "→"
	default:
		return "·"
	}
}

func appendAttr(buf []byte, attr slog.Attr, group string) []byte {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}

	buf = append(buf, key...)
	buf = append(buf, '=')

	switch attr.Value.Kind() {
	case slog.KindString:
		s := attr.Value.String()
		if needsQuoting(s) {
			buf = fmt.Appendf(buf, "%q", s)
		} else {
			buf = append(buf, s...)
		}
	case slog.KindTime:
		buf = attr.Value.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		buf = append(buf, attr.Value.Duration().Round(time.Millisecond).String()...)
	case slog.KindGroup:
		buf = append(buf, '{')
		for i, a := range attr.Value.Group() {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendAttr(buf, a, "")
		}
		buf = append(buf, '}')
	default:
		buf = append(buf, fmt.Sprint(attr.Value.Any())...)
	}

	return buf
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, c := range s {
		if c == ' ' || c == '\t' || c == '\n' || c == '"' || c == '=' {
			return true
		}
	}
	return false
}
