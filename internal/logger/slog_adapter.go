package logger

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler that writes through l. Records handled
// with a run-scoped context are tagged with the short run ID. Attributes are
// appended as key=value, groups as dotted key prefixes. A nil l yields nil.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogBridge{log: l}
}

// NewStdLogger returns a *log.Logger (for http.Server.ErrorLog and similar)
// that writes through l at the given level.
func NewStdLogger(l *Logger, level slog.Level) *log.Logger {
	return slog.NewLogLogger(NewSlogHandler(l), level)
}

type slogBridge struct {
	log *Logger
	// group is the dotted prefix of the open groups, e.g. "http.req."
	group string
	// attrs holds the attributes of WithAttrs, already rendered
	attrs string
}

func (h *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return levelFromSlog(level) >= h.log.GetLevel()
}

func (h *slogBridge) Handle(ctx context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Message)
	if id := RunID(ctx); id != "" {
		writeSlogAttr(&b, "", slog.String("run", shortID(id)))
	}
	b.WriteString(h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		writeSlogAttr(&b, h.group, attr)
		return true
	})

	h.log.log(levelFromSlog(record.Level), "%s", strings.TrimSpace(b.String()))
	return nil
}

func (h *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, attr := range attrs {
		writeSlogAttr(&b, h.group, attr)
	}
	return &slogBridge{log: h.log, group: h.group, attrs: b.String()}
}

func (h *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogBridge{log: h.log, group: h.group + name + ".", attrs: h.attrs}
}

func levelFromSlog(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// writeSlogAttr appends " key=value". Group values are flattened.
func writeSlogAttr(b *strings.Builder, group string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		prefix := group
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, nested := range attr.Value.Group() {
			writeSlogAttr(b, prefix, nested)
		}
		return
	}

	key := attr.Key
	if key == "" {
		key = "attr"
	}
	fmt.Fprintf(b, " %s%s=%v", group, key, attr.Value)
}
