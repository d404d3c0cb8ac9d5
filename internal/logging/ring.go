package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Ring is a zapcore.Core that remembers the latest formatted lines.
type Ring struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
	buf *lines
}

type lines struct {
	mu    sync.Mutex
	size  int
	items []string
}

func NewRing(size int, level zapcore.LevelEnabler) *Ring {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
	})
	return &Ring{LevelEnabler: level, enc: enc, buf: &lines{size: size}}
}

func (r *Ring) With(fields []zapcore.Field) zapcore.Core {
	enc := r.enc.Clone()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return &Ring{LevelEnabler: r.LevelEnabler, enc: enc, buf: r.buf}
}

func (r *Ring) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if r.Enabled(ent.Level) {
		return ce.AddCore(ent, r)
	}
	return ce
}

func (r *Ring) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	b, err := r.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	line := "[" + ent.Time.Format("15:04:05") + "] " + strings.TrimSuffix(b.String(), "\n")
	b.Free()
	r.buf.add(line)
	return nil
}

func (r *Ring) Sync() error { return nil }

// Lines returns up to n of the newest lines, oldest first. n <= 0 means all.
func (r *Ring) Lines(n int) []string {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	items := r.buf.items
	if n > 0 && n < len(items) {
		items = items[len(items)-n:]
	}
	out := make([]string, len(items))
	copy(out, items)
	return out
}

func (l *lines) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
	if len(l.items) > l.size {
		l.items = append(l.items[:0:0], l.items[len(l.items)-l.size:]...)
	}
}
