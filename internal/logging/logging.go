// Package logging builds the zap logger shared by the daemon and keeps the
// rolling log the control API serves.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultRingSize = 1000

type Options struct {
	Level    string // debug, info, warn, error
	Format   string // console or json
	RingSize int
	Output   io.Writer
}

// New returns a logger writing to Output and, teed, to the returned Ring.
func New(opts Options) (*zap.Logger, *Ring, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultRingSize
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch opts.Format {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	atom := zap.NewAtomicLevelAt(level)
	out := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(opts.Output)), atom)
	ring := NewRing(opts.RingSize, atom)
	return zap.New(zapcore.NewTee(out, ring), zap.AddCaller()), ring, nil
}
