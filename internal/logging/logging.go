// Package logging builds the diagnostic logger. Diagnostics always go to a
// separate stream from the wire rows.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoding and colour of the diagnostic stream
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Color  bool
}

// New builds a logger writing to w
func New(w io.Writer, opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if opts.Color {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q (want console or json)", opts.Format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core), nil
}

// NewStderr builds the process logger. Colour is only used when stderr is a
// terminal.
func NewStderr(level, format string) (*zap.Logger, error) {
	fd := os.Stderr.Fd()
	color := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return New(os.Stderr, Options{Level: level, Format: format, Color: color})
}
