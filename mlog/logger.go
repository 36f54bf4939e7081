package mlog

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	// Level, See also zapcore.ParseLevel.
	Level string `yaml:"level"`

	// File that logger will be writen into.
	// Default is stderr.
	File string `yaml:"file"`

	// Production enables json output.
	Production bool `yaml:"production"`
}

var (
	stderr = zapcore.Lock(os.Stderr)

	l   atomic.Pointer[zap.Logger]
	nop = zap.NewNop()
)

func init() {
	l.Store(newConsoleLogger(zap.NewAtomicLevelAt(zap.InfoLevel), stderr))
}

// NewLogger builds a logger from lc. An empty lc yields an info level
// console logger on stderr.
func NewLogger(lc *LogConfig) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if len(lc.Level) > 0 {
		var err error
		lvl, err = zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	out := stderr
	if len(lc.File) > 0 {
		f, _, err := zap.Open(lc.File)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	if lc.Production {
		return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), out, lvl)), nil
	}
	return newConsoleLogger(lvl, out), nil
}

func newConsoleLogger(lvl zap.AtomicLevel, out zapcore.WriteSyncer) *zap.Logger {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(ec), out, lvl))
}

// L returns the process-wide logger.
func L() *zap.Logger {
	return l.Load()
}

// S returns a sugared L.
func S() *zap.SugaredLogger {
	return l.Load().Sugar()
}

// SetLogger replaces the process-wide logger. A nil lg is ignored.
func SetLogger(lg *zap.Logger) {
	if lg != nil {
		l.Store(lg)
	}
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return nop
}
