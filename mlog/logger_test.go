package mlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	lg, err := NewLogger(&LogConfig{})
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, lg.Core().Enabled(zapcore.DebugLevel))

	lg, err = NewLogger(&LogConfig{Level: "debug", Production: true, File: filepath.Join(t.TempDir(), "log.txt")})
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zapcore.DebugLevel))
	lg.Info("written")
	require.NoError(t, lg.Sync())

	_, err = NewLogger(&LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLogger(t *testing.T) {
	old := L()
	t.Cleanup(func() { SetLogger(old) })

	SetLogger(nil)
	assert.Same(t, old, L())

	SetLogger(Nop())
	assert.Same(t, Nop(), L())
}
