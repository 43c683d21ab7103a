package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"rsi-sentry/pkg/types"
)

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New(types.LogConfig{Level: "not-a-level"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestInitWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	done, err := Init(types.LogConfig{Level: "debug", FilePath: dir, MaxSize: 1})
	require.NoError(t, err)

	zap.L().Debug("hello", zap.String("symbol", "BTCUSDT"))
	done()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "BTCUSDT")
}
