package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewRejectsBadFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "xml"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Outputs = []string{"file"}
	cfg.File = filepath.Join(dir, "nested", "quoter.log")
	cfg.ErrorFile = filepath.Join(dir, "quoter.err.log")
	l, err := New(cfg)
	require.NoError(t, err)
	l.Info("hello")
	l.Error("cancel failed")
	require.NoError(t, l.Close())

	all, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(all), `"msg":"hello"`)
	assert.Contains(t, string(all), `"app":"mmu-quoter"`)

	errs, err := os.ReadFile(cfg.ErrorFile)
	require.NoError(t, err)
	assert.NotContains(t, string(errs), "hello")
	assert.Contains(t, string(errs), "cancel failed")
}

func TestCloseReleasesFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Outputs = []string{"file"}
	cfg.File = filepath.Join(t.TempDir(), "quoter.log")
	l, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.Empty(t, l.files)
	assert.NoError(t, NewNop().Close())
}

func TestDomainHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core)

	l.LogDecision("HOLD(band)", map[string]interface{}{"mark": "65000.00"})
	l.LogOrder("rejected", "MMU-BID-L0-1", map[string]interface{}{"code": 400})
	l.LogReconcile("fill_or_missing_level", map[string]interface{}{"buy": 1})
	l.LogError(errors.New("boom"), nil)

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, "decision_event", entries[0].Message)
	assert.Equal(t, "HOLD(band)", entries[0].ContextMap()["event"])
	assert.Equal(t, "65000.00", entries[0].ContextMap()["mark"])

	assert.Equal(t, "MMU-BID-L0-1", entries[1].ContextMap()["client_order_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}
