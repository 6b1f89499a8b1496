package logging

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadLevelAndFormat(t *testing.T) {
	_, err := New("t", Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New("t", Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_FileSink(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sim.log")
	l, err := New("sim", Config{Level: "debug", Format: "json", File: p})
	require.NoError(t, err)
	l.Info("hello")
	_ = l.Sync()

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.Contains(t, string(b), `"logger":"sim"`)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}

func TestBindFlags(t *testing.T) {
	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	cfg := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-log_level", "warn", "-log_format", "json"}))
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Empty(t, cfg.File)
}
