package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RepoConfig(t *testing.T) {
	cfg, err := Load("../../../configs/tuning.yaml")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.TickRateHz)
	assert.Equal(t, 3, cfg.SendDelayTicks)
	assert.Equal(t, []string{"soldier", "worker"}, cfg.UnitKinds())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("tick_rate_hz: 30\n"), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.TickRateHz)
	assert.Equal(t, Defaults().SendDelayTicks, cfg.SendDelayTicks)
	assert.Equal(t, Defaults().MaxFrameMs, cfg.MaxFrameMs)
}

func TestValidate_RejectsZeroSendDelay(t *testing.T) {
	cfg := Defaults()
	cfg.SendDelayTicks = 0
	cfg.TickRateHz = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send_delay_ticks")
	assert.Contains(t, err.Error(), "tick_rate_hz")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
