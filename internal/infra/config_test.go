package infra

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Engine.KillGrace)
	assert.Equal(t, 6.0, cfg.Engine.ThresholdHour)
	assert.Equal(t, uint32(5), cfg.Engine.CBFailures)
	assert.Equal(t, 2, cfg.Notify.DailyLimit)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, time.Local, cfg.Engine.Location)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGINE_TIMEOUT", "30s")
	t.Setenv("ENGINE_THRESHOLD_HOURS", "4.5")
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "-----BEGIN PUBLIC KEY-----")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 4.5, cfg.Engine.ThresholdHour)
	assert.Equal(t, []byte("-----BEGIN PUBLIC KEY-----"), cfg.Auth.PublicKey)
}

func TestLoadConfigRejectsThresholdOutOfRange(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGINE_THRESHOLD_HOURS", "8")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigTimezone(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGINE_TIMEZONE", "Asia/Seoul")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.Engine.Location)
	assert.Equal(t, "Asia/Seoul", cfg.Engine.Location.String())

	t.Setenv("ENGINE_TIMEZONE", "Mars/Olympus")
	_, err = LoadConfig()
	assert.Error(t, err)
}
