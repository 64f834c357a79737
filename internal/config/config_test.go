package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAMLAndDefaults(t *testing.T) {
	data := []byte(`
server:
  port: 9090
database:
  dsn: "root:pw@tcp(127.0.0.1:3306)/squares"
game:
  free_box_limit: 3
withdrawal:
  daily_cap: "500.00"
`)
	cfg, err := Parse("squares.yaml", data)
	require.NoError(t, err)
	cfg.ApplyDefaults()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Game.FreeBoxLimit)
	assert.Equal(t, DefaultAssignWindowMinutes, cfg.Game.AssignWindowMinutes)
	assert.Equal(t, DefaultTxTimeoutMs, cfg.Game.TxTimeoutMs)
	assert.Equal(t, DefaultWithdrawalMin, cfg.Withdrawal.MinAmount)
	assert.Equal(t, "500.00", cfg.Withdrawal.DailyCap)
	assert.NoError(t, cfg.Validate())
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse("squares.json", []byte(`{"database":{"dsn":"x"},"auth":{"admin":{"enabled":true}}}`))
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Database.DSN)
	assert.Error(t, cfg.Validate(), "admin token required when admin auth enabled")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: dsn\n"), 0o600))

	t.Setenv("NACOS_SERVER_ADDR", "")
	t.Setenv("ETCD_ENDPOINTS", "")
	t.Setenv("CONFIG_FILE", path)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg, err := Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dsn", cfg.Database.DSN)
	assert.Equal(t, DefaultFreeBoxLimit, cfg.Game.FreeBoxLimit)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.toml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	_, err := loadFromFile(path)
	assert.Error(t, err)
}

func TestThresholdsAndFlags(t *testing.T) {
	prev := GetCurrent()
	defer SetCurrent(prev)

	SetCurrent(nil)
	assert.False(t, Flag(FlagClaimsPaused))
	assert.Equal(t, 30*time.Second, ThresholdSeconds(ThresholdGridCacheTTLSec, 30*time.Second))

	SetCurrent(&Config{
		FeatureFlags: map[string]bool{FlagClaimsPaused: true},
		Thresholds:   map[string]int64{ThresholdGridCacheTTLSec: 10, ThresholdWinnersCacheTTLSec: -1},
	})
	assert.True(t, Flag(FlagClaimsPaused))
	assert.False(t, Flag("missing"))
	assert.Equal(t, int64(10), Threshold(ThresholdGridCacheTTLSec, 30))
	assert.Equal(t, 10*time.Second, ThresholdSeconds(ThresholdGridCacheTTLSec, 30*time.Second))
	// 非正数回退默认值
	assert.Equal(t, 30*time.Second, ThresholdSeconds(ThresholdWinnersCacheTTLSec, 30*time.Second))
	assert.Equal(t, int64(30), Threshold("missing", 30))
}
