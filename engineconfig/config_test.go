package engineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"reserved transient domain", func(c *Config) { c.DomainID = 2046 }},
		{"reserved command domain", func(c *Config) { c.DomainID = 2047 }},
		{"zero tick rate", func(c *Config) { c.TickRateHz = 0 }},
		{"zero checkpoint interval", func(c *Config) { c.CheckpointInterval = 0 }},
		{"history shorter than checkpoint cadence", func(c *Config) { c.HistoryMaxTicks = 1; c.CheckpointInterval = 10 }},
		{"zero ghost window", func(c *Config) { c.GhostCleanupWindow = 0 }},
		{"unknown snapshot mode", func(c *Config) { c.SnapshotMode = "eventually" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"domain_id: 3\ntick_rate_hz: 30\nsnapshot_mode: authoritative\nredis_url: redis://localhost:6380/1\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), cfg.DomainID)
	assert.Equal(t, 30, cfg.TickRateHz)
	assert.Equal(t, "authoritative", cfg.SnapshotMode)
	assert.Equal(t, "redis://localhost:6380/1", cfg.RedisURL)
	assert.Equal(t, Default().CheckpointInterval, cfg.CheckpointInterval, "unset keys keep their defaults")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("ECSD_DOMAIN_ID", "7")
	t.Setenv("ECSD_TICK_RATE_HZ", "20")
	t.Setenv("ECSD_VERSIONED_WRITES", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, uint16(7), cfg.DomainID)
	assert.Equal(t, 20, cfg.TickRateHz)
	assert.False(t, cfg.VersionedWrites)
}

func TestEnvConfigDefaults(t *testing.T) {
	ec := NewEnvConfig("ECSTEST")
	assert.Equal(t, "fallback", ec.GetString("MISSING", "fallback"))
	assert.Equal(t, 9, ec.GetInt("MISSING", 9))
	assert.True(t, ec.GetBool("MISSING", true))

	t.Setenv("ECSTEST_PRESENT", "42")
	assert.Equal(t, 42, ec.GetInt("PRESENT", 0))
}
