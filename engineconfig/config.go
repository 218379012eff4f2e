// Package engineconfig loads and validates the engine's host-level
// configuration: the peer's domain id, tick cadence, history window, ghost
// cleanup window, and the optional redis transport and bolt checkpoint
// store addresses. Configuration resolves file < environment < flags via
// viper; EnvConfig offers a plain environment fallback for embedding the
// engine without the CLI.
package engineconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/evalgo-forge/ecsreplica/ecsentity"
)

// Config is the resolved engine configuration.
type Config struct {
	DomainID           uint16 `mapstructure:"domain_id"`
	TickRateHz         int    `mapstructure:"tick_rate_hz"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval"`
	HistoryMaxTicks    int    `mapstructure:"history_max_ticks"`
	GhostCleanupWindow int    `mapstructure:"ghost_cleanup_window"`
	SnapshotMode       string `mapstructure:"snapshot_mode"` // "authoritative" or "versioned"
	VersionedWrites    bool   `mapstructure:"versioned_writes"`
	RedisURL           string `mapstructure:"redis_url"` // empty disables the transaction bus
	BoltPath           string `mapstructure:"bolt_path"` // empty disables durable checkpoints
	LogLevel           string `mapstructure:"log_level"`
	LogFormat          string `mapstructure:"log_format"`
}

// Default returns the configuration a peer runs with when nothing else is
// specified.
func Default() Config {
	return Config{
		DomainID:           0,
		TickRateHz:         60,
		CheckpointInterval: 10,
		HistoryMaxTicks:    120,
		GhostCleanupWindow: 30,
		SnapshotMode:       "versioned",
		VersionedWrites:    true,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// envPrefix is the prefix every engine environment variable carries
// (ECSD_DOMAIN_ID, ECSD_REDIS_URL, ...).
const envPrefix = "ECSD"

// Load resolves the configuration from an optional config file plus the
// environment, via viper. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("domain_id", defaults.DomainID)
	v.SetDefault("tick_rate_hz", defaults.TickRateHz)
	v.SetDefault("checkpoint_interval", defaults.CheckpointInterval)
	v.SetDefault("history_max_ticks", defaults.HistoryMaxTicks)
	v.SetDefault("ghost_cleanup_window", defaults.GhostCleanupWindow)
	v.SetDefault("snapshot_mode", defaults.SnapshotMode)
	v.SetDefault("versioned_writes", defaults.VersionedWrites)
	v.SetDefault("redis_url", defaults.RedisURL)
	v.SetDefault("bolt_path", defaults.BoltPath)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if ecsentity.DomainID(c.DomainID) >= ecsentity.TransientDomain {
		return fmt.Errorf("domain_id %d is reserved: peer-owned domains are 0..%d", c.DomainID, uint16(ecsentity.TransientDomain)-1)
	}
	if c.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive, got %d", c.TickRateHz)
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint_interval must be positive, got %d", c.CheckpointInterval)
	}
	if c.HistoryMaxTicks < c.CheckpointInterval {
		return fmt.Errorf("history_max_ticks %d is shorter than checkpoint_interval %d", c.HistoryMaxTicks, c.CheckpointInterval)
	}
	if c.GhostCleanupWindow <= 0 {
		return fmt.Errorf("ghost_cleanup_window must be positive, got %d", c.GhostCleanupWindow)
	}
	switch c.SnapshotMode {
	case "authoritative", "versioned":
	default:
		return fmt.Errorf("snapshot_mode must be authoritative or versioned, got %q", c.SnapshotMode)
	}
	return nil
}

// EnvConfig reads configuration values straight from the environment with
// an optional prefix, for hosts embedding the engine without the CLI or a
// config file.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates an environment loader. An empty prefix reads bare
// variable names.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix == "" {
		return key
	}
	return ec.prefix + "_" + key
}

// GetString retrieves a string value with a default.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetInt retrieves an integer value with a default; unparseable values
// fall back to the default.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean value with a default.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// FromEnv builds a Config purely from environment variables with the
// standard ECSD prefix, without viper — the embedding path.
func FromEnv() (Config, error) {
	ec := NewEnvConfig(envPrefix)
	defaults := Default()
	cfg := Config{
		DomainID:           uint16(ec.GetInt("DOMAIN_ID", int(defaults.DomainID))),
		TickRateHz:         ec.GetInt("TICK_RATE_HZ", defaults.TickRateHz),
		CheckpointInterval: ec.GetInt("CHECKPOINT_INTERVAL", defaults.CheckpointInterval),
		HistoryMaxTicks:    ec.GetInt("HISTORY_MAX_TICKS", defaults.HistoryMaxTicks),
		GhostCleanupWindow: ec.GetInt("GHOST_CLEANUP_WINDOW", defaults.GhostCleanupWindow),
		SnapshotMode:       ec.GetString("SNAPSHOT_MODE", defaults.SnapshotMode),
		VersionedWrites:    ec.GetBool("VERSIONED_WRITES", defaults.VersionedWrites),
		RedisURL:           ec.GetString("REDIS_URL", defaults.RedisURL),
		BoltPath:           ec.GetString("BOLT_PATH", defaults.BoltPath),
		LogLevel:           ec.GetString("LOG_LEVEL", defaults.LogLevel),
		LogFormat:          ec.GetString("LOG_FORMAT", defaults.LogFormat),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
