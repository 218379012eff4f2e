// Package cli provides the ecsd command tree: configuration resolution
// via flags, environment, and an optional config file, and the serve
// subcommand hosting a replicated world's tick loop.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo-forge/ecsreplica/engineconfig"
	"github.com/evalgo-forge/ecsreplica/enginelog"
)

var cfgFile string

// RootCmd is the base command for the ecsd binary.
var RootCmd = &cobra.Command{
	Use:   "ecsd",
	Short: "Replicated ECS world host",
	Long: `ecsd hosts one peer of a replicated entity-component-system world:
it runs the tick loop, commits each tick's mutations into transactions,
exchanges them with other peers over the redis transaction bus, and keeps
a rollback window so late transactions reconcile by re-simulation.`,
}

// Execute runs the command tree; the binary's main calls this.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ecsd.yaml)")

	RootCmd.PersistentFlags().Uint16("domain-id", 0, "this peer's domain id (0..2045)")
	RootCmd.PersistentFlags().Int("tick-rate-hz", 0, "simulation ticks per second")
	RootCmd.PersistentFlags().Int("checkpoint-interval", 0, "ticks between full checkpoints")
	RootCmd.PersistentFlags().Int("history-max-ticks", 0, "rollback window length in ticks")
	RootCmd.PersistentFlags().Int("ghost-cleanup-window", 0, "ticks a prediction may await its authoritative spawn")
	RootCmd.PersistentFlags().String("snapshot-mode", "", "snapshot application mode (authoritative or versioned)")
	RootCmd.PersistentFlags().String("redis-url", "", "redis URL for the transaction bus (empty disables)")
	RootCmd.PersistentFlags().String("bolt-path", "", "bbolt file for durable checkpoints (empty disables)")
	RootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().String("log-format", "", "log format (text or json)")

	viper.BindPFlag("domain_id", RootCmd.PersistentFlags().Lookup("domain-id"))
	viper.BindPFlag("tick_rate_hz", RootCmd.PersistentFlags().Lookup("tick-rate-hz"))
	viper.BindPFlag("checkpoint_interval", RootCmd.PersistentFlags().Lookup("checkpoint-interval"))
	viper.BindPFlag("history_max_ticks", RootCmd.PersistentFlags().Lookup("history-max-ticks"))
	viper.BindPFlag("ghost_cleanup_window", RootCmd.PersistentFlags().Lookup("ghost-cleanup-window"))
	viper.BindPFlag("snapshot_mode", RootCmd.PersistentFlags().Lookup("snapshot-mode"))
	viper.BindPFlag("redis_url", RootCmd.PersistentFlags().Lookup("redis-url"))
	viper.BindPFlag("bolt_path", RootCmd.PersistentFlags().Lookup("bolt-path"))
	viper.BindPFlag("log_level", RootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", RootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".ecsd")
		}
	}
	viper.SetEnvPrefix("ECSD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		enginelog.Logger.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

// resolveConfig merges flag/env/file values on top of the defaults and
// validates the result.
func resolveConfig() (engineconfig.Config, error) {
	cfg := engineconfig.Default()

	if viper.IsSet("domain_id") {
		cfg.DomainID = uint16(viper.GetUint32("domain_id"))
	}
	if v := viper.GetInt("tick_rate_hz"); v != 0 {
		cfg.TickRateHz = v
	}
	if v := viper.GetInt("checkpoint_interval"); v != 0 {
		cfg.CheckpointInterval = v
	}
	if v := viper.GetInt("history_max_ticks"); v != 0 {
		cfg.HistoryMaxTicks = v
	}
	if v := viper.GetInt("ghost_cleanup_window"); v != 0 {
		cfg.GhostCleanupWindow = v
	}
	if v := viper.GetString("snapshot_mode"); v != "" {
		cfg.SnapshotMode = v
	}
	if v := viper.GetString("redis_url"); v != "" {
		cfg.RedisURL = v
	}
	if v := viper.GetString("bolt_path"); v != "" {
		cfg.BoltPath = v
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("log_format"); v != "" {
		cfg.LogFormat = v
	}

	if err := cfg.Validate(); err != nil {
		return engineconfig.Config{}, err
	}
	return cfg, nil
}
