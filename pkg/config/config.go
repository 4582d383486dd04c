package config

// Package config provides a reusable loader for ledger deployment
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"omnium/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for an omnium ledger
// deployment: content-store paths, the initial simulated-clock seed,
// default registry fee rates, and logging settings.
type Config struct {
	Ledger struct {
		SeedUnixMillis            int64   `mapstructure:"seed_unix_millis" json:"seed_unix_millis"`
		DefaultBoundaryFee        float64 `mapstructure:"default_boundary_fee" json:"default_boundary_fee"`
		DefaultConversionDiscount float64 `mapstructure:"default_conversion_discount" json:"default_conversion_discount"`
	} `mapstructure:"ledger" json:"ledger"`

	Storage struct {
		BlocksDir       string `mapstructure:"blocks_dir" json:"blocks_dir"`
		DataDir         string `mapstructure:"data_dir" json:"data_dir"`
		RetentionHeight uint64 `mapstructure:"retention_height" json:"retention_height"`
	} `mapstructure:"storage" json:"storage"`

	Snapshot struct {
		TickCadenceDays float64 `mapstructure:"tick_cadence_days" json:"tick_cadence_days"`
		AutoSave        bool    `mapstructure:"auto_save" json:"auto_save"`
	} `mapstructure:"snapshot" json:"snapshot"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up matching process environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}

	// Two deployment knobs are deliberately re-read from the environment
	// after the file-based unmarshal, rather than left to viper's own
	// AutomaticEnv binding, since they need fallback-on-parse-error
	// semantics: a malformed override must not wipe out the file-configured
	// value.
	cadenceDefault := int(AppConfig.Snapshot.TickCadenceDays)
	AppConfig.Snapshot.TickCadenceDays = float64(utils.EnvOrDefaultInt("OMNIUM_TICK_CADENCE_DAYS", cadenceDefault))
	AppConfig.Storage.RetentionHeight = utils.EnvOrDefaultUint64("OMNIUM_RETENTION_HEIGHT", AppConfig.Storage.RetentionHeight)

	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the OMNIUM_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("OMNIUM_ENV", ""))
}

// ToLedgerConfig adapts the loaded deployment configuration into the core
// ledger's Config shape.
func (c *Config) ToLedgerConfig() (blocksDir, dataDir string, seedUnixMillis int64, defaultBoundaryFee, defaultConversionDiscount float64) {
	return c.Storage.BlocksDir, c.Storage.DataDir, c.Ledger.SeedUnixMillis, c.Ledger.DefaultBoundaryFee, c.Ledger.DefaultConversionDiscount
}

// ArchiveSettings returns the retention height and tick cadence a deployment
// should drive Ledger.Archive and Ledger.Tick with.
func (c *Config) ArchiveSettings() (retentionHeight uint64, tickCadenceDays float64) {
	return c.Storage.RetentionHeight, c.Snapshot.TickCadenceDays
}
