package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// S3 source for ISO downloads
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`

	// Working directory for downloaded ISOs
	WorkDir string `mapstructure:"work-dir"`

	// Target volume settings
	VolumeLabel  string `mapstructure:"volume-label"`
	MinDriveSize int64  `mapstructure:"min-drive-size"`

	// Pipeline timing
	SettleDelay time.Duration `mapstructure:"settle-delay"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("sqlite-path", ".artifacts/usbforge.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("work-dir", "/tmp/usbforge")
	viper.SetDefault("volume-label", "WINUSB")
	viper.SetDefault("min-drive-size", int64(4_000_000_000))
	viper.SetDefault("settle-delay", 2*time.Second)
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (FORGE_SQLITE_PATH, etc.)
	viper.SetEnvPrefix("FORGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.usbforge")

	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if c.VolumeLabel == "" {
		return fmt.Errorf("volume-label cannot be empty")
	}
	// FAT32 volume labels top out at 11 characters.
	if len(c.VolumeLabel) > 11 {
		return fmt.Errorf("volume-label must be at most 11 characters")
	}
	if c.MinDriveSize <= 0 {
		return fmt.Errorf("min-drive-size must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle-delay must be non-negative")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
