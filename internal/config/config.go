// Package config reads the ambient settings of a regfs process from
// REGFS_* environment variables. An empty environment reproduces the stock
// behaviour.
package config

import (
	"fmt"
	"strings"

	"regfs/internal/logging"
	"regfs/internal/provider"
	"regfs/internal/provision"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. REGFS_LOG_LEVEL.
const EnvPrefix = "REGFS"

// Config holds the process settings.
type Config struct {
	// LogLevel is one of ERROR, WARN, INFO, DEBUG, TRACE. Empty leaves the
	// level chosen by LOG_LEVEL and FUSE_DEBUG in place.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=ERROR WARN INFO DEBUG TRACE error warn info debug trace"`

	// FSName is the filesystem name shown in the host's mount table.
	FSName string `mapstructure:"fs_name" validate:"required,alphanum"`

	// AllowOther lets users other than the mounting user into the root.
	AllowOther bool `mapstructure:"allow_other"`

	// AllowNonEmptyMount permits mounting over a directory that has entries.
	AllowNonEmptyMount bool `mapstructure:"allow_nonempty_mount"`

	// LinkTargetFormat renders a drive letter into its link target.
	LinkTargetFormat string `mapstructure:"link_target_format" validate:"required,contains=%c"`

	// ProvisionPolicy is fail-fast or continue.
	ProvisionPolicy string `mapstructure:"provision_policy" validate:"required,oneof=fail-fast continue"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		FSName:           provider.DefaultConfig().FSName,
		LinkTargetFormat: provision.DefaultTargetFormat,
		ProvisionPolicy:  provision.FailFast.String(),
	}
}

// Load reads the environment on top of the defaults and validates the
// result.
func Load() (*Config, error) {
	v := viper.New()
	setupViper(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// setupViper registers defaults for every key so AutomaticEnv can see them
// during Unmarshal.
func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// log_level has no default; binding it makes REGFS_LOG_LEVEL visible
	// to Unmarshal only when set.
	_ = v.BindEnv("log_level")

	d := Default()
	v.SetDefault("fs_name", d.FSName)
	v.SetDefault("allow_other", d.AllowOther)
	v.SetDefault("allow_nonempty_mount", d.AllowNonEmptyMount)
	v.SetDefault("link_target_format", d.LinkTargetFormat)
	v.SetDefault("provision_policy", d.ProvisionPolicy)
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Level returns the configured log level, and false when REGFS_LOG_LEVEL
// was not set.
func (c *Config) Level() (logging.LogLevel, bool) {
	if c.LogLevel == "" {
		return logging.LevelInfo, false
	}
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo, false
	}
	return level, true
}

// Policy returns the parsed provisioning policy.
func (c *Config) Policy() provision.Policy {
	policy, err := provision.ParsePolicy(c.ProvisionPolicy)
	if err != nil {
		return provision.FailFast
	}
	return policy
}

// Provider returns the FUSE mount settings.
func (c *Config) Provider() provider.Config {
	return provider.Config{
		FSName:             c.FSName,
		AllowOther:         c.AllowOther,
		AllowNonEmptyMount: c.AllowNonEmptyMount,
	}
}
