package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IMAPConfig holds connection settings that are not part of the
// credentials in the settings document.
type IMAPConfig struct {
	// Port is appended to the server when it carries no port of its own.
	Port string `mapstructure:"port" yaml:"port"`

	// TLS selects implicit TLS; false means STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	// TimeoutSec bounds the dial and every single folder query.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns TimeoutSec as a duration.
func (c IMAPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// FoldersConfig controls how folder reloads treat previous selections.
type FoldersConfig struct {
	PreserveSelection bool `mapstructure:"preserve_selection" yaml:"preserve_selection"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	SettingsPath string        `mapstructure:"settings_path" yaml:"settings_path"`
	Timezone     string        `mapstructure:"timezone" yaml:"timezone"`
	IMAP         IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Folders      FoldersConfig `mapstructure:"folders" yaml:"folders"`
	Log          LogConfig     `mapstructure:"log" yaml:"log"`
}

// Location resolves the configured time zone.
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailcheck/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailcheck", "config.yaml")
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		SettingsPath: DefaultSettingsFile,
		Timezone:     "Europe/Budapest",
		IMAP: IMAPConfig{
			Port:               "993",
			TLS:                true,
			InsecureSkipVerify: true,
			TimeoutSec:         300,
		},
		Log: LogConfig{
			File:  "mailcheck.log",
			Level: "info",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("settings_path", d.SettingsPath)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("imap.port", d.IMAP.Port)
	v.SetDefault("imap.tls", d.IMAP.TLS)
	v.SetDefault("imap.insecure_skip_verify", d.IMAP.InsecureSkipVerify)
	v.SetDefault("imap.timeout_sec", d.IMAP.TimeoutSec)
	v.SetDefault("folders.preserve_selection", d.Folders.PreserveSelection)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// MAILCHECK_* environment variables override file values. A missing file
// yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mailcheck")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.IMAP.TimeoutSec <= 0 {
		cfg.IMAP.TimeoutSec = 300
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("settings_path", cfg.SettingsPath)
	v.Set("timezone", cfg.Timezone)
	v.Set("imap", cfg.IMAP)
	v.Set("folders", cfg.Folders)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
