// Package config provides configuration management for the NASCAR calendar pipeline.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. NASCAR_CALENDAR_OUTPUT_DIR
const EnvPrefix = "NASCAR_CALENDAR"

// DefaultConfigPath is used when no path is given
const DefaultConfigPath = "config/config.yaml"

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	setDefaults(v)
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return unmarshal(v)
}

// LoadWithDefaults loads configuration, tolerating a missing file.
// Defaults and environment variables fill whatever the file does not set.
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nascar-calendar")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "text")

	v.SetDefault("acquisition.mode", "browser")
	v.SetDefault("acquisition.year", 0)
	v.SetDefault("acquisition.series", []string{"cup", "xfinity", "truck"})
	v.SetDefault("acquisition.feed_url_template", "")
	v.SetDefault("acquisition.page_url_template", "")
	v.SetDefault("acquisition.timeout_seconds", 45)
	v.SetDefault("acquisition.max_retries", 3)
	v.SetDefault("acquisition.retry_initial_millis", 2000)
	v.SetDefault("acquisition.retry_max_millis", 30000)
	v.SetDefault("acquisition.concurrency", 1)
	v.SetDefault("acquisition.cache_ttl_seconds", 0)
	v.SetDefault("acquisition.fixtures_dir", "")
	v.SetDefault("acquisition.browser.exec_path", "")
	v.SetDefault("acquisition.browser.user_agent", "")
	v.SetDefault("acquisition.browser.headless", true)
	v.SetDefault("acquisition.browser.settle_seconds", 5)
	v.SetDefault("acquisition.http.rate_limit", 1.0)
	v.SetDefault("acquisition.http.max_retries", 2)

	v.SetDefault("reference.tracks_file", "")

	v.SetDefault("calendar.name", "NASCAR {year}")
	v.SetDefault("calendar.product_id", "-//nascar-calendar//NASCAR Schedule//EN")
	v.SetDefault("calendar.uid_domain", "nascar-calendar")
	v.SetDefault("calendar.event_duration_minutes", 240)
	v.SetDefault("calendar.removal_policy", "retain")

	v.SetDefault("output.backend", "file")
	v.SetDefault("output.layout", "combined")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.filename", "")
	v.SetDefault("output.s3.bucket", "")
	v.SetDefault("output.s3.prefix", "")
	v.SetDefault("output.s3.region", "")

	v.SetDefault("schedule.cron", "0 6 * * *")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.textfile_path", "")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}
