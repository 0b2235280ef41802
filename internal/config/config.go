// Package config provides configuration management for the NASCAR calendar pipeline.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app" validate:"required"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition" validate:"required"`
	Reference   ReferenceConfig   `mapstructure:"reference"`
	Calendar    CalendarConfig    `mapstructure:"calendar" validate:"required"`
	Output      OutputConfig      `mapstructure:"output" validate:"required"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
	LogFormat   string `mapstructure:"log_format" validate:"omitempty,oneof=text json"`
}

// AcquisitionConfig controls how schedule feeds are fetched
type AcquisitionConfig struct {
	Mode               string        `mapstructure:"mode" validate:"required,oneof=browser http file"`
	Year               int           `mapstructure:"year" validate:"omitempty,gte=1949,lte=2100"`
	Series             []string      `mapstructure:"series" validate:"required,min=1,dive,series"`
	FeedURLTemplate    string        `mapstructure:"feed_url_template"`
	PageURLTemplate    string        `mapstructure:"page_url_template"`
	TimeoutSeconds     int           `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryInitialMillis int           `mapstructure:"retry_initial_millis" validate:"gte=0"`
	RetryMaxMillis     int           `mapstructure:"retry_max_millis" validate:"gte=0"`
	Concurrency        int           `mapstructure:"concurrency" validate:"required,gt=0,lte=3"`
	CacheTTLSeconds    int           `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
	FixturesDir        string        `mapstructure:"fixtures_dir" validate:"required_if=Mode file"`
	Browser            BrowserConfig `mapstructure:"browser"`
	HTTP               HTTPConfig    `mapstructure:"http"`
}

// BrowserConfig configures the headless browser fetcher
type BrowserConfig struct {
	ExecPath      string `mapstructure:"exec_path"`
	UserAgent     string `mapstructure:"user_agent"`
	Headless      bool   `mapstructure:"headless"`
	SettleSeconds int    `mapstructure:"settle_seconds" validate:"gte=0"`
}

// HTTPConfig configures the direct HTTP fetcher
type HTTPConfig struct {
	RateLimit  float64 `mapstructure:"rate_limit" validate:"gte=0"`
	MaxRetries int     `mapstructure:"max_retries" validate:"gte=0"`
}

// ReferenceConfig points at an optional track table replacing the built-in one
type ReferenceConfig struct {
	TracksFile string `mapstructure:"tracks_file"`
}

// CalendarConfig controls calendar synthesis
type CalendarConfig struct {
	Name                 string `mapstructure:"name" validate:"required"`
	ProductID            string `mapstructure:"product_id" validate:"required"`
	UIDDomain            string `mapstructure:"uid_domain" validate:"required,hostname_rfc1123"`
	EventDurationMinutes int    `mapstructure:"event_duration_minutes" validate:"required,gt=0,lte=1440"`
	RemovalPolicy        string `mapstructure:"removal_policy" validate:"required,removalpolicy"`
}

// OutputConfig controls where calendar documents are published
type OutputConfig struct {
	Backend  string   `mapstructure:"backend" validate:"required,oneof=file s3"`
	Layout   string   `mapstructure:"layout" validate:"required,oneof=combined per_series"`
	Dir      string   `mapstructure:"dir" validate:"required_if=Backend file"`
	Filename string   `mapstructure:"filename"`
	S3       S3Config `mapstructure:"s3"`
}

// S3Config represents the S3 output backend
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

// ScheduleConfig represents daemon-mode scheduling
type ScheduleConfig struct {
	Cron string `mapstructure:"cron" validate:"omitempty,cron"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Port         int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Path         string `mapstructure:"path"`
	TextfilePath string `mapstructure:"textfile_path"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// TargetYear returns the configured season, or the current UTC year when unset
func (c *Config) TargetYear(now time.Time) int {
	if c.Acquisition.Year > 0 {
		return c.Acquisition.Year
	}
	return now.UTC().Year()
}

// AttemptTimeout returns the per-attempt fetch timeout
func (a AcquisitionConfig) AttemptTimeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// CacheTTL returns the feed cache lifetime; zero disables caching
func (a AcquisitionConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

// EventDuration returns the nominal length of a race event
func (c CalendarConfig) EventDuration() time.Duration {
	return time.Duration(c.EventDurationMinutes) * time.Minute
}

// DocumentName returns the combined document name, or the per-series name for slug
func (o OutputConfig) DocumentName(year int, slug string) string {
	if o.Layout == "per_series" && slug != "" {
		return "nascar_" + strconv.Itoa(year) + "_" + strings.ToLower(slug) + ".ics"
	}
	if o.Filename != "" {
		return strings.ReplaceAll(o.Filename, "{year}", strconv.Itoa(year))
	}
	return "nascar_" + strconv.Itoa(year) + ".ics"
}
