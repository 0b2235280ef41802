// Package config provides configuration management for the NASCAR calendar pipeline.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/yourusername/nascar-calendar/internal/models"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("series", validateSeries)
	_ = v.RegisterValidation("removalpolicy", validateRemovalPolicy)
	_ = v.RegisterValidation("cron", validateCron)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.validator.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateSeries(fl validator.FieldLevel) bool {
	_, err := models.ParseSeries(fl.Field().String())
	return err == nil
}

func validateRemovalPolicy(fl validator.FieldLevel) bool {
	_, err := models.ParseRemovalPolicy(fl.Field().String())
	return err == nil && fl.Field().String() != ""
}

func validateCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if cfg.Output.Backend == "s3" && cfg.Output.S3.Bucket == "" {
		return fmt.Errorf("output.s3.bucket is required for the s3 backend")
	}

	if cfg.Acquisition.RetryMaxMillis > 0 && cfg.Acquisition.RetryInitialMillis > cfg.Acquisition.RetryMaxMillis {
		return fmt.Errorf("acquisition.retry_initial_millis cannot exceed retry_max_millis")
	}

	seen := make(map[models.Series]bool, len(cfg.Acquisition.Series))
	for _, s := range cfg.Acquisition.Series {
		series, _ := models.ParseSeries(s)
		if seen[series] {
			return fmt.Errorf("acquisition.series lists %s more than once", series)
		}
		seen[series] = true
	}

	if cfg.Output.Filename != "" && strings.ContainsAny(cfg.Output.Filename, `/\`) {
		return fmt.Errorf("output.filename must not contain a path separator")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.Namespace()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required", "required_if":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "series":
			errMsg += fmt.Sprintf("- Field '%s' has unknown series '%v' (want cup, xfinity, truck)\n", field, value)
		case "removalpolicy":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: retain, prune, cancel\n", field)
		case "cron":
			errMsg += fmt.Sprintf("- Field '%s' is not a valid cron expression: '%v'\n", field, value)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}
