package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// LookupFunc resolves one environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with a custom variable source.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MapLookup adapts a map to a LookupFunc.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct populates tagged fields, recursing into nested structs. Every
// bad value is reported, not just the first.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()
	var errs []error

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, lookup); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, _ := lookup(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value, _ = lookup(alt)
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("required environment variable %s is not set", envName))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value, field.Tag.Get("split") == "exact"); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", envName, value, err))
		}
	}

	return errors.Join(errs...)
}

// setField sets a reflect.Value from its string form. String slices are
// comma-separated; exact keeps every item untrimmed.
func setField(field reflect.Value, value string, exact bool) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.CanInt():
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		items := splitList(value)
		if exact {
			items = ParseKeys(value)
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}

	return nil
}

// Validate checks that the configuration is usable.
// It returns one error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Combine
	if n := utf8.RuneCountInString(c.Combine.Delimiter); n != 1 {
		errs = append(errs, fmt.Sprintf("delimiter (%q) must be exactly one character", c.Combine.Delimiter))
	} else if r := c.Combine.DelimiterRune(); r == '"' || r == '\n' || r == '\r' || r == utf8.RuneError {
		errs = append(errs, fmt.Sprintf("delimiter (%q) cannot be a quote or line break", c.Combine.Delimiter))
	}
	if c.Combine.RemoveDuplicates && c.Combine.MergeDuplicates {
		errs = append(errs, "--remove-duplicates and --merge-duplicates cannot be used together")
	}
	seen := make(map[string]bool, len(c.Combine.Keys))
	for _, k := range c.Combine.Keys {
		if seen[k] {
			errs = append(errs, fmt.Sprintf("key column %q is listed more than once", k))
		}
		seen[k] = true
	}
	switch strings.ToLower(c.Combine.LineEnding) {
	case "native", "lf", "crlf":
	default:
		errs = append(errs, fmt.Sprintf("line ending (%q) must be one of: native, lf, crlf", c.Combine.LineEnding))
	}

	// History
	switch strings.ToLower(c.History.Driver) {
	case "none", "sqlite":
	case "postgres":
		if c.History.URL == "" {
			errs = append(errs, "HISTORY_DATABASE_URL is required when HISTORY_DRIVER is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("HISTORY_DRIVER (%q) must be one of: none, sqlite, postgres", c.History.Driver))
	}
	if c.History.MaxConns <= 0 {
		errs = append(errs, "HISTORY_MAX_CONNS must be positive")
	}
	if c.History.Timeout <= 0 {
		errs = append(errs, "HISTORY_TIMEOUT must be positive")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, "SERVER_MAX_UPLOAD_SIZE must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "SERVER_RATE_LIMIT must be non-negative")
	}
	if c.Server.MaxConcurrent <= 0 {
		errs = append(errs, "SERVER_MAX_CONCURRENT must be positive")
	}
	if c.Server.QueueWait <= 0 {
		errs = append(errs, "SERVER_QUEUE_WAIT must be positive")
	}

	// Watch
	if c.Watch.Debounce < 0 {
		errs = append(errs, "WATCH_DEBOUNCE must be non-negative")
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
