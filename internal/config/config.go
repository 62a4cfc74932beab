// Package config provides centralized configuration for csvcombine.
// Values come from environment variables (optionally seeded from a .env
// file by the caller) with defaults, and command-line flags are laid over
// the result before it is validated.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/csvcombine/internal/core"
	"github.com/JonMunkholm/csvcombine/internal/record"
)

// Config holds all application configuration.
type Config struct {
	Combine CombineConfig
	Logging LoggingConfig
	History HistoryConfig
	Server  ServerConfig
	Watch   WatchConfig
}

// CombineConfig holds the defaults for a combining run.
type CombineConfig struct {
	// Delimiter is the single-character field separator (default: ",")
	Delimiter string `env:"CSVCOMBINE_DELIMITER" default:","`

	// EmptyValue fills cells a row does not supply (default: empty)
	EmptyValue string `env:"CSVCOMBINE_EMPTY_VALUE"`

	// Keys is a comma-separated list of key columns (default: all columns of the first file).
	// Names must match header fields exactly, spaces included.
	Keys []string `env:"CSVCOMBINE_KEYS" split:"exact"`

	// RemoveDuplicates keeps the first row per key tuple
	RemoveDuplicates bool `env:"CSVCOMBINE_REMOVE_DUPLICATES" default:"false"`

	// MergeDuplicates folds rows per key tuple, filling placeholder cells
	MergeDuplicates bool `env:"CSVCOMBINE_MERGE_DUPLICATES" default:"false"`

	// LineEnding joins the lines of multiline fields: native, lf or crlf (default: native)
	LineEnding string `env:"CSVCOMBINE_LINE_ENDING" default:"native"`

	// StripBOM drops a leading UTF-8 byte-order mark from inputs (default: false)
	StripBOM bool `env:"CSVCOMBINE_STRIP_BOM" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: warn)
	Level string `env:"LOG_LEVEL" default:"warn"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// HistoryConfig selects where run history is stored.
type HistoryConfig struct {
	// Driver is none, sqlite or postgres (default: sqlite)
	Driver string `env:"HISTORY_DRIVER" default:"sqlite"`

	// SQLitePath is the database file; empty means the user cache directory
	SQLitePath string `env:"HISTORY_SQLITE_PATH"`

	// URL is the PostgreSQL connection string, used when Driver is postgres
	URL string `env:"HISTORY_DATABASE_URL" envAlt:"DATABASE_URL"`

	// MaxConns bounds the PostgreSQL pool (default: 4)
	MaxConns int `env:"HISTORY_MAX_CONNS" default:"4"`

	// Timeout bounds each history operation (default: 5s)
	Timeout time.Duration `env:"HISTORY_TIMEOUT" default:"5s"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout per request (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`

	// MaxUploadSize caps a combine request body in bytes (default: 64MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"67108864"`

	// RateLimit is combine requests per minute per client IP; 0 disables (default: 30)
	RateLimit int `env:"SERVER_RATE_LIMIT" default:"30"`

	// MaxConcurrent caps combines running at once (default: 4)
	MaxConcurrent int `env:"SERVER_MAX_CONCURRENT" default:"4"`

	// QueueWait is how long a combine waits for a free slot (default: 30s)
	QueueWait time.Duration `env:"SERVER_QUEUE_WAIT" default:"30s"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For is believed
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`

	// APIKeys, when set, are required in the X-API-Key header of /api requests
	APIKeys []string `env:"SERVER_API_KEYS"`
}

// WatchConfig holds --watch settings.
type WatchConfig struct {
	// Debounce collapses bursts of file events into one run (default: 300ms)
	Debounce time.Duration `env:"WATCH_DEBOUNCE" default:"300ms"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DelimiterRune returns the configured delimiter. Validate guarantees it is
// exactly one character.
func (c *CombineConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// Policy returns the duplicate policy selected by the two switches.
func (c *CombineConfig) Policy() (core.Policy, error) {
	return core.PolicyFromFlags(c.RemoveDuplicates, c.MergeDuplicates)
}

// LineEndingValue resolves the line ending name to its bytes.
func (c *CombineConfig) LineEndingValue() string {
	switch strings.ToLower(c.LineEnding) {
	case "lf":
		return "\n"
	case "crlf":
		return "\r\n"
	default:
		return record.NativeLineEnding
	}
}

// Options builds core options for the given sources from this section.
func (c *CombineConfig) Options(sources []core.Source) (core.Options, error) {
	policy, err := c.Policy()
	if err != nil {
		return core.Options{}, err
	}
	return core.Options{
		Sources:    sources,
		Keys:       c.Keys,
		Delimiter:  c.DelimiterRune(),
		EmptyValue: c.EmptyValue,
		LineEnding: c.LineEndingValue(),
		Policy:     policy,
		StripBOM:   c.StripBOM,
	}, nil
}

// ParseKeys splits a comma-separated key list. Names are kept exactly as
// given, spaces and empty names included; they must match header fields byte
// for byte. An empty string yields nil.
func ParseKeys(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// splitList splits a comma-separated setting such as a CIDR or API key list,
// trimming whitespace and dropping empty entries.
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	url := ""
	if c.History.URL != "" {
		url = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Combine: {Delimiter: %q, EmptyValue: %q, Keys: %q, Remove: %v, Merge: %v, LineEnding: %q, StripBOM: %v}, ",
		c.Combine.Delimiter, c.Combine.EmptyValue, c.Combine.Keys,
		c.Combine.RemoveDuplicates, c.Combine.MergeDuplicates, c.Combine.LineEnding, c.Combine.StripBOM)
	fmt.Fprintf(&b, "History: {Driver: %q, SQLitePath: %q, URL: %s}, ",
		c.History.Driver, c.History.SQLitePath, url)
	fmt.Fprintf(&b, "Server: {Addr: %q, MaxUploadSize: %d, RateLimit: %d}, ",
		c.Server.Addr(), c.Server.MaxUploadSize, c.Server.RateLimit)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
