// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration shared by the CLI and the HTTP server.
type Config struct {
	OwnerID string // owner identifier used by the CLI (RAW_OWNER_ID)

	// Materialization service
	MaterializerURL         string        // base URL (default "http://localhost:5000")
	MaterializerToken       string        // shared secret for signed requests; empty sends unsigned requests
	MaterializeTimeout      time.Duration // readiness budget (default 90s)
	MaterializePollInterval time.Duration // poll interval (default 500ms)

	// Protocols
	DefaultProtocol string // protocol for paths without a prefix (default "dropbox")
	DropboxAPIURL   string // Dropbox API base URL

	// S3 fields are optional, nil when not configured.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string

	GCSKeyFile       string // service-account key file for the gs protocol
	AzureAccountName string
	AzureAccountKey  string

	HistoryDBPath string // path to the SQLite history file
	ListenAddr    string // HTTP listen address (default ":8080")
	LogLevel      string // log level: debug, info, warn, error (default "info")

	// Rate limiting, per owner
	RateLimitRPS   float64 // sustained requests per second (default 20)
	RateLimitBurst int     // burst capacity (default 40)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Query output
	ShortErrors  bool // print execution errors as one line instead of returning them (default true)
	DisplayLimit int  // maximum rows collected by query; 0 means unlimited (default 100)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasS3Config returns true if the s3 protocol credentials are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil
}

// HasGCSConfig returns true if the gs protocol is configured.
func (c *Config) HasGCSConfig() bool {
	return c.GCSKeyFile != ""
}

// HasAzureConfig returns true if the az protocol is configured.
func (c *Config) HasAzureConfig() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.MaterializeTimeout <= 0 {
		return fmt.Errorf("MATERIALIZE_TIMEOUT must be positive, got %s", c.MaterializeTimeout)
	}
	if c.MaterializePollInterval <= 0 {
		return fmt.Errorf("MATERIALIZE_POLL_INTERVAL must be positive, got %s", c.MaterializePollInterval)
	}
	if c.MaterializePollInterval > c.MaterializeTimeout {
		return fmt.Errorf("MATERIALIZE_POLL_INTERVAL (%s) exceeds MATERIALIZE_TIMEOUT (%s)",
			c.MaterializePollInterval, c.MaterializeTimeout)
	}
	if c.DefaultProtocol == "" || strings.Contains(c.DefaultProtocol, ":") {
		return fmt.Errorf("invalid DEFAULT_PROTOCOL %q", c.DefaultProtocol)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.DisplayLimit < 0 {
		return fmt.Errorf("DISPLAY_LIMIT must not be negative, got %d", c.DisplayLimit)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Optional protocols are only configured when their variables are present.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		OwnerID:           os.Getenv("RAW_OWNER_ID"),
		MaterializerURL:   os.Getenv("MATERIALIZER_URL"),
		MaterializerToken: os.Getenv("MATERIALIZER_TOKEN"),
		DefaultProtocol:   os.Getenv("DEFAULT_PROTOCOL"),
		DropboxAPIURL:     os.Getenv("DROPBOX_API_URL"),
		GCSKeyFile:        os.Getenv("GCS_KEY_FILE"),
		AzureAccountName:  os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:   os.Getenv("AZURE_ACCOUNT_KEY"),
		HistoryDBPath:     os.Getenv("HISTORY_DB_PATH"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		ShortErrors:       parseBoolEnvDefault("SHORT_ERRORS", true),
		DisplayLimit:      100,
	}

	var err error
	if cfg.MaterializeTimeout, err = parseDurationEnv("MATERIALIZE_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaterializePollInterval, err = parseDurationEnv("MATERIALIZE_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if v := os.Getenv("DISPLAY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse DISPLAY_LIMIT: %w", err)
		}
		cfg.DisplayLimit = n
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_RPS %q", v))
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_BURST %q", v))
		}
	}

	// S3 fields are optional, only set if present
	if v := os.Getenv("S3_KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("S3_SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.S3Region = &v
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.MaterializerURL == "" {
		cfg.MaterializerURL = "http://localhost:5000"
	}
	if cfg.MaterializerToken == "" {
		cfg.Warnings = append(cfg.Warnings, "MATERIALIZER_TOKEN not set, materialization requests are sent unsigned")
	}
	if cfg.DefaultProtocol == "" {
		cfg.DefaultProtocol = "dropbox"
	}
	if cfg.DropboxAPIURL == "" {
		cfg.DropboxAPIURL = "https://api.dropboxapi.com"
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "rawsql_history.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 40
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if (cfg.S3KeyID == nil) != (cfg.S3Secret == nil) {
		cfg.Warnings = append(cfg.Warnings, "S3_KEY_ID and S3_SECRET must both be set, s3 protocol disabled")
	}
	if (cfg.AzureAccountName == "") != (cfg.AzureAccountKey == "") {
		cfg.Warnings = append(cfg.Warnings, "AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY must both be set, az protocol disabled")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load applies the optional YAML file and .env file, then reads the environment.
// Variables already present in the environment always win.
func Load(configFile, dotEnvFile string) (*Config, error) {
	if configFile != "" {
		if err := LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	if dotEnvFile != "" {
		if err := LoadDotEnv(dotEnvFile); err != nil {
			return nil, err
		}
	}
	return LoadFromEnv()
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadFile reads a YAML file of environment variable names to values, e.g.
//
//	MATERIALIZER_URL: http://materializer:5000
//	CORS_ALLOWED_ORIGINS: [https://a.example, https://b.example]
//
// and sets any variables not already in the environment. Lists are joined
// with commas. A missing file is an error.
func LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := strings.ToUpper(strings.TrimSpace(key))
		if os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, yamlValueString(values[key])); err != nil {
			return fmt.Errorf("setenv %s: %w", name, err)
		}
	}
	return nil
}

func yamlValueString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []interface{}:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = yamlValueString(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
