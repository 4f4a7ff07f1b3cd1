package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/reviewsheet/internal/extract"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ChecksumsFile is the integrity manifest written by 'reviewsheet config lock'.
const ChecksumsFile = ".checksums"

// Load reads, interpolates, defaults and validates the configuration file at configPath.
// A directory is accepted and resolved to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourceFile = absPath

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath returns the absolute config file path for a file or directory argument.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// DiscoverConfigPath finds a config file by checking standard locations.
// Priority order: $REVIEWSHEET_CONFIG, ./config.yaml, ~/.config/reviewsheet/config.yaml.
// It returns "" with no error when nothing is found, which selects env mode.
func DiscoverConfigPath() string {
	if p := os.Getenv("REVIEWSHEET_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(homeDir, ".config", "reviewsheet", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// LoadFromEnv builds the configuration from the classic cloud-function
// environment variables, for deployments that ship no config file.
//
//	WEBHOOK_SECRET        shared signing secret (required)
//	SPREADSHEET_ID        target spreadsheet (required for sheets)
//	RANGE_                target range, e.g. "Reviews!A:D" (required for sheets)
//	EXTRACT               field spec (required)
//	CONCAT_CHAR           cell separator (default "/")
//	SERVICE_ACCOUNT_FILE  optional credentials file
//	TRUST_PROXY_HEADERS   take the sender IP from proxy headers (bool)
//	LISTEN, LOG_LEVEL     optional overrides
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Webhook: WebhookConfig{
			Listen: os.Getenv("LISTEN"),
			Secret: os.Getenv("WEBHOOK_SECRET"),
		},
		Extract: ExtractConfig{
			Fields:    os.Getenv("EXTRACT"),
			Separator: os.Getenv("CONCAT_CHAR"),
		},
		Sink: SinkConfig{
			Kind:            os.Getenv("SINK_KIND"),
			SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
			Range:           os.Getenv("RANGE_"),
			CredentialsFile: os.Getenv("SERVICE_ACCOUNT_FILE"),
			SQLitePath:      os.Getenv("SQLITE_PATH"),
		},
		Service: ServiceConfig{
			LogLevel: strings.ToLower(os.Getenv("LOG_LEVEL")),
		},
	}
	if v := os.Getenv("IP_ALLOWLIST"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("IP_ALLOWLIST: %w", err)
		}
		cfg.IPAllowlist.Enabled = enabled
	}
	if v := os.Getenv("TRUST_PROXY_HEADERS"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("TRUST_PROXY_HEADERS: %w", err)
		}
		cfg.Webhook.TrustProxyHeaders = trust
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// verifyConfigHash checks path against the .checksums manifest next to it.
// A missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: reviewsheet config lock --config %s", basename, dir, path)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: reviewsheet config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = defaults.Webhook.Path
	}
	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = defaults.Webhook.SignatureHeader
	}
	if cfg.Webhook.EventHeader == "" {
		cfg.Webhook.EventHeader = defaults.Webhook.EventHeader
	}
	if cfg.Webhook.DeliveryHeader == "" {
		cfg.Webhook.DeliveryHeader = defaults.Webhook.DeliveryHeader
	}
	if cfg.Webhook.MaxBodySize == "" {
		cfg.Webhook.MaxBodySize = defaults.Webhook.MaxBodySize
	}
	if len(cfg.Webhook.AcceptedEvents) == 0 {
		cfg.Webhook.AcceptedEvents = defaults.Webhook.AcceptedEvents
	}

	if cfg.Extract.Separator == "" {
		cfg.Extract.Separator = defaults.Extract.Separator
	}

	if cfg.Sink.Kind == "" {
		cfg.Sink.Kind = defaults.Sink.Kind
	}
	if cfg.Sink.SQLitePath == "" {
		cfg.Sink.SQLitePath = defaults.Sink.SQLitePath
	}
	if cfg.Sink.Timeout == 0 {
		cfg.Sink.Timeout = defaults.Sink.Timeout
	}

	if cfg.IPAllowlist.MetaURL == "" {
		cfg.IPAllowlist.MetaURL = defaults.IPAllowlist.MetaURL
	}
	if cfg.IPAllowlist.Key == "" {
		cfg.IPAllowlist.Key = defaults.IPAllowlist.Key
	}
	if cfg.IPAllowlist.Timeout == 0 {
		cfg.IPAllowlist.Timeout = defaults.IPAllowlist.Timeout
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validation reports it if the field is required.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	switch cfg.Service.Tracing {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("service.tracing must be none or stdout (got %q)", cfg.Service.Tracing)
	}

	if err := requireResolved("webhook.secret", cfg.Webhook.Secret); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with / (got %q)", cfg.Webhook.Path)
	}
	if _, err := ParseSize(cfg.Webhook.MaxBodySize); err != nil {
		return fmt.Errorf("webhook.max_body_size %q: %w", cfg.Webhook.MaxBodySize, err)
	}
	for i, ev := range cfg.Webhook.AcceptedEvents {
		if ev == "" {
			return fmt.Errorf("webhook.accepted_events[%d] is empty", i)
		}
	}

	if err := requireResolved("extract.fields", cfg.Extract.Fields); err != nil {
		return err
	}
	if _, err := extract.ParseSpec(cfg.Extract.Fields); err != nil {
		return fmt.Errorf("extract.fields: %w", err)
	}

	switch cfg.Sink.Kind {
	case SinkSheets:
		if err := requireResolved("sink.spreadsheet_id", cfg.Sink.SpreadsheetID); err != nil {
			return err
		}
		if err := requireResolved("sink.range", cfg.Sink.Range); err != nil {
			return err
		}
		if envVarPattern.MatchString(cfg.Sink.CredentialsFile) {
			return fmt.Errorf("sink.credentials_file: environment variable ${%s} is not set",
				envVarPattern.FindStringSubmatch(cfg.Sink.CredentialsFile)[1])
		}
	case SinkSQLite:
		if err := requireResolved("sink.sqlite_path", cfg.Sink.SQLitePath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("sink.kind must be %s or %s (got %q)", SinkSheets, SinkSQLite, cfg.Sink.Kind)
	}
	if cfg.Sink.Timeout < 0 {
		return fmt.Errorf("sink.timeout must be positive")
	}

	if cfg.IPAllowlist.Enabled {
		u, err := url.Parse(cfg.IPAllowlist.MetaURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ip_allowlist.meta_url must be an absolute URL (got %q)", cfg.IPAllowlist.MetaURL)
		}
		if cfg.IPAllowlist.Timeout < 0 {
			return fmt.Errorf("ip_allowlist.timeout must be positive")
		}
	}

	return nil
}

// requireResolved checks that a required value is set and has no ${VAR} left in it.
func requireResolved(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// ParseSize parses size strings like "1MB", "512KB", "2048576" to bytes.
func ParseSize(size string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
