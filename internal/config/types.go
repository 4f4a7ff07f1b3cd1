package config

import "time"

// Config represents the complete reviewsheet configuration.
// It is loaded once at startup and never mutated afterwards.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Extract     ExtractConfig     `yaml:"extract"`
	Sink        SinkConfig        `yaml:"sink"`
	IPAllowlist IPAllowlistConfig `yaml:"ip_allowlist,omitempty"`

	// SourceFile is the absolute path the config was loaded from (empty for env mode).
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// Tracing selects the trace exporter: "" or "none" disables, "stdout" pretty prints spans.
	Tracing string `yaml:"tracing,omitempty"`
}

// WebhookConfig defines the inbound endpoint.
type WebhookConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`

	// Secret is the shared HMAC key GitHub signs deliveries with.
	Secret string `yaml:"secret"`

	SignatureHeader string `yaml:"signature_header"`
	EventHeader     string `yaml:"event_header"`
	DeliveryHeader  string `yaml:"delivery_header"`

	// MaxBodySize accepts plain bytes or a KB/MB/GB suffix (e.g. "1MB").
	MaxBodySize string `yaml:"max_body_size,omitempty"`

	// AcceptedEvents overrides the event allow-set. Defaults to pull_request_review.
	AcceptedEvents []string `yaml:"accepted_events,omitempty"`

	// TrustProxyHeaders takes the sender IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers; otherwise the
	// socket address is used.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers,omitempty"`
}

// ExtractConfig defines how the payload is flattened into a row.
type ExtractConfig struct {
	// Fields is the field spec, e.g. "review->submitted_at,pull_request->title+pull_request->user->login".
	Fields string `yaml:"fields"`
	// Separator joins the key paths of one cell. Defaults to "/".
	Separator string `yaml:"separator"`
}

// Sink kinds.
const (
	SinkSheets = "sheets"
	SinkSQLite = "sqlite"
)

// SinkConfig selects and configures the row sink.
type SinkConfig struct {
	Kind string `yaml:"kind"`

	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Range           string `yaml:"range"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	SQLitePath string `yaml:"sqlite_path,omitempty"`

	Timeout time.Duration `yaml:"timeout"`
}

// IPAllowlistConfig configures the optional sender IP check.
type IPAllowlistConfig struct {
	Enabled bool          `yaml:"enabled"`
	MetaURL string        `yaml:"meta_url"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "reviewsheet",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Webhook: WebhookConfig{
			Listen:          "0.0.0.0:8080",
			Path:            "/",
			SignatureHeader: "X-Hub-Signature-256",
			EventHeader:     "X-GitHub-Event",
			DeliveryHeader:  "X-GitHub-Delivery",
			MaxBodySize:     "1MB",
			AcceptedEvents:  []string{"pull_request_review"},
		},
		Extract: ExtractConfig{
			Separator: "/",
		},
		Sink: SinkConfig{
			Kind:       SinkSheets,
			SQLitePath: "./data/rows.db",
			Timeout:    30 * time.Second,
		},
		IPAllowlist: IPAllowlistConfig{
			Enabled: false,
			MetaURL: "https://api.github.com/meta",
			Key:     "hooks",
			Timeout: 10 * time.Second,
		},
	}
}
