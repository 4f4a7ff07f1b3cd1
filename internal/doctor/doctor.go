// Package doctor reports configuration problems that load-time validation
// lets through: files that do not exist, settings that will never match a
// delivery, and unresolved environment references.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/reviewsheet/internal/config"
	"github.com/mattjoyce/reviewsheet/internal/extract"
	"github.com/mattjoyce/reviewsheet/internal/webhook"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateWebhook(r)
	d.validateExtract(r)
	d.validateSink(r)
	d.warnIPAllowlist(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// minSecretLength is the shortest secret that does not draw a warning.
const minSecretLength = 16

// validateWebhook checks the listen address, secret strength and event set.
func (d *Doctor) validateWebhook(r *Result) {
	wc := d.cfg.Webhook

	if _, _, err := net.SplitHostPort(wc.Listen); err != nil {
		d.addError(r, "webhook", "webhook.listen",
			fmt.Sprintf("listen address %q is invalid: %v", wc.Listen, err))
	}

	if n := len(wc.Secret); n > 0 && n < minSecretLength {
		d.addWarning(r, "webhook", "webhook.secret",
			fmt.Sprintf("secret is only %d characters; use at least %d", n, minSecretLength))
	}

	gate := webhook.NewEventGate(wc.AcceptedEvents...)
	if !gate.Accept(webhook.PullRequestReviewEvent) {
		d.addWarning(r, "webhook", "webhook.accepted_events",
			fmt.Sprintf("accepted_events %v does not include %q; no delivery will carry a review state",
				gate.Events(), webhook.PullRequestReviewEvent))
	}
}

// reviewEventKeys are the top-level keys of a pull_request_review payload.
var reviewEventKeys = map[string]bool{
	"action":       true,
	"review":       true,
	"pull_request": true,
	"repository":   true,
	"sender":       true,
	"installation": true,
	"organization": true,
	"enterprise":   true,
}

// validateExtract warns about paths that cannot appear in a review payload.
func (d *Doctor) validateExtract(r *Result) {
	spec, err := extract.ParseSpec(d.cfg.Extract.Fields)
	if err != nil {
		d.addError(r, "extract", "extract.fields", err.Error())
		return
	}

	for i, cell := range spec.Cells {
		for _, path := range cell.Paths {
			if !reviewEventKeys[path[0]] {
				d.addWarning(r, "extract", fmt.Sprintf("extract.fields[%d]", i),
					fmt.Sprintf("path %q starts at %q, which is not a pull_request_review key", path, path[0]))
			}
			for _, key := range path {
				if key != strings.TrimSpace(key) {
					d.addWarning(r, "extract", fmt.Sprintf("extract.fields[%d]", i),
						fmt.Sprintf("key %q in path %q has surrounding whitespace and is matched verbatim", key, path))
				}
			}
		}
	}
}

// validateSink checks that the selected backend can start.
func (d *Doctor) validateSink(r *Result) {
	sc := d.cfg.Sink

	switch sc.Kind {
	case config.SinkSheets:
		if sc.CredentialsFile == "" {
			d.addWarning(r, "sink", "sink.credentials_file",
				"no credentials_file; Application Default Credentials will be used")
			return
		}
		if _, err := os.Stat(sc.CredentialsFile); err != nil {
			d.addError(r, "sink", "sink.credentials_file",
				fmt.Sprintf("credentials file %q is not readable: %v", sc.CredentialsFile, err))
		}
	case config.SinkSQLite:
		dir := filepath.Dir(sc.SQLitePath)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			d.addWarning(r, "sink", "sink.sqlite_path",
				fmt.Sprintf("directory %q does not exist and will be created on start", dir))
		}
	}
}

// warnIPAllowlist flags the per-delivery meta fetch.
func (d *Doctor) warnIPAllowlist(r *Result) {
	if !d.cfg.IPAllowlist.Enabled {
		return
	}
	d.addWarning(r, "ip_allowlist", "ip_allowlist.enabled",
		fmt.Sprintf("every delivery fetches %s; unauthenticated requests are rate limited by GitHub", d.cfg.IPAllowlist.MetaURL))
	if d.cfg.Webhook.TrustProxyHeaders {
		d.addWarning(r, "ip_allowlist", "webhook.trust_proxy_headers",
			"sender IP is read from X-Forwarded-For/X-Real-IP; only safe behind a proxy that overwrites them")
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars warns about ${VAR} references that survived interpolation.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := map[string]string{
		"webhook.secret":        d.cfg.Webhook.Secret,
		"extract.fields":        d.cfg.Extract.Fields,
		"sink.spreadsheet_id":   d.cfg.Sink.SpreadsheetID,
		"sink.range":            d.cfg.Sink.Range,
		"sink.credentials_file": d.cfg.Sink.CredentialsFile,
		"sink.sqlite_path":      d.cfg.Sink.SQLitePath,
	}
	for _, field := range []string{
		"webhook.secret", "extract.fields", "sink.spreadsheet_id",
		"sink.range", "sink.credentials_file", "sink.sqlite_path",
	} {
		for _, m := range envVarRe.FindAllStringSubmatch(fields[field], -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", field,
					fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
