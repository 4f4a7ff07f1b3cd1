package webhook

import (
	"fmt"

	"github.com/mattjoyce/reviewsheet/internal/config"
	"github.com/mattjoyce/reviewsheet/internal/extract"
)

// FromGlobalConfig converts the loaded configuration to webhook.Config.
// Parses the field spec and max body size once so requests never re-parse them.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	wc := cfg.Webhook

	if wc.Secret == "" {
		return Config{}, fmt.Errorf("webhook: no secret configured")
	}

	fields, err := extract.ParseSpec(cfg.Extract.Fields)
	if err != nil {
		return Config{}, fmt.Errorf("webhook: invalid field spec: %w", err)
	}

	maxBodySize := int64(DefaultMaxBodySize)
	if wc.MaxBodySize != "" {
		maxBodySize, err = config.ParseSize(wc.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook: invalid max_body_size %q: %w", wc.MaxBodySize, err)
		}
	}

	out := Config{
		Listen:          wc.Listen,
		Path:            orDefault(wc.Path, DefaultPath),
		Secret:          wc.Secret,
		SignatureHeader: orDefault(wc.SignatureHeader, DefaultSignatureHeader),
		EventHeader:     orDefault(wc.EventHeader, DefaultEventHeader),
		DeliveryHeader:  orDefault(wc.DeliveryHeader, DefaultDeliveryHeader),
		MaxBodySize:     maxBodySize,
		AcceptedEvents:  wc.AcceptedEvents,

		TrustProxyHeaders: wc.TrustProxyHeaders,

		Fields:    fields,
		Separator: orDefault(cfg.Extract.Separator, extract.DefaultSeparator),
	}
	if len(out.AcceptedEvents) == 0 {
		out.AcceptedEvents = []string{PullRequestReviewEvent}
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
