// Package ipallow checks webhook senders against the CIDR blocks GitHub
// publishes on its meta endpoint.
//
// The list is fetched on every call. There is no cache, so a deployment that
// enables the check pays one outbound request per delivery and is subject to
// GitHub's API rate limits.
package ipallow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_checker.go -package=mocks github.com/mattjoyce/reviewsheet/internal/ipallow Checker

// Checker decides whether a sender IP may deliver webhooks.
type Checker interface {
	// Allowed reports whether senderIP is allowed, along with the parsed address.
	// A non-nil error means the decision could not be made.
	Allowed(ctx context.Context, senderIP string) (bool, netip.Addr, error)
}

// Defaults for the GitHub meta endpoint.
const (
	DefaultMetaURL = "https://api.github.com/meta"
	DefaultKey     = "hooks"
)

// maxMetaBody caps the meta document read from the network.
const maxMetaBody = 4 << 20

// MetaChecker fetches allowed CIDR blocks from a meta document.
type MetaChecker struct {
	url    string
	key    string
	client *http.Client
}

// NewMetaChecker creates a checker reading the CIDR list under key from metaURL.
// The client owns the timeout policy; nil selects http.DefaultClient.
func NewMetaChecker(metaURL, key string, client *http.Client) *MetaChecker {
	if metaURL == "" {
		metaURL = DefaultMetaURL
	}
	if key == "" {
		key = DefaultKey
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &MetaChecker{url: metaURL, key: key, client: client}
}

// Allowed fetches the current block list and reports whether senderIP is inside it.
func (c *MetaChecker) Allowed(ctx context.Context, senderIP string) (bool, netip.Addr, error) {
	addr, err := ParseSender(senderIP)
	if err != nil {
		return false, netip.Addr{}, err
	}

	prefixes, err := c.fetch(ctx)
	if err != nil {
		return false, addr, err
	}

	return Contains(prefixes, addr), addr, nil
}

func (c *MetaChecker) fetch(ctx context.Context) ([]netip.Prefix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build meta request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", c.url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetaBody))
	if err != nil {
		return nil, fmt.Errorf("read meta response: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode meta response: %w", err)
	}
	raw, ok := doc[c.key]
	if !ok {
		return nil, fmt.Errorf("meta response has no %q key", c.key)
	}
	var cidrs []string
	if err := json.Unmarshal(raw, &cidrs); err != nil {
		return nil, fmt.Errorf("decode meta %q list: %w", c.key, err)
	}

	return ParsePrefixes(cidrs)
}

// ParsePrefixes parses a list of CIDR blocks. Any invalid entry fails the list.
func ParsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, s := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// ParseSender parses a sender address with or without a port.
// IPv4-mapped IPv6 addresses are unmapped so they match IPv4 blocks.
func ParseSender(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), nil
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid sender IP %q", s)
	}
	return addr.Unmap(), nil
}

// Contains reports whether addr falls inside any of prefixes.
func Contains(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
