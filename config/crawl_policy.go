package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// CrawlPolicyConfig restricts which hosts the crawler may fetch.
// Entries match the host itself and any of its subdomains.
type CrawlPolicyConfig struct {
	// Allow, when non-empty, is the exhaustive list of crawlable hosts.
	Allow    []string `mapstructure:"allow"`
	Disallow []string `mapstructure:"disallow"`
	// Paywall hosts are skipped: fetching them yields login walls, not content.
	Paywall []string `mapstructure:"paywall"`
	// Attribution names the source written into document headers for a host.
	Attribution []SourceAttribution `mapstructure:"attribution"`
}

// SourceAttribution is a list entry rather than a map key because viper
// splits map keys on dots.
type SourceAttribution struct {
	Host string `mapstructure:"host"`
	Name string `mapstructure:"name"`
}

// Decision is the outcome of checking a URL against the policy.
type Decision struct {
	Allowed bool
	Host    string
	Reason  string
}

// Normalize lowercases hosts, strips schemes and "www.", and removes duplicates.
func (c CrawlPolicyConfig) Normalize() CrawlPolicyConfig {
	norm := CrawlPolicyConfig{
		Allow:       hostList(c.Allow),
		Disallow:    hostList(c.Disallow),
		Paywall:     hostList(c.Paywall),
	}
	for _, a := range c.Attribution {
		host, name := normalizeHost(a.Host), strings.TrimSpace(a.Name)
		if host == "" || name == "" || slices.ContainsFunc(norm.Attribution, func(x SourceAttribution) bool { return x.Host == host }) {
			continue
		}
		norm.Attribution = append(norm.Attribution, SourceAttribution{Host: host, Name: name})
	}
	return norm
}

// Validate rejects hosts that appear in contradicting lists.
func (c CrawlPolicyConfig) Validate() error {
	norm := c.Normalize()
	for _, host := range norm.Disallow {
		if slices.Contains(norm.Allow, host) {
			return fmt.Errorf("crawl policy conflict: host %q present in both allow and disallow lists", host)
		}
		if slices.Contains(norm.Paywall, host) {
			return fmt.Errorf("crawl policy conflict: host %q marked disallow and paywall", host)
		}
	}
	return nil
}

// Check decides whether rawURL may be crawled. Unparseable or non-http URLs are refused.
func (c CrawlPolicyConfig) Check(rawURL string) Decision {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return Decision{Reason: "not an http(s) url"}
	}
	host := normalizeHost(u.Hostname())
	d := Decision{Host: host}
	switch {
	case matchesAny(host, c.Disallow):
		d.Reason = "host disallowed"
	case matchesAny(host, c.Paywall):
		d.Reason = "host behind paywall"
	case len(c.Allow) > 0 && !matchesAny(host, c.Allow):
		d.Reason = "host not in allow list"
	default:
		d.Allowed = true
	}
	return d
}

// SourceName returns the attribution configured for host or one of its parents.
func (c CrawlPolicyConfig) SourceName(host string) string {
	host = normalizeHost(host)
	for host != "" {
		for _, a := range c.Attribution {
			if a.Host == host {
				return a.Name
			}
		}
		_, parent, found := strings.Cut(host, ".")
		if !found || !strings.Contains(parent, ".") {
			break
		}
		host = parent
	}
	return ""
}

func matchesAny(host string, entries []string) bool {
	for _, entry := range entries {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func hostList(values []string) []string {
	var out []string
	for _, raw := range values {
		if host := normalizeHost(raw); host != "" && !slices.Contains(out, host) {
			out = append(out, host)
		}
	}
	slices.Sort(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil {
			value = u.Hostname()
		}
	}
	return strings.TrimPrefix(value, "www.")
}
