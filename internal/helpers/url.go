package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
)

// ErrInvalidURL is returned for inputs that cannot be canonicalised.
var ErrInvalidURL = errors.New("invalid url")

// trackingParams are query keys dropped during canonicalisation.
var trackingParams = []string{"gclid", "dclid", "fbclid", "msclkid", "igshid", "mc_cid", "mc_eid"}

// CanonicalURL normalises raw so that equivalent links compare equal: the
// scheme defaults to https, scheme and host are lowercased, default ports,
// fragments and tracking parameters (utm_* and click ids) are removed, the
// path is cleaned and the remaining query is sorted.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	} else if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", ErrInvalidURL
	}
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host = net.JoinHostPort(host, port)
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	trailing := strings.HasSuffix(u.Path, "/")
	p := path.Clean("/" + u.Path)
	if trailing && p != "/" {
		p += "/"
	}
	u.Path = p
	u.RawPath = ""

	u.RawQuery = canonicalQuery(u.Query())
	return u.String(), nil
}

func canonicalQuery(q url.Values) string {
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || containsString(trackingParams, lower) {
			q.Del(key)
		}
	}
	for _, values := range q {
		sort.Strings(values)
	}
	// Encode sorts by key.
	return q.Encode()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// URLFingerprint returns a stable 16-byte hex digest of the canonical form of raw.
func URLFingerprint(raw string) (string, error) {
	canonical, err := CanonicalURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16]), nil
}

// DedupeURLs keeps the first occurrence of every canonical URL, in input
// order. Entries that cannot be canonicalised are returned in invalid.
func DedupeURLs(urls []string) (unique, invalid []string) {
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		canonical, err := CanonicalURL(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		unique = append(unique, canonical)
	}
	return unique, invalid
}
