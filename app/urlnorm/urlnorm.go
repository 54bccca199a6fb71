// Package urlnorm canonicalizes event and page URLs so the same resource
// always maps to the same string.
package urlnorm

import (
	"errors"
	"net/url"
	"sort"
	"strings"
)

var ErrInvalidURL = errors.New("invalid url")

var trackingKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"igshid":  {},
	"_ga":     {},
	"_gl":     {},
}

// IsTrackingKey reports whether a query key carries tracking state only.
func IsTrackingKey(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingKeys[key]
	return ok
}

// Normalize resolves raw against base (which may be empty) and returns the
// canonical absolute form. Applying it twice yields the same string.
func Normalize(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidURL, err)
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(strings.TrimSpace(base))
		if err != nil {
			return "", errors.Join(ErrInvalidURL, err)
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	u.RawQuery = cleanQuery(u.Query())

	if u.Path == "/" {
		u.Path = ""
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return u.String(), nil
}

// MustNormalize returns the canonical form or raw unchanged when it cannot
// be parsed.
func MustNormalize(raw, base string) string {
	out, err := Normalize(raw, base)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return out
}

// SameHost reports whether two absolute URLs share a host, ignoring "www.".
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return trimWWW(ua.Hostname()) == trimWWW(ub.Hostname())
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if IsTrackingKey(key) {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		vals := append([]string(nil), values[key]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
