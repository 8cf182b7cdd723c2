package evidence

import (
	"net/url"
	"strings"
)

// Host returns the lower-cased host of rawURL without port, or "" if it does
// not parse.
func Host(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Host == "" && u.Scheme == "" {
		// Bare "example.go.kr/path" style links.
		u, err = url.Parse("http://" + rawURL)
		if err != nil {
			return ""
		}
	}
	return strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
}

// CanonicalURL normalises a link so that the same page reached through
// different trackers fuses as one document: lower-case scheme and host, no
// fragment, no utm_* parameters, no trailing slash.
func CanonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(rawURL, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
