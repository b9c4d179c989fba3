// Package urlcheck classifies strings as fetchable absolute URLs.
package urlcheck

import (
	"net/url"
	"regexp"
)

// urlPattern accepts http(s) URLs with a DNS-label domain, "localhost" or a
// dotted-quad IPv4 host, an optional port and an optional path/query.
var urlPattern = regexp.MustCompile(`(?i)^https?://` +
	`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?` + // domain
	`|localhost` + // localhost
	`|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` + // or IPv4
	`(?::\d+)?` + // optional port
	`(?:/?|[/?]\S+)$`)

// IsValid reports whether s is a well-formed absolute http(s) URL.
// It performs no network access and never panics; malformed input
// simply yields false.
func IsValid(s string) bool {
	if s == "" || !urlPattern.MatchString(s) {
		return false
	}

	// The pattern is permissive about structure, so confirm that the
	// standard parser agrees on scheme and host.
	parsed, err := url.Parse(s)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}
