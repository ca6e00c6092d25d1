// Package hostutil normalizes provider endpoint URLs.
package hostutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize converts a host string to a full URL.
// Bare localhost hosts get http://, everything else https://.
func Normalize(host string) string {
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	if IsLocalhost(hostPart(host)) {
		return "http://" + host
	}
	return "https://" + host
}

// BaseURL normalizes an API base URL and guarantees a single trailing slash,
// so endpoints can be appended directly.
func BaseURL(raw string) string {
	u := Normalize(strings.TrimSpace(raw))
	if u == "" {
		return ""
	}
	return strings.TrimRight(u, "/") + "/"
}

// RequireSecureURL rejects plain http:// URLs unless they point at localhost.
// Login credentials and bearer tokens must not cross the network in clear text.
func RequireSecureURL(raw string) error {
	if raw == "" || !strings.HasPrefix(raw, "http://") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if IsLocalhost(u.Host) {
		return nil
	}
	return fmt.Errorf("refusing insecure http:// endpoint %s (use https://)", u.Host)
}

// IsLocalhost returns true if host is localhost, a .localhost subdomain,
// 127.0.0.1, or [::1] (with optional port).
func IsLocalhost(host string) bool {
	hostWithoutPort := host
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		if !strings.HasPrefix(host, "[") || strings.HasPrefix(host, "[::1]:") {
			hostWithoutPort = host[:idx]
		}
	}

	if hostWithoutPort == "localhost" || strings.HasSuffix(hostWithoutPort, ".localhost") {
		return true
	}
	return hostWithoutPort == "127.0.0.1" || hostWithoutPort == "[::1]"
}

func hostPart(s string) string {
	if i := strings.Index(s, "/"); i >= 0 {
		return s[:i]
	}
	return s
}
