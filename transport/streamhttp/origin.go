package streamhttp

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// originAllowed reports whether the Origin header value is acceptable for the
// configured allow list. Entries are matched literally first; entries that are
// bare hosts additionally match any origin whose registrable domain (eTLD+1)
// equals the entry, so "example.com" covers "https://app.example.com".
// An empty allow list or a "*" entry allows everything. Requests without an
// Origin header (non-browser clients) are always allowed.
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	host := originHost(origin)
	for _, entry := range allowed {
		if entry == "*" || entry == origin {
			return true
		}
		if host != "" && hostMatches(entry, host) {
			return true
		}
	}
	return false
}

func hostMatches(entry, host string) bool {
	entry = stripPort(strings.ToLower(entry))
	if entry == host {
		return true
	}
	if isIP(host) || isLocalhost(host) {
		return false
	}
	top, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return entry == top
}

func originHost(origin string) string {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return stripPort(strings.ToLower(parsed.Host))
}

func isIP(host string) bool { return net.ParseIP(host) != nil }

func isLocalhost(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost")
}

func stripPort(host string) string {
	if i := strings.IndexByte(host, ':'); i > -1 {
		return host[:i]
	}
	return host
}
