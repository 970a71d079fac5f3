// Package normalize implements the relay-URL normalization that every
// other component joins on. It parses the input with net/url and rebuilds
// the canonical string from the parsed scheme, host, port, and path.
package normalize

import (
	"net/url"
	"strings"
)

// defaultPorts maps a scheme to the port considered implicit for it, so
// that "wss://relay.example.com:443" and "wss://relay.example.com"
// normalize to the same string.
var defaultPorts = map[string]string{
	"ws":  "80",
	"wss": "443",
}

// RelayURL normalizes a relay URL to the canonical form every table keys
// on: lowercased scheme+host, trailing slash stripped, default port
// elided. Input without a "://" scheme separator is treated as wss. It
// returns an error when the input cannot be parsed as a URL or has no
// host; callers should treat that as malformed input per the error
// taxonomy (discard at ingest, raise at construction).
func RelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: strErr("missing host")}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "wss"
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && defaultPorts[scheme] == port {
		port = ""
	}

	path := strings.TrimSuffix(u.Path, "/")

	out := scheme + "://" + host
	if port != "" {
		out += ":" + port
	}
	out += path
	return out, nil
}

// MustRelayURL is a convenience for call sites (mostly tests and static
// config) that already know the input is well-formed.
func MustRelayURL(raw string) string {
	n, err := RelayURL(raw)
	if err != nil {
		panic(err)
	}
	return n
}

type strErr string

func (e strErr) Error() string { return string(e) }
