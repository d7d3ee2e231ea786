package nostrconnect

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// RelayURL is a normalized websocket relay address. Two relays are the same
// relay iff their RelayURLs are equal.
type RelayURL string

func (r RelayURL) String() string {
	return string(r)
}

// ParseRelayURL validates raw and returns its normalized form: lower-case
// scheme and host, default port removed, trailing slash and fragment dropped.
func ParseRelayURL(raw string) (RelayURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRelayURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRelayURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRelayURL, u.Scheme)
	}
	if u.Opaque != "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidRelayURL, raw)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: userinfo not allowed", ErrInvalidRelayURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidRelayURL)
	}

	port := u.Port()
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return "", fmt.Errorf("%w: bad port %q", ErrInvalidRelayURL, port)
		}
		port = strconv.Itoa(n)
	}
	if (scheme == "ws" && port == "80") || (scheme == "wss" && port == "443") {
		port = ""
	}

	var hostport string
	switch {
	case port != "":
		hostport = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		hostport = "[" + host + "]"
	default:
		hostport = host
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(hostport)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}

	return RelayURL(b.String()), nil
}

// MustParseRelayURL is ParseRelayURL for constants and tests.
func MustParseRelayURL(raw string) RelayURL {
	r, err := ParseRelayURL(raw)
	if err != nil {
		panic(err)
	}
	return r
}
