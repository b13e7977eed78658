package fetch

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// parseURL parses raw as an absolute http(s) URL, resolving it against base if it is not nil.
// The host is converted to its ASCII form and a default port is elided.
// Reference: https://url.spec.whatwg.org/#concept-url-parser
func parseURL(raw string, base *url.URL) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(ErrType, "parsing url %q: %v", raw, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}

	if !u.IsAbs() {
		return nil, errors.Wrapf(ErrType, "url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	defaultPort, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, errors.Wrapf(ErrType, "unsupported scheme %q", u.Scheme)
	}
	if u.User != nil {
		return nil, errors.Wrapf(ErrType, "url %q includes credentials", raw)
	}

	host, port := u.Hostname(), u.Port()
	if host == "" {
		return nil, errors.Wrapf(ErrType, "url %q has no host", raw)
	}

	if ip := net.ParseIP(host); ip == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return nil, errors.Wrapf(ErrType, "invalid host %q: %v", host, err)
		}
		host = ascii
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	if port != "" && port != defaultPort {
		host += ":" + port
	}
	u.Host = host

	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}

	return u, nil
}

// serializeURL serializes u, excluding the fragment.
func serializeURL(u *url.URL) string {
	clone := *u
	clone.Fragment, clone.RawFragment = "", ""
	return clone.String()
}

// Reference: https://html.spec.whatwg.org/multipage/browsers.html#ascii-serialisation-of-an-origin
func serializeOrigin(u *url.URL) string { return u.Scheme + "://" + u.Host }

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
