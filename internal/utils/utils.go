package utils

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/idna"
)

// MaxDataURILength is how much of a data: URL survives ElideDataURI.
const MaxDataURILength = 100

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// Origin is the (scheme, host, port) triple of an absolute hierarchical URL.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

// String renders the origin as scheme://host:port.
func (o Origin) String() string {
	return o.Scheme + "://" + o.Host + ":" + o.Port
}

// ParseOrigin extracts the origin of raw. Scheme and host are lowercased, the
// host is converted to its ASCII (punycode) form and a missing port is replaced
// by the scheme default. ok is false for relative, opaque or unparseable URLs.
func ParseOrigin(raw string) (o Origin, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return Origin{}, false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Origin{}, false
	}
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}

	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		port = defaultPorts[scheme]
	}

	return Origin{Scheme: scheme, Host: host, Port: port}, true
}

// SameOrigin reports whether a and b share scheme, host and port.
// URLs that cannot be parsed as absolute hierarchical URLs are never
// same-origin with anything, including themselves.
func SameOrigin(a, b string) bool {
	oa, ok := ParseOrigin(a)
	if !ok {
		return false
	}
	ob, ok := ParseOrigin(b)
	if !ok {
		return false
	}
	return oa == ob
}

// ElideDataURI shortens data: URLs to at most MaxDataURILength bytes so inline
// payloads never end up in a report. The cut never splits a UTF-8 sequence.
// Other URLs are returned unchanged.
func ElideDataURI(raw string) string {
	if !isDataURI(raw) || len(raw) <= MaxDataURILength {
		return raw
	}
	cut := MaxDataURILength
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut]
}

// isDataURI checks the scheme prefix directly; payloads are often not valid
// enough for url.Parse and must still be elided.
func isDataURI(raw string) bool {
	return len(raw) >= len("data:") && strings.EqualFold(raw[:len("data:")], "data:")
}

// FormatCount renders n with thousands separators ("1,234").
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// Pluralize returns "<formatted n> <singular>" or "<formatted n> <plural>".
func Pluralize(n int, singular, plural string) string {
	noun := plural
	if n == 1 {
		noun = singular
	}
	return FormatCount(n) + " " + noun
}
