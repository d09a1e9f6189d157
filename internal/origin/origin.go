// Package origin inspects where a request claims to come from.
package origin

import (
	"net/http"
	"net/url"
	"strings"
)

// extensionSchemes are Origin schemes used by browser extension contexts
var extensionSchemes = map[string]struct{}{
	"chrome-extension":     {},
	"moz-extension":        {},
	"safari-web-extension": {},
}

// FromRequest returns the normalized origin of the request, taken from the
// Origin header or, when absent, from the Referer header.
// It returns "" when neither yields a parseable origin.
func FromRequest(r *http.Request) string {
	if o := Normalize(r.Header.Get("Origin")); o != "" {
		return o
	}
	return Normalize(r.Header.Get("Referer"))
}

// Normalize reduces a URL or origin string to "scheme://host[:port]" in lower case
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// IsExtension reports whether the request originates from a browser extension,
// judged by the scheme of its Origin header.
func IsExtension(r *http.Request) bool {
	return IsExtensionOrigin(r.Header.Get("Origin"))
}

// IsExtensionOrigin reports whether raw uses a browser extension scheme
func IsExtensionOrigin(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	_, ok := extensionSchemes[strings.ToLower(u.Scheme)]
	return ok
}

// AllowList is a named set of exact origins. Entries are compared after
// normalization; no wildcard or suffix matching is performed.
type AllowList struct {
	name    string
	origins map[string]struct{}
}

// NewAllowList creates an AllowList. Entries that do not normalize to an
// origin are dropped.
func NewAllowList(name string, origins []string) *AllowList {
	l := &AllowList{
		name:    name,
		origins: make(map[string]struct{}, len(origins)),
	}
	for _, o := range origins {
		if n := Normalize(o); n != "" {
			l.origins[n] = struct{}{}
		}
	}
	return l
}

// Name returns the allow-list name, used in logs
func (l *AllowList) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Contains reports whether origin is on the list
func (l *AllowList) Contains(origin string) bool {
	if l == nil {
		return false
	}
	_, ok := l.origins[Normalize(origin)]
	return ok
}

// Entries returns the normalized origins on the list
func (l *AllowList) Entries() []string {
	if l == nil {
		return nil
	}
	entries := make([]string, 0, len(l.origins))
	for o := range l.origins {
		entries = append(entries, o)
	}
	return entries
}
