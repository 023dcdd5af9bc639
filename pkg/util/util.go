package util

import (
	"net/http"
	"net/url"
	"strings"
)

// AnyOrigin in an allow-list admits every origin.
const AnyOrigin = "*"

// CollapseWhitespace trims s and folds every run of spaces, tabs and newlines into one space.
func CollapseWhitespace(input string) string {
	return strings.Join(strings.Fields(input), " ")
}

// OriginAllowed reports whether origin is on the allow-list.
func OriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == AnyOrigin || strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}

// EnableCors sets the CORS headers. An allowed Origin is echoed back with
// credentials so the client cookie travels cross-origin, any other caller
// gets the wildcard without credentials. It reports whether credentials
// were granted.
func EnableCors(w http.ResponseWriter, r *http.Request, allowed []string) bool {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Sec-CH-Prefers-Color-Scheme")

	origin := r.Header.Get("Origin")
	if !OriginAllowed(origin, allowed) {
		h.Set("Access-Control-Allow-Origin", "*")
		return false
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	return true
}

// CrossOrigin reports whether the request comes from a page on another host.
func CrossOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return !strings.EqualFold(u.Host, r.Host)
}
