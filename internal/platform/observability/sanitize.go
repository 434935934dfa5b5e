package observability

import (
	"net/http"
	"strings"
	"unicode"
)

// logSafe drops control characters and truncates to limit runes.
func logSafe(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute bounds a route or path before it is logged or attached to a span.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return logSafe(route, 180)
}

// SanitizeUserID bounds a uid or service account email before it is logged.
func SanitizeUserID(uid string) string {
	return logSafe(uid, 64)
}

// knownMethod maps methods outside the standard set to _OTHER to keep label cardinality bounded.
func knownMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace:
		return method
	default:
		return "_OTHER"
	}
}
