package observability

import "unicode"

const defaultStringLimit = 256

// stripControl drops control runes (keeping whitespace escapes) and bounds
// the result to limit runes.
func stripControl(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	kept := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return string(kept)
}

// SanitizeRoute bounds a route pattern for log fields; empty becomes "/".
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, 180)
}

// SanitizeMethod bounds an HTTP method for log fields.
func SanitizeMethod(method string) string {
	return stripControl(method, 10)
}

// SanitizeUserID bounds an actor identifier for log fields.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return stripControl(uid, 64)
}
