package resolver

import (
	"net/url"
	"strings"
)

// ValidURL reports whether s is a usable absolute http(s) image URL. The check
// is purely syntactic; nothing is fetched.
func ValidURL(s string) bool {
	if s == "" {
		return false
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// validOrEmpty returns s when it is a valid URL and "" otherwise, so that
// invalid and missing values flow through the same fallbacks.
func validOrEmpty(s string) string {
	if ValidURL(s) {
		return s
	}
	return ""
}
