package cleanup

import "regexp"

// TestRoutePatterns identify route names produced by the e2e suite.
var TestRoutePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^test route\b`),
	regexp.MustCompile(`(?i)^e2e[ _-]`),
	regexp.MustCompile(`(?i)^playwright\b`),
	regexp.MustCompile(`(?i)\[test\]`),
	regexp.MustCompile(`(?i)^route \d{10,}$`),
}

// MatchesAny reports whether name matches at least one pattern.
func MatchesAny(name string, patterns ...*regexp.Regexp) bool {
	for _, p := range patterns {
		if p != nil && p.MatchString(name) {
			return true
		}
	}
	return false
}

// IsTestRoute reports whether name looks like a route created by tests.
func IsTestRoute(name string) bool {
	return MatchesAny(name, TestRoutePatterns...)
}
