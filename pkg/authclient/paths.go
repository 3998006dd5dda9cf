package authclient

import "strings"

// MatchPath reports whether path matches one of patterns. A pattern is either
// an exact path or a prefix ending in "/*", which matches the prefix itself
// and everything below it.
func MatchPath(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}
