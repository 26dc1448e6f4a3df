package payload

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	invalidRe    = regexp.MustCompile(`[^a-z0-9-]`)
	dashesRe     = regexp.MustCompile(`-+`)
)

// Slugify lowercases and trims s, turns whitespace runs into '-', drops
// anything outside [a-z0-9-], collapses repeated dashes and trims them from
// both ends.
func Slugify(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = whitespaceRe.ReplaceAllString(s, "-")
	s = invalidRe.ReplaceAllString(s, "")
	s = dashesRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
