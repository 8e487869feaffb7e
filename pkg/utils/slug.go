package utils

import (
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile("[^a-z0-9]+")

// Slugify lowercases s and joins its alphanumeric runs with sep.
func Slugify(s, sep string) string {
	s = strings.ToLower(s)
	s = nonSlugChars.ReplaceAllString(s, sep)
	return strings.Trim(s, sep)
}
