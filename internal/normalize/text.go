// Package normalize cleans user-supplied catalog text before it is stored or indexed.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespace      = regexp.MustCompile(`\s+`)
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
)

// Name trims a display name, composes its Unicode form, and collapses inner
// whitespace. "  Ursula   K. Lé  Guin " -> "Ursula K. Lé Guin".
func Name(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Slug converts a name into the key genres are unique on.
// "Science Fiction" -> "science-fiction", "Sci-Fi" -> "sci-fi",
// "Ciencia ficción" -> "ciencia-ficcion".
func Slug(s string) string {
	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Names normalizes each entry of names, drops empties, and removes duplicates
// keeping first occurrences. Two entries are duplicates when their keys match.
func Names(names []string, key func(string) string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = Name(n)
		if n == "" {
			continue
		}
		k := key(n)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}

// Identity is a key function that compares names exactly.
func Identity(s string) string { return s }
