package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// MatchKey reduces a title to lower-case letters and digits with
// diacritics folded, so "Shingeki no Kyojin: Part 2" and
// "shingeki-no-kyojin-part-2" compare equal.
func MatchKey(s string) string {
	var b strings.Builder
	for _, r := range foldDiacritics(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Slugify turns a title into a URL slug: lower-case alphanumeric words
// joined by single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range foldDiacritics(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// SlugToQuery turns a slug back into a provider search phrase.
func SlugToQuery(slug string) string {
	q := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '+' {
			return ' '
		}
		return r
	}, slug)
	return strings.Join(strings.Fields(q), " ")
}
