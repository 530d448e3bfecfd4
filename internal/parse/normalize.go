// Package parse turns free-text product names into structured descriptors.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
	volumeRe   = regexp.MustCompile(`^\d+(?:[.,]\d+)?(?:ml|cl|l|ltr|oz)$`)
	yearRe     = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// FoldAccents strips combining marks, so "Rosé" becomes "Rose".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeKey lowercases, folds accents and collapses everything that is not
// a letter or digit into single spaces. Apostrophes are removed outright so
// "L'Ecole" and "LEcole" normalize alike.
func NormalizeKey(s string) string {
	s = strings.ToLower(FoldAccents(s))
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.NewReplacer("'", "", "’", "", "`", "").Replace(s)
	s = nonAlnumRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// dropTokens are filler words that carry no identity.
var dropTokens = map[string]bool{
	"and": true, "the": true, "de": true, "la": true, "le": true, "du": true,
	"standard": true, "bottle": true, "magnum": true, "jeroboam": true, "double": true,
	"red": true, "white": true, "rose": true, "blanc": true, "rouge": true,
	"ml": true, "l": true, "wine": true,
}

// CanonicalTokens returns the normalized tokens of s with filler, volume and
// short numeric tokens removed. Four-digit years survive.
func CanonicalTokens(s string) []string {
	fields := strings.Fields(NormalizeKey(s))
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if dropTokens[tok] || volumeRe.MatchString(tok) {
			continue
		}
		if isDigits(tok) && len(tok) <= 3 {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ExtractYear returns the first plausible vintage in s that lies within
// [minYear, maxYear], or 0.
func ExtractYear(s string, minYear, maxYear int) int {
	for _, m := range yearRe.FindAllString(s, -1) {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if y >= minYear && y <= maxYear {
			return y
		}
	}
	return 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
