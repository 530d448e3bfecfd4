// Package query builds the ordered search queries for a descriptor.
package query

import (
	"net/url"
	"strings"

	"github.com/sells-group/wine-resolver/internal/model"
)

// MaxQueries caps the number of queries generated per descriptor.
const MaxQueries = 3

// DefaultSearchBase is the catalog search page linked from review rows.
const DefaultSearchBase = "https://www.vivino.com/search/wines"

// Generate returns up to MaxQueries distinct queries, most specific first:
// producer+label+year, producer+label, label. When no label was parsed the
// raw name is the only query.
func Generate(d model.Descriptor) []string {
	label := clean(d.Label)
	if label == "" {
		if raw := clean(d.RawName); raw != "" {
			return []string{raw}
		}
		return nil
	}

	producer := clean(d.Producer)
	if strings.EqualFold(producer, label) {
		producer = ""
	}
	candidates := []string{
		clean(producer + " " + label + " " + d.YearString()),
		clean(producer + " " + label),
		label,
	}

	out := make([]string, 0, MaxQueries)
	seen := make(map[string]bool, len(candidates))
	for _, q := range candidates {
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == MaxQueries {
			break
		}
	}
	return out
}

// SearchURL returns a human-usable catalog search link for the descriptor's
// most specific query.
func SearchURL(base string, d model.Descriptor) string {
	qs := Generate(d)
	if len(qs) == 0 {
		return ""
	}
	if base == "" {
		base = DefaultSearchBase
	}
	return base + "?q=" + url.QueryEscape(qs[0])
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
