package provider

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// keptParams are the query parameters that identify a catalog page.
var keptParams = []string{"year", "price_id", "ref"}

var priceRe = regexp.MustCompile(`\d+(?:[.,]\d{1,2})?`)

// SiteFilter restricts searches and results to one catalog site.
type SiteFilter struct {
	// Domain is appended as a site: restriction and required in result hosts.
	Domain string
	// PathMarker must appear in a result's path, e.g. "/w/" for wine pages.
	PathMarker string
}

// Restrict adds the site restriction to query.
func (f SiteFilter) Restrict(query string) string {
	if f.Domain == "" {
		return query
	}
	return query + " site:" + f.Domain
}

// Accept reports whether raw points at a catalog page and returns its
// canonical form.
func (f SiteFilter) Accept(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if f.Domain != "" && host != f.Domain && !strings.HasSuffix(host, "."+f.Domain) {
		return "", false
	}
	if f.PathMarker != "" && !strings.Contains(u.Path, f.PathMarker) {
		return "", false
	}
	return canonicalize(u), true
}

// Brand is the first label of the domain ("vivino" for vivino.com).
func (f SiteFilter) Brand() string {
	brand, _, _ := strings.Cut(f.Domain, ".")
	return brand
}

// CanonicalURL normalizes raw so equivalent links compare equal: https,
// lowercase host, no fragment or trailing slash, and only identifying query
// parameters. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	return canonicalize(u)
}

func canonicalize(u *url.URL) string {
	q := u.Query()
	kept := url.Values{}
	for _, k := range keptParams {
		if v := q.Get(k); v != "" {
			kept.Set(k, v)
		}
	}
	out := url.URL{
		Scheme:   "https",
		Host:     strings.ToLower(u.Host),
		Path:     strings.TrimRight(u.Path, "/"),
		RawQuery: kept.Encode(),
	}
	return out.String()
}

// cleanTitle drops a trailing " | Brand" style suffix from a result title.
func cleanTitle(title, brand string) string {
	title = strings.Join(strings.Fields(title), " ")
	if brand == "" {
		return title
	}
	for _, sep := range []string{" | ", " - ", " – "} {
		idx := strings.LastIndex(title, sep)
		if idx > 0 && strings.Contains(strings.ToLower(title[idx:]), brand) {
			title = strings.TrimSpace(title[:idx])
		}
	}
	return title
}

func parsePrice(s string) *float64 {
	m := priceRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	v, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
