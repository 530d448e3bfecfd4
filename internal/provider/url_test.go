package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vivino = SiteFilter{Domain: "vivino.com", PathMarker: "/w/"}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"keeps identifying params", "http://www.Vivino.com/US-CA/en/daou-cabernet/w/1234?year=2022&price_id=9&utm_source=x#reviews", "https://www.vivino.com/US-CA/en/daou-cabernet/w/1234?price_id=9&year=2022"},
		{"trailing slash", "https://www.vivino.com/w/1234/", "https://www.vivino.com/w/1234"},
		{"no params", "https://www.vivino.com/w/1234?utm=1", "https://www.vivino.com/w/1234"},
		{"not a url", "  daou cabernet ", "daou cabernet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalURL(tt.in))
		})
	}
}

func TestSiteFilter_Accept(t *testing.T) {
	u, ok := vivino.Accept("https://www.vivino.com/daou-cabernet/w/1234?year=2022")
	require.True(t, ok)
	assert.Equal(t, "https://www.vivino.com/daou-cabernet/w/1234?year=2022", u)

	_, ok = vivino.Accept("https://www.vivino.com/explore?q=daou")
	assert.False(t, ok, "missing path marker")

	_, ok = vivino.Accept("https://notvivino.com/w/1234")
	assert.False(t, ok, "foreign host")

	_, ok = vivino.Accept("/w/1234")
	assert.False(t, ok, "relative link")

	u, ok = SiteFilter{}.Accept("https://example.com/anything/")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/anything", u)
}

func TestSiteFilter_RestrictAndBrand(t *testing.T) {
	assert.Equal(t, "daou cabernet site:vivino.com", vivino.Restrict("daou cabernet"))
	assert.Equal(t, "daou cabernet", SiteFilter{}.Restrict("daou cabernet"))
	assert.Equal(t, "vivino", vivino.Brand())
	assert.Equal(t, "", SiteFilter{}.Brand())
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Daou Cabernet Sauvignon 2022", cleanTitle("Daou  Cabernet Sauvignon 2022 | Vivino", "vivino"))
	assert.Equal(t, "Daou Vineyards - Reserve Cabernet", cleanTitle("Daou Vineyards - Reserve Cabernet - Vivino US", "vivino"))
	assert.Equal(t, "Opus One | 2019", cleanTitle("Opus One | 2019", "vivino"))
	assert.Equal(t, "Opus One | Vivino", cleanTitle("Opus One | Vivino", ""))
}

func TestParseNumbers(t *testing.T) {
	p := parsePrice("$45.99 - $60")
	require.NotNil(t, p)
	assert.InDelta(t, 45.99, *p, 0.001)

	p = parsePrice("EUR 12,50")
	require.NotNil(t, p)
	assert.InDelta(t, 12.5, *p, 0.001)

	assert.Nil(t, parsePrice(""))
	assert.Nil(t, parsePrice("free"))

	f := parseFloat(" 4.3 ")
	require.NotNil(t, f)
	assert.InDelta(t, 4.3, *f, 0.001)
	assert.Nil(t, parseFloat("n/a"))

	n := parseInt("1,204")
	require.NotNil(t, n)
	assert.Equal(t, 1204, *n)
	assert.Nil(t, parseInt("0"))
}
