package provider

import (
	"context"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/pkg/serper"
)

// Settings are the options every search adapter shares.
type Settings struct {
	Key        string
	MaxResults int
	Site       SiteFilter
}

// Serper adapts the Serper API.
type Serper struct {
	settings Settings
	client   serper.Client
}

// NewSerper creates the adapter. A nil client is built from the key.
func NewSerper(s Settings, client serper.Client, opts ...serper.Option) *Serper {
	if client == nil && s.Key != "" {
		client = serper.NewClient(s.Key, opts...)
	}
	return &Serper{settings: s, client: client}
}

func (p *Serper) Name() string { return NameSerper }

func (p *Serper) Available() bool { return p.settings.Key != "" && p.client != nil }

func (p *Serper) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	resp, err := p.client.Search(ctx, p.settings.Site.Restrict(query), p.settings.MaxResults)
	if err != nil {
		return nil, err
	}

	brand := p.settings.Site.Brand()
	cands := make([]model.Candidate, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		u, ok := p.settings.Site.Accept(r.Link)
		if !ok {
			continue
		}
		c := model.Candidate{Name: cleanTitle(r.Title, brand), URL: u}
		if r.Rating > 0 {
			rating := r.Rating
			c.Rating = &rating
		}
		if r.RatingCount > 0 {
			n := r.RatingCount
			c.NumRatings = &n
		}
		c.Price = parsePrice(r.PriceRange)
		cands = append(cands, c)
	}
	return cands, nil
}
