package provider

import (
	"context"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/pkg/google"
)

// GoogleCSE adapts the Google Custom Search API. Ratings and prices come
// from the pagemap structured data when the page exposes it.
type GoogleCSE struct {
	settings Settings
	cx       string
	client   google.Client
}

// NewGoogleCSE creates the adapter. A nil client is built from key and cx.
func NewGoogleCSE(s Settings, cx string, client google.Client, opts ...google.Option) *GoogleCSE {
	if client == nil && s.Key != "" && cx != "" {
		client = google.NewClient(s.Key, cx, opts...)
	}
	return &GoogleCSE{settings: s, cx: cx, client: client}
}

func (p *GoogleCSE) Name() string { return NameGoogleCSE }

func (p *GoogleCSE) Available() bool {
	return p.settings.Key != "" && p.cx != "" && p.client != nil
}

func (p *GoogleCSE) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	resp, err := p.client.Search(ctx, p.settings.Site.Restrict(query), p.settings.MaxResults)
	if err != nil {
		return nil, err
	}

	brand := p.settings.Site.Brand()
	cands := make([]model.Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		u, ok := p.settings.Site.Accept(item.Link)
		if !ok {
			continue
		}
		c := model.Candidate{Name: cleanTitle(item.Title, brand), URL: u}
		if len(item.Pagemap.AggregateRating) > 0 {
			ar := item.Pagemap.AggregateRating[0]
			c.Rating = parseFloat(ar.RatingValue)
			c.NumRatings = parseInt(ar.RatingCount)
			if c.NumRatings == nil {
				c.NumRatings = parseInt(ar.ReviewCount)
			}
		}
		if len(item.Pagemap.Offer) > 0 {
			c.Price = parseFloat(item.Pagemap.Offer[0].Price)
		}
		cands = append(cands, c)
	}
	return cands, nil
}
