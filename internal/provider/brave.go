package provider

import (
	"context"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/pkg/brave"
)

// Brave adapts the Brave Search API. Brave results carry no rating data.
type Brave struct {
	settings Settings
	client   brave.Client
}

// NewBrave creates the adapter. A nil client is built from the key.
func NewBrave(s Settings, client brave.Client, opts ...brave.Option) *Brave {
	if client == nil && s.Key != "" {
		client = brave.NewClient(s.Key, opts...)
	}
	return &Brave{settings: s, client: client}
}

func (p *Brave) Name() string { return NameBrave }

func (p *Brave) Available() bool { return p.settings.Key != "" && p.client != nil }

func (p *Brave) Search(ctx context.Context, query string) ([]model.Candidate, error) {
	resp, err := p.client.Search(ctx, p.settings.Site.Restrict(query), p.settings.MaxResults)
	if err != nil {
		return nil, err
	}

	brand := p.settings.Site.Brand()
	cands := make([]model.Candidate, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		u, ok := p.settings.Site.Accept(r.URL)
		if !ok {
			continue
		}
		cands = append(cands, model.Candidate{Name: cleanTitle(r.Title, brand), URL: u})
	}
	return cands, nil
}
