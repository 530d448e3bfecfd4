package model

// Candidate is a normalized search result pointing at a catalog page.
type Candidate struct {
	Name       string   `json:"name"`
	URL        string   `json:"url"`
	Rating     *float64 `json:"rating,omitempty"`
	NumRatings *int     `json:"num_ratings,omitempty"`
	Price      *float64 `json:"price,omitempty"`

	// Provenance, stamped by the orchestrator. Not persisted in the query cache.
	Provider  string `json:"provider,omitempty"`
	QueryRank int    `json:"query_rank,omitempty"`
	Query     string `json:"query,omitempty"`
}

// WithProvenance returns a copy of c annotated with where it came from.
func (c Candidate) WithProvenance(provider string, rank int, query string) Candidate {
	c.Provider = provider
	c.QueryRank = rank
	c.Query = query
	return c
}

// StripProvenance returns a copy of c without provenance fields.
func (c Candidate) StripProvenance() Candidate {
	c.Provider = ""
	c.QueryRank = 0
	c.Query = ""
	return c
}
