package model

import "strings"

// OverrideRecord is one row of the manual override table. Fields are kept as
// text so the table is written back exactly as it was read.
type OverrideRecord struct {
	MatchName        string `csv:"match_name" json:"match_name"`
	WineName         string `csv:"wine_name" json:"wine_name"`
	VivinoRating     string `csv:"vivino_rating" json:"vivino_rating"`
	VivinoNumRatings string `csv:"vivino_num_ratings" json:"vivino_num_ratings"`
	VivinoPrice      string `csv:"vivino_price" json:"vivino_price"`
	VivinoURL        string `csv:"vivino_url" json:"vivino_url"`
	Notes            string `csv:"notes" json:"notes"`
}

// Key returns the lookup key for the record.
func (r OverrideRecord) Key() string {
	return strings.TrimSpace(r.MatchName)
}
