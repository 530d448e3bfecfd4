// Package report shapes resolution results into the review, unmatched and
// suggestion CSV rows.
package report

import (
	"fmt"
	"strconv"

	"github.com/sells-group/wine-resolver/internal/model"
)

// Entry is one scored descriptor with everything the reports show.
type Entry struct {
	Descriptor model.Descriptor
	Queries    []string
	SearchURL  string
	Decision   model.MatchDecision
	// Notes are provider failure tags collected while searching.
	Notes []string
}

// ReviewRow is a line of the review queue.
type ReviewRow struct {
	RawName        string `csv:"raw_name"`
	Year           string `csv:"year"`
	Producer       string `csv:"producer"`
	Label          string `csv:"label"`
	Color          string `csv:"color"`
	Query1         string `csv:"query_1"`
	Query2         string `csv:"query_2"`
	Query3         string `csv:"query_3"`
	SearchURL      string `csv:"search_url"`
	CandidateCount int    `csv:"candidate_count"`
	BestScore      string `csv:"best_score"`
	SecondScore    string `csv:"second_score"`
	BestTitle      string `csv:"best_title"`
	BestURL        string `csv:"best_url"`
	BestProvider   string `csv:"best_provider"`
	BestQuery      string `csv:"best_query"`
	Decision       string `csv:"decision"`
	Reason         string `csv:"reason"`
}

// UnmatchedRow is a line of the unmatched list.
type UnmatchedRow struct {
	RawName      string `csv:"raw_name"`
	Year         string `csv:"year"`
	Producer     string `csv:"producer"`
	Label        string `csv:"label"`
	Price        string `csv:"price"`
	Quantity     string `csv:"quantity"`
	Query1       string `csv:"query_1"`
	Query2       string `csv:"query_2"`
	Query3       string `csv:"query_3"`
	SearchURL    string `csv:"search_url"`
	BestScore    string `csv:"best_score"`
	BestURL      string `csv:"best_url"`
	BestProvider string `csv:"best_provider"`
	Decision     string `csv:"decision"`
	Reason       string `csv:"reason"`
}

// Review builds the review row for e.
func Review(e Entry) ReviewRow {
	d, md := e.Descriptor, e.Decision
	q1, q2, q3 := queries(e.Queries)
	row := ReviewRow{
		RawName:        d.RawName,
		Year:           d.YearString(),
		Producer:       d.Producer,
		Label:          d.Label,
		Color:          string(d.Color),
		Query1:         q1,
		Query2:         q2,
		Query3:         q3,
		SearchURL:      e.SearchURL,
		CandidateCount: md.CandidateCount,
		Decision:       string(md.Decision),
		Reason:         reason(e),
	}
	if md.Best != nil {
		row.BestScore = score(md.Confidence)
		row.BestTitle = md.Best.Name
		row.BestURL = md.Best.URL
		row.BestProvider = md.Best.Provider
		row.BestQuery = md.Best.Query
	}
	if md.CandidateCount > 1 {
		row.SecondScore = score(md.RunnerUp)
	}
	return row
}

// Unmatched builds the unmatched row for e.
func Unmatched(e Entry) UnmatchedRow {
	d, md := e.Descriptor, e.Decision
	q1, q2, q3 := queries(e.Queries)
	row := UnmatchedRow{
		RawName:   d.RawName,
		Year:      d.YearString(),
		Producer:  d.Producer,
		Label:     d.Label,
		Price:     d.Price,
		Quantity:  d.Quantity,
		Query1:    q1,
		Query2:    q2,
		Query3:    q3,
		SearchURL: e.SearchURL,
		Decision:  string(md.Decision),
		Reason:    reason(e),
	}
	if md.Best != nil {
		row.BestScore = score(md.Confidence)
		row.BestURL = md.Best.URL
		row.BestProvider = md.Best.Provider
	}
	return row
}

// Suggestion turns an auto_apply decision into an override row. It returns
// false when the decision has no best candidate.
func Suggestion(e Entry) (model.OverrideRecord, bool) {
	best := e.Decision.Best
	if best == nil {
		return model.OverrideRecord{}, false
	}
	r := model.OverrideRecord{
		MatchName: e.Descriptor.RawName,
		WineName:  best.Name,
		VivinoURL: best.URL,
		Notes: fmt.Sprintf("auto_resolved provider=%s score=%.3f margin=%.3f",
			best.Provider, e.Decision.Confidence, e.Decision.Margin()),
	}
	if best.Rating != nil {
		r.VivinoRating = strconv.FormatFloat(*best.Rating, 'f', -1, 64)
	}
	if best.NumRatings != nil {
		r.VivinoNumRatings = strconv.Itoa(*best.NumRatings)
	}
	if best.Price != nil {
		r.VivinoPrice = strconv.FormatFloat(*best.Price, 'f', 2, 64)
	}
	return r, true
}

func reason(e Entry) string {
	r := e.Decision.Reason
	if len(e.Notes) > 0 {
		r += "; search_error=" + e.Notes[0]
	}
	return r
}

func queries(qs []string) (q1, q2, q3 string) {
	out := [3]string{}
	copy(out[:], qs)
	return out[0], out[1], out[2]
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
