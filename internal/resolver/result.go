package resolver

import (
	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/report"
)

// Outcome is one resolved descriptor.
type Outcome struct {
	Descriptor      model.Descriptor    `json:"descriptor"`
	Queries         []string            `json:"queries"`
	SearchURL       string              `json:"search_url,omitempty"`
	Candidates      []model.Candidate   `json:"candidates"`
	Decision        model.MatchDecision `json:"decision"`
	Notes           []string            `json:"notes,omitempty"`
	Calls           int                 `json:"calls"`
	CacheHits       int                 `json:"cache_hits"`
	Complete        bool                `json:"complete"`
	BudgetExhausted bool                `json:"budget_exhausted,omitempty"`
	Conflict        bool                `json:"conflict,omitempty"`
}

func (o *Outcome) entry() report.Entry {
	return report.Entry{
		Descriptor: o.Descriptor,
		Queries:    o.Queries,
		SearchURL:  o.SearchURL,
		Decision:   o.Decision,
		Notes:      o.Notes,
	}
}

// Summary counts what a run did.
type Summary struct {
	RunID           string         `json:"run_id"`
	Total           int            `json:"total"`
	AutoApplied     int            `json:"auto_applied"`
	Suggested       int            `json:"suggested"`
	Review          int            `json:"review"`
	Unmatched       int            `json:"unmatched"`
	Overridden      int            `json:"overridden"`
	SkippedByDelta  int            `json:"skipped_by_delta"`
	Conflicts       int            `json:"conflicts"`
	Incomplete      int            `json:"incomplete"`
	Unstarted       int            `json:"unstarted"`
	CacheHits       int            `json:"cache_hits"`
	TotalCalls      int            `json:"total_calls"`
	Calls           map[string]int `json:"calls"`
	Failures        map[string]int `json:"failures,omitempty"`
	BudgetExhausted bool           `json:"budget_exhausted"`
	Canceled        bool           `json:"canceled"`
	Committed       int            `json:"committed"`
}

// Result is the in-memory output of a run.
type Result struct {
	RunID string

	// Outcomes holds every decided descriptor in input order.
	Outcomes   []Outcome
	Overridden []string
	Skipped    []string

	Applied     []model.OverrideRecord
	Suggestions []model.OverrideRecord
	Review      []report.ReviewRow
	Unmatched   []report.UnmatchedRow
	// Conflicts are notes for auto_apply decisions the table refused.
	Conflicts []string

	Summary Summary
}

func newResult(runID string) *Result {
	return &Result{
		RunID:   runID,
		Summary: Summary{RunID: runID, Calls: map[string]int{}},
	}
}
