package model

// Decision is the routing outcome for a scored descriptor.
type Decision string

// Decision values.
const (
	DecisionAutoApply Decision = "auto_apply"
	DecisionReview    Decision = "review"
	DecisionUnmatched Decision = "unmatched"
)

// MatchDecision is the result of scoring one descriptor's candidates.
type MatchDecision struct {
	Best           *Candidate `json:"best,omitempty"`
	Confidence     float64    `json:"confidence"`
	RunnerUp       float64    `json:"runner_up"`
	CandidateCount int        `json:"candidate_count"`
	Decision       Decision   `json:"decision"`
	Reason         string     `json:"reason,omitempty"`
}

// Margin is the gap between the best and the runner-up score.
func (m MatchDecision) Margin() float64 {
	return m.Confidence - m.RunnerUp
}
