// Package scorer rates search candidates against a descriptor and decides
// whether the best one can be applied automatically.
package scorer

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/parse"
)

const (
	minYear = 1900
	epsilon = 1e-9
)

// Scored is a candidate with its composite score and match signals.
type Scored struct {
	Candidate       model.Candidate `json:"candidate"`
	Score           float64         `json:"score"`
	ProducerOverlap int             `json:"producer_overlap"`
	ProducerMissing bool            `json:"producer_missing"`
	YearMatch       bool            `json:"year_match"`
	// Coverage is the share of producer+label tokens found in the candidate.
	Coverage float64 `json:"coverage"`
}

// Scorer scores candidates. It is safe for concurrent use.
type Scorer struct {
	cfg       Config
	rank      map[string]int
	maxYear   int
	weightSum float64
}

// New creates a Scorer. order is the provider fallback order used to break
// score ties.
func New(cfg Config, order []string) *Scorer {
	rank := make(map[string]int, len(order))
	for i, name := range order {
		if _, ok := rank[name]; !ok {
			rank[name] = i
		}
	}
	sum := cfg.Weights.Token + cfg.Weights.Sequence + cfg.Weights.Set
	if sum <= 0 {
		cfg.Weights = DefaultConfig().Weights
		sum = 1
	}
	return &Scorer{
		cfg:       cfg,
		rank:      rank,
		maxYear:   time.Now().Year() + 1,
		weightSum: sum,
	}
}

// target is the descriptor side of a comparison, computed once.
type target struct {
	tokens   map[string]bool
	sorted   string
	producer map[string]bool
	identity []string
	year     int
	color    string
}

func (s *Scorer) target(d model.Descriptor) target {
	t := target{
		tokens:   set(parse.CanonicalTokens(strings.Join([]string{d.YearString(), d.Producer, d.Label}, " "))),
		producer: make(map[string]bool),
		identity: dedupe(parse.CanonicalTokens(d.Producer + " " + d.Label)),
		year:     d.Year,
	}
	t.sorted = sortedJoin(t.tokens)
	for _, tok := range parse.CanonicalTokens(d.Producer) {
		if len(tok) >= 3 {
			t.producer[tok] = true
		}
	}
	if d.Color.Known() {
		t.color = parse.NormalizeKey(string(d.Color))
	}
	return t
}

// Rank scores every candidate and returns those with a positive score,
// best first.
func (s *Scorer) Rank(d model.Descriptor, cands []model.Candidate) []Scored {
	t := s.target(d)
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		sc := s.score(t, c)
		if sc.Score <= 0 {
			continue
		}
		out = append(out, sc)
	}
	sort.SliceStable(out, func(i, j int) bool { return s.less(out[i], out[j]) })
	return out
}

// Score picks the best candidate and classifies it.
func (s *Scorer) Score(d model.Descriptor, cands []model.Candidate) model.MatchDecision {
	ranked := s.Rank(d, cands)
	if len(ranked) == 0 {
		return model.MatchDecision{
			Decision: model.DecisionUnmatched,
			Reason:   "no viable candidates",
		}
	}

	best := ranked[0]
	md := model.MatchDecision{
		Best:           &best.Candidate,
		Confidence:     best.Score,
		CandidateCount: len(ranked),
	}
	if len(ranked) > 1 {
		md.RunnerUp = ranked[1].Score
	}
	md.Decision, md.Reason = s.classify(best, md.Margin())
	return md
}

func (s *Scorer) classify(best Scored, margin float64) (model.Decision, string) {
	summary := fmt.Sprintf("score=%.3f, margin=%.3f", best.Score, margin)
	switch {
	case best.Score >= s.cfg.AutoApply:
		if best.ProducerMissing {
			return model.DecisionReview, summary + "; top candidate missing producer tokens"
		}
		if best.Coverage+epsilon < s.cfg.NearExact {
			return model.DecisionReview, fmt.Sprintf("%s; producer+label coverage %.2f below %.2f", summary, best.Coverage, s.cfg.NearExact)
		}
		if s.cfg.MinMargin > 0 && margin+epsilon < s.cfg.MinMargin {
			return model.DecisionReview, fmt.Sprintf("%s; margin below %.3f", summary, s.cfg.MinMargin)
		}
		return model.DecisionAutoApply, summary
	case best.Score >= s.cfg.Review:
		return model.DecisionReview, summary
	default:
		return model.DecisionUnmatched, fmt.Sprintf("score below threshold (%.3f < %.3f)", best.Score, s.cfg.Review)
	}
}

func (s *Scorer) score(t target, c model.Candidate) Scored {
	sc := Scored{Candidate: c}
	text := c.Name + " " + slugText(c.URL)
	candTokens := set(parse.CanonicalTokens(text))
	if len(t.tokens) == 0 || len(candTokens) == 0 {
		return sc
	}

	overlap := intersect(t.tokens, candTokens)
	if len(overlap) == 0 {
		return sc
	}

	w := s.cfg.Weights
	tokenRatio := float64(len(overlap)) / float64(max(len(t.tokens), len(candTokens)))
	candSorted := sortedJoin(candTokens)
	seqRatio := levenshtein.Similarity(t.sorted, candSorted, nil)
	interText := sortedJoin(overlap)
	setRatio := math.Max(
		levenshtein.Similarity(interText, t.sorted, nil),
		levenshtein.Similarity(interText, candSorted, nil),
	)
	score := (w.Token*tokenRatio + w.Sequence*seqRatio + w.Set*setRatio) / s.weightSum

	adj := s.cfg.Adjustments
	for tok := range t.producer {
		if candTokens[tok] {
			sc.ProducerOverlap++
		}
	}
	switch {
	case len(t.producer) > 0 && sc.ProducerOverlap == 0:
		sc.ProducerMissing = true
		score -= adj.ProducerMissing
	case sc.ProducerOverlap > 0:
		score += math.Min(adj.ProducerMax, adj.ProducerPerToken*float64(sc.ProducerOverlap))
	}

	if t.year != 0 {
		if y := s.candidateYear(c.URL, text); y != 0 {
			diff := y - t.year
			if diff < 0 {
				diff = -diff
			}
			switch {
			case diff == 0:
				score += adj.YearMatch
				sc.YearMatch = true
			case diff > adj.YearTolerance:
				score -= adj.YearMismatch
			}
		}
	}

	if t.color != "" {
		for _, tok := range strings.Fields(parse.NormalizeKey(text)) {
			if tok == t.color {
				score += adj.Color
				break
			}
		}
	}

	if len(t.identity) > 0 {
		found := 0
		for _, tok := range t.identity {
			if candTokens[tok] {
				found++
			}
		}
		sc.Coverage = float64(found) / float64(len(t.identity))
	}

	sc.Score = math.Max(0, math.Min(1, score))
	return sc
}

// candidateYear prefers the catalog's year parameter over years in the text.
func (s *Scorer) candidateYear(rawURL, text string) int {
	if u, err := url.Parse(rawURL); err == nil {
		if y, err := strconv.Atoi(u.Query().Get("year")); err == nil && y >= minYear && y <= s.maxYear {
			return y
		}
	}
	return parse.ExtractYear(text, minYear, s.maxYear)
}

func (s *Scorer) less(a, b Scored) bool {
	if math.Abs(a.Score-b.Score) > epsilon {
		return a.Score > b.Score
	}
	ra, rb := s.providerRank(a.Candidate.Provider), s.providerRank(b.Candidate.Provider)
	if ra != rb {
		return ra < rb
	}
	na, nb := ratings(a.Candidate), ratings(b.Candidate)
	if na != nb {
		return na > nb
	}
	if a.Candidate.URL != b.Candidate.URL {
		return a.Candidate.URL < b.Candidate.URL
	}
	return a.Candidate.Name < b.Candidate.Name
}

func (s *Scorer) providerRank(name string) int {
	if r, ok := s.rank[name]; ok {
		return r
	}
	return len(s.rank)
}

func ratings(c model.Candidate) int {
	if c.NumRatings == nil {
		return -1
	}
	return *c.NumRatings
}

// slugText is the human-readable part of a catalog URL: the segment before
// "/w/" when present, else the last path segment.
func slugText(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for i, p := range parts {
		if p == "w" && i > 0 {
			return strings.ReplaceAll(parts[i-1], "-", " ")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.ReplaceAll(parts[len(parts)-1], "-", " ")
}

func set(toks []string) map[string]bool {
	m := make(map[string]bool, len(toks))
	for _, t := range toks {
		m[t] = true
	}
	return m
}

func dedupe(toks []string) []string {
	seen := make(map[string]bool, len(toks))
	out := toks[:0:0]
	for _, t := range toks {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for t := range a {
		if b[t] {
			out[t] = true
		}
	}
	return out
}

func sortedJoin(m map[string]bool) string {
	toks := make([]string, 0, len(m))
	for t := range m {
		toks = append(toks, t)
	}
	sort.Strings(toks)
	return strings.Join(toks, " ")
}
