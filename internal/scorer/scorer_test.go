package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wine-resolver/internal/model"
	"github.com/sells-group/wine-resolver/internal/parse"
)

var daou = model.Descriptor{
	RawName:  "2022 Daou Vineyards - Cabernet Sauvignon Reserve - Red - 750 ml",
	Year:     2022,
	Producer: "Daou Vineyards",
	Label:    "Cabernet Sauvignon Reserve",
	Color:    model.ColorRed,
}

var order = []string{"google_cse", "brave", "serper"}

func cand(name, url, provider string) model.Candidate {
	return model.Candidate{Name: name, URL: url, Provider: provider}
}

func intPtr(n int) *int { return &n }

func TestScore_ExactMatchAutoApplies(t *testing.T) {
	s := New(DefaultConfig(), order)
	md := s.Score(daou, []model.Candidate{
		cand("Daou Vineyards Cabernet Sauvignon Reserve 2022", "https://www.vivino.com/daou-vineyards-cabernet-sauvignon-reserve/w/1?year=2022", "serper"),
		cand("Caymus Cabernet Sauvignon", "https://www.vivino.com/caymus-cabernet-sauvignon/w/2", "serper"),
	})

	require.NotNil(t, md.Best)
	assert.Equal(t, model.DecisionAutoApply, md.Decision)
	assert.InDelta(t, 1.0, md.Confidence, 1e-9)
	assert.Equal(t, "https://www.vivino.com/daou-vineyards-cabernet-sauvignon-reserve/w/1?year=2022", md.Best.URL)
	assert.Equal(t, 2, md.CandidateCount)
	assert.Less(t, md.RunnerUp, md.Confidence)
	assert.Contains(t, md.Reason, "score=1.000")
}

func TestScore_NoCandidates(t *testing.T) {
	md := New(DefaultConfig(), order).Score(daou, nil)
	assert.Nil(t, md.Best)
	assert.Equal(t, model.DecisionUnmatched, md.Decision)
	assert.Zero(t, md.Confidence)
	assert.Zero(t, md.CandidateCount)
}

func TestScore_NoOverlapIsUnmatched(t *testing.T) {
	md := New(DefaultConfig(), order).Score(daou, []model.Candidate{
		cand("Whispering Angel", "https://www.vivino.com/whispering-angel/w/5", "brave"),
	})
	assert.Nil(t, md.Best)
	assert.Equal(t, model.DecisionUnmatched, md.Decision)
}

func TestScore_YearAdjustments(t *testing.T) {
	s := New(DefaultConfig(), order)
	ranked := s.Rank(daou, []model.Candidate{
		cand("Daou Cabernet Sauvignon", "https://www.vivino.com/daou-cabernet-sauvignon/w/1?year=2018", "serper"),
		cand("Daou Cabernet Sauvignon", "https://www.vivino.com/daou-cabernet-sauvignon/w/1?year=2021", "serper"),
		cand("Daou Cabernet Sauvignon", "https://www.vivino.com/daou-cabernet-sauvignon/w/1?year=2022", "serper"),
	})
	require.Len(t, ranked, 3)

	exact, adjacent, far := ranked[0], ranked[1], ranked[2]
	assert.Contains(t, exact.Candidate.URL, "year=2022")
	assert.True(t, exact.YearMatch)
	assert.Contains(t, adjacent.Candidate.URL, "year=2021")
	assert.False(t, adjacent.YearMatch)
	assert.Contains(t, far.Candidate.URL, "year=2018")

	assert.InDelta(t, 0.10, exact.Score-adjacent.Score, 1e-9, "exact vintage bonus")
	assert.InDelta(t, 0.10, adjacent.Score-far.Score, 1e-9, "adjacent vintage is not penalized")
}

func TestScore_YearFromNameWhenURLHasNone(t *testing.T) {
	s := New(DefaultConfig(), order)
	ranked := s.Rank(daou, []model.Candidate{
		cand("Daou Cabernet Sauvignon 2022", "https://www.vivino.com/daou-cabernet-sauvignon/w/1", "serper"),
	})
	require.Len(t, ranked, 1)
	assert.True(t, ranked[0].YearMatch)
}

func TestScore_ProducerPenalty(t *testing.T) {
	s := New(DefaultConfig(), order)
	ranked := s.Rank(daou, []model.Candidate{
		cand("Caymus Cabernet Sauvignon Reserve 2022", "https://www.vivino.com/caymus-cabernet-sauvignon-reserve/w/2?year=2022", "serper"),
		cand("Daou Cabernet Sauvignon Reserve 2022", "https://www.vivino.com/daou-cabernet-sauvignon-reserve/w/1?year=2022", "serper"),
	})
	require.Len(t, ranked, 2)
	assert.Contains(t, ranked[0].Candidate.URL, "daou")
	assert.Equal(t, 1, ranked[0].ProducerOverlap)
	assert.True(t, ranked[1].ProducerMissing)
	assert.Greater(t, ranked[0].Score-ranked[1].Score, 0.25)
}

func TestScore_ProducerMissingBlocksAutoApply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoApply = 0.1
	cfg.NearExact = 0
	md := New(cfg, order).Score(daou, []model.Candidate{
		cand("Cabernet Sauvignon Reserve 2022", "https://www.vivino.com/cabernet-sauvignon-reserve/w/2?year=2022", "serper"),
	})
	assert.Equal(t, model.DecisionReview, md.Decision)
	assert.Contains(t, md.Reason, "missing producer")
}

func TestScore_KnownProducerOnlyKeepsProducerSignal(t *testing.T) {
	d := parse.New(nil, parse.WithMaxYear(2026)).Parse("Opus One 2019")
	require.Equal(t, "Opus One", d.Producer)

	ranked := New(DefaultConfig(), order).Rank(d, []model.Candidate{
		cand("Opus One 2019", "https://www.vivino.com/opus-one/w/3?year=2019", "brave"),
	})
	require.Len(t, ranked, 1)
	assert.Equal(t, 2, ranked[0].ProducerOverlap)
	assert.False(t, ranked[0].ProducerMissing)
}

func TestScore_NoProducerSkipsPenalty(t *testing.T) {
	d := model.Descriptor{RawName: "cabernet sauvignon reserve", Label: "cabernet sauvignon reserve"}
	md := New(DefaultConfig(), order).Score(d, []model.Candidate{
		cand("Cabernet Sauvignon Reserve", "https://www.vivino.com/cabernet-sauvignon-reserve/w/2", "serper"),
	})
	require.NotNil(t, md.Best)
	assert.InDelta(t, 1.0, md.Confidence, 1e-9)
	assert.Equal(t, model.DecisionAutoApply, md.Decision)
}

func TestScore_ColorBonus(t *testing.T) {
	s := New(DefaultConfig(), order)
	ranked := s.Rank(daou, []model.Candidate{
		cand("Daou Cabernet Sauvignon", "https://www.vivino.com/daou-cabernet-sauvignon/w/1", "serper"),
		cand("Daou Cabernet Sauvignon Red", "https://www.vivino.com/daou-cabernet-sauvignon/w/2", "serper"),
	})
	require.Len(t, ranked, 2)
	assert.Contains(t, ranked[0].Candidate.Name, "Red")
	assert.InDelta(t, 0.03, ranked[0].Score-ranked[1].Score, 1e-9)
}

func TestScore_NearExactRequiredForAutoApply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoApply = 0.5
	md := New(cfg, order).Score(daou, []model.Candidate{
		cand("Daou Vineyards Cabernet Sauvignon", "https://www.vivino.com/daou-vineyards-cabernet-sauvignon/w/1?year=2022", "serper"),
	})
	require.NotNil(t, md.Best)
	assert.Equal(t, model.DecisionReview, md.Decision)
	assert.Contains(t, md.Reason, "coverage 0.80")
}

func TestScore_Bands(t *testing.T) {
	cands := []model.Candidate{
		cand("Daou Cabernet Sauvignon", "https://www.vivino.com/daou-cabernet-sauvignon/w/1?year=2022", "serper"),
	}

	cfg := DefaultConfig()
	cfg.AutoApply = 0.99
	cfg.Review = 0.3
	assert.Equal(t, model.DecisionReview, New(cfg, order).Score(daou, cands).Decision)

	cfg.Review = 0.98
	md := New(cfg, order).Score(daou, cands)
	assert.Equal(t, model.DecisionUnmatched, md.Decision)
	require.NotNil(t, md.Best, "low-scoring best is still reported")
	assert.Contains(t, md.Reason, "below threshold")
}

func TestScore_MinMargin(t *testing.T) {
	exact := []model.Candidate{
		cand("Daou Vineyards Cabernet Sauvignon Reserve 2022", "https://www.vivino.com/daou-vineyards-cabernet-sauvignon-reserve/w/1?year=2022", "serper"),
		cand("Daou Vineyards Cabernet Sauvignon Reserve 2022", "https://www.vivino.com/daou-vineyards-cabernet-sauvignon-reserve/w/9?year=2022", "brave"),
	}

	assert.Equal(t, model.DecisionAutoApply, New(DefaultConfig(), order).Score(daou, exact).Decision)

	cfg := DefaultConfig()
	cfg.MinMargin = 0.05
	md := New(cfg, order).Score(daou, exact)
	assert.Equal(t, model.DecisionReview, md.Decision)
	assert.Contains(t, md.Reason, "margin below")
}

func TestRank_TieBreaks(t *testing.T) {
	s := New(DefaultConfig(), order)
	name := "Daou Reserve"
	url := func(id string) string { return "https://www.vivino.com/daou-reserve/w/" + id }

	t.Run("provider order", func(t *testing.T) {
		ranked := s.Rank(daou, []model.Candidate{cand(name, url("1"), "serper"), cand(name, url("2"), "google_cse")})
		require.Len(t, ranked, 2)
		assert.Equal(t, "google_cse", ranked[0].Candidate.Provider)
	})

	t.Run("more ratings", func(t *testing.T) {
		few := cand(name, url("1"), "serper")
		few.NumRatings = intPtr(10)
		many := cand(name, url("2"), "serper")
		many.NumRatings = intPtr(500)
		ranked := s.Rank(daou, []model.Candidate{few, many})
		assert.Equal(t, url("2"), ranked[0].Candidate.URL)
	})

	t.Run("url", func(t *testing.T) {
		ranked := s.Rank(daou, []model.Candidate{cand(name, url("b"), "serper"), cand(name, url("a"), "serper")})
		assert.Equal(t, url("a"), ranked[0].Candidate.URL)
	})

	t.Run("unknown provider last", func(t *testing.T) {
		ranked := s.Rank(daou, []model.Candidate{cand(name, url("1"), "bing"), cand(name, url("2"), "serper")})
		assert.Equal(t, "serper", ranked[0].Candidate.Provider)
	})
}

func TestNew_ZeroWeightsFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{}
	md := New(cfg, order).Score(daou, []model.Candidate{
		cand("Daou Vineyards Cabernet Sauvignon Reserve 2022", "https://www.vivino.com/daou-vineyards-cabernet-sauvignon-reserve/w/1?year=2022", "serper"),
	})
	assert.InDelta(t, 1.0, md.Confidence, 1e-9)
}

func TestSlugText(t *testing.T) {
	assert.Equal(t, "daou cabernet sauvignon", slugText("https://www.vivino.com/US/en/daou-cabernet-sauvignon/w/1234?year=2022"))
	assert.Equal(t, "opus one", slugText("https://example.com/wines/opus-one"))
	assert.Equal(t, "", slugText("https://example.com"))
}
