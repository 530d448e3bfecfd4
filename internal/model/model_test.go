package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Color
	}{
		{"red", ColorRed},
		{"white", ColorWhite},
		{"rose", ColorRose},
		{"rosado", ColorRose},
		{"sparkling", ColorSparkling},
		{"orange", ColorUnknown},
		{"", ColorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseColor(tt.in))
		})
	}
}

func TestColorKnown(t *testing.T) {
	assert.True(t, ColorRed.Known())
	assert.False(t, ColorUnknown.Known())
	assert.False(t, Color("").Known())
}

func TestDescriptorYear(t *testing.T) {
	d := Descriptor{Year: 2022}
	assert.True(t, d.HasYear())
	assert.Equal(t, "2022", d.YearString())

	d.Year = 0
	assert.False(t, d.HasYear())
	assert.Empty(t, d.YearString())
}

func TestCandidateProvenance(t *testing.T) {
	c := Candidate{Name: "Opus One", URL: "https://www.vivino.com/opus-one/w/1"}

	stamped := c.WithProvenance("serper", 2, "opus one")
	assert.Equal(t, "serper", stamped.Provider)
	assert.Equal(t, 2, stamped.QueryRank)
	assert.Equal(t, "opus one", stamped.Query)
	assert.Empty(t, c.Provider, "original is not modified")

	assert.Equal(t, c, stamped.StripProvenance())
}

func TestMatchDecisionMargin(t *testing.T) {
	md := MatchDecision{Confidence: 0.9, RunnerUp: 0.75}
	assert.InDelta(t, 0.15, md.Margin(), 1e-9)
}

func TestOverrideRecordKey(t *testing.T) {
	assert.Equal(t, "Opus One 2019", OverrideRecord{MatchName: "  Opus One 2019 "}.Key())
}

func TestRunStateSeen(t *testing.T) {
	s := NewRunState()
	s.Processed["Opus One 2019"] = ProcessedEntry{RawName: "Opus One 2019", ProcessedAt: time.Now()}
	s.Processed["Caymus 2021"] = ProcessedEntry{RawName: "Caymus 2021", HadOverride: true}

	assert.True(t, s.Seen("Opus One 2019", false))
	assert.True(t, s.Seen(" Opus One 2019 ", false))
	assert.False(t, s.Seen("Opus One 2019", true), "override added since")
	assert.False(t, s.Seen("Caymus 2021", false), "override removed since")
	assert.False(t, s.Seen("Unknown", false))

	var nilState *RunState
	assert.False(t, nilState.Seen("Opus One 2019", false))
}
