package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("brave", BreakerConfig{Threshold: threshold, Cooldown: cooldown})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")

	require.NoError(t, b.Allow())
	b.Record(boom)
	assert.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
	b.Record(boom)
	assert.Equal(t, StateOpen, b.State())

	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")

	b.Record(boom)
	b.Record(nil)
	b.Record(boom)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	boom := errors.New("boom")

	b.Record(boom)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow(), "probe allowed after cooldown")
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "only one probe in flight")

	b.Record(boom)
	assert.Equal(t, StateOpen, b.State(), "failed probe reopens")

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_CountsFilter(t *testing.T) {
	ignored := errors.New("not the provider's fault")
	b := NewBreaker("serper", BreakerConfig{
		Threshold: 1,
		Counts:    func(err error) bool { return !errors.Is(err, ignored) },
	})
	b.Record(ignored)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Disabled(t *testing.T) {
	b := NewBreaker("serper", BreakerConfig{})
	for range 10 {
		b.Record(errors.New("boom"))
	}
	assert.NoError(t, b.Allow())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	var changes []string
	b := NewBreaker("brave", BreakerConfig{
		Threshold: 1,
		OnStateChange: func(name string, from, to State) {
			changes = append(changes, name+":"+from.String()+"->"+to.String())
		},
	})
	b.Record(errors.New("boom"))
	assert.Equal(t, []string{"brave:closed->open"}, changes)
}

func TestBreakers_For(t *testing.T) {
	bs := NewBreakers(BreakerConfig{Threshold: 1})
	assert.Same(t, bs.For("brave"), bs.For("brave"))
	assert.NotSame(t, bs.For("brave"), bs.For("serper"))

	bs.For("serper").Record(errors.New("boom"))
	assert.Equal(t, []string{"serper"}, bs.Open())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestBreaker_CancelReleasesProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.Record(errors.New("boom"))
	*now = now.Add(time.Minute)

	require.NoError(t, b.Allow())
	b.Cancel()
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Allow(), "probe slot is free again")
}
