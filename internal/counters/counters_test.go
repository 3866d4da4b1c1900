package counters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sample(fill int64) []int64 {
	s := make([]int64, NumMetrics)
	for i := range s {
		s[i] = fill
	}
	return s
}

func TestStatsZeroBeforeAnyUpdate(t *testing.T) {
	w := NewWindow()
	assert.Equal(t, SessionStats{}, w.Stats())
}

func TestStatsZeroOnShortSample(t *testing.T) {
	w := NewWindow()
	w.Update([]int64{1, 2, 3}, 1_000_000)
	assert.Equal(t, SessionStats{}, w.Stats())
}

func TestRateZeroUntilPreviousPopulated(t *testing.T) {
	w := NewWindow()
	w.Update(sample(100), 10_000_000)
	// Only one real sample recorded so far; previous is a stale empty slice.
	assert.Equal(t, float64(0), w.Rate(NetRecvBytes))
}

func TestRateComputesAfterTwoSamples(t *testing.T) {
	w := NewWindow()
	s1 := sample(0)
	s1[NetRecvBytes] = 1000
	w.Update(s1, 10_000_000)

	s2 := sample(0)
	s2[NetRecvBytes] = 3000
	w.Update(s2, 20_000_000) // +10s, well past the 2s swap gate

	got := w.Rate(NetRecvBytes)
	assert.InDelta(t, 200.0, got, 0.001) // (3000-1000)/10s
}

func TestPreviousHoldsUntilGapExceeded(t *testing.T) {
	w := NewWindow()
	s1 := sample(0)
	s1[NetRecvBytes] = 1000
	w.Update(s1, 10_000_000)

	s2 := sample(0)
	s2[NetRecvBytes] = 2000
	w.Update(s2, 11_000_000) // first real baseline: previous becomes s1 (t=10_000_000)

	s3 := sample(0)
	s3[NetRecvBytes] = 2100
	// Only 1.5s after the previous baseline's timestamp (10_000_000):
	// below the 2s gate, so previous should not advance to s2 yet.
	w.Update(s3, 11_500_000)

	// previous is still s1 (t=10_000_000), current is s3 (t=11_500_000).
	got := w.Rate(NetRecvBytes)
	assert.InDelta(t, (2100.0-1000.0)/1.5, got, 0.001)
}

func TestSessionStatsDerivesGaugesAndRates(t *testing.T) {
	w := NewWindow()
	s1 := sample(0)
	s1[NumDownloadingTorrents] = 3
	s1[NetRecvBytes] = 0
	w.Update(s1, 1_000_000)

	s2 := sample(0)
	s2[NumDownloadingTorrents] = 5
	s2[NetRecvBytes] = 5000
	w.Update(s2, 6_000_000)

	st := w.Stats()
	assert.Equal(t, int64(5), st.NumDownloadingTorrents)
	assert.InDelta(t, 1000.0, st.DownloadRate, 0.001)
}
