package detector

import (
	"testing"

	"trade-scanner/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func seqBar(i int) models.MBar {
	f := float64(i)
	return models.MBar{
		Symbol:    "TEST",
		Timestamp: int64(i) * 60_000,
		Open:      f,
		High:      f + 1,
		Low:       f - 1,
		Close:     f,
		Volume:    10 * f,
	}
}

// -----------------------------------------------------------------------------

func TestBarAggregatorFolding(t *testing.T) {
	t.Run("folds every 5th bar", func(t *testing.T) {
		a := NewBarAggregator(500, 200, 100)
		for i := 1; i <= 12; i++ {
			a.ProcessBar(seqBar(i))
		}

		require.Len(t, a.Bars1(), 12)
		require.Len(t, a.Bars5(), 2)
		require.Empty(t, a.Bars60())
	})

	t.Run("folded bar carries group OHLCV", func(t *testing.T) {
		a := NewBarAggregator(500, 200, 100)
		for i := 1; i <= 5; i++ {
			a.ProcessBar(seqBar(i))
		}

		folded := a.Bars5()[0]
		require.Equal(t, seqBar(1).Timestamp, folded.Timestamp)
		require.InDelta(t, 1.0, folded.Open, 1e-9)
		require.InDelta(t, 6.0, folded.High, 1e-9)
		require.InDelta(t, 0.0, folded.Low, 1e-9)
		require.InDelta(t, 5.0, folded.Close, 1e-9)
		require.InDelta(t, 150.0, folded.Volume, 1e-9)
		// Typical price of bar i is i, so the group VWAP is
		// sum(i^2)/sum(i) = 55/15
		require.InDelta(t, 55.0/15.0, folded.VWAP, 1e-9)
	})

	t.Run("folds every 60th bar", func(t *testing.T) {
		a := NewBarAggregator(500, 200, 100)
		for i := 1; i <= 60; i++ {
			a.ProcessBar(seqBar(i))
		}

		require.Len(t, a.Bars5(), 12)
		require.Len(t, a.Bars60(), 1)

		hourly := a.Bars60()[0]
		require.InDelta(t, 1.0, hourly.Open, 1e-9)
		require.InDelta(t, 60.0, hourly.Close, 1e-9)
		require.InDelta(t, 61.0, hourly.High, 1e-9)
		require.InDelta(t, 0.0, hourly.Low, 1e-9)
	})

	t.Run("buffers are capped but fold counting survives", func(t *testing.T) {
		// cap1 of 10 discards old bars while the lifetime counter keeps
		// folding on every 5th arrival
		a := NewBarAggregator(10, 3, 100)
		for i := 1; i <= 25; i++ {
			a.ProcessBar(seqBar(i))
		}

		require.Len(t, a.Bars1(), 10)
		require.Len(t, a.Bars5(), 3)
		// The oldest folded bar got evicted: the survivors cover bars
		// 11-15, 16-20 and 21-25
		require.InDelta(t, 15.0, a.Bars5()[0].Close, 1e-9)
		require.InDelta(t, 25.0, a.Bars5()[2].Close, 1e-9)
	})
}
