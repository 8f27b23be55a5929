package utils

import (
	"testing"

	"trade-scanner/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func closeBar(c float64) models.MBar {
	return models.MBar{Close: c}
}

// -----------------------------------------------------------------------------

func TestBarBuffer(t *testing.T) {
	t.Run("fills in insertion order", func(t *testing.T) {
		bb := NewBarBuffer(5)
		for i := 1; i <= 3; i++ {
			bb.Append(closeBar(float64(i)))
		}

		require.Equal(t, 3, bb.Size())
		require.Equal(t, 3, bb.Total())
		require.False(t, bb.IsFull())

		all := bb.GetAll()
		require.Len(t, all, 3)
		require.Equal(t, 1.0, all[0].Close)
		require.Equal(t, 3.0, all[2].Close)
	})

	t.Run("drops oldest on overflow", func(t *testing.T) {
		bb := NewBarBuffer(3)
		for i := 1; i <= 5; i++ {
			bb.Append(closeBar(float64(i)))
		}

		require.Equal(t, 3, bb.Size())
		require.Equal(t, 5, bb.Total())
		require.True(t, bb.IsFull())

		all := bb.GetAll()
		require.Equal(t, []float64{3, 4, 5}, []float64{all[0].Close, all[1].Close, all[2].Close})
	})

	t.Run("latest window is oldest-first", func(t *testing.T) {
		bb := NewBarBuffer(10)
		for i := 1; i <= 7; i++ {
			bb.Append(closeBar(float64(i)))
		}

		latest := bb.GetLatest(3)
		require.Len(t, latest, 3)
		require.Equal(t, 5.0, latest[0].Close)
		require.Equal(t, 7.0, latest[2].Close)

		// Asking for more than available returns everything
		require.Len(t, bb.GetLatest(100), 7)
		require.Empty(t, bb.GetLatest(0))
	})

	t.Run("last bar", func(t *testing.T) {
		bb := NewBarBuffer(3)
		_, ok := bb.Last()
		require.False(t, ok)

		bb.Append(closeBar(1))
		bb.Append(closeBar(2))
		last, ok := bb.Last()
		require.True(t, ok)
		require.Equal(t, 2.0, last.Close)
	})

	t.Run("clear resets lifetime counter", func(t *testing.T) {
		bb := NewBarBuffer(3)
		for i := 0; i < 5; i++ {
			bb.Append(closeBar(float64(i)))
		}
		bb.Clear()

		require.Equal(t, 0, bb.Size())
		require.Equal(t, 0, bb.Total())
		require.Empty(t, bb.GetAll())
	})

	t.Run("non-positive capacity falls back to the default", func(t *testing.T) {
		bb := NewBarBuffer(0)
		require.Equal(t, 500, bb.Capacity())
	})
}
