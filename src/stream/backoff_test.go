package stream

import (
	"testing"
	"time"

	"trade-scanner/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

var backoffCfg = models.MBackoffConfig{
	MinMs:       1000,
	MaxMs:       60000,
	Factor:      2.0,
	MaxAttempts: 10,
}

// -----------------------------------------------------------------------------

func TestBackoffCap(t *testing.T) {
	t.Run("grows exponentially", func(t *testing.T) {
		require.Equal(t, 1*time.Second, BackoffCap(backoffCfg, 1))
		require.Equal(t, 2*time.Second, BackoffCap(backoffCfg, 2))
		require.Equal(t, 4*time.Second, BackoffCap(backoffCfg, 3))
		require.Equal(t, 32*time.Second, BackoffCap(backoffCfg, 6))
	})

	t.Run("saturates at the ceiling", func(t *testing.T) {
		require.Equal(t, 60*time.Second, BackoffCap(backoffCfg, 7))
		require.Equal(t, 60*time.Second, BackoffCap(backoffCfg, 50))
	})

	t.Run("attempts below one clamp to the first cap", func(t *testing.T) {
		require.Equal(t, 1*time.Second, BackoffCap(backoffCfg, 0))
		require.Equal(t, 1*time.Second, BackoffCap(backoffCfg, -3))
	})
}

// -----------------------------------------------------------------------------

func TestFullJitterDelay(t *testing.T) {
	t.Run("stays within the attempt cap", func(t *testing.T) {
		for attempt := 1; attempt <= 12; attempt++ {
			ceiling := BackoffCap(backoffCfg, attempt)
			for i := 0; i < 50; i++ {
				d := FullJitterDelay(backoffCfg, attempt)
				require.GreaterOrEqual(t, d, time.Duration(0))
				require.LessOrEqual(t, d, ceiling)
			}
		}
	})

	t.Run("zero config yields zero delay", func(t *testing.T) {
		require.Equal(t, time.Duration(0), FullJitterDelay(models.MBackoffConfig{}, 1))
	})
}
