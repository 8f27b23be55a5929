package stream

import (
	"math"
	"math/rand"
	"time"

	"trade-scanner/src/models"
)

// -----------------------------------------------------------------------------
// Backoff with full jitter: the delay for attempt k is drawn uniformly
// from [0, min(maxMs, minMs * factor^(k-1))].
// -----------------------------------------------------------------------------

// BackoffCap returns the exponential ceiling for the given attempt
// (1-based).
func BackoffCap(cfg models.MBackoffConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	capMs := float64(cfg.MinMs) * math.Pow(cfg.Factor, float64(attempt-1))
	if capMs > float64(cfg.MaxMs) {
		capMs = float64(cfg.MaxMs)
	}
	return time.Duration(capMs) * time.Millisecond
}

// -----------------------------------------------------------------------------

// FullJitterDelay draws a random delay under the attempt's cap.
func FullJitterDelay(cfg models.MBackoffConfig, attempt int) time.Duration {
	ceiling := BackoffCap(cfg, attempt)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
