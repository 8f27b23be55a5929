package analysis

import (
	"trade-scanner/src/models"
)

// -----------------------------------------------------------------------------
// Indicator Engine
//
// Pure functions over bar series. Callers gate on history length; the
// functions themselves return (0, false) when the series is too short.
// -----------------------------------------------------------------------------

// Minimum history requirements.
const (
	MinBarsSMA200  = 200
	MinBarsDefault = 50
)

// Standard lookbacks.
const (
	RSILookback = 14
	ATRLookback = 14
)

// -----------------------------------------------------------------------------

// SMA returns the simple average of the last period closes.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}

// -----------------------------------------------------------------------------

// EMA returns the exponential moving average of the closes.
// Seed = simple average of the first period closes, then smooth with
// alpha = 2/(period+1) across the remainder of the series.
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	seed := 0.0
	for _, c := range closes[:period] {
		seed += c
	}
	ema := seed / float64(period)

	alpha := 2.0 / float64(period+1)
	for _, c := range closes[period:] {
		ema = (c-ema)*alpha + ema
	}
	return ema, true
}

// -----------------------------------------------------------------------------

// RSI returns the Relative Strength Index over the trailing period deltas.
// Average loss of zero yields 100; average gain of zero yields 0.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	window := closes[len(closes)-period-1:]
	gainSum, lossSum := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	if avgLoss == 0 {
		return 100, true
	}
	if avgGain == 0 {
		return 0, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// -----------------------------------------------------------------------------

// ATR returns the true range averaged over the trailing period bars.
func ATR(bars []models.MBar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}

	window := bars[len(bars)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1])
	}
	return sum / float64(period), true
}

// -----------------------------------------------------------------------------

func trueRange(cur, prev models.MBar) float64 {
	tr := cur.High - cur.Low
	if hc := abs(cur.High - prev.Close); hc > tr {
		tr = hc
	}
	if lc := abs(cur.Low - prev.Close); lc > tr {
		tr = lc
	}
	return tr
}

// -----------------------------------------------------------------------------

// SessionVWAP returns the volume-weighted typical price across the
// supplied bar group.
func SessionVWAP(bars []models.MBar) (float64, bool) {
	if len(bars) == 0 {
		return 0, false
	}

	pvSum, volSum := 0.0, 0.0
	for _, b := range bars {
		pvSum += b.TypicalPrice() * b.Volume
		volSum += b.Volume
	}
	if volSum == 0 {
		return 0, false
	}
	return pvSum / volSum, true
}

// -----------------------------------------------------------------------------

// ComputeIndicators builds the indicator snapshot for a 1-unit bar series.
// Fields stay nil until enough history exists: 200 bars for SMA200, 50
// for everything else.
func ComputeIndicators(bars []models.MBar) models.MIndicators {
	var ind models.MIndicators
	if len(bars) < MinBarsDefault {
		return ind
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	if v, ok := EMA(closes, 9); ok {
		ind.EMA9 = &v
	}
	if v, ok := EMA(closes, 21); ok {
		ind.EMA21 = &v
	}
	if v, ok := EMA(closes, 50); ok {
		ind.EMA50 = &v
	}
	if len(bars) >= MinBarsSMA200 {
		if v, ok := SMA(closes, 200); ok {
			ind.SMA200 = &v
		}
	}
	if v, ok := RSI(closes, RSILookback); ok {
		ind.RSI14 = &v
	}
	if v, ok := ATR(bars, ATRLookback); ok {
		ind.ATR = &v
	}
	if v, ok := SessionVWAP(bars); ok {
		ind.VWAP = &v
	}

	return ind
}

// -----------------------------------------------------------------------------

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
