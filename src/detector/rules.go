package detector

import (
	"math"

	"trade-scanner/src/models"
)

// -----------------------------------------------------------------------------
// Detection Rules
//
// Each rule independently inspects the current bar context and may
// propose a setup. Proposals are gated afterwards by the per-rule
// minimum confluence-factor count.
// -----------------------------------------------------------------------------

// Default per-rule minimum present-factor gates. Empirically chosen per
// rule; kept configurable rather than unified.
var defaultRuleMinFactors = map[string]int{
	models.SetupOpeningRange:   3,
	models.SetupEMABounce:      3,
	models.SetupVWAPCross:      2,
	models.SetupEMACloud:       2,
	models.SetupFibRetracement: 2,
	models.SetupBarBreakout:    3,
}

// Tunables shared across rules.
const (
	openingRangeBars  = 5
	breakoutLookback  = 20
	fibSwingBars      = 10
	fibProximity      = 0.0025 // 0.25% of price
	vwapProximity     = 0.005  // 0.5% of price
	breakoutVolumeMul = 1.2
	fallbackRiskPct   = 0.005
	minRiskFloor      = 0.01
)

// -----------------------------------------------------------------------------

// ruleContext is the read-only view handed to every rule.
type ruleContext struct {
	bar         models.MBar
	bars1       []models.MBar // newest last, includes bar
	bars5       []models.MBar
	bars60      []models.MBar
	ind         models.MIndicators
	sessionOpen int64
}

// ruleProposal is a candidate setup before confluence gating.
type ruleProposal struct {
	setupType string
	direction string
	entry     float64
	stop      float64
	targets   []float64
}

type ruleFunc func(ctx *ruleContext) (ruleProposal, bool)

var allRules = []ruleFunc{
	ruleOpeningRangeBreakout,
	ruleEMABounce,
	ruleVWAPCross,
	ruleEMACloud,
	ruleFibRetracement,
	ruleBarBreakout,
}

// -----------------------------------------------------------------------------

// riskLevels derives stop and targets from the entry. ATR-scaled when
// available; a percentage heuristic otherwise. The risk denominator is
// floored so a flat series can never produce a zero-distance stop.
func riskLevels(direction string, entry float64, ind models.MIndicators) (float64, []float64) {
	var risk float64
	if ind.ATR != nil && *ind.ATR > 0 {
		risk = 1.5 * *ind.ATR
	} else {
		risk = entry * fallbackRiskPct
	}
	if risk < minRiskFloor {
		risk = minRiskFloor
	}

	unit := risk / 1.5
	if direction == models.DirectionLong {
		return entry - risk, []float64{entry + unit, entry + 2*unit}
	}
	return entry + risk, []float64{entry - unit, entry - 2*unit}
}

// -----------------------------------------------------------------------------
// Opening-range breakout with "patient candle" containment: the prior
// bar must sit fully inside the range of the bar before it before a
// breakout of the session's opening range counts.
// -----------------------------------------------------------------------------

func ruleOpeningRangeBreakout(ctx *ruleContext) (ruleProposal, bool) {
	session := sessionBars(ctx.bars1, ctx.sessionOpen)
	if len(session) < openingRangeBars+3 {
		return ruleProposal{}, false
	}

	rangeHigh := session[0].High
	rangeLow := session[0].Low
	for _, b := range session[:openingRangeBars] {
		if b.High > rangeHigh {
			rangeHigh = b.High
		}
		if b.Low < rangeLow {
			rangeLow = b.Low
		}
	}

	n := len(ctx.bars1)
	prev := ctx.bars1[n-2]
	ref := ctx.bars1[n-3]
	patient := prev.High <= ref.High && prev.Low >= ref.Low
	if !patient {
		return ruleProposal{}, false
	}

	var direction string
	switch {
	case ctx.bar.Close > rangeHigh:
		direction = models.DirectionLong
	case ctx.bar.Close < rangeLow:
		direction = models.DirectionShort
	default:
		return ruleProposal{}, false
	}

	entry := ctx.bar.Close
	stop, targets := riskLevels(direction, entry, ctx.ind)
	return ruleProposal{models.SetupOpeningRange, direction, entry, stop, targets}, true
}

// -----------------------------------------------------------------------------
// EMA(9/21) bounce with higher-timeframe alignment: price tags the fast
// EMA inside an established trend and closes back on the trend side,
// while the 5-unit series agrees with the direction.
// -----------------------------------------------------------------------------

func ruleEMABounce(ctx *ruleContext) (ruleProposal, bool) {
	if ctx.ind.EMA9 == nil || ctx.ind.EMA21 == nil || len(ctx.bars5) < 2 {
		return ruleProposal{}, false
	}
	ema9 := *ctx.ind.EMA9
	ema21 := *ctx.ind.EMA21

	htfPrev := ctx.bars5[len(ctx.bars5)-2]
	htfLast := ctx.bars5[len(ctx.bars5)-1]

	if ema9 > ema21 && htfLast.Close > htfPrev.Close {
		// Uptrend: the bar must dip to the fast EMA and reclaim it.
		if ctx.bar.Low <= ema9 && ctx.bar.Close > ema9 {
			entry := ctx.bar.Close
			stop, targets := riskLevels(models.DirectionLong, entry, ctx.ind)
			return ruleProposal{models.SetupEMABounce, models.DirectionLong, entry, stop, targets}, true
		}
	}

	if ema9 < ema21 && htfLast.Close < htfPrev.Close {
		if ctx.bar.High >= ema9 && ctx.bar.Close < ema9 {
			entry := ctx.bar.Close
			stop, targets := riskLevels(models.DirectionShort, entry, ctx.ind)
			return ruleProposal{models.SetupEMABounce, models.DirectionShort, entry, stop, targets}, true
		}
	}

	return ruleProposal{}, false
}

// -----------------------------------------------------------------------------
// VWAP proximity cross: the close steps over the session VWAP while the
// prior close sat on the other side, within a tight proximity band.
// -----------------------------------------------------------------------------

func ruleVWAPCross(ctx *ruleContext) (ruleProposal, bool) {
	if ctx.ind.VWAP == nil || len(ctx.bars1) < 2 {
		return ruleProposal{}, false
	}
	vwap := *ctx.ind.VWAP
	prev := ctx.bars1[len(ctx.bars1)-2]

	if math.Abs(ctx.bar.Close-vwap) > vwap*vwapProximity {
		return ruleProposal{}, false
	}

	var direction string
	switch {
	case prev.Close <= vwap && ctx.bar.Close > vwap:
		direction = models.DirectionLong
	case prev.Close >= vwap && ctx.bar.Close < vwap:
		direction = models.DirectionShort
	default:
		return ruleProposal{}, false
	}

	entry := ctx.bar.Close
	stop, targets := riskLevels(direction, entry, ctx.ind)
	return ruleProposal{models.SetupVWAPCross, direction, entry, stop, targets}, true
}

// -----------------------------------------------------------------------------
// EMA-cloud positioning: the close escapes the 9/21 band after the
// prior close sat inside it.
// -----------------------------------------------------------------------------

func ruleEMACloud(ctx *ruleContext) (ruleProposal, bool) {
	if ctx.ind.EMA9 == nil || ctx.ind.EMA21 == nil || len(ctx.bars1) < 2 {
		return ruleProposal{}, false
	}
	top := math.Max(*ctx.ind.EMA9, *ctx.ind.EMA21)
	bottom := math.Min(*ctx.ind.EMA9, *ctx.ind.EMA21)
	prev := ctx.bars1[len(ctx.bars1)-2]

	prevInside := prev.Close <= top && prev.Close >= bottom
	if !prevInside {
		return ruleProposal{}, false
	}

	var direction string
	switch {
	case ctx.bar.Close > top:
		direction = models.DirectionLong
	case ctx.bar.Close < bottom:
		direction = models.DirectionShort
	default:
		return ruleProposal{}, false
	}

	entry := ctx.bar.Close
	stop, targets := riskLevels(direction, entry, ctx.ind)
	return ruleProposal{models.SetupEMACloud, direction, entry, stop, targets}, true
}

// -----------------------------------------------------------------------------
// Fibonacci retracement proximity: price revisits the 0.5 or 0.618
// retracement of the latest 10-bar swing in the direction of that swing.
// -----------------------------------------------------------------------------

func ruleFibRetracement(ctx *ruleContext) (ruleProposal, bool) {
	if len(ctx.bars1) < fibSwingBars {
		return ruleProposal{}, false
	}
	swing := ctx.bars1[len(ctx.bars1)-fibSwingBars:]

	high := swing[0].High
	low := swing[0].Low
	for _, b := range swing {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	span := high - low
	if span <= 0 {
		return ruleProposal{}, false
	}

	up := swing[len(swing)-1].Close > swing[0].Close

	var levels [2]float64
	if up {
		levels = [2]float64{high - 0.5*span, high - 0.618*span}
	} else {
		levels = [2]float64{low + 0.5*span, low + 0.618*span}
	}

	near := false
	for _, lvl := range levels {
		if math.Abs(ctx.bar.Close-lvl) <= ctx.bar.Close*fibProximity {
			near = true
			break
		}
	}
	if !near {
		return ruleProposal{}, false
	}

	direction := models.DirectionShort
	if up {
		direction = models.DirectionLong
	}
	entry := ctx.bar.Close
	stop, targets := riskLevels(direction, entry, ctx.ind)
	return ruleProposal{models.SetupFibRetracement, direction, entry, stop, targets}, true
}

// -----------------------------------------------------------------------------
// N-bar breakout/breakdown with above-average volume.
// -----------------------------------------------------------------------------

func ruleBarBreakout(ctx *ruleContext) (ruleProposal, bool) {
	if len(ctx.bars1) < breakoutLookback+1 {
		return ruleProposal{}, false
	}

	// Lookback window excludes the current bar.
	window := ctx.bars1[len(ctx.bars1)-breakoutLookback-1 : len(ctx.bars1)-1]

	high := window[0].High
	low := window[0].Low
	volSum := 0.0
	for _, b := range window {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		volSum += b.Volume
	}
	avgVol := volSum / float64(len(window))

	if ctx.bar.Volume <= avgVol*breakoutVolumeMul {
		return ruleProposal{}, false
	}

	var direction string
	switch {
	case ctx.bar.Close > high:
		direction = models.DirectionLong
	case ctx.bar.Close < low:
		direction = models.DirectionShort
	default:
		return ruleProposal{}, false
	}

	entry := ctx.bar.Close
	stop, targets := riskLevels(direction, entry, ctx.ind)
	return ruleProposal{models.SetupBarBreakout, direction, entry, stop, targets}, true
}

// -----------------------------------------------------------------------------

// sessionBars filters the 1-unit series down to bars at or after the
// session open.
func sessionBars(bars []models.MBar, sessionOpen int64) []models.MBar {
	if sessionOpen <= 0 {
		return bars
	}
	for i, b := range bars {
		if b.Timestamp >= sessionOpen {
			return bars[i:]
		}
	}
	return nil
}
