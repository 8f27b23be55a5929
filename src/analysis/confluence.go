package analysis

import (
	"trade-scanner/src/models"
)

// -----------------------------------------------------------------------------
// Confluence Evaluator
//
// Scores a fixed, ordered set of boolean factors for a direction
// hypothesis against a static weight table. The weights sum to at most
// 100; the confidence total is the sum of present weights, capped at 100.
// -----------------------------------------------------------------------------

// Factor names, in evaluation order.
const (
	FactorTrendAlign   = "trend_alignment"
	FactorPriceVsVWAP  = "price_vs_vwap"
	FactorRSIMomentum  = "rsi_momentum"
	FactorVolumeSurge  = "volume_surge"
	FactorHigherTF     = "higher_tf_trend"
	FactorATRExpansion = "atr_expansion"
)

var factorOrder = []string{
	FactorTrendAlign,
	FactorPriceVsVWAP,
	FactorRSIMomentum,
	FactorVolumeSurge,
	FactorHigherTF,
	FactorATRExpansion,
}

// defaultWeights sum to exactly 100.
var defaultWeights = map[string]int{
	FactorTrendAlign:   20,
	FactorPriceVsVWAP:  15,
	FactorRSIMomentum:  15,
	FactorVolumeSurge:  15,
	FactorHigherTF:     20,
	FactorATRExpansion: 15,
}

// Volume surge threshold relative to the trailing average.
const volumeSurgeRatio = 1.5

// -----------------------------------------------------------------------------

type ConfluenceEvaluator struct {
	weights map[string]int
}

// -----------------------------------------------------------------------------

// NewConfluenceEvaluator builds an evaluator. Weights from the config
// override the defaults per factor; unknown names are ignored.
func NewConfluenceEvaluator(overrides map[string]int) *ConfluenceEvaluator {
	weights := make(map[string]int, len(defaultWeights))
	for name, w := range defaultWeights {
		weights[name] = w
	}
	for name, w := range overrides {
		if _, ok := weights[name]; ok {
			weights[name] = w
		}
	}
	return &ConfluenceEvaluator{weights: weights}
}

// -----------------------------------------------------------------------------

// CalculateConfluence evaluates every factor for the given direction.
// recentBars is the 1-unit series (newest last), higherBars the 5-unit
// series; ind is the current indicator snapshot.
func (e *ConfluenceEvaluator) CalculateConfluence(
	direction string,
	currentBar models.MBar,
	recentBars []models.MBar,
	higherBars []models.MBar,
	ind models.MIndicators,
) models.MConfidenceBreakdown {
	long := direction == models.DirectionLong

	factors := make([]models.MConfluenceFactor, 0, len(factorOrder))
	total := 0

	for _, name := range factorOrder {
		f := models.MConfluenceFactor{Name: name}

		switch name {
		case FactorTrendAlign:
			if ind.EMA9 != nil && ind.EMA21 != nil {
				f.Value = *ind.EMA9 - *ind.EMA21
				f.Present = (long && *ind.EMA9 > *ind.EMA21) || (!long && *ind.EMA9 < *ind.EMA21)
			}

		case FactorPriceVsVWAP:
			if ind.VWAP != nil {
				f.Value = currentBar.Close - *ind.VWAP
				f.Present = (long && currentBar.Close > *ind.VWAP) || (!long && currentBar.Close < *ind.VWAP)
			}

		case FactorRSIMomentum:
			if ind.RSI14 != nil {
				f.Value = *ind.RSI14
				f.Present = (long && *ind.RSI14 > 50) || (!long && *ind.RSI14 < 50)
			}

		case FactorVolumeSurge:
			avg := averageVolume(recentBars, 20)
			if avg > 0 {
				f.Value = currentBar.Volume / avg
				f.Present = f.Value >= volumeSurgeRatio
			}

		case FactorHigherTF:
			if len(higherBars) >= 2 {
				prev := higherBars[len(higherBars)-2]
				last := higherBars[len(higherBars)-1]
				f.Value = last.Close - prev.Close
				f.Present = (long && last.Close > prev.Close) || (!long && last.Close < prev.Close)
			}

		case FactorATRExpansion:
			if ind.ATR != nil && len(recentBars) >= 2 {
				prev := recentBars[len(recentBars)-2]
				tr := trueRange(currentBar, prev)
				f.Value = tr
				f.Present = tr > *ind.ATR
			}
		}

		if f.Present {
			total += e.weights[name]
		}
		factors = append(factors, f)
	}

	if total > 100 {
		total = 100
	}

	return models.MConfidenceBreakdown{Total: total, PerFactor: factors}
}

// -----------------------------------------------------------------------------

// averageVolume averages the volume of up to period bars preceding the
// latest one.
func averageVolume(bars []models.MBar, period int) float64 {
	if len(bars) < 2 {
		return 0
	}

	// Exclude the newest bar: it is the one being compared.
	window := bars[:len(bars)-1]
	if len(window) > period {
		window = window[len(window)-period:]
	}

	sum := 0.0
	for _, b := range window {
		sum += b.Volume
	}
	return sum / float64(len(window))
}
