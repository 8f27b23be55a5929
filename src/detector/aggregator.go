package detector

import (
	"trade-scanner/src/analysis"
	"trade-scanner/src/models"
	"trade-scanner/src/utils"
)

// -----------------------------------------------------------------------------
// BarAggregator
//
// Folds a bounded 1-unit bar buffer into bounded 5-unit and 60-unit
// buffers for one symbol. Folding recomputes from the trailing window
// each time rather than incrementally; the windows are capped, so the
// cost is bounded.
// -----------------------------------------------------------------------------

type BarAggregator struct {
	bars1  *utils.BarBuffer
	bars5  *utils.BarBuffer
	bars60 *utils.BarBuffer
}

// -----------------------------------------------------------------------------

func NewBarAggregator(cap1, cap5, cap60 int) *BarAggregator {
	return &BarAggregator{
		bars1:  utils.NewBarBuffer(cap1),
		bars5:  utils.NewBarBuffer(cap5),
		bars60: utils.NewBarBuffer(cap60),
	}
}

// -----------------------------------------------------------------------------

// ProcessBar appends a 1-unit bar and folds the trailing windows on
// every 5th and 60th bar.
func (a *BarAggregator) ProcessBar(bar models.MBar) {
	a.bars1.Append(bar)

	total := a.bars1.Total()
	if total%5 == 0 {
		a.bars5.Append(foldBars(a.bars1.GetLatest(5)))
	}
	if total%60 == 0 {
		a.bars60.Append(foldBars(a.bars1.GetLatest(60)))
	}
}

// -----------------------------------------------------------------------------

// foldBars collapses a group of bars into one: open from the first,
// close from the last, high/low extremes, summed volume, and the
// volume-weighted typical price of the group.
func foldBars(group []models.MBar) models.MBar {
	folded := models.MBar{
		Symbol:    group[0].Symbol,
		Timestamp: group[0].Timestamp,
		Open:      group[0].Open,
		High:      group[0].High,
		Low:       group[0].Low,
		Close:     group[len(group)-1].Close,
	}

	for _, b := range group {
		if b.High > folded.High {
			folded.High = b.High
		}
		if b.Low < folded.Low {
			folded.Low = b.Low
		}
		folded.Volume += b.Volume
	}

	if vwap, ok := analysis.SessionVWAP(group); ok {
		folded.VWAP = vwap
	}

	return folded
}

// -----------------------------------------------------------------------------
// Accessors return copies; the buffers stay owned by the aggregator.
// -----------------------------------------------------------------------------

func (a *BarAggregator) Bars1() []models.MBar {
	return a.bars1.GetAll()
}

func (a *BarAggregator) Bars5() []models.MBar {
	return a.bars5.GetAll()
}

func (a *BarAggregator) Bars60() []models.MBar {
	return a.bars60.GetAll()
}
