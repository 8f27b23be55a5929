package detector

import (
	"fmt"
	"time"

	"trade-scanner/src/analysis"
	"trade-scanner/src/logger"
	"trade-scanner/src/models"
	"trade-scanner/src/utils"
)

// -----------------------------------------------------------------------------
// SymbolDetector
//
// Per-symbol orchestrator: on each bar it re-aggregates, recomputes the
// indicator snapshot, runs the detection rules and manages the Setup
// lifecycle. The setup map is owned exclusively by the detector;
// accessors hand out copies.
// -----------------------------------------------------------------------------

type SymbolDetector struct {
	symbol    string
	agg       *BarAggregator
	evaluator *analysis.ConfluenceEvaluator
	calendar  *utils.TradingCalendar
	logger    *logger.Logger

	minVolume  float64
	minFactors map[string]int

	setups  []*models.MSetup
	counter int
	ind     models.MIndicators

	emit func(models.MSetupEvent)
}

// -----------------------------------------------------------------------------

func NewSymbolDetector(
	symbol string,
	cfg models.MDetectorConfig,
	calendar *utils.TradingCalendar,
	evaluator *analysis.ConfluenceEvaluator,
	log *logger.Logger,
	emit func(models.MSetupEvent),
) *SymbolDetector {
	minFactors := make(map[string]int, len(defaultRuleMinFactors))
	for rule, min := range defaultRuleMinFactors {
		minFactors[rule] = min
	}
	for rule, min := range cfg.RuleMinFactors {
		if _, ok := minFactors[rule]; ok {
			minFactors[rule] = min
		}
	}

	return &SymbolDetector{
		symbol:     symbol,
		agg:        NewBarAggregator(cfg.BufferCap1, cfg.BufferCap5, cfg.BufferCap60),
		evaluator:  evaluator,
		calendar:   calendar,
		logger:     log,
		minVolume:  cfg.MinVolume,
		minFactors: minFactors,
		emit:       emit,
	}
}

// -----------------------------------------------------------------------------

// ProcessBar folds the bar into the aggregation buffers, refreshes the
// indicator snapshot and evaluates the detection rules. Bars under the
// minimum volume are aggregated but never shown to the rules.
func (d *SymbolDetector) ProcessBar(bar models.MBar) {
	d.agg.ProcessBar(bar)

	bars1 := d.agg.Bars1()
	d.ind = analysis.ComputeIndicators(bars1)

	if bar.Volume < d.minVolume {
		d.logger.Debug("%s: bar volume %.0f under minimum %.0f, skipping detection", d.symbol, bar.Volume, d.minVolume)
		return
	}

	ctx := &ruleContext{
		bar:         bar,
		bars1:       bars1,
		bars5:       d.agg.Bars5(),
		bars60:      d.agg.Bars60(),
		ind:         d.ind,
		sessionOpen: d.sessionOpen(bar.Timestamp),
	}

	for _, rule := range allRules {
		proposal, ok := rule(ctx)
		if !ok {
			continue
		}

		breakdown := d.evaluator.CalculateConfluence(proposal.direction, bar, ctx.bars1, ctx.bars5, d.ind)
		if breakdown.PresentCount() < d.minFactors[proposal.setupType] {
			continue
		}

		// One live setup per (type, direction) at a time.
		if d.hasOpenSetup(proposal.setupType, proposal.direction) {
			continue
		}

		d.createSetup(proposal, breakdown, bar.Timestamp)
	}
}

// -----------------------------------------------------------------------------

// ProcessTrade re-evaluates open setups against the trade price.
func (d *SymbolDetector) ProcessTrade(trade models.MTrade) {
	d.UpdateSetups(trade.Price, trade.Timestamp)
}

// -----------------------------------------------------------------------------

// UpdateSetups walks every non-terminal setup: forming setups activate
// when price crosses the entry, active setups check unhit targets in
// order, and a stop hit closes the setup for good. Multiple targets may
// fire across successive calls.
func (d *SymbolDetector) UpdateSetups(price float64, ts int64) {
	for _, s := range d.setups {
		if s.IsTerminal() {
			continue
		}

		long := s.Direction == models.DirectionLong
		changed := false

		if s.Status == models.SetupStatusForming {
			if (long && price >= s.Entry) || (!long && price <= s.Entry) {
				s.Status = models.SetupStatusActive
				changed = true
			}
		}

		if s.Status == models.SetupStatusActive {
			// Stop first: a stop hit is terminal regardless of targets.
			if (long && price <= s.Stop) || (!long && price >= s.Stop) {
				s.Status = models.SetupStatusClosed
				s.LastUpdate = ts
				d.emit(models.MSetupEvent{Action: "closed", Setup: *s})
				continue
			}

			for i, target := range s.Targets {
				if s.TargetsHit[i] {
					continue
				}
				if (long && price >= target) || (!long && price <= target) {
					s.TargetsHit[i] = true
					changed = true
				}
			}

			if allHit(s.TargetsHit) {
				s.Status = models.SetupStatusClosed
			}
		}

		if changed {
			s.LastUpdate = ts
			action := "updated"
			if s.Status == models.SetupStatusClosed {
				action = "closed"
			}
			d.emit(models.MSetupEvent{Action: action, Setup: *s})
		}
	}
}

// -----------------------------------------------------------------------------

// DismissSetup externally dismisses a non-terminal setup by ID.
func (d *SymbolDetector) DismissSetup(id string, ts int64) bool {
	for _, s := range d.setups {
		if s.ID != id || s.IsTerminal() {
			continue
		}
		s.Status = models.SetupStatusDismissed
		s.LastUpdate = ts
		d.emit(models.MSetupEvent{Action: "dismissed", Setup: *s})
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// ActiveSetups returns copies of every setup that is not CLOSED or
// DISMISSED.
func (d *SymbolDetector) ActiveSetups() []models.MSetup {
	var out []models.MSetup
	for _, s := range d.setups {
		if !s.IsTerminal() {
			out = append(out, *s)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// Indicators returns the current snapshot.
func (d *SymbolDetector) Indicators() models.MIndicators {
	return d.ind
}

// -----------------------------------------------------------------------------

func (d *SymbolDetector) createSetup(p ruleProposal, breakdown models.MConfidenceBreakdown, ts int64) {
	d.counter++
	s := &models.MSetup{
		ID:              fmt.Sprintf("%s-%d", d.symbol, d.counter),
		Symbol:          d.symbol,
		SetupType:       p.setupType,
		Status:          models.SetupStatusForming,
		Direction:       p.direction,
		Entry:           p.entry,
		Stop:            p.stop,
		Targets:         p.targets,
		TargetsHit:      make([]bool, len(p.targets)),
		ConfluenceScore: breakdown.PresentCount(),
		Confidence:      breakdown,
		Timestamp:       ts,
		LastUpdate:      ts,
	}
	d.setups = append(d.setups, s)

	d.logger.Info("%s: new %s %s setup %s (confidence %d)", d.symbol, p.direction, p.setupType, s.ID, breakdown.Total)
	d.emit(models.MSetupEvent{Action: "created", Setup: *s})
}

// -----------------------------------------------------------------------------

func (d *SymbolDetector) hasOpenSetup(setupType, direction string) bool {
	for _, s := range d.setups {
		if s.SetupType == setupType && s.Direction == direction && !s.IsTerminal() {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

func (d *SymbolDetector) sessionOpen(ts int64) int64 {
	if d.calendar == nil {
		return 0
	}
	open := d.calendar.SessionOpen(time.UnixMilli(ts))
	return open.UnixMilli()
}

// -----------------------------------------------------------------------------

func allHit(hits []bool) bool {
	for _, h := range hits {
		if !h {
			return false
		}
	}
	return len(hits) > 0
}
