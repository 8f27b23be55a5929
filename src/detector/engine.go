package detector

import (
	"context"
	"sync"

	"trade-scanner/src/analysis"
	"trade-scanner/src/logger"
	"trade-scanner/src/models"
	"trade-scanner/src/utils"
)

// -----------------------------------------------------------------------------
// Engine
//
// Owns one SymbolDetector per symbol and a single goroutine that drains
// the market-data channels, so all detector state is mutated from one
// place. Snapshot accessors take the lock and return copies.
// -----------------------------------------------------------------------------

type Engine struct {
	cfg       models.MDetectorConfig
	evaluator *analysis.ConfluenceEvaluator
	calendars *utils.CalendarSet
	logger    *logger.Logger

	mu        sync.RWMutex
	detectors map[string]*SymbolDetector
	closed    bool

	events chan models.MSetupEvent
}

// -----------------------------------------------------------------------------

func NewEngine(cfg models.MDetectorConfig, calendars *utils.CalendarSet, log *logger.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		evaluator: analysis.NewConfluenceEvaluator(cfg.Weights),
		calendars: calendars,
		logger:    log,
		detectors: make(map[string]*SymbolDetector),
		// Buffered so a slow broadcast consumer cannot stall bar processing.
		events: make(chan models.MSetupEvent, 256),
	}
}

// -----------------------------------------------------------------------------

// Events is the setup lifecycle stream consumed by the fan-out layer.
func (e *Engine) Events() <-chan models.MSetupEvent {
	return e.events
}

// -----------------------------------------------------------------------------

// Run drains the market-data channels until the context is cancelled.
// This is the only goroutine that mutates detector state.
func (e *Engine) Run(ctx context.Context, bars <-chan models.MBar, trades <-chan models.MTrade, quotes <-chan models.MQuote) {
	for {
		select {
		case <-ctx.Done():
			e.closeEvents()
			return

		case bar, ok := <-bars:
			if !ok {
				e.closeEvents()
				return
			}
			e.ProcessBar(bar)

		case trade := <-trades:
			e.ProcessTrade(trade)

		case quote := <-quotes:
			e.ProcessQuote(quote)
		}
	}
}

// -----------------------------------------------------------------------------

// closeEvents marks the stream closed before closing the channel. The
// emit path checks the flag under the same lock, so a dismissal racing
// shutdown becomes a dropped event instead of a send on a closed
// channel.
func (e *Engine) closeEvents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	close(e.events)
}

// -----------------------------------------------------------------------------

func (e *Engine) ProcessBar(bar models.MBar) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectorFor(bar.Symbol).ProcessBar(bar)
}

func (e *Engine) ProcessTrade(trade models.MTrade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectorFor(trade.Symbol).ProcessTrade(trade)
}

// ProcessQuote drains the quote stream. Quotes ride the upstream feed
// but do not drive setup lifecycle transitions.
func (e *Engine) ProcessQuote(models.MQuote) {}

// -----------------------------------------------------------------------------

// DismissSetup dismisses a setup by ID across all symbols.
func (e *Engine) DismissSetup(id string, ts int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.detectors {
		if d.DismissSetup(id, ts) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// ActiveSetups returns copies of every live setup across all symbols.
func (e *Engine) ActiveSetups() []models.MSetup {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []models.MSetup
	for _, d := range e.detectors {
		out = append(out, d.ActiveSetups()...)
	}
	return out
}

// -----------------------------------------------------------------------------

// Indicators returns the current snapshot for one symbol.
func (e *Engine) Indicators(symbol string) (models.MIndicators, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.detectors[symbol]
	if !ok {
		return models.MIndicators{}, false
	}
	return d.Indicators(), true
}

// -----------------------------------------------------------------------------

// detectorFor lazily creates a detector. Caller holds the write lock.
func (e *Engine) detectorFor(symbol string) *SymbolDetector {
	if d, ok := e.detectors[symbol]; ok {
		return d
	}

	var cal *utils.TradingCalendar
	if e.calendars != nil {
		cal = e.calendars.For(symbol)
	}

	d := NewSymbolDetector(symbol, e.cfg, cal, e.evaluator, e.logger, func(ev models.MSetupEvent) {
		// Runs with e.mu held by the Process/Dismiss entry points.
		if e.closed {
			return
		}
		select {
		case e.events <- ev:
		default:
			e.logger.Warning("setup event queue full, dropping %s for %s", ev.Action, ev.Setup.ID)
		}
	})
	e.detectors[symbol] = d
	return d
}
