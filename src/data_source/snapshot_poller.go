package data_source

import (
	"context"
	"sync"
	"time"

	"trade-scanner/src/interfaces"
	"trade-scanner/src/logger"
	"trade-scanner/src/models"
	"trade-scanner/src/utils"
)

// -----------------------------------------------------------------------------
// SnapshotPoller
//
// Periodically refreshes price snapshots for the configured universe
// and serves them from a cache. Polling is gated on the trading
// calendar: a pass is skipped entirely while every tracked market is
// closed, and within a pass only symbols whose venue is open on the
// current minute are fetched.
// -----------------------------------------------------------------------------

type SnapshotPoller struct {
	Config *models.MConfig
	Logger *logger.Logger

	source    interfaces.ISnapshotSource
	calendars *utils.CalendarSet

	// Injection points for tests.
	now        func() time.Time
	symbolOpen func(symbol string, t time.Time) bool

	mu    sync.RWMutex
	cache map[string]models.MPriceSnapshot
}

// -----------------------------------------------------------------------------

func NewSnapshotPoller(cfg *models.MConfig, log *logger.Logger, source interfaces.ISnapshotSource, calendars *utils.CalendarSet) *SnapshotPoller {
	p := &SnapshotPoller{
		Config:    cfg,
		Logger:    log,
		source:    source,
		calendars: calendars,
		now:       time.Now,
		cache:     make(map[string]models.MPriceSnapshot),
	}
	p.symbolOpen = func(symbol string, t time.Time) bool {
		if calendars == nil {
			return true
		}
		return calendars.For(symbol).IsOpenOnMinute(t)
	}
	return p
}

// -----------------------------------------------------------------------------

// Run refreshes the cache on the configured interval until the context
// is cancelled.
func (p *SnapshotPoller) Run(ctx context.Context) {
	interval := time.Duration(p.Config.Snapshot.PollSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh()
		}
	}
}

// -----------------------------------------------------------------------------

// refresh is one polling pass over the configured symbols.
func (p *SnapshotPoller) refresh() {
	now := p.now()
	if p.calendars != nil && !p.calendars.AnyMarketOpen(now) {
		p.Logger.Debug("All tracked markets closed, skipping snapshot poll")
		return
	}

	for _, symbol := range p.Config.Symbols {
		if !p.symbolOpen(symbol, now) {
			continue
		}
		snapshot, err := p.source.FetchSnapshot(symbol)
		if err != nil {
			p.Logger.Warning("Snapshot poll for %s failed: %v", symbol, err)
			continue
		}
		p.mu.Lock()
		p.cache[symbol] = snapshot
		p.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// FetchSnapshot serves the cached value when one exists and falls back
// to a live fetch, so requests work before the first poll and for
// symbols outside the configured universe.
func (p *SnapshotPoller) FetchSnapshot(symbol string) (models.MPriceSnapshot, error) {
	p.mu.RLock()
	snapshot, ok := p.cache[symbol]
	p.mu.RUnlock()

	if ok {
		return snapshot, nil
	}
	return p.source.FetchSnapshot(symbol)
}
