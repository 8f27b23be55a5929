package data_source

import (
	"errors"
	"testing"
	"time"

	"trade-scanner/src/logger"
	"trade-scanner/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeSnapshotSource struct {
	fetched []string
	err     error
}

func (f *fakeSnapshotSource) FetchSnapshot(symbol string) (models.MPriceSnapshot, error) {
	f.fetched = append(f.fetched, symbol)
	if f.err != nil {
		return models.MPriceSnapshot{}, f.err
	}
	return models.MPriceSnapshot{Symbol: symbol, LastPrice: 187.5}, nil
}

// -----------------------------------------------------------------------------

func newTestPoller(source *fakeSnapshotSource, open map[string]bool) *SnapshotPoller {
	cfg := &models.MConfig{Symbols: []string{"AAPL", "VOD.L"}}
	cfg.Snapshot.PollSecs = 60

	p := NewSnapshotPoller(cfg, logger.NewLogger("ERROR", "poller-test"), source, nil)
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	p.symbolOpen = func(symbol string, _ time.Time) bool { return open[symbol] }
	return p
}

// -----------------------------------------------------------------------------
// Session Gating
// -----------------------------------------------------------------------------

func TestPollerFetchesOnlyOpenVenues(t *testing.T) {
	source := &fakeSnapshotSource{}
	p := newTestPoller(source, map[string]bool{"AAPL": true})

	p.refresh()

	// Only the symbol whose venue is in session was fetched
	require.Equal(t, []string{"AAPL"}, source.fetched)
}

// -----------------------------------------------------------------------------

func TestPollerSkipsWhenAllVenuesClosed(t *testing.T) {
	source := &fakeSnapshotSource{}
	p := newTestPoller(source, map[string]bool{})

	p.refresh()
	require.Empty(t, source.fetched)
}

// -----------------------------------------------------------------------------
// Cache Behavior
// -----------------------------------------------------------------------------

func TestPollerServesFromCache(t *testing.T) {
	source := &fakeSnapshotSource{}
	p := newTestPoller(source, map[string]bool{"AAPL": true})

	p.refresh()
	require.Len(t, source.fetched, 1)

	// Cached symbol: no second live fetch
	snapshot, err := p.FetchSnapshot("AAPL")
	require.NoError(t, err)
	require.InDelta(t, 187.5, snapshot.LastPrice, 1e-9)
	require.Len(t, source.fetched, 1)

	// Uncached symbol falls through to the live source
	_, err = p.FetchSnapshot("VOD.L")
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "VOD.L"}, source.fetched)
}

// -----------------------------------------------------------------------------

func TestPollerKeepsLastGoodValueOnFailure(t *testing.T) {
	source := &fakeSnapshotSource{}
	p := newTestPoller(source, map[string]bool{"AAPL": true})

	p.refresh()

	source.err = errors.New("provider down")
	p.refresh()

	snapshot, err := p.FetchSnapshot("AAPL")
	require.NoError(t, err)
	require.InDelta(t, 187.5, snapshot.LastPrice, 1e-9)
}
