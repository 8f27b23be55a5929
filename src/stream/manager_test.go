package stream

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trade-scanner/src/helpers"
	"trade-scanner/src/logger"
	"trade-scanner/src/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

// fakeConn is a scripted upstream socket. When authStatus is non-empty
// it answers every auth frame with that status; otherwise it stays
// silent until the test pushes frames.
type fakeConn struct {
	authStatus string
	incoming   chan []byte

	mu      sync.Mutex
	written []models.MControlFrame
	closed  bool
}

func newFakeConn(authStatus string) *fakeConn {
	return &fakeConn{
		authStatus: authStatus,
		incoming:   make(chan []byte, 32),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.incoming
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	frame, ok := v.(models.MControlFrame)
	if !ok {
		return fmt.Errorf("unexpected frame type %T", v)
	}

	c.mu.Lock()
	c.written = append(c.written, frame)
	c.mu.Unlock()

	if frame.Action == "auth" && c.authStatus != "" {
		c.push(fmt.Sprintf(`[{"ev":"status","status":%q}]`, c.authStatus))
	}
	return nil
}

func (c *fakeConn) push(raw string) {
	c.incoming <- []byte(raw)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

func (c *fakeConn) sentFrames() []models.MControlFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.MControlFrame, len(c.written))
	copy(out, c.written)
	return out
}

// -----------------------------------------------------------------------------

// testHarness wires a manager to scripted connections, a captive clock
// and an afterFunc that records instead of firing.
type testHarness struct {
	m          *Manager
	dials      []string
	afterCalls int
	clock      time.Time
}

func newHarness(t *testing.T, cfg models.MStreamConfig, conns ...*fakeConn) *testHarness {
	t.Helper()

	if cfg.URL == "" {
		cfg.URL = "wss://primary.test/stocks"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	if cfg.AuthTimeoutSecs == 0 {
		cfg.AuthTimeoutSecs = 5
	}
	if cfg.StalenessSecs == 0 {
		cfg.StalenessSecs = 90
	}
	if cfg.WatchdogSecs == 0 {
		cfg.WatchdogSecs = 600
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect = backoffCfg
	}

	h := &testHarness{
		m:     NewManager(cfg, logger.NewLogger("ERROR", "stream-test")),
		clock: time.Unix(1_700_000_000, 0),
	}

	idx := 0
	h.m.dial = func(url string) (wsConn, error) {
		h.dials = append(h.dials, url)
		if idx >= len(conns) {
			return nil, errors.New("no more scripted connections")
		}
		conn := conns[idx]
		idx++
		return conn, nil
	}
	h.m.now = func() time.Time { return h.clock }
	h.m.afterFunc = func(d time.Duration, f func()) *time.Timer {
		h.afterCalls++
		return time.NewTimer(time.Hour)
	}
	return h
}

// -----------------------------------------------------------------------------
// Auth Handshake
// -----------------------------------------------------------------------------

func TestConnectAuthSuccess(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{}, conn)

	require.NoError(t, h.m.Connect())

	state := h.m.State()
	require.Equal(t, models.ConnHealthy, state.Status)
	require.True(t, h.m.HealthState().Ready)
	require.Equal(t, []string{"wss://primary.test/stocks"}, h.dials)

	frames := conn.sentFrames()
	require.Len(t, frames, 1)
	require.Equal(t, "auth", frames[0].Action)
	require.Equal(t, "test-key", frames[0].Params)
}

// -----------------------------------------------------------------------------

func TestConnectIsIdempotent(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{}, conn)

	require.NoError(t, h.m.Connect())
	// Second call must not dial again while the session is open
	require.NoError(t, h.m.Connect())
	require.Len(t, h.dials, 1)
}

// -----------------------------------------------------------------------------

func TestConnectAuthTimeout(t *testing.T) {
	conn := newFakeConn("") // stays silent
	h := newHarness(t, models.MStreamConfig{AuthTimeoutSecs: -1}, conn)
	// Negative timeout trips time.After immediately; the fake never answers
	h.m.cfg.AuthTimeoutSecs = 0

	err := h.m.Connect()
	require.Error(t, err)
	var authErr *helpers.AuthError
	require.ErrorAs(t, err, &authErr)

	state := h.m.State()
	require.Equal(t, models.ConnDegraded, state.Status)
	require.Equal(t, models.ReasonAuthTimeout, state.Reason)
	require.True(t, h.m.ReconnectPending())
}

// -----------------------------------------------------------------------------

func TestConnectAuthRejected(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthFailed)
	h := newHarness(t, models.MStreamConfig{}, conn)

	err := h.m.Connect()
	require.Error(t, err)

	state := h.m.State()
	require.Equal(t, models.ConnDegraded, state.Status)
	require.Equal(t, models.ReasonAuthFailed, state.Reason)
}

// -----------------------------------------------------------------------------

func TestDelayedFeedFailover(t *testing.T) {
	primary := newFakeConn(models.ProviderAuthFailed)
	delayed := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{
		DelayedURL: "wss://delayed.test/stocks",
	}, primary, delayed)

	require.NoError(t, h.m.Connect())

	require.Equal(t, []string{"wss://primary.test/stocks", "wss://delayed.test/stocks"}, h.dials)

	// Operating on the delayed feed is a degraded state, not a healthy one
	state := h.m.State()
	require.Equal(t, models.ConnDegraded, state.Status)
	require.Equal(t, "delayed_feed", state.Reason)
	require.True(t, h.m.HealthState().Ready)
}

// -----------------------------------------------------------------------------
// Capacity Limit
// -----------------------------------------------------------------------------

func TestCapacityLimitWithoutRetry(t *testing.T) {
	conn := newFakeConn(models.ProviderMaxConnections)
	h := newHarness(t, models.MStreamConfig{ReconnectOnLimit: false}, conn)

	err := h.m.Connect()
	require.Error(t, err)
	var capErr *helpers.CapacityError
	require.ErrorAs(t, err, &capErr)

	state := h.m.State()
	require.Equal(t, models.ConnDegraded, state.Status)
	require.Equal(t, models.ReasonMaxConnections, state.Reason)
	require.False(t, h.m.ReconnectPending())
}

// -----------------------------------------------------------------------------

func TestCapacityLimitWithLongBackoff(t *testing.T) {
	conn := newFakeConn(models.ProviderMaxConnections)
	h := newHarness(t, models.MStreamConfig{ReconnectOnLimit: true}, conn)

	err := h.m.Connect()
	require.Error(t, err)
	require.True(t, h.m.ReconnectPending())
	require.Equal(t, 1, h.afterCalls)
}

// -----------------------------------------------------------------------------

func TestCapacityNoticeAfterAuthDegrades(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{SyntheticHeartbeat: true}, conn)

	require.NoError(t, h.m.Connect())
	require.Equal(t, models.ConnHealthy, h.m.State().Status)

	// The provider sheds the session after the handshake completed
	conn.push(`[{"ev":"status","status":"max_connections"}]`)

	require.Eventually(t, func() bool {
		return h.m.State().Status == models.ConnDegraded
	}, 2*time.Second, 10*time.Millisecond)

	state := h.m.State()
	require.Equal(t, models.ReasonMaxConnections, state.Reason)
	require.True(t, h.m.HealthState().SyntheticFeed)
	require.False(t, h.m.ReconnectPending())
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func TestSubscribeBufferedAndReplayed(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{}, conn)

	// Buffered while offline
	h.m.Subscribe([]string{"MSFT", "AAPL"})
	require.NoError(t, h.m.Connect())

	frames := conn.sentFrames()
	require.Len(t, frames, 2)
	require.Equal(t, "subscribe", frames[1].Action)
	// Replay is sorted, with trade and aggregate channels per symbol
	require.Equal(t, "T.AAPL,A.AAPL,T.MSFT,A.MSFT", frames[1].Params)
}

// -----------------------------------------------------------------------------

func TestSubscribeAfterAuthSendsImmediately(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{}, conn)
	require.NoError(t, h.m.Connect())

	h.m.Subscribe([]string{"NVDA"})
	h.m.Unsubscribe([]string{"NVDA"})

	frames := conn.sentFrames()
	require.Len(t, frames, 3)
	require.Equal(t, "subscribe", frames[1].Action)
	require.Equal(t, "T.NVDA,A.NVDA", frames[1].Params)
	require.Equal(t, "unsubscribe", frames[2].Action)
	require.Equal(t, "T.NVDA,A.NVDA", frames[2].Params)
}

// -----------------------------------------------------------------------------
// Data Dispatch
// -----------------------------------------------------------------------------

func TestDispatchRoutesEvents(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{}, conn)
	require.NoError(t, h.m.Connect())

	conn.push(`not json at all`) // must be dropped, not fatal
	conn.push(`[
		{"ev":"T","sym":"AAPL","t":1000,"p":187.5,"s":100},
		{"ev":"Q","sym":"AAPL","t":1001,"bp":187.4,"bs":2,"ap":187.6,"as":3},
		{"ev":"A","sym":"AAPL","t":1002,"o":187,"h":188,"l":186.5,"c":187.8,"v":5000,"vw":187.3}
	]`)

	trade := <-h.m.Trades()
	require.Equal(t, "AAPL", trade.Symbol)
	require.InDelta(t, 187.5, trade.Price, 1e-9)

	quote := <-h.m.Quotes()
	require.InDelta(t, 187.4, quote.BidPrice, 1e-9)
	require.InDelta(t, 187.6, quote.AskPrice, 1e-9)

	bar := <-h.m.Bars()
	require.InDelta(t, 187.8, bar.Close, 1e-9)
	require.InDelta(t, 5000.0, bar.Volume, 1e-9)
	require.InDelta(t, 187.3, bar.VWAP, 1e-9)
}

// -----------------------------------------------------------------------------
// Staleness Watchdog
// -----------------------------------------------------------------------------

func TestStalenessTriggersSingleRestart(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{StalenessSecs: 90}, conn)
	require.NoError(t, h.m.Connect())

	// Fresh connection: nothing happens
	h.m.CheckStaleness()
	require.False(t, h.m.ReconnectPending())

	// Advance past the threshold
	h.clock = h.clock.Add(91 * time.Second)
	h.m.CheckStaleness()
	require.True(t, h.m.ReconnectPending())
	require.Equal(t, 1, h.afterCalls)
	require.Equal(t, 1, h.m.HealthState().ReconnectCount)

	// Repeated ticks while the restart is in flight are no-ops
	h.clock = h.clock.Add(91 * time.Second)
	h.m.CheckStaleness()
	h.m.CheckStaleness()
	require.Equal(t, 1, h.afterCalls)
	require.Equal(t, 1, h.m.HealthState().ReconnectCount)
}

// -----------------------------------------------------------------------------

func TestInboundTrafficDefersStaleness(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{StalenessSecs: 90}, conn)
	require.NoError(t, h.m.Connect())

	h.clock = h.clock.Add(80 * time.Second)
	conn.push(`[{"ev":"T","sym":"AAPL","t":1,"p":1,"s":1}]`)
	<-h.m.Trades() // frame fully processed, lastMessage refreshed

	h.clock = h.clock.Add(80 * time.Second)
	h.m.CheckStaleness()
	require.False(t, h.m.ReconnectPending())
}

// -----------------------------------------------------------------------------
// Disconnect
// -----------------------------------------------------------------------------

func TestDisconnectIsTerminal(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{}, conn)
	require.NoError(t, h.m.Connect())
	h.m.Subscribe([]string{"AAPL"})

	h.m.Disconnect()

	state := h.m.State()
	require.Equal(t, models.ConnOffline, state.Status)
	require.Equal(t, models.ReasonDisconnected, state.Reason)
	require.False(t, h.m.HealthState().Ready)
	require.False(t, h.m.ReconnectPending())

	// The subscription buffer is gone: nothing to replay
	h.m.mu.Lock()
	require.Empty(t, h.m.subs)
	h.m.mu.Unlock()
}

// -----------------------------------------------------------------------------
// State Broadcasting
// -----------------------------------------------------------------------------

func TestStateChannelKeepsLastValue(t *testing.T) {
	conn := newFakeConn(models.ProviderAuthSuccess)
	h := newHarness(t, models.MStreamConfig{}, conn)
	require.NoError(t, h.m.Connect())
	h.m.Disconnect()

	// Multiple transitions happened; a late subscriber still sees the
	// last one without blocking
	state := <-h.m.States()
	require.Equal(t, models.ConnOffline, state.Status)
}
