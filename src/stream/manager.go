package stream

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"trade-scanner/src/helpers"
	"trade-scanner/src/logger"
	"trade-scanner/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// StreamConnectionManager
//
// Owns the single upstream websocket session: auth handshake, subscribe
// multiplexing, staleness watchdog, reconnect with full-jitter backoff,
// delayed-feed failover and the degraded synthetic heartbeat. All
// transport failures are absorbed here and surfaced only as connection
// state transitions.
// -----------------------------------------------------------------------------

// wsConn is the subset of *websocket.Conn the manager needs; tests
// substitute a scripted fake.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

type dialFunc func(url string) (wsConn, error)

// -----------------------------------------------------------------------------

type Manager struct {
	cfg    models.MStreamConfig
	logger *logger.Logger

	// Injection points for tests.
	dial      dialFunc
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu           sync.Mutex
	conn         wsConn
	gen          int // connection generation, guards stale callbacks
	connecting   bool
	authed       bool
	usingDelayed bool
	stopped      bool

	subs map[string]struct{}

	reconnectTimer    *time.Timer
	reconnectAttempts int
	restartAttempts   int
	restartInFlight   bool
	reconnectDisabled bool

	lastMessage time.Time
	watchdog    *time.Ticker
	watchdogEnd chan struct{}
	synth       *time.Ticker
	synthEnd    chan struct{}

	state  models.MConnectionState
	states chan models.MConnectionState

	bars   chan models.MBar
	trades chan models.MTrade
	quotes chan models.MQuote

	healthMu sync.RWMutex
	health   models.MHealthState
}

// -----------------------------------------------------------------------------

func NewManager(cfg models.MStreamConfig, log *logger.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: log,
		dial: func(url string) (wsConn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		now:       time.Now,
		afterFunc: time.AfterFunc,
		subs:      make(map[string]struct{}),
		// Capacity 1: last-value-wins for late subscribers.
		states: make(chan models.MConnectionState, 1),
		bars:   make(chan models.MBar, 256),
		trades: make(chan models.MTrade, 1024),
		quotes: make(chan models.MQuote, 1024),
		state:  models.MConnectionState{Status: models.ConnInitializing},
	}
	return m
}

// -----------------------------------------------------------------------------
// Data and state sinks.
// -----------------------------------------------------------------------------

func (m *Manager) Bars() <-chan models.MBar               { return m.bars }
func (m *Manager) Trades() <-chan models.MTrade           { return m.trades }
func (m *Manager) Quotes() <-chan models.MQuote           { return m.quotes }
func (m *Manager) States() <-chan models.MConnectionState { return m.states }

// State returns the current connection state.
func (m *Manager) State() models.MConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HealthState returns a copy of the single-writer health value.
func (m *Manager) HealthState() models.MHealthState {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()
	return m.health
}

// -----------------------------------------------------------------------------
// Connect establishes the upstream session. Idempotent while a session
// is open or a connect is in flight. The auth handshake must observe an
// explicit success status within the configured timeout or the connect
// outcome fails.
// -----------------------------------------------------------------------------

func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.conn != nil || m.connecting {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.stopped = false
	m.setStateLocked(models.ConnInitializing, "")

	url := m.cfg.URL
	if m.usingDelayed && m.cfg.DelayedURL != "" {
		url = m.cfg.DelayedURL
	}
	m.mu.Unlock()

	m.logger.Info("Connecting to %s", url)
	conn, err := m.dial(url)
	if err != nil {
		m.logger.Warning("Dial failed: %v", err)
		m.mu.Lock()
		m.connecting = false
		m.scheduleReconnectLocked(false)
		m.mu.Unlock()
		return helpers.NewTransientNetworkError("dial failed", err)
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.conn = conn
	m.lastMessage = m.now()
	m.mu.Unlock()

	// Auth handshake.
	authResult := make(chan string, 1)
	go m.readLoop(conn, gen, authResult)

	if err := conn.WriteJSON(models.MControlFrame{Action: "auth", Params: m.cfg.APIKey}); err != nil {
		m.teardown(gen)
		m.mu.Lock()
		m.connecting = false
		m.scheduleReconnectLocked(false)
		m.mu.Unlock()
		return helpers.NewTransientNetworkError("auth send failed", err)
	}

	timeout := time.Duration(m.cfg.AuthTimeoutSecs) * time.Second
	select {
	case status := <-authResult:
		return m.finishAuth(status, gen)

	case <-time.After(timeout):
		m.teardown(gen)
		m.mu.Lock()
		m.connecting = false
		m.setStateLocked(models.ConnDegraded, models.ReasonAuthTimeout)
		m.scheduleReconnectLocked(false)
		m.mu.Unlock()
		return helpers.NewAuthError("auth timeout", nil)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) finishAuth(status string, gen int) error {
	switch status {
	case models.ProviderAuthSuccess:
		m.mu.Lock()
		m.connecting = false
		m.authed = true
		m.reconnectAttempts = 0
		m.restartInFlight = false
		m.stopSyntheticLocked()
		if m.usingDelayed {
			m.setStateLocked(models.ConnDegraded, "delayed_feed")
		} else {
			m.setStateLocked(models.ConnHealthy, "")
		}
		pending := m.pendingSubsLocked()
		m.mu.Unlock()

		m.setReady(true)
		m.startWatchdog()

		// Replay every subscription buffered while unauthenticated.
		if len(pending) > 0 {
			m.sendControl("subscribe", pending)
		}
		return nil

	case models.ProviderAuthFailed:
		m.teardown(gen)
		m.mu.Lock()
		if !m.usingDelayed && m.cfg.DelayedURL != "" {
			// Failover: retry once against the delayed feed with fresh counters.
			m.usingDelayed = true
			m.reconnectAttempts = 0
			m.connecting = false
			m.mu.Unlock()
			m.logger.Warning("Auth failed on primary feed, switching to delayed feed")
			return m.Connect()
		}
		m.connecting = false
		m.setStateLocked(models.ConnDegraded, models.ReasonAuthFailed)
		m.mu.Unlock()
		return helpers.NewAuthError("authentication rejected", nil)

	case models.ProviderMaxConnections:
		m.teardown(gen)
		m.mu.Lock()
		m.connecting = false
		m.handleCapacityLimitLocked()
		m.mu.Unlock()
		return helpers.NewCapacityError("provider connection limit reached")

	default:
		m.teardown(gen)
		m.mu.Lock()
		m.connecting = false
		m.setStateLocked(models.ConnDegraded, models.ReasonAuthFailed)
		m.mu.Unlock()
		return helpers.NewAuthError("unexpected auth status: "+status, nil)
	}
}

// -----------------------------------------------------------------------------
// Subscribe / Unsubscribe are fire-and-forget once authenticated; while
// not authenticated the symbols are buffered and replayed after auth
// success. Transport failures are absorbed, never returned.
// -----------------------------------------------------------------------------

func (m *Manager) Subscribe(symbols []string) {
	m.mu.Lock()
	for _, s := range symbols {
		m.subs[s] = struct{}{}
	}
	authed := m.authed && m.conn != nil
	m.mu.Unlock()

	if authed {
		m.sendControl("subscribe", symbols)
	}
}

func (m *Manager) Unsubscribe(symbols []string) {
	m.mu.Lock()
	for _, s := range symbols {
		delete(m.subs, s)
	}
	authed := m.authed && m.conn != nil
	m.mu.Unlock()

	if authed {
		m.sendControl("unsubscribe", symbols)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) sendControl(action string, symbols []string) {
	if len(symbols) == 0 {
		return
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	channels := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		channels = append(channels, "T."+s, "A."+s)
	}

	frame := models.MControlFrame{Action: action, Params: strings.Join(channels, ",")}
	if err := conn.WriteJSON(frame); err != nil {
		// Absorbed: the read loop will notice the broken socket.
		m.logger.Warning("Failed to send %s frame: %v", action, err)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) pendingSubsLocked() []string {
	out := make([]string, 0, len(m.subs))
	for s := range m.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------
// Read loop: parses inbound frames and dispatches events. Malformed
// frames are dropped without closing the connection.
// -----------------------------------------------------------------------------

func (m *Manager) readLoop(conn wsConn, gen int, authResult chan<- string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.onSocketClosed(gen, err)
			return
		}

		m.touch()

		var events []models.MProviderEvent
		if err := json.Unmarshal(data, &events); err != nil {
			m.logger.Warning("Dropping malformed frame: %v", err)
			continue
		}

		for _, ev := range events {
			m.dispatch(ev, authResult)
		}
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) dispatch(ev models.MProviderEvent, authResult chan<- string) {
	switch ev.Ev {
	case models.ProviderEvStatus:
		switch ev.Status {
		case models.ProviderAuthSuccess, models.ProviderAuthFailed:
			select {
			case authResult <- ev.Status:
			default:
			}
		case models.ProviderMaxConnections:
			m.mu.Lock()
			handshaking := m.connecting && !m.authed
			m.mu.Unlock()

			if handshaking {
				// Connect() is still waiting on the handshake outcome.
				select {
				case authResult <- ev.Status:
				default:
				}
				break
			}

			// Capacity notice on an authenticated session: the provider
			// is shedding us. Tear down and apply the capacity policy.
			m.logger.Warning("Provider reported %s on an authenticated session", ev.Status)
			m.mu.Lock()
			m.authed = false
			if m.conn != nil {
				m.conn.Close()
				m.conn = nil
				m.gen++
			}
			m.handleCapacityLimitLocked()
			m.mu.Unlock()
		case models.ProviderConnected:
			// Informational only.
		default:
			m.logger.Debug("Status: %s %s", ev.Status, ev.Message)
		}

	case models.ProviderEvTrade:
		select {
		case m.trades <- models.MTrade{Symbol: ev.Symbol, Timestamp: ev.Timestamp, Price: ev.Price, Size: ev.Size}:
		default:
		}

	case models.ProviderEvQuote:
		select {
		case m.quotes <- models.MQuote{Symbol: ev.Symbol, Timestamp: ev.Timestamp, BidPrice: ev.BidPrice, BidSize: ev.BidSize, AskPrice: ev.AskPrice, AskSize: ev.AskSize}:
		default:
		}

	case models.ProviderEvAggregate:
		select {
		case m.bars <- models.MBar{Symbol: ev.Symbol, Timestamp: ev.Timestamp, Open: ev.Open, High: ev.High, Low: ev.Low, Close: ev.Close, Volume: ev.Volume, VWAP: ev.VWAP}:
		default:
		}

	default:
		m.logger.Debug("Dropping event with unknown discriminator %q", ev.Ev)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) onSocketClosed(gen int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.stopped {
		return // A newer connection owns the state now.
	}

	m.logger.Warning("Upstream socket closed: %v", err)
	m.conn = nil
	m.authed = false
	m.scheduleReconnectLocked(false)
}

// -----------------------------------------------------------------------------
// Reconnect scheduling. Idempotent: a pending timer is never replaced.
// The watchdog path uses its own attempt counter.
// -----------------------------------------------------------------------------

func (m *Manager) scheduleReconnectLocked(restart bool) {
	if m.reconnectTimer != nil || m.reconnectDisabled || m.stopped {
		return
	}

	var attempt int
	if restart {
		m.restartAttempts++
		attempt = m.restartAttempts
	} else {
		m.reconnectAttempts++
		attempt = m.reconnectAttempts
	}

	if attempt > m.cfg.Reconnect.MaxAttempts {
		m.logger.Error("Reconnect attempts exhausted (%d)", m.cfg.Reconnect.MaxAttempts)
		m.setStateLocked(models.ConnDegraded, models.ReasonMaxAttempts)
		return
	}

	delay := FullJitterDelay(m.cfg.Reconnect, attempt)
	m.logger.Info("Scheduling reconnect attempt %d in %v", attempt, delay)

	m.healthMu.Lock()
	m.health.ReconnectCount++
	m.healthMu.Unlock()

	m.reconnectTimer = m.afterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		stopped := m.stopped
		m.mu.Unlock()
		if stopped {
			return
		}
		if err := m.Connect(); err != nil {
			m.logger.Warning("Reconnect failed: %v", err)
		}
	})
}

// ReconnectPending reports whether a reconnect timer is armed.
func (m *Manager) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectTimer != nil
}

// -----------------------------------------------------------------------------
// Capacity limit: degraded state, optional synthetic heartbeat so
// downstream liveness checks still pass, then either a long backoff
// reconnect or permanent disable per configuration.
// -----------------------------------------------------------------------------

func (m *Manager) handleCapacityLimitLocked() {
	m.setStateLocked(models.ConnDegraded, models.ReasonMaxConnections)

	if m.cfg.SyntheticHeartbeat {
		m.startSyntheticLocked()
	}

	if m.cfg.ReconnectOnLimit {
		// Long backoff: schedule as if all attempts were consumed once.
		m.reconnectAttempts = m.cfg.Reconnect.MaxAttempts - 1
		m.scheduleReconnectLocked(false)
	} else {
		m.reconnectDisabled = true
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) startSyntheticLocked() {
	if m.synth != nil {
		return
	}

	m.healthMu.Lock()
	m.health.SyntheticFeed = true
	m.healthMu.Unlock()

	m.synth = time.NewTicker(time.Duration(m.cfg.WatchdogSecs) * time.Second)
	m.synthEnd = make(chan struct{})
	go func(t *time.Ticker, end chan struct{}) {
		for {
			select {
			case <-t.C:
				m.touch()
			case <-end:
				return
			}
		}
	}(m.synth, m.synthEnd)
}

func (m *Manager) stopSyntheticLocked() {
	if m.synth == nil {
		return
	}
	m.synth.Stop()
	close(m.synthEnd)
	m.synth = nil

	m.healthMu.Lock()
	m.health.SyntheticFeed = false
	m.healthMu.Unlock()
}

// -----------------------------------------------------------------------------
// Watchdog: on a fixed interval, tear down and reconnect if the
// connection is silent beyond the staleness threshold and no restart is
// already in flight.
// -----------------------------------------------------------------------------

func (m *Manager) startWatchdog() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watchdog != nil {
		return
	}
	m.watchdog = time.NewTicker(time.Duration(m.cfg.WatchdogSecs) * time.Second)
	m.watchdogEnd = make(chan struct{})

	go func(t *time.Ticker, end chan struct{}) {
		for {
			select {
			case <-t.C:
				m.CheckStaleness()
			case <-end:
				return
			}
		}
	}(m.watchdog, m.watchdogEnd)
}

// -----------------------------------------------------------------------------

// CheckStaleness is one watchdog tick. Exported so tests can drive the
// clock directly.
func (m *Manager) CheckStaleness() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.restartInFlight || m.stopped {
		return
	}

	threshold := time.Duration(m.cfg.StalenessSecs) * time.Second
	if m.now().Sub(m.lastMessage) <= threshold {
		return
	}

	m.logger.Warning("No upstream message for over %v, restarting connection", threshold)
	m.restartInFlight = true
	m.authed = false
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.gen++
	}
	m.scheduleReconnectLocked(true)
}

// -----------------------------------------------------------------------------
// Disconnect is terminal: clears subscriptions and timers, sets Offline.
// A later Connect starts fresh.
// -----------------------------------------------------------------------------

func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	m.authed = false
	m.subs = make(map[string]struct{})
	m.reconnectAttempts = 0
	m.restartAttempts = 0
	m.restartInFlight = false
	m.reconnectDisabled = false
	m.usingDelayed = false

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.watchdog != nil {
		m.watchdog.Stop()
		close(m.watchdogEnd)
		m.watchdog = nil
	}
	m.stopSyntheticLocked()

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.gen++
	}

	m.setStateLocked(models.ConnOffline, models.ReasonDisconnected)
	m.mu.Unlock()

	m.setReady(false)
}

// -----------------------------------------------------------------------------
// State broadcasting: at most one publication per transition, capacity-1
// channel drained before send so late subscribers see the last value.
// -----------------------------------------------------------------------------

func (m *Manager) setStateLocked(status, reason string) {
	if m.state.Status == status && m.state.Reason == reason {
		return
	}

	m.state = models.MConnectionState{
		Status:    status,
		Reason:    reason,
		Timestamp: m.now().UnixMilli(),
	}

	select {
	case <-m.states:
	default:
	}
	m.states <- m.state
}

// -----------------------------------------------------------------------------

func (m *Manager) teardown(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.gen++
	m.authed = false
}

// -----------------------------------------------------------------------------

func (m *Manager) touch() {
	now := m.now()

	m.mu.Lock()
	m.lastMessage = now
	m.mu.Unlock()

	m.healthMu.Lock()
	m.health.LastMessageUnix = now.Unix()
	m.healthMu.Unlock()
}

func (m *Manager) setReady(ready bool) {
	m.healthMu.Lock()
	m.health.Ready = ready
	m.healthMu.Unlock()
}
