package server

import (
	"encoding/json"
	"testing"
	"time"

	"trade-scanner/src/logger"
	"trade-scanner/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeUpstream struct {
	subscribed   [][]string
	unsubscribed [][]string
}

func (f *fakeUpstream) Subscribe(symbols []string) { f.subscribed = append(f.subscribed, symbols) }
func (f *fakeUpstream) Unsubscribe(symbols []string) { f.unsubscribed = append(f.unsubscribed, symbols) }

// -----------------------------------------------------------------------------

type fakeSetups struct {
	active []models.MSetup
}

func (f *fakeSetups) ActiveSetups() []models.MSetup   { return f.active }
func (f *fakeSetups) DismissSetup(string, int64) bool { return false }

// -----------------------------------------------------------------------------

func newTestServer(t *testing.T) (*FanOutServer, *fakeUpstream, *fakeSetups) {
	t.Helper()

	cfg := &models.MConfig{
		Name:     "test",
		Host:     "127.0.0.1",
		Port:     9999,
		LogLevel: "ERROR",
		Server:   models.MServerConfig{HeartbeatSecs: 15, IdleSecs: 60},
	}
	upstream := &fakeUpstream{}
	setups := &fakeSetups{}

	s := NewFanOutServer(cfg, logger.NewLogger("ERROR", "server-test"), upstream, setups, nil, nil, nil)
	return s, upstream, setups
}

// -----------------------------------------------------------------------------

func attachClient(s *FanOutServer) *Client {
	c := &Client{
		hub:  s,
		send: make(chan []byte, 32),
		subs: make(map[string]struct{}),
	}
	c.activity.Store(time.Now().UnixNano())

	s.stateMutex.Lock()
	s.clients[c] = struct{}{}
	s.stateMutex.Unlock()
	return c
}

// -----------------------------------------------------------------------------

func nextMessage(t *testing.T, c *Client) models.MServerMessage {
	t.Helper()

	select {
	case data := <-c.send:
		var msg models.MServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatal("expected a queued message")
		return models.MServerMessage{}
	}
}

// -----------------------------------------------------------------------------

// awaitMessage blocks until the hub goroutine delivers a frame.
func awaitMessage(t *testing.T, c *Client) models.MServerMessage {
	t.Helper()

	select {
	case data := <-c.send:
		var msg models.MServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
		return models.MServerMessage{}
	}
}

// -----------------------------------------------------------------------------
// Subscription Handling
// -----------------------------------------------------------------------------

func TestSubscribeForwardsUpstreamOnce(t *testing.T) {
	s, upstream, _ := newTestServer(t)
	c := attachClient(s)

	s.subscribeClient(c, []string{"AAPL", "MSFT"})
	require.Equal(t, [][]string{{"AAPL", "MSFT"}}, upstream.subscribed)

	msg := nextMessage(t, c)
	require.Equal(t, models.ServerMsgSubscriptions, msg.Type)
	require.ElementsMatch(t, []string{"AAPL", "MSFT"}, msg.Symbols)

	// Repeat subscription adds nothing and stays local
	s.subscribeClient(c, []string{"AAPL"})
	require.Len(t, upstream.subscribed, 1)
}

// -----------------------------------------------------------------------------

func TestRegisterDeliversStateAndSetupSnapshot(t *testing.T) {
	s, _, setups := newTestServer(t)
	setups.active = []models.MSetup{
		{ID: "AAPL-1", Symbol: "AAPL", Status: models.SetupStatusActive},
		{ID: "TSLA-1", Symbol: "TSLA", Status: models.SetupStatusForming},
	}

	c := attachClient(s)
	s.addClient(c)

	// Connection state first, then every live setup regardless of
	// any subscriptions the client has yet to make
	msg := nextMessage(t, c)
	require.Equal(t, models.ServerMsgServiceState, msg.Type)

	for _, want := range []string{"AAPL-1", "TSLA-1"} {
		snapshot := nextMessage(t, c)
		require.Equal(t, models.ServerMsgSetupUpdate, snapshot.Type)

		var event models.MSetupEvent
		require.NoError(t, json.Unmarshal(snapshot.Payload, &event))
		require.Equal(t, want, event.Setup.ID)
		require.Equal(t, "updated", event.Action)
	}
	require.Empty(t, c.send)
}

// -----------------------------------------------------------------------------

func TestBroadcastReachesEveryClient(t *testing.T) {
	s, _, _ := newTestServer(t)
	go s.runHub()

	subscriber := attachClient(s)
	subscriber.subscribe([]string{"AAPL"})
	bystander := attachClient(s)

	s.BroadcastSetupEvent(models.MSetupEvent{
		Action: "created",
		Setup:  models.MSetup{ID: "AAPL-1", Symbol: "AAPL", Status: models.SetupStatusForming},
	})

	// Lifecycle events fan out to all clients; subscriptions only
	// scope upstream traffic
	for _, c := range []*Client{subscriber, bystander} {
		msg := awaitMessage(t, c)
		require.Equal(t, models.ServerMsgSetupUpdate, msg.Type)

		var event models.MSetupEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		require.Equal(t, "AAPL-1", event.Setup.ID)
	}
}

// -----------------------------------------------------------------------------

func TestUnsubscribeReleasesUpstreamOnlyWhenOrphaned(t *testing.T) {
	s, upstream, _ := newTestServer(t)
	c1 := attachClient(s)
	c2 := attachClient(s)

	s.subscribeClient(c1, []string{"AAPL"})
	s.subscribeClient(c2, []string{"AAPL"})

	// First client leaves: the second still wants the symbol
	s.unsubscribeClient(c1, []string{"AAPL"})
	require.Empty(t, upstream.unsubscribed)

	// Last subscriber leaves: now the upstream can drop it
	s.unsubscribeClient(c2, []string{"AAPL"})
	require.Equal(t, [][]string{{"AAPL"}}, upstream.unsubscribed)
}

// -----------------------------------------------------------------------------

func TestUnsubscribeOfUnknownSymbolIsQuiet(t *testing.T) {
	s, upstream, _ := newTestServer(t)
	c := attachClient(s)

	s.unsubscribeClient(c, []string{"NVDA"})
	require.Empty(t, upstream.unsubscribed)

	msg := nextMessage(t, c)
	require.Equal(t, models.ServerMsgSubscriptions, msg.Type)
	require.Empty(t, msg.Symbols)
}

// -----------------------------------------------------------------------------

func TestOrphanedSymbols(t *testing.T) {
	s, _, _ := newTestServer(t)
	c1 := attachClient(s)
	c2 := attachClient(s)
	c1.subscribe([]string{"AAPL", "MSFT"})
	c2.subscribe([]string{"MSFT"})

	orphaned := s.orphanedSymbols([]string{"AAPL", "MSFT", "TSLA"})
	require.ElementsMatch(t, []string{"TSLA"}, orphaned)
}

// -----------------------------------------------------------------------------
// Client Messages
// -----------------------------------------------------------------------------

func TestHandleClientMessage(t *testing.T) {
	t.Run("malformed payload yields structured error", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		c := attachClient(s)

		s.handleClientMessage(c, []byte(`{not json`))

		msg := nextMessage(t, c)
		require.Equal(t, models.ServerMsgError, msg.Type)
		require.Contains(t, msg.Message, "malformed")
	})

	t.Run("unknown type yields structured error", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		c := attachClient(s)

		s.handleClientMessage(c, []byte(`{"type":"TELEPORT"}`))

		msg := nextMessage(t, c)
		require.Equal(t, models.ServerMsgError, msg.Type)
		require.Contains(t, msg.Message, "TELEPORT")
	})

	t.Run("ping yields pong", func(t *testing.T) {
		s, _, _ := newTestServer(t)
		c := attachClient(s)

		s.handleClientMessage(c, []byte(`{"type":"PING"}`))

		msg := nextMessage(t, c)
		require.Equal(t, models.ServerMsgPong, msg.Type)
		require.NotZero(t, msg.Timestamp)
	})

	t.Run("subscribe routes through the payload", func(t *testing.T) {
		s, upstream, _ := newTestServer(t)
		c := attachClient(s)

		s.handleClientMessage(c, []byte(`{"type":"SUBSCRIBE","payload":{"symbols":["SPY"]}}`))

		require.Equal(t, [][]string{{"SPY"}}, upstream.subscribed)
		require.True(t, c.isSubscribed("SPY"))
	})
}

// -----------------------------------------------------------------------------
// Origin Allow-List
// -----------------------------------------------------------------------------

func TestOriginAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	t.Run("empty list accepts anything", func(t *testing.T) {
		require.True(t, s.originAllowed("http://anywhere.example"))
	})

	t.Run("non-empty list is exact match", func(t *testing.T) {
		s.Config.AllowedOrigins = []string{"http://localhost:3000"}
		require.True(t, s.originAllowed("http://localhost:3000"))
		require.False(t, s.originAllowed("http://evil.example"))
	})
}
