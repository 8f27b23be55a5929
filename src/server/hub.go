package server

import (
	"encoding/json"
	"net/http"
	"time"

	"trade-scanner/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub is the main Hub loop
func (s *FanOutServer) runHub() {
	idle := time.Duration(s.Config.Server.IdleSecs) * time.Second
	idleTicker := time.NewTicker(idle / 2)
	defer idleTicker.Stop()

	for {
		select {
		case client := <-s.register:
			s.addClient(client)

		case client := <-s.unregister:
			s.dropClient(client)

		case data := <-s.broadcast:
			// Copy under lock, send outside it. Every open client gets
			// every frame; per-client subscriptions only scope the
			// upstream subscribe/unsubscribe traffic.
			s.stateMutex.RLock()
			targets := make([]*Client, 0, len(s.clients))
			for client := range s.clients {
				targets = append(targets, client)
			}
			s.stateMutex.RUnlock()

			for _, client := range targets {
				select {
				case client.send <- data:
					// Message sent successfully
				default:
					// Client too slow, disconnect to prevent Hub blocking
					s.dropClient(client)
				}
			}

		case now := <-idleTicker.C:
			s.evictIdleClients(now, idle)
		}
	}
}

// -----------------------------------------------------------------------------

// addClient registers a client and delivers the initial snapshot: the
// last known connection state followed by every live setup.
func (s *FanOutServer) addClient(client *Client) {
	s.stateMutex.Lock()
	s.clients[client] = struct{}{}
	state := s.lastState
	s.stateMutex.Unlock()

	if data, err := encodeServerMessage(models.ServerMsgServiceState, state, nil, ""); err == nil {
		client.send <- data
	}

	if s.Setups == nil {
		return
	}
	for _, setup := range s.Setups.ActiveSetups() {
		event := models.MSetupEvent{Action: "updated", Setup: setup}
		if data, err := encodeServerMessage(models.ServerMsgSetupUpdate, event, nil, ""); err == nil {
			select {
			case client.send <- data:
			default:
			}
		}
	}
}

// -----------------------------------------------------------------------------

// dropClient removes a client from the hub and releases any upstream
// subscriptions no other client still holds.
func (s *FanOutServer) dropClient(client *Client) {
	s.stateMutex.Lock()
	_, ok := s.clients[client]
	if ok {
		delete(s.clients, client)
	}
	s.stateMutex.Unlock()
	if !ok {
		return
	}

	close(client.send)
	client.conn.Close()

	if orphaned := s.orphanedSymbols(client.subscriptions()); len(orphaned) > 0 {
		s.Upstream.Unsubscribe(orphaned)
	}
}

// -----------------------------------------------------------------------------

// evictIdleClients closes connections that sent nothing (not even a
// pong) for the configured idle window. The readPump exits on close
// and routes through unregister.
func (s *FanOutServer) evictIdleClients(now time.Time, idle time.Duration) {
	s.stateMutex.RLock()
	var stale []*Client
	for client := range s.clients {
		if now.Sub(client.lastActive()) > idle {
			stale = append(stale, client)
		}
	}
	s.stateMutex.RUnlock()

	for _, client := range stale {
		s.Logger.Info("Evicting idle client %s", client.conn.RemoteAddr())
		client.conn.Close()
	}
}

// -----------------------------------------------------------------------------

// orphanedSymbols returns the subset of candidates no registered client
// is subscribed to anymore. Only those are released upstream; symbols
// another client still wants keep flowing.
func (s *FanOutServer) orphanedSymbols(candidates []string) []string {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	var orphaned []string
	for _, symbol := range candidates {
		wanted := false
		for client := range s.clients {
			if client.isSubscribed(symbol) {
				wanted = true
				break
			}
		}
		if !wanted {
			orphaned = append(orphaned, symbol)
		}
	}
	return orphaned
}

// -----------------------------------------------------------------------------
// Broadcast Entry Points
// -----------------------------------------------------------------------------

// BroadcastSetupEvent serializes a setup lifecycle event once and
// queues it for every open client.
func (s *FanOutServer) BroadcastSetupEvent(event models.MSetupEvent) {
	data, err := encodeServerMessage(models.ServerMsgSetupUpdate, event, nil, "")
	if err != nil {
		s.Logger.Error("Failed to encode setup event: %v", err)
		return
	}
	s.broadcast <- data
}

// -----------------------------------------------------------------------------

// BroadcastState records the upstream connection state and queues it
// for every open client.
func (s *FanOutServer) BroadcastState(state models.MConnectionState) {
	s.stateMutex.Lock()
	s.lastState = state
	s.stateMutex.Unlock()

	data, err := encodeServerMessage(models.ServerMsgServiceState, state, nil, "")
	if err != nil {
		s.Logger.Error("Failed to encode connection state: %v", err)
		return
	}
	s.broadcast <- data
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

func (s *FanOutServer) handleWebSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn)
	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *FanOutServer) handleClientMessage(client *Client, message []byte) {
	var cmd models.MClientMessage
	if err := json.Unmarshal(message, &cmd); err != nil {
		client.reply(models.MServerMessage{
			Type:      models.ServerMsgError,
			Message:   "malformed message",
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}

	switch cmd.Type {
	case models.ClientMsgSubscribe:
		s.subscribeClient(client, cmd.Payload.Symbols)

	case models.ClientMsgUnsubscribe:
		s.unsubscribeClient(client, cmd.Payload.Symbols)

	case models.ClientMsgPing:
		client.reply(models.MServerMessage{
			Type:      models.ServerMsgPong,
			Timestamp: time.Now().UnixMilli(),
		})

	default:
		client.reply(models.MServerMessage{
			Type:      models.ServerMsgError,
			Message:   "unknown message type: " + cmd.Type,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// -----------------------------------------------------------------------------

func (s *FanOutServer) subscribeClient(client *Client, symbols []string) {
	added := client.subscribe(symbols)
	if len(added) > 0 {
		// The upstream manager dedups repeat subscriptions itself
		s.Upstream.Subscribe(added)
	}

	client.reply(models.MServerMessage{
		Type:      models.ServerMsgSubscriptions,
		Symbols:   client.subscriptions(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------

func (s *FanOutServer) unsubscribeClient(client *Client, symbols []string) {
	removed := client.unsubscribe(symbols)
	if orphaned := s.orphanedSymbols(removed); len(orphaned) > 0 {
		s.Upstream.Unsubscribe(orphaned)
	}

	client.reply(models.MServerMessage{
		Type:      models.ServerMsgSubscriptions,
		Symbols:   client.subscriptions(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func encodeServerMessage(msgType string, payload interface{}, symbols []string, message string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.MServerMessage{
		Type:      msgType,
		Payload:   raw,
		Symbols:   symbols,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}
