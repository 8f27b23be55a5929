package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	maxMessageSize = 64 * 1024
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	hub  *FanOutServer
	conn *websocket.Conn
	send chan []byte

	subsMutex sync.RWMutex
	subs      map[string]struct{}

	// UnixNano of the last inbound message or pong
	activity atomic.Int64
}

// -----------------------------------------------------------------------------

func newClient(hub *FanOutServer, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan []byte, 256),
		subs: make(map[string]struct{}),
	}
	c.activity.Store(time.Now().UnixNano())
	return c
}

// -----------------------------------------------------------------------------
// Subscription Tracking
// -----------------------------------------------------------------------------

// subscribe adds symbols to the client's set and returns the ones that
// were actually new.
func (c *Client) subscribe(symbols []string) []string {
	c.subsMutex.Lock()
	defer c.subsMutex.Unlock()

	var added []string
	for _, symbol := range symbols {
		if _, ok := c.subs[symbol]; !ok {
			c.subs[symbol] = struct{}{}
			added = append(added, symbol)
		}
	}
	return added
}

// -----------------------------------------------------------------------------

// unsubscribe removes symbols and returns the ones that were actually
// held. Symbols the client never subscribed to are ignored.
func (c *Client) unsubscribe(symbols []string) []string {
	c.subsMutex.Lock()
	defer c.subsMutex.Unlock()

	var removed []string
	for _, symbol := range symbols {
		if _, ok := c.subs[symbol]; ok {
			delete(c.subs, symbol)
			removed = append(removed, symbol)
		}
	}
	return removed
}

// -----------------------------------------------------------------------------

func (c *Client) isSubscribed(symbol string) bool {
	c.subsMutex.RLock()
	defer c.subsMutex.RUnlock()
	_, ok := c.subs[symbol]
	return ok
}

// -----------------------------------------------------------------------------

func (c *Client) subscriptions() []string {
	c.subsMutex.RLock()
	defer c.subsMutex.RUnlock()

	out := make([]string, 0, len(c.subs))
	for symbol := range c.subs {
		out = append(out, symbol)
	}
	return out
}

// -----------------------------------------------------------------------------
// Activity Tracking
// -----------------------------------------------------------------------------

func (c *Client) touch() {
	c.activity.Store(time.Now().UnixNano())
}

func (c *Client) lastActive() time.Time {
	return time.Unix(0, c.activity.Load())
}

// -----------------------------------------------------------------------------

// reply serializes a direct response and queues it without blocking.
func (c *Client) reply(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, the hub slow-path will evict it
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.hub.Logger.Info("Client disconnected")
	}()

	pongWait := 2 * time.Duration(c.hub.Config.Server.HeartbeatSecs) * time.Second

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.touch()
		c.hub.handleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(time.Duration(c.hub.Config.Server.HeartbeatSecs) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
