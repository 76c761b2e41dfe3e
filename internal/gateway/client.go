package gateway

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed assets; empty means every asset.
	subMu  sync.RWMutex
	assets map[string]bool
}

// clientMsg is the inbound control message.
//
//	{"type":"SUBSCRIBE","assets":["BTC"]}
//	{"type":"UNSUBSCRIBE","assets":["BTC"]}
//	{"ping":1700000000000}
type clientMsg struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets"`
	Ping   int64    `json:"ping"`
	ReqID  string   `json:"req_id,omitempty"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
		assets: make(map[string]bool),
	}
}

func (c *Client) wants(asset string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.assets) == 0 || c.assets[asset]
}

func (c *Client) subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.assets))
	for a := range c.assets {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// sendInitialState queues the latest envelope of every asset newer than lastTS.
func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for asset, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.Forecast.ComputedAt.After(cutoff) {
			continue
		}
		if !c.wants(asset) {
			continue
		}
		select {
		case c.send <- entry.Envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: queued messages share one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg clientMsg) {
	switch msg.Type {
	case "SUBSCRIBE":
		c.subMu.Lock()
		for _, a := range msg.Assets {
			c.assets[a] = true
		}
		c.subMu.Unlock()
		c.reply(map[string]any{"type": "subscribed", "req_id": msg.ReqID, "assets": c.subscriptions()})
		c.sendInitialState("")

	case "UNSUBSCRIBE":
		c.subMu.Lock()
		for _, a := range msg.Assets {
			delete(c.assets, a)
		}
		c.subMu.Unlock()
		c.reply(map[string]any{"type": "unsubscribed", "req_id": msg.ReqID, "assets": c.subscriptions()})

	default:
		if msg.Ping > 0 {
			c.reply(map[string]any{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
		}
	}
}

// reply queues a control message without blocking the read loop.
func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}
