// Package gateway serves computed forecasts and ledger accuracy over REST
// and pushes every new forecast to WebSocket clients.
package gateway

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"forecast-engine/internal/model"
)

const defaultReplaySize = 500

// Hub manages WebSocket clients and fans forecasts out to them. It is a
// model.ForecastSink: the refresh cycle hands it every computed forecast.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // keyed by asset
	seqs    map[string]int64       // per-asset monotonic seq for gap detection
	replay  map[string]*ReplayBuffer
	seq     int64

	replaySize int
	now        func() time.Time
	log        *slog.Logger

	// OnClientCount is called with the new client count after every
	// connect or disconnect.
	OnClientCount func(n int)

	// OnBroadcast is called with the lag between forecast computation and
	// fan-out.
	OnBroadcast func(lag time.Duration)
}

type latestEntry struct {
	Forecast model.Forecast
	Envelope []byte
	Seq      int64
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		latest:     make(map[string]latestEntry),
		seqs:       make(map[string]int64),
		replay:     make(map[string]*ReplayBuffer),
		replaySize: defaultReplaySize,
		now:        time.Now,
		log:        log,
	}
}

func (h *Hub) Name() string { return "ws-hub" }

// Consume broadcasts a forecast to every client subscribed to its asset.
func (h *Hub) Consume(_ context.Context, f model.Forecast) error {
	h.Broadcast(f)
	return nil
}

// Broadcast stores f as the asset's latest forecast, appends its envelope
// to the asset's replay buffer and queues it on matching clients. Slow
// clients whose send queue is full miss the message and can backfill it
// from the replay endpoint.
func (h *Hub) Broadcast(f model.Forecast) {
	now := h.now().UTC()
	if h.OnBroadcast != nil && !f.ComputedAt.IsZero() {
		h.OnBroadcast(now.Sub(f.ComputedAt))
	}

	h.mu.Lock()
	h.seqs[f.AssetID]++
	assetSeq := h.seqs[f.AssetID]
	h.seq++
	env := buildEnvelope(f.AssetID, f.JSON(), now, h.seq, assetSeq)
	h.latest[f.AssetID] = latestEntry{Forecast: f, Envelope: env, Seq: assetSeq}
	rb, ok := h.replay[f.AssetID]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replay[f.AssetID] = rb
	}
	h.mu.Unlock()

	rb.Push(assetSeq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(f.AssetID) {
			continue
		}
		select {
		case client.send <- env:
		default:
		}
	}
}

// buildEnvelope hand-crafts {"asset":..,"data":..,"ts":..,"seq":..,"asset_seq":..}
// to avoid re-marshalling the forecast payload.
func buildEnvelope(asset string, data []byte, now time.Time, seq, assetSeq int64) []byte {
	buf := make([]byte, 0, len(asset)+len(data)+128)
	buf = append(buf, `{"asset":`...)
	buf = strconv.AppendQuote(buf, asset)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"asset_seq":`...)
	buf = strconv.AppendInt(buf, assetSeq, 10)
	buf = append(buf, '}')
	return buf
}

// Register attaches an upgraded connection as a new client and starts its
// pumps. Forecasts computed after lastTS (RFC3339Nano, optional) are sent
// immediately as initial state.
func (h *Hub) Register(conn *websocket.Conn, lastTS string) {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("[gateway] ws client connected", slog.Int("clients", count))
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.log.Info("[gateway] ws client disconnected", slog.Int("clients", count))
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// Latest returns the most recent forecast of every asset (or only of
// assetID when non-empty), sorted by asset.
func (h *Hub) Latest(assetID string) []model.Forecast {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.Forecast, 0, len(h.latest))
	for asset, e := range h.latest {
		if assetID != "" && asset != assetID {
			continue
		}
		out = append(out, e.Forecast)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// Replay returns buffered envelopes of an asset with asset_seq in [fromSeq, toSeq].
func (h *Hub) Replay(assetID string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replay[assetID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// AssetSeq returns the current sequence number of an asset.
func (h *Hub) AssetSeq(assetID string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[assetID]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
