// Package hub fans simulation updates out to websocket clients. Train deltas
// reach the clients watching the train's tile or following the train itself.
// Risk lists are filtered per client by its risk feed mode; clock updates go
// to every client.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"railsim/internal/domain"
)

// RiskMode selects which risk records a client receives.
type RiskMode string

const (
	// RiskAll delivers the full ranked list.
	RiskAll RiskMode = "all"
	// RiskFollowed delivers only records involving a followed train.
	RiskFollowed RiskMode = "followed"
	// RiskOff suppresses risk messages.
	RiskOff RiskMode = "off"
)

// Valid reports whether m is a known mode.
func (m RiskMode) Valid() bool {
	switch m {
	case RiskAll, RiskFollowed, RiskOff:
		return true
	}
	return false
}

type Client struct {
	ID   string
	Send chan []byte

	mu       sync.RWMutex
	tiles    map[string]struct{}
	trains   map[string]struct{}
	riskMode RiskMode
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:       id,
		Send:     make(chan []byte, bufferSize),
		tiles:    make(map[string]struct{}),
		trains:   make(map[string]struct{}),
		riskMode: RiskAll,
	}
}

func (c *Client) HasTile(tileID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tiles[tileID]
	return ok
}

// Follows reports whether the client follows a train.
func (c *Client) Follows(trainID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.trains[trainID]
	return ok
}

func (c *Client) Tiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return keys(c.tiles)
}

func (c *Client) Followed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return keys(c.trains)
}

func (c *Client) RiskMode() RiskMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.riskMode
}

// wantsRisk reports whether a record passes the client's risk filter.
func (c *Client) wantsRisk(r domain.RiskView) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.riskMode {
	case RiskAll:
		return true
	case RiskFollowed:
		_, a := c.trains[r.TrainA]
		_, b := c.trains[r.TrainB]
		return a || b
	}
	return false
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

type Hub struct {
	mu           sync.RWMutex
	clients      map[*Client]struct{}
	tileClients  map[string]map[*Client]struct{}
	trainClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []domain.TrainDelta
	risks      chan []domain.RiskView
	global     chan []byte

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]struct{}),
		tileClients:  make(map[string]map[*Client]struct{}),
		trainClients: make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 16),
		unregister:   make(chan *Client, 16),
		broadcast:    make(chan []domain.TrainDelta, 256),
		risks:        make(chan []domain.RiskView, 16),
		global:       make(chan []byte, 64),
		logger:       logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", len(h.clients))

		case client := <-h.unregister:
			h.removeClient(client)

		case deltas := <-h.broadcast:
			h.fanoutDeltas(deltas)

		case risks := <-h.risks:
			h.fanoutRisks(risks)

		case data := <-h.global:
			h.fanoutAll(data)
		}
	}
}

func index(idx map[string]map[*Client]struct{}, client *Client, ids []string) {
	for _, id := range ids {
		if idx[id] == nil {
			idx[id] = make(map[*Client]struct{})
		}
		idx[id][client] = struct{}{}
	}
}

func unindex(idx map[string]map[*Client]struct{}, client *Client, ids []string) {
	for _, id := range ids {
		if idx[id] != nil {
			delete(idx[id], client)
			if len(idx[id]) == 0 {
				delete(idx, id)
			}
		}
	}
}

// Subscribe adds map tiles to a client's view.
func (h *Hub) Subscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	for _, id := range tileIDs {
		client.tiles[id] = struct{}{}
	}
	client.mu.Unlock()
	index(h.tileClients, client, tileIDs)
}

func (h *Hub) Unsubscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	for _, id := range tileIDs {
		delete(client.tiles, id)
	}
	client.mu.Unlock()
	unindex(h.tileClients, client, tileIDs)
}

// Follow delivers every update of the given trains to the client wherever
// they are on the map.
func (h *Hub) Follow(client *Client, trainIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	for _, id := range trainIDs {
		client.trains[id] = struct{}{}
	}
	client.mu.Unlock()
	index(h.trainClients, client, trainIDs)
}

func (h *Hub) Unfollow(client *Client, trainIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	for _, id := range trainIDs {
		delete(client.trains, id)
	}
	client.mu.Unlock()
	unindex(h.trainClients, client, trainIDs)
}

// SetRiskMode changes which risk records the client receives from the next
// tick on.
func (h *Hub) SetRiskMode(client *Client, mode RiskMode) bool {
	if !mode.Valid() {
		return false
	}
	client.mu.Lock()
	client.riskMode = mode
	client.mu.Unlock()
	return true
}

func (h *Hub) Broadcast(deltas []domain.TrainDelta) {
	if len(deltas) == 0 {
		return
	}
	select {
	case h.broadcast <- deltas:
	default:
		h.logger.Warn("broadcast channel full, dropping deltas", "count", len(deltas))
	}
}

// BroadcastRisks queues the ranked risk list for per-client filtering.
func (h *Hub) BroadcastRisks(risks []domain.RiskView) {
	select {
	case h.risks <- risks:
	default:
		h.logger.Warn("risk channel full, dropping risk list", "count", len(risks))
	}
}

// BroadcastClock sends the simulation clock to every client.
func (h *Hub) BroadcastClock(clock domain.ClockView) {
	data, err := json.Marshal(Message{Type: MessageClock, Payload: clock})
	if err != nil {
		h.logger.Error("failed to encode clock", "error", err)
		return
	}
	select {
	case h.global <- data:
	default:
		h.logger.Warn("global channel full, dropping clock")
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

const (
	MessageSnapshot = "snapshot"
	MessageDelta    = "delta"
	MessageRisks    = "risks"
	MessageClock    = "clock"
	MessagePong     = "pong"
	MessageError    = "error"
)

// Message is the envelope of every outgoing websocket frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type DeltaPayload struct {
	Updates []*domain.TrainView `json:"updates,omitempty"`
	Removes []string            `json:"removes,omitempty"`
}

// FilterRisks returns the records a client wants, never nil.
func FilterRisks(client *Client, risks []domain.RiskView) []domain.RiskView {
	out := make([]domain.RiskView, 0, len(risks))
	for _, r := range risks {
		if client.wantsRisk(r) {
			out = append(out, r)
		}
	}
	return out
}

func (h *Hub) fanoutDeltas(deltas []domain.TrainDelta) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clientDeltas := make(map[*Client][]domain.TrainDelta)
	add := func(clients map[*Client]struct{}, d domain.TrainDelta) {
		for client := range clients {
			clientDeltas[client] = append(clientDeltas[client], d)
		}
	}

	for _, d := range deltas {
		add(h.tileClients[d.TileID], d)

		id := d.ID
		if d.Train != nil {
			id = d.Train.ID
		}
		for client := range h.trainClients[id] {
			if _, viaTile := h.tileClients[d.TileID][client]; !viaTile {
				clientDeltas[client] = append(clientDeltas[client], d)
			}
		}
	}

	for client, ds := range clientDeltas {
		msg, ok := buildDeltaMessage(ds)
		if !ok {
			continue
		}
		h.send(client, msg)
	}
}

// buildDeltaMessage folds deltas into one message. A train that leaves one of
// the client's tiles for another is only updated, not removed.
func buildDeltaMessage(deltas []domain.TrainDelta) (Message, bool) {
	var payload DeltaPayload
	updated := make(map[string]struct{})

	for _, d := range deltas {
		if d.Type == domain.DeltaUpdate && d.Train != nil {
			if _, dup := updated[d.Train.ID]; dup {
				continue
			}
			updated[d.Train.ID] = struct{}{}
			payload.Updates = append(payload.Updates, d.Train)
		}
	}
	for _, d := range deltas {
		if d.Type != domain.DeltaRemove {
			continue
		}
		if _, moved := updated[d.ID]; moved {
			continue
		}
		payload.Removes = append(payload.Removes, d.ID)
	}

	if len(payload.Updates) == 0 && len(payload.Removes) == 0 {
		return Message{}, false
	}
	return Message{Type: MessageDelta, Payload: payload}, true
}

func (h *Hub) fanoutRisks(risks []domain.RiskView) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if risks == nil {
		risks = []domain.RiskView{}
	}
	var all []byte
	for client := range h.clients {
		switch client.RiskMode() {
		case RiskOff:
			continue
		case RiskAll:
			if all == nil {
				data, err := json.Marshal(Message{Type: MessageRisks, Payload: risks})
				if err != nil {
					h.logger.Error("failed to encode risks", "error", err)
					return
				}
				all = data
			}
			h.sendRaw(client, all)
		default:
			h.send(client, Message{Type: MessageRisks, Payload: FilterRisks(client, risks)})
		}
	}
}

func (h *Hub) send(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode message", "type", msg.Type, "error", err)
		return
	}
	h.sendRaw(client, data)
}

func (h *Hub) sendRaw(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}

func (h *Hub) fanoutAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		h.sendRaw(client, data)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	unindex(h.tileClients, client, client.Tiles())
	unindex(h.trainClients, client, client.Followed())

	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.tileClients = make(map[string]map[*Client]struct{})
	h.trainClients = make(map[string]map[*Client]struct{})
}
