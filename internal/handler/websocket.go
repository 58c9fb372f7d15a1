package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"railsim/internal/domain"
	"railsim/internal/hub"
	"railsim/internal/store"
)

// Commander applies user commands to the running simulation.
type Commander interface {
	SetSpeed(multiplier float64) error
	RequestStop(ids []string) error
	Clock() domain.ClockView
}

type WSHandler struct {
	hub       *hub.Hub
	store     *store.Store
	commander Commander
	logger    *slog.Logger
}

func NewWSHandler(h *hub.Hub, s *store.Store, commander Commander, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, store: s, commander: commander, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TilesPayload struct {
	TileIDs []string `json:"tileIds"`
}

type FollowPayload struct {
	TrainIDs []string `json:"trainIds"`
}

type RiskFeedPayload struct {
	Mode hub.RiskMode `json:"mode"`
}

type SetSpeedPayload struct {
	Multiplier float64 `json:"multiplier"`
}

type StopPayload struct {
	TrainIDs []string `json:"trainIds"`
}

type SnapshotPayload struct {
	Trains []*domain.TrainView `json:"trains"`
}

type ErrorPayload struct {
	Request string `json:"request"`
	Error   string `json:"error"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.send(client, hub.Message{Type: hub.MessageClock, Payload: h.commander.Clock()})
	h.send(client, hub.Message{Type: hub.MessageRisks, Payload: hub.FilterRisks(client, h.store.Risks())})

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			h.sendError(client, "", "invalid message format")
			continue
		}

		h.handle(client, msg)
	}
}

func (h *WSHandler) handle(client *hub.Client, msg WSMessage) {
	switch msg.Type {
	case "subscribe":
		var payload TilesPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.Type, "invalid payload")
			return
		}
		if len(payload.TileIDs) > 0 {
			h.hub.Subscribe(client, payload.TileIDs)
			h.send(client, hub.Message{
				Type:    hub.MessageSnapshot,
				Payload: SnapshotPayload{Trains: h.store.SnapshotForTiles(payload.TileIDs)},
			})
		}

	case "unsubscribe":
		var payload TilesPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.Type, "invalid payload")
			return
		}
		if len(payload.TileIDs) > 0 {
			h.hub.Unsubscribe(client, payload.TileIDs)
		}

	case "follow":
		var payload FollowPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.Type, "invalid payload")
			return
		}
		if len(payload.TrainIDs) > 0 {
			h.hub.Follow(client, payload.TrainIDs)
			trains := make([]*domain.TrainView, 0, len(payload.TrainIDs))
			for _, id := range payload.TrainIDs {
				if v, ok := h.store.Get(id); ok {
					trains = append(trains, v)
				}
			}
			h.send(client, hub.Message{Type: hub.MessageSnapshot, Payload: SnapshotPayload{Trains: trains}})
		}

	case "unfollow":
		var payload FollowPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.Type, "invalid payload")
			return
		}
		if len(payload.TrainIDs) > 0 {
			h.hub.Unfollow(client, payload.TrainIDs)
		}

	case "riskFeed":
		var payload RiskFeedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.Type, "invalid payload")
			return
		}
		if !h.hub.SetRiskMode(client, payload.Mode) {
			h.sendError(client, msg.Type, "mode must be all, followed or off")
			return
		}
		if payload.Mode != hub.RiskOff {
			h.send(client, hub.Message{Type: hub.MessageRisks, Payload: hub.FilterRisks(client, h.store.Risks())})
		}

	case "ping":
		h.send(client, hub.Message{Type: hub.MessagePong})

	case "setSpeed":
		ServerStats.IncWSCommands()
		var payload SetSpeedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.Type, "invalid payload")
			return
		}
		if err := h.commander.SetSpeed(payload.Multiplier); err != nil {
			h.sendError(client, msg.Type, err.Error())
			return
		}
		h.hub.BroadcastClock(h.commander.Clock())

	case "stop":
		ServerStats.IncWSCommands()
		var payload StopPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.Type, "invalid payload")
			return
		}
		if err := h.commander.RequestStop(payload.TrainIDs); err != nil {
			h.sendError(client, msg.Type, err.Error())
		}

	default:
		h.sendError(client, msg.Type, "unknown message type")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) send(client *hub.Client, msg hub.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID, "type", msg.Type)
	}
}

func (h *WSHandler) sendError(client *hub.Client, request, message string) {
	h.send(client, hub.Message{Type: hub.MessageError, Payload: ErrorPayload{Request: request, Error: message}})
}
