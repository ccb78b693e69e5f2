package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"arena-clash/internal/game"
)

// Inbound events
const (
	EventJoinRoom     = "joinRoom"
	EventStartMatch   = "startMatch"
	EventMovePlayer   = "movePlayer"
	EventCreateBullet = "createBullet"
	EventRemovePlayer = "removePlayer"
)

// Outbound replies
const (
	EventRoomResponse        = "roomResponse"
	EventStateUpdateResponse = "stateUpdateResponse"
	EventError               = "error"
)

const (
	ResponseSuccess = "success"
	ResponseError   = "error"
)

// Response is the payload of roomResponse and stateUpdateResponse.
type Response struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EventHandler dispatches socket events to the match registry. Successful
// room events are announced to the whole room; every failure goes back to
// the sender only.
type EventHandler struct {
	game GameService
	hub  *Hub
	log  *zap.Logger
}

// NewEventHandler creates a handler bound to hub.
func NewEventHandler(svc GameService, hub *Hub, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{game: svc, hub: hub, log: logger.Named("events")}
}

// HandleMessage implements ClientHandler.
func (h *EventHandler) HandleMessage(c *Client, msg Message) {
	switch msg.Event {
	case EventJoinRoom:
		h.joinRoom(c, msg.Data)
	case EventStartMatch:
		h.startMatch(c, msg.Data)
	case EventMovePlayer:
		h.movePlayer(c, msg.Data)
	case EventCreateBullet:
		h.createBullet(c)
	case EventRemovePlayer:
		h.removePlayer(c, msg.Data)
	default:
		h.hub.EmitTo(c, EventError, Response{Type: ResponseError, Message: fmt.Sprintf("Unknown event %q", msg.Event)})
	}
}

// HandleDisconnect implements ClientHandler. The player keeps its slot and
// the rest of the room is told it dropped.
func (h *EventHandler) HandleDisconnect(c *Client) {
	res, err := h.game.RemovePlayerBySocketID(c.ID)
	if err != nil {
		// sockets that never joined a room land here
		h.log.Debug("Disconnect without membership", zap.String("socket_id", c.ID), zap.Error(err))
		return
	}
	h.hub.Emit(res.Code, EventRoomResponse, Response{
		Type:    ResponseSuccess,
		Message: fmt.Sprintf(game.MsgDisconnect, res.UserName),
	})
}

type roomRequest struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type moveRequest struct {
	Dir string `json:"dir"`
}

func (h *EventHandler) joinRoom(c *Client, data json.RawMessage) {
	var req roomRequest
	if !h.decode(c, EventRoomResponse, data, &req) {
		return
	}

	res, err := h.game.AddPlayerToMatch(req.RoomID, game.JoinRequest{
		PlayerID: c.UserID,
		SocketID: c.ID,
		UserName: req.UserName,
	})
	if err != nil {
		h.fail(c, EventRoomResponse, err)
		return
	}

	// the replaced socket stops receiving this room's traffic
	if res.PreviousSocketID != "" {
		h.hub.Leave(res.PreviousSocketID, res.Code)
	}
	h.hub.Join(c, res.Code)
	h.hub.Emit(res.Code, EventRoomResponse, Response{Type: ResponseSuccess, Message: res.Message})
}

func (h *EventHandler) startMatch(c *Client, data json.RawMessage) {
	var req roomRequest
	if !h.decode(c, EventRoomResponse, data, &req) {
		return
	}

	res, err := h.game.StartMatch(req.RoomID, c.UserID)
	if err != nil {
		h.fail(c, EventRoomResponse, err)
		return
	}
	h.hub.Emit(res.Code, EventRoomResponse, Response{Type: ResponseSuccess, Message: res.Message})
}

func (h *EventHandler) movePlayer(c *Client, data json.RawMessage) {
	var req moveRequest
	if !h.decode(c, EventStateUpdateResponse, data, &req) {
		return
	}

	msg, err := h.game.UpdatePlayerPosition(c.UserID, req.Dir)
	if err != nil {
		h.fail(c, EventStateUpdateResponse, err)
		return
	}
	h.hub.EmitTo(c, EventStateUpdateResponse, Response{Type: ResponseSuccess, Message: msg})
}

func (h *EventHandler) createBullet(c *Client) {
	msg, err := h.game.CreateBullet(c.UserID)
	if err != nil {
		h.fail(c, EventStateUpdateResponse, err)
		return
	}
	h.hub.EmitTo(c, EventStateUpdateResponse, Response{Type: ResponseSuccess, Message: msg})
}

func (h *EventHandler) removePlayer(c *Client, data json.RawMessage) {
	var req roomRequest
	if !h.decode(c, EventRoomResponse, data, &req) {
		return
	}

	res, err := h.game.RemovePlayer(c.UserID)
	if err != nil {
		h.fail(c, EventRoomResponse, err)
		return
	}

	// announce before leaving so the sender sees it too
	h.hub.Emit(res.Code, EventRoomResponse, Response{
		Type:    ResponseSuccess,
		Message: fmt.Sprintf(game.MsgLeft, res.UserName),
	})
	h.hub.Leave(c.ID, res.Code)
	if res.SocketID != "" && res.SocketID != c.ID {
		h.hub.Leave(res.SocketID, res.Code)
	}
}

// decode reports a malformed payload to the sender. An absent payload
// decodes to the zero value and is left to the registry to judge.
func (h *EventHandler) decode(c *Client, event string, data json.RawMessage, v any) bool {
	if len(data) == 0 || string(data) == "null" {
		return true
	}
	if err := json.Unmarshal(data, v); err != nil {
		h.hub.EmitTo(c, event, Response{Type: ResponseError, Message: "Invalid payload"})
		return false
	}
	return true
}

func (h *EventHandler) fail(c *Client, event string, err error) {
	msg := err.Error()
	if errors.Is(err, game.ErrInternal) {
		h.log.Error("Event failed",
			zap.String("event", event),
			zap.String("socket_id", c.ID),
			zap.String("player_id", c.UserID),
			zap.Error(err),
		)
		msg = "An error occurred while handling the request."
	} else {
		h.log.Debug("Event rejected",
			zap.String("event", event),
			zap.String("socket_id", c.ID),
			zap.String("player_id", c.UserID),
			zap.Error(err),
		)
	}
	h.hub.EmitTo(c, event, Response{Type: ResponseError, Message: msg})
}
