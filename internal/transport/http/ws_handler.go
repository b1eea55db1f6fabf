package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"quizparty-service/internal/app"
	"quizparty-service/internal/domain"
)

type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createRoomPayload struct {
	Name          string `json:"name"`
	PreferredCode string `json:"preferredCode"`
}

type joinRoomPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type codePayload struct {
	Code string `json:"code"`
}

type selectLevelPayload struct {
	Code       string `json:"code"`
	LevelIndex int    `json:"levelIndex"`
}

type answerPayload struct {
	Code        string `json:"code"`
	OptionIndex int    `json:"optionIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type connectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type rejectedPayload struct {
	Reason string `json:"reason"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room
// registry. The connection handle is the player identity for its lifetime;
// closing the socket is an implicit leave.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// The subscription to the connection's current room; swapped when the
	// connection creates or joins another room.
	var cancelUpdates func()
	var pumpDone chan struct{}
	resubscribe := func(code string) {
		if cancelUpdates != nil {
			cancelUpdates()
			<-pumpDone
		}
		updates, cancel, err := h.service.Subscribe(code)
		if err != nil {
			cancelUpdates = nil
			h.reject(send, closeSignals, err)
			return
		}
		cancelUpdates = cancel
		pumpDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			for update := range updates {
				select {
				case send <- outboundMessage[any]{Type: "room", Payload: update}:
				case <-closeSignals:
					return
				}
			}
		}(pumpDone)
	}

	send <- outboundMessage[any]{Type: "connected", Payload: connectedPayload{ConnectionID: connID}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "create-room":
			var payload createRoomPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			snapshot, err := h.service.CreateRoom(r.Context(), connID, payload.Name, payload.PreferredCode)
			if err != nil {
				h.reject(send, closeSignals, err)
				continue
			}
			resubscribe(snapshot.Code)

		case "join-room":
			var payload joinRoomPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			snapshot, err := h.service.JoinRoom(payload.Code, connID, payload.Name)
			if err != nil {
				h.reject(send, closeSignals, err)
				continue
			}
			resubscribe(snapshot.Code)

		case "request-snapshot":
			var payload codePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			snapshot, ok := h.service.Snapshot(payload.Code)
			if !ok {
				h.send(send, closeSignals, outboundMessage[any]{Type: "rejected", Payload: rejectedPayload{Reason: "room-not-found"}})
				continue
			}
			h.send(send, closeSignals, outboundMessage[any]{Type: "room", Payload: snapshot})

		case "start-game":
			var payload codePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			if _, err := h.service.StartGame(payload.Code, connID); err != nil {
				h.reject(send, closeSignals, err)
			}

		case "select-level":
			var payload selectLevelPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			if _, err := h.service.SelectLevel(payload.Code, connID, payload.LevelIndex); err != nil {
				h.reject(send, closeSignals, err)
			}

		case "submit-answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			if _, err := h.service.SubmitAnswer(payload.Code, connID, payload.OptionIndex); err != nil {
				h.reject(send, closeSignals, err)
			}

		case "advance-question":
			var payload codePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			if _, err := h.service.NextQuestion(payload.Code, connID); err != nil {
				h.reject(send, closeSignals, err)
			}

		case "advance-level":
			var payload codePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.badRequest(send, closeSignals)
				continue
			}
			if _, err := h.service.NextLevel(payload.Code, connID); err != nil {
				h.reject(send, closeSignals, err)
			}

		default:
			h.send(send, closeSignals, outboundMessage[any]{Type: "rejected", Payload: rejectedPayload{Reason: "unsupported-action"}})
		}
	}

	close(closeSignals)
	if cancelUpdates != nil {
		cancelUpdates()
		<-pumpDone
	}
	h.service.LeaveRoom(connID)
	close(send)
	<-writerDone
}

func (h *WSHandler) reject(send chan outboundMessage[any], closeSignals chan struct{}, err error) {
	h.send(send, closeSignals, outboundMessage[any]{Type: "rejected", Payload: rejectedPayload{Reason: domain.Reason(err)}})
}

func (h *WSHandler) badRequest(send chan outboundMessage[any], closeSignals chan struct{}) {
	h.send(send, closeSignals, outboundMessage[any]{Type: "rejected", Payload: rejectedPayload{Reason: "bad-request"}})
}

func (h *WSHandler) send(send chan outboundMessage[any], closeSignals chan struct{}, msg outboundMessage[any]) {
	select {
	case send <- msg:
	case <-closeSignals:
	}
}
