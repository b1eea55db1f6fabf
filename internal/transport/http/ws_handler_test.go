package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"quizparty-service/internal/app"
	"quizparty-service/internal/domain"
	"quizparty-service/internal/infra/memory"
)

func TestWebSocketRoomFlow(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	host := dial(t, server)
	defer host.Close()
	guest := dial(t, server)
	defer guest.Close()

	readEnvelope(t, host, "connected")
	readEnvelope(t, guest, "connected")

	// Host creates a room and receives the lobby snapshot.
	writeAction(t, host, "create-room", map[string]any{"name": "Amina"})
	created := readSnapshot(t, host)
	if created.Phase != domain.PhaseLobby || len(created.Players) != 1 {
		t.Fatalf("expected fresh lobby, got %+v", created)
	}

	// Guest joins; both sides observe the 2-player lobby.
	writeAction(t, guest, "join-room", map[string]any{"code": created.Code, "name": "Bilal"})
	joinedGuest := readSnapshot(t, guest)
	if len(joinedGuest.Players) != 2 {
		t.Fatalf("expected 2 players after join, got %+v", joinedGuest.Players)
	}
	joinedHost := readSnapshot(t, host)
	if len(joinedHost.Players) != 2 {
		t.Fatalf("expected join broadcast to host, got %+v", joinedHost.Players)
	}

	// Host starts the game; both see the active first question.
	writeAction(t, host, "start-game", map[string]any{"code": created.Code})
	started := readSnapshot(t, host)
	if started.Phase != domain.PhaseActive || started.ActiveQuestion == nil {
		t.Fatalf("expected active question after start, got %+v", started)
	}
	readSnapshot(t, guest)

	// Both answer; the final submission publishes the reveal.
	writeAction(t, host, "submit-answer", map[string]any{"code": created.Code, "optionIndex": 0})
	afterFirst := readSnapshot(t, host)
	if afterFirst.Reveal != nil {
		t.Fatalf("reveal must wait for all players, got %+v", afterFirst.Reveal)
	}
	readSnapshot(t, guest)

	writeAction(t, guest, "submit-answer", map[string]any{"code": created.Code, "optionIndex": 1})
	revealed := readSnapshot(t, guest)
	if revealed.Reveal == nil || len(revealed.Reveal.Choices) != 2 {
		t.Fatalf("expected reveal with both choices, got %+v", revealed.Reveal)
	}
	readSnapshot(t, host)
}

func TestWebSocketRejectionsGoOnlyToInitiator(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	readEnvelope(t, conn, "connected")

	writeAction(t, conn, "join-room", map[string]any{"code": "ZZZZZ", "name": "Amina"})
	payload := readEnvelope(t, conn, "rejected")
	if payload["reason"] != "room-not-found" {
		t.Fatalf("expected room-not-found, got %v", payload["reason"])
	}

	writeAction(t, conn, "no-such-action", map[string]any{})
	payload = readEnvelope(t, conn, "rejected")
	if payload["reason"] != "unsupported-action" {
		t.Fatalf("expected unsupported-action, got %v", payload["reason"])
	}
}

func TestWebSocketDisconnectRemovesPlayer(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	host := dial(t, server)
	defer host.Close()
	guest := dial(t, server)

	readEnvelope(t, host, "connected")
	readEnvelope(t, guest, "connected")

	writeAction(t, host, "create-room", map[string]any{"name": "Amina"})
	created := readSnapshot(t, host)
	writeAction(t, guest, "join-room", map[string]any{"code": created.Code, "name": "Bilal"})
	readSnapshot(t, guest)
	readSnapshot(t, host)

	guest.Close()

	gone := readSnapshot(t, host)
	if len(gone.Players) != 1 || gone.Players[0].DisplayName != "Amina" {
		t.Fatalf("expected Bilal removed on disconnect, got %+v", gone.Players)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewRoomStore()
	banks := memory.NewBankRepository(memory.NewStaticBankLoader(map[string][]domain.Question{
		"default": sampleBank(),
	}), time.Minute)
	service := app.NewRoomService(store, banks, app.GameConfig{
		BankID:            "default",
		TotalLevels:       2,
		QuestionsPerLevel: 5,
	})
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeAction(t *testing.T, conn *websocket.Conn, action string, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": action, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", action, err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn, expect string) map[string]any {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Payload
}

func readSnapshot(t *testing.T, conn *websocket.Conn) domain.Snapshot {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "room" {
		t.Fatalf("expected room update, got %s (%s)", msg.Type, msg.Payload)
	}
	var snapshot domain.Snapshot
	if err := json.Unmarshal(msg.Payload, &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	return snapshot
}

func sampleBank() []domain.Question {
	return []domain.Question{
		{ID: "e1", Difficulty: domain.DifficultyEasy, Prompt: "easy one", Options: []string{"right", "wrong"}, AnswerIndex: 0},
		{ID: "m1", Difficulty: domain.DifficultyMedium, Prompt: "medium one", Options: []string{"wrong", "right"}, AnswerIndex: 1},
		{ID: "h1", Difficulty: domain.DifficultyHard, Prompt: "hard one", Options: []string{"right", "wrong"}, AnswerIndex: 0},
	}
}
