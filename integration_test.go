// integration_test.go
package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/markb/chatlite/internal/auth"
	"github.com/markb/chatlite/internal/relay"
	"github.com/markb/chatlite/internal/server"
	"github.com/markb/chatlite/internal/store"
)

const testSecret = "test-secret-key-min-32-characters"

func newTestStack(t *testing.T) (*server.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc := relay.NewService(st, auth.NewVerifier(testSecret), relay.DefaultConfig(), nil)
	return server.New(svc, nil), st
}

func dial(t *testing.T, baseURL, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/realtime/v1/websocket?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed for %s: %v", userID, err)
	}
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var frame struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("bad frame %s: %v", data, err)
	}
	return frame.Event, frame.Payload
}

// barrier round-trips a heartbeat. The ack proves the server has
// finished processing everything this connection sent before it.
func barrier(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"event": "heartbeat"}); err != nil {
		t.Fatalf("heartbeat write failed: %v", err)
	}
	if event, _ := readEvent(t, ws); event != "heartbeat:ack" {
		t.Fatalf("expected heartbeat:ack, got %s", event)
	}
}

func TestFullRelayFlow(t *testing.T) {
	srv, st := newTestStack(t)
	st.AddUser(&store.User{ID: "alice", DisplayName: "Alice"})
	st.AddUser(&store.User{ID: "bob", DisplayName: "Bob"})
	st.AddFriendship("alice", "bob")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// 1. Handshake is refused without a token
	resp, err := http.Get(ts.URL + "/realtime/v1/websocket")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// 2. Both users connect with valid tokens. The barrier makes sure
	// Alice is fully registered before Bob's presence is announced.
	aliceWS := dial(t, ts.URL, "alice")
	defer aliceWS.Close()
	barrier(t, aliceWS)
	bobWS := dial(t, ts.URL, "bob")
	defer bobWS.Close()

	// Alice hears her friend come online
	event, payload := readEvent(t, aliceWS)
	if event != "friend:status_update" {
		t.Fatalf("expected friend:status_update, got %s", event)
	}
	var status struct {
		UserID string `json:"user_id"`
		Status string `json:"status"`
	}
	json.Unmarshal(payload, &status)
	if status.UserID != "bob" || status.Status != "online" {
		t.Fatalf("unexpected status payload: %s", payload)
	}

	// 3. Both join a room; Alice joins first and sees Bob's join
	aliceWS.WriteJSON(map[string]any{"event": "room:join", "payload": map[string]any{"room_id": "lobby"}})
	barrier(t, aliceWS)
	bobWS.WriteJSON(map[string]any{"event": "room:join", "payload": map[string]any{"room_id": "lobby"}})

	event, payload = readEvent(t, aliceWS)
	if event != "user:joined" {
		t.Fatalf("expected user:joined, got %s", event)
	}

	// 4. Bob sends a room message; it is persisted and both receive it
	bobWS.WriteJSON(map[string]any{"event": "public:message", "payload": map[string]any{"room_id": "lobby", "text": "hello lobby"}})

	for _, ws := range []*websocket.Conn{aliceWS, bobWS} {
		event, payload = readEvent(t, ws)
		if event != "public:message" {
			t.Fatalf("expected public:message, got %s", event)
		}
	}
	var chat struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	json.Unmarshal(payload, &chat)
	if chat.Text != "hello lobby" || chat.ID == "" {
		t.Fatalf("unexpected chat payload: %s", payload)
	}
	if len(st.Messages()) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(st.Messages()))
	}

	// 5. Stats reflect the live state
	resp, err = http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	defer resp.Body.Close()
	var stats struct {
		Relay struct {
			Connections int `json:"connections"`
			OnlineUsers int `json:"online_users"`
			Channels    int `json:"channels"`
		} `json:"relay"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("bad stats body: %v", err)
	}
	if stats.Relay.Connections != 2 || stats.Relay.OnlineUsers != 2 || stats.Relay.Channels != 1 {
		t.Fatalf("unexpected stats: %+v", stats.Relay)
	}
}

func TestRandomChatFlow(t *testing.T) {
	srv, st := newTestStack(t)
	st.AddUser(&store.User{ID: "alice", DisplayName: "Alice"})
	st.AddUser(&store.User{ID: "bob", DisplayName: "Bob"})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	aliceWS := dial(t, ts.URL, "alice")
	defer aliceWS.Close()
	bobWS := dial(t, ts.URL, "bob")
	defer bobWS.Close()

	aliceWS.WriteJSON(map[string]any{"event": "random:start"})
	if event, _ := readEvent(t, aliceWS); event != "random:queued" {
		t.Fatalf("expected random:queued, got %s", event)
	}

	bobWS.WriteJSON(map[string]any{"event": "random:start"})
	if event, _ := readEvent(t, bobWS); event != "random:queued" {
		t.Fatalf("expected random:queued, got %s", event)
	}

	event, payload := readEvent(t, aliceWS)
	if event != "random:matched" {
		t.Fatalf("expected random:matched, got %s", event)
	}
	var matched struct {
		Partner struct {
			UserID string `json:"user_id"`
		} `json:"partner"`
	}
	json.Unmarshal(payload, &matched)
	if matched.Partner.UserID != "bob" {
		t.Fatalf("expected partner bob, got %s", matched.Partner.UserID)
	}
	if event, _ = readEvent(t, bobWS); event != "random:matched" {
		t.Fatalf("expected random:matched, got %s", event)
	}

	// Partner disconnect ends the session
	bobWS.Close()
	if event, _ = readEvent(t, aliceWS); event != "random:ended" {
		t.Fatalf("expected random:ended, got %s", event)
	}

	if len(st.Messages()) != 0 {
		t.Fatalf("random chat must not persist messages")
	}
}
