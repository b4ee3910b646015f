package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/chatlite/internal/auth"
	"github.com/markb/chatlite/internal/store"
)

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/realtime/v1/websocket?token=abc", nil)
	assert.Equal(t, "abc", bearerToken(req))

	req = httptest.NewRequest("GET", "/realtime/v1/websocket", nil)
	req.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", bearerToken(req))

	req = httptest.NewRequest("GET", "/realtime/v1/websocket", nil)
	req.Header.Set("Authorization", "bearer lower")
	assert.Equal(t, "lower", bearerToken(req))

	req = httptest.NewRequest("GET", "/realtime/v1/websocket", nil)
	assert.Empty(t, bearerToken(req))

	// Query parameter wins over the header.
	req = httptest.NewRequest("GET", "/realtime/v1/websocket?token=q", nil)
	req.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "q", bearerToken(req))
}

func TestHandleWebSocketRejectsUnknownUser(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, auth.NewVerifier("secret"), DefaultConfig(), nil)

	token, err := auth.GenerateToken("secret", "ghost", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/realtime/v1/websocket?token="+token, nil)
	w := httptest.NewRecorder()
	svc.HandleWebSocket(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebSocketRoundTrip(t *testing.T) {
	st := store.NewMemory()
	st.AddUser(&store.User{ID: "alice", DisplayName: "Alice"})
	svc := NewService(st, auth.NewVerifier("secret"), DefaultConfig(), nil)

	srv := httptest.NewServer(http.HandlerFunc(svc.HandleWebSocket))
	defer srv.Close()

	token, err := auth.GenerateToken("secret", "alice", time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"heartbeat"}`)))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, EventHeartbeatAck, msg.Event)
}
