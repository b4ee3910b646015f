package relay

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the router
	},
}

// HandleWebSocket authenticates and upgrades a realtime connection. A
// missing or invalid token refuses the handshake before any relay state
// exists.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	userID, err := s.verifier.Verify(token)
	if err != nil {
		log.Debug("relay: handshake rejected", "error", err.Error())
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	user, err := s.store.FindUser(r.Context(), userID)
	if err == store.ErrNotFound {
		log.Debug("relay: handshake for unknown user", "user_id", userID)
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Error("relay: load user for handshake", "user_id", userID, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("relay: upgrade failed", "error", err.Error())
		return
	}

	conn := newConn(s.hub, ws, *user)
	s.hub.Connect(conn)
	log.Debug("relay: new connection", "conn_id", conn.ID(), "user_id", userID)

	go conn.WritePump()
	go conn.ReadPump()
}

// bearerToken extracts the handshake token from the token query
// parameter or the Authorization header.
func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	return ""
}
