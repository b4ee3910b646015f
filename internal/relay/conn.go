package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/store"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message
	pongWait = 30 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum inbound frame size
	maxFrameSize = 64 * 1024 // 64KB
)

// Conn is one authenticated transport-level session. It is owned by the
// Hub; other components reference it only through its connection ID.
type Conn struct {
	id          string
	user        store.User // profile snapshot taken at handshake
	hub         *Hub
	ws          *websocket.Conn
	send        chan []byte // outbound frame queue
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time
}

func newConn(hub *Hub, ws *websocket.Conn, user store.User) *Conn {
	return &Conn{
		id:          uuid.NewString(),
		user:        user,
		hub:         hub,
		ws:          ws,
		send:        make(chan []byte, hub.cfg.SendBuffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// ID returns the connection ID.
func (c *Conn) ID() string { return c.id }

// UserID returns the owning user's ID.
func (c *Conn) UserID() string { return c.user.ID }

// Send encodes and queues an event frame for this connection.
func (c *Conn) Send(event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Error("relay: encode event", "event", event, "error", err.Error())
		return
	}
	c.enqueue(data)
}

// enqueue queues a pre-encoded frame. A full buffer drops the frame
// rather than blocking the sender's handler.
func (c *Conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		log.Warn("relay: send buffer full, dropping frame", "conn_id", c.id, "user_id", c.user.ID)
	}
}

// Close tears the connection down exactly once and unwinds every
// registry membership through the hub.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
		if c.hub != nil {
			c.hub.Disconnect(c.id)
		}
	})
}

// ReadPump reads frames from the socket and dispatches them in arrival
// order, so per-connection event ordering is preserved.
func (c *Conn) ReadPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("relay: read error", "conn_id", c.id, "error", err.Error())
			}
			return
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			log.Debug("relay: invalid frame", "conn_id", c.id, "error", err.Error())
			continue
		}
		c.handleMessage(msg)
	}
}

// WritePump writes queued frames and keepalive pings to the socket.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage routes an inbound frame to its handler. Malformed
// payloads are dropped silently; no error ever crosses the connection
// boundary.
func (c *Conn) handleMessage(msg *Message) {
	switch msg.Event {
	case EventHeartbeat:
		c.Send(EventHeartbeatAck, nil)
	case EventPublicJoin, EventRoomJoin:
		c.handleJoin(msg)
	case EventRoomLeave:
		c.handleLeave(msg)
	case EventPublicMessage:
		var p publicMessagePayload
		if !c.decode(msg, &p) {
			return
		}
		c.hub.SendPublic(c, p.RoomID, p.Text)
	case EventPrivateMessage:
		var p privateMessagePayload
		if !c.decode(msg, &p) {
			return
		}
		c.hub.SendPrivate(c, p.ToUserID, p.Text)
	case EventRandomStart, EventRandomNext:
		c.hub.StartMatch(c)
	case EventRandomMessage:
		var p randomMessagePayload
		if !c.decode(msg, &p) {
			return
		}
		c.hub.SendRandom(c, p.Text)
	case EventTypingStart:
		c.handleTyping(msg, true)
	case EventTypingStop:
		c.handleTyping(msg, false)
	case EventMessageRead:
		c.handleRead(msg)
	case EventStatusUpdate:
		var p statusPayload
		if !c.decode(msg, &p) {
			return
		}
		c.hub.UpdateStatus(c, Status(p.Status))
	default:
		log.Debug("relay: unknown event", "conn_id", c.id, "event", msg.Event)
	}
}

func (c *Conn) handleJoin(msg *Message) {
	var p joinPayload
	if !c.decode(msg, &p) {
		return
	}
	ch, ok := channelFromDiscriminators(p.RoomID, p.GroupID, "", "")
	if !ok {
		log.Debug("relay: join without exactly one channel id", "conn_id", c.id)
		return
	}
	c.hub.JoinChannel(c, ch)
}

func (c *Conn) handleLeave(msg *Message) {
	var p joinPayload
	if !c.decode(msg, &p) {
		return
	}
	ch, ok := channelFromDiscriminators(p.RoomID, p.GroupID, "", "")
	if !ok {
		log.Debug("relay: leave without exactly one channel id", "conn_id", c.id)
		return
	}
	c.hub.LeaveChannel(c, ch)
}

func (c *Conn) handleTyping(msg *Message, isTyping bool) {
	var p typingPayload
	if !c.decode(msg, &p) {
		return
	}
	ch, ok := channelFromDiscriminators(p.RoomID, p.GroupID, p.ToUserID, c.UserID())
	if !ok {
		log.Debug("relay: ambiguous typing payload", "conn_id", c.id)
		return
	}
	c.hub.SetTyping(c, ch, isTyping)
}

func (c *Conn) handleRead(msg *Message) {
	var p readPayload
	if !c.decode(msg, &p) {
		return
	}
	if p.MessageID == "" {
		log.Debug("relay: read receipt without message id", "conn_id", c.id)
		return
	}
	ch, ok := channelFromDiscriminators(p.RoomID, p.GroupID, p.ToUserID, c.UserID())
	if !ok {
		log.Debug("relay: ambiguous read payload", "conn_id", c.id)
		return
	}
	c.hub.MarkRead(c, ch, p.MessageID)
}

// decode unmarshals the frame payload, logging and dropping on failure.
func (c *Conn) decode(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		log.Debug("relay: invalid payload", "conn_id", c.id, "event", msg.Event, "error", err.Error())
		return false
	}
	return true
}
