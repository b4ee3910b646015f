package relay

import (
	"time"

	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/store"
)

// SendPublic validates, persists, and fans a room message out to the
// room channel. Rate-limit hits and validation failures drop silently.
func (h *Hub) SendPublic(c *Conn, roomID, text string) {
	if !h.limiter.Allow(c.id) {
		return
	}
	text, ok := sanitizeText(text, h.cfg.MaxMessageLen)
	if !ok {
		return
	}
	ch := RoomChannel(roomID)
	if !h.channels.Contains(ch, c.id) {
		log.Debug("relay: message to room without membership", "conn_id", c.id, "room_id", roomID)
		return
	}

	msg := &store.Message{
		RoomID:   roomID,
		SenderID: c.UserID(),
		Text:     text,
	}
	if err := h.store.SaveMessage(h.ctx, msg); err != nil {
		log.Error("relay: persist room message", "room_id", roomID, "error", err.Error())
		return
	}

	data, err := encodeEvent(EventPublicMessage, chatMessagePayload{
		ID:          msg.ID,
		RoomID:      roomID,
		FromUserID:  c.UserID(),
		DisplayName: c.user.DisplayName,
		Text:        text,
		SentAt:      msg.CreatedAt,
	})
	if err != nil {
		log.Error("relay: encode room message", "error", err.Error())
		return
	}
	h.channels.Broadcast(ch, data, "")
	h.metrics.MessageRelayed(h.ctx, "public")
}

// SendPrivate validates, persists, and delivers a direct message to
// every connection of the recipient, echoing to the sender's own
// connections. Non-friends are dropped silently; an offline recipient
// still gets the message persisted for later queries.
func (h *Hub) SendPrivate(c *Conn, toUserID, text string) {
	if !h.limiter.Allow(c.id) {
		return
	}
	text, ok := sanitizeText(text, h.cfg.MaxMessageLen)
	if !ok {
		return
	}
	if toUserID == "" || toUserID == c.UserID() {
		return
	}

	friends, err := h.store.AreFriends(h.ctx, c.UserID(), toUserID)
	if err != nil {
		log.Error("relay: friendship check", "from", c.UserID(), "to", toUserID, "error", err.Error())
		return
	}
	if !friends {
		log.Debug("relay: private message between non-friends dropped", "from", c.UserID(), "to", toUserID)
		return
	}

	msg := &store.Message{
		SenderID:    c.UserID(),
		RecipientID: toUserID,
		Text:        text,
	}
	if err := h.store.SaveMessage(h.ctx, msg); err != nil {
		log.Error("relay: persist private message", "error", err.Error())
		return
	}

	data, err := encodeEvent(EventPrivateMessage, chatMessagePayload{
		ID:          msg.ID,
		ToUserID:    toUserID,
		FromUserID:  c.UserID(),
		DisplayName: c.user.DisplayName,
		Text:        text,
		SentAt:      msg.CreatedAt,
	})
	if err != nil {
		log.Error("relay: encode private message", "error", err.Error())
		return
	}

	// Echo to the sender's devices, then multi-device fan-out to the
	// recipient. No live recipient connection means no delivery now;
	// the message stays queryable through storage.
	for _, conn := range h.userConns(c.UserID()) {
		conn.enqueue(data)
	}
	for _, conn := range h.userConns(toUserID) {
		conn.enqueue(data)
	}
	h.metrics.MessageRelayed(h.ctx, "private")
}

// MarkRead records a read receipt and broadcasts it to the channel.
// The storage write is best-effort: a failure is logged and the
// broadcast still goes out.
func (h *Hub) MarkRead(c *Conn, ch ChannelID, messageID string) {
	if ch.Kind() != KindPrivate && !h.channels.Contains(ch, c.id) {
		log.Debug("relay: read receipt for channel without membership", "conn_id", c.id, "channel", ch.String())
		return
	}

	readAt := time.Now().UTC()
	if err := h.store.MarkMessageRead(h.ctx, messageID, c.UserID(), readAt); err != nil {
		log.Warn("relay: persist read receipt", "message_id", messageID, "error", err.Error())
	}

	data, err := encodeEvent(EventReadReceipt, readReceiptPayload{
		MessageID: messageID,
		UserID:    c.UserID(),
		ReadAt:    readAt,
	})
	if err != nil {
		log.Error("relay: encode read receipt", "error", err.Error())
		return
	}

	if ch.Kind() == KindPrivate {
		peer, ok := ch.otherUser(c.UserID())
		if !ok {
			return
		}
		for _, conn := range h.userConns(peer) {
			conn.enqueue(data)
		}
		for _, conn := range h.userConns(c.UserID()) {
			if conn.id != c.id {
				conn.enqueue(data)
			}
		}
		return
	}
	h.channels.Broadcast(ch, data, c.id)
}
