// Package relay implements the realtime connection and presence relay:
// authenticated WebSocket connections, presence tracking, channel
// fan-out, typing indicators, read receipts, and anonymous matchmaking.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Client events
const (
	EventHeartbeat      = "heartbeat"
	EventPublicJoin     = "public:join"
	EventPublicMessage  = "public:message"
	EventPrivateMessage = "private:message"
	EventRandomStart    = "random:start"
	EventRandomNext     = "random:next"
	EventRandomMessage  = "random:message"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventMessageRead    = "message:read"
	EventStatusUpdate   = "status:update"
	EventRoomJoin       = "room:join"
	EventRoomLeave      = "room:leave"
)

// Server events (public:message, private:message, and random:message are
// used in both directions)
const (
	EventHeartbeatAck    = "heartbeat:ack"
	EventRandomQueued    = "random:queued"
	EventRandomMatched   = "random:matched"
	EventRandomEnded     = "random:ended"
	EventTypingIndicator = "typing:indicator"
	EventReadReceipt     = "message:read_receipt"
	EventFriendStatus    = "friend:status_update"
	EventUserJoined      = "user:joined"
	EventUserLeft        = "user:left"
)

// Message is the wire envelope for inbound client frames.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeMessage parses JSON bytes into a Message.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message format: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("message has no event")
	}
	return &msg, nil
}

// outbound is the wire envelope for server frames.
type outbound struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// encodeEvent serializes an outbound frame once, so broadcasts marshal a
// single time regardless of recipient count.
func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Payload: payload})
}

// Inbound payloads

type joinPayload struct {
	RoomID  string `json:"room_id"`
	GroupID string `json:"group_id"`
}

type publicMessagePayload struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

type privateMessagePayload struct {
	ToUserID string `json:"to_user_id"`
	Text     string `json:"text"`
}

type randomMessagePayload struct {
	Text string `json:"text"`
}

// typingPayload must carry exactly one channel discriminator; frames
// with zero or several are dropped rather than resolved by precedence.
type typingPayload struct {
	RoomID   string `json:"room_id"`
	GroupID  string `json:"group_id"`
	ToUserID string `json:"to_user_id"`
}

type readPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	GroupID   string `json:"group_id"`
	ToUserID  string `json:"to_user_id"`
}

type statusPayload struct {
	Status string `json:"status"`
}

// Outbound payloads

type chatMessagePayload struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id,omitempty"`
	ToUserID    string    `json:"to_user_id,omitempty"`
	FromUserID  string    `json:"from_user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}

type randomChatPayload struct {
	FromUserID string    `json:"from_user_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

type partnerInfo struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type matchedPayload struct {
	Partner partnerInfo `json:"partner"`
}

type typingIndicatorPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
	RoomKey     string `json:"room_key"`
}

type readReceiptPayload struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type friendStatusPayload struct {
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type membershipPayload struct {
	UserID  string `json:"user_id"`
	RoomID  string `json:"room_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

// sanitizeText trims whitespace and caps the message at maxLen runes.
// Returns false when nothing usable remains.
func sanitizeText(text string, maxLen int) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen])
	}
	return text, true
}
