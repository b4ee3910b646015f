package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingBroadcastToRoom(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")
	h.JoinChannel(aliceConn, ch)
	h.JoinChannel(bobConn, ch)
	drainFrames(t, aliceConn)
	drainFrames(t, bobConn)

	h.SetTyping(aliceConn, ch, true)

	frames := drainFrames(t, bobConn)
	require.Len(t, frames, 1)
	assert.Equal(t, EventTypingIndicator, frames[0].Event)
	p := decodePayload[typingIndicatorPayload](t, frames[0])
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.True(t, p.IsTyping)
	assert.Equal(t, "room:lobby", p.RoomKey)

	assert.Empty(t, drainFrames(t, aliceConn), "typist does not hear itself")
}

func TestTypingStartIsIdempotent(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")
	h.JoinChannel(aliceConn, ch)
	h.JoinChannel(bobConn, ch)
	drainFrames(t, bobConn)

	h.SetTyping(aliceConn, ch, true)
	h.SetTyping(aliceConn, ch, true)

	assert.Len(t, drainFrames(t, bobConn), 1, "repeat start is not rebroadcast")
}

func TestTypingRequiresMembership(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")
	h.JoinChannel(bobConn, ch)
	drainFrames(t, bobConn)

	h.SetTyping(aliceConn, ch, true)

	assert.Empty(t, drainFrames(t, bobConn))
}

func TestTypingStopWithoutStart(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")
	h.JoinChannel(aliceConn, ch)
	h.JoinChannel(bobConn, ch)
	drainFrames(t, bobConn)

	h.SetTyping(aliceConn, ch, false)

	assert.Empty(t, drainFrames(t, bobConn), "no-op stop is not broadcast")
}

func TestTypingPrivateGoesToPeerDevices(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	aliceConn := connect(h, alice)
	bobConn1 := connect(h, bob)
	bobConn2 := connect(h, bob)
	drainFrames(t, bobConn1)
	drainFrames(t, bobConn2)

	ch := PrivateChannel("alice", "bob")
	h.SetTyping(aliceConn, ch, true)

	for _, c := range []*Conn{bobConn1, bobConn2} {
		frames := drainFrames(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, EventTypingIndicator, frames[0].Event)
	}
}

func TestDisconnectSynthesizesTypingStop(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")
	h.JoinChannel(aliceConn, ch)
	h.JoinChannel(bobConn, ch)
	h.SetTyping(aliceConn, ch, true)
	drainFrames(t, bobConn)

	h.Disconnect(aliceConn.id)

	var sawStop bool
	for _, f := range drainFrames(t, bobConn) {
		if f.Event != EventTypingIndicator {
			continue
		}
		p := decodePayload[typingIndicatorPayload](t, f)
		if p.UserID == "alice" && !p.IsTyping {
			sawStop = true
		}
	}
	assert.True(t, sawStop, "disconnect clears the indicator for the room")
	assert.Equal(t, 0, h.Stats().TypingChannels)
}

func TestDisconnectKeepsTypingForLiveDevice(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	alicePhone := connect(h, alice)
	aliceLaptop := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")
	h.JoinChannel(alicePhone, ch)
	h.JoinChannel(aliceLaptop, ch)
	h.JoinChannel(bobConn, ch)
	h.SetTyping(aliceLaptop, ch, true)
	drainFrames(t, bobConn)

	// Dropping one device must not fake a stop while the other is live.
	h.Disconnect(alicePhone.id)

	for _, f := range drainFrames(t, bobConn) {
		assert.NotEqual(t, EventTypingIndicator, f.Event, "no stop while another device is connected")
	}
	assert.Equal(t, 1, h.Stats().TypingChannels)

	h.Disconnect(aliceLaptop.id)

	var sawStop bool
	for _, f := range drainFrames(t, bobConn) {
		if f.Event != EventTypingIndicator {
			continue
		}
		if p := decodePayload[typingIndicatorPayload](t, f); p.UserID == "alice" && !p.IsTyping {
			sawStop = true
		}
	}
	assert.True(t, sawStop, "last device down clears the indicator")
	assert.Equal(t, 0, h.Stats().TypingChannels)
}
