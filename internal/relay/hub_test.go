package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/chatlite/internal/store"
)

// frame mirrors the outbound wire envelope for assertions.
type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func newTestHub(t *testing.T) (*Hub, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	cfg := DefaultConfig()
	cfg.SendInterval = 0 // tests opt in to debouncing explicitly
	return NewHub(st, cfg, nil), st
}

func addUser(st *store.Memory, id, name string) store.User {
	u := &store.User{ID: id, DisplayName: name}
	st.AddUser(u)
	return *u
}

// connect registers a connection without a live socket; pumps are never
// started, so frames accumulate on the send channel for inspection.
func connect(h *Hub, user store.User) *Conn {
	c := newConn(h, nil, user)
	h.Connect(c)
	return c
}

// drainFrames empties a connection's send queue.
func drainFrames(t *testing.T, c *Conn) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case data := <-c.send:
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func eventNames(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

func decodePayload[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func TestConnectRegistersPresence(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")

	c := connect(h, alice)

	assert.True(t, h.presence.IsOnline("alice"))
	status, ok := h.presence.Status("alice")
	require.True(t, ok)
	assert.Equal(t, StatusOnline, status)
	assert.True(t, h.alive(c.id))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")

	c := connect(h, alice)
	h.Disconnect(c.id)
	h.Disconnect(c.id)

	assert.False(t, h.presence.IsOnline("alice"))
	assert.False(t, h.alive(c.id))
}

func TestMultiDevicePresence(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")

	c1 := connect(h, alice)
	c2 := connect(h, alice)
	assert.Equal(t, 1, h.presence.OnlineCount())

	h.Disconnect(c1.id)
	assert.True(t, h.presence.IsOnline("alice"), "one device still open")

	h.Disconnect(c2.id)
	assert.False(t, h.presence.IsOnline("alice"))
}

func TestOfflineBroadcastOnlyOnLastDevice(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	st.AddFriendship("alice", "bob")

	bobConn := connect(h, bob)
	c1 := connect(h, alice)
	c2 := connect(h, alice)
	drainFrames(t, bobConn)

	h.Disconnect(c1.id)
	assert.Empty(t, drainFrames(t, bobConn), "no broadcast while a device remains")

	h.Disconnect(c2.id)
	frames := drainFrames(t, bobConn)
	require.Len(t, frames, 1)
	assert.Equal(t, EventFriendStatus, frames[0].Event)
	p := decodePayload[friendStatusPayload](t, frames[0])
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, string(StatusOffline), p.Status)
}

func TestStatusUpdateBroadcastToFriends(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	carol := addUser(st, "carol", "Carol")
	st.AddFriendship("alice", "bob")

	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	carolConn := connect(h, carol)
	drainFrames(t, bobConn)
	drainFrames(t, carolConn)

	h.UpdateStatus(aliceConn, StatusAway)

	frames := drainFrames(t, bobConn)
	require.Len(t, frames, 1)
	p := decodePayload[friendStatusPayload](t, frames[0])
	assert.Equal(t, string(StatusAway), p.Status)

	assert.Empty(t, drainFrames(t, carolConn), "non-friends hear nothing")
}

func TestInvisibleStatusNotBroadcast(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	st.AddFriendship("alice", "bob")

	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	drainFrames(t, bobConn)

	h.UpdateStatus(aliceConn, StatusInvisible)

	assert.Empty(t, drainFrames(t, bobConn))
	status, _ := h.presence.Status("alice")
	assert.Equal(t, StatusInvisible, status, "registry still records the change")
}

func TestInvalidStatusIgnored(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	aliceConn := connect(h, alice)

	h.UpdateStatus(aliceConn, Status("lurking"))

	status, _ := h.presence.Status("alice")
	assert.Equal(t, StatusOnline, status)
}

func TestJoinAndLeaveChannelBroadcasts(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")

	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")

	h.JoinChannel(aliceConn, ch)
	drainFrames(t, aliceConn)

	h.JoinChannel(bobConn, ch)
	frames := drainFrames(t, aliceConn)
	require.Len(t, frames, 1)
	assert.Equal(t, EventUserJoined, frames[0].Event)
	p := decodePayload[membershipPayload](t, frames[0])
	assert.Equal(t, "bob", p.UserID)
	assert.Equal(t, "lobby", p.RoomID)
	assert.Empty(t, drainFrames(t, bobConn), "join must not echo back to the joiner")

	h.LeaveChannel(bobConn, ch)
	frames = drainFrames(t, aliceConn)
	require.Len(t, frames, 1)
	assert.Equal(t, EventUserLeft, frames[0].Event)
}

func TestJoinPrivateChannelIsNoop(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	aliceConn := connect(h, alice)

	h.JoinChannel(aliceConn, PrivateChannel("alice", "bob"))

	assert.Equal(t, 0, h.channels.Count())
}

func TestDisconnectBroadcastsLeaveToChannels(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")

	aliceConn := connect(h, alice)
	bobConn := connect(h, bob)
	ch := RoomChannel("lobby")
	h.JoinChannel(aliceConn, ch)
	h.JoinChannel(bobConn, ch)
	drainFrames(t, aliceConn)

	h.Disconnect(bobConn.id)

	frames := drainFrames(t, aliceConn)
	require.NotEmpty(t, frames)
	assert.Contains(t, eventNames(frames), EventUserLeft)
	assert.False(t, h.channels.Contains(ch, bobConn.id))
}

func TestStats(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")

	aliceConn := connect(h, alice)
	connect(h, bob)
	h.JoinChannel(aliceConn, RoomChannel("lobby"))

	stats := h.Stats()
	assert.Equal(t, 2, stats.Connections)
	assert.Equal(t, 2, stats.OnlineUsers)
	assert.Equal(t, 1, stats.Channels)
	require.Len(t, stats.ChannelDetails, 1)
	assert.Equal(t, "room:lobby", stats.ChannelDetails[0].Channel)
	assert.Equal(t, 1, stats.ChannelDetails[0].Members)
}

func TestCloseAll(t *testing.T) {
	h, st := newTestHub(t)
	alice := addUser(st, "alice", "Alice")
	bob := addUser(st, "bob", "Bob")
	connect(h, alice)
	connect(h, bob)

	h.CloseAll()

	assert.Equal(t, 0, h.Stats().Connections)
	assert.Equal(t, 0, h.presence.OnlineCount())
}
