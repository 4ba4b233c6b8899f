package chathub_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajeshbanoth/randomchat/internal/chathub"
)

func TestRoomCreateAndLookup(t *testing.T) {
	// Arrange
	rr := chathub.NewRoomRegistry()
	now := time.Now()

	// Act
	room, ok := rr.Create("peer_a", "peer_b", "text", now)

	// Assert
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(room.ID, "room_"))
	assert.Equal(t, "peer_b", room.Other("peer_a"))
	assert.Equal(t, "peer_a", room.Other("peer_b"))
	assert.Equal(t, "", room.Other("peer_c"))

	got, found := rr.Get(room.ID)
	require.True(t, found)
	assert.Equal(t, room, got)

	byPeer, found := rr.ForPeer("peer_a")
	require.True(t, found)
	assert.Equal(t, room.ID, byPeer.ID)
}

func TestRoomPairExclusivity(t *testing.T) {
	rr := chathub.NewRoomRegistry()
	now := time.Now()

	_, ok := rr.Create("peer_a", "peer_b", "text", now)
	require.True(t, ok)

	// Neither member of a live room can enter another one.
	_, ok = rr.Create("peer_a", "peer_c", "text", now)
	assert.False(t, ok)
	_, ok = rr.Create("peer_c", "peer_b", "text", now)
	assert.False(t, ok)

	// Unrelated peers are unaffected.
	_, ok = rr.Create("peer_c", "peer_d", "video", now)
	assert.True(t, ok)
}

func TestRoomDestroyIsIdempotent(t *testing.T) {
	rr := chathub.NewRoomRegistry()
	now := time.Now()

	room, _ := rr.Create("peer_a", "peer_b", "text", now)

	rr.Destroy(room.ID)
	rr.Destroy(room.ID)
	rr.Destroy("room_never_existed")

	_, found := rr.Get(room.ID)
	assert.False(t, found)
	_, found = rr.ForPeer("peer_a")
	assert.False(t, found)

	// Both peers are free to pair again.
	_, ok := rr.Create("peer_a", "peer_b", "text", now)
	assert.True(t, ok)
}

func TestCallLifecycle(t *testing.T) {
	rr := chathub.NewRoomRegistry()
	now := time.Now()
	room, _ := rr.Create("peer_a", "peer_b", "video", now)

	// Start indexes the record under both peers.
	call, ok := rr.StartCall(room.ID, "", "peer_a", "peer_b", chathub.CallPending, now)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(call.ID, "call_"))

	forCaller, found := rr.CallForPeer("peer_a")
	require.True(t, found)
	forCallee, found := rr.CallForPeer("peer_b")
	require.True(t, found)
	assert.Equal(t, forCaller.ID, forCallee.ID)

	// Update mutates status and SDP under the registry lock.
	later := now.Add(time.Second)
	updated := rr.UpdateCall(call.ID, chathub.CallOffered, later, func(c *chathub.CallRecord) {
		c.SDP = "offer-sdp"
	})
	assert.True(t, updated)
	got, _ := rr.CallForPeer("peer_a")
	assert.Equal(t, chathub.CallOffered, got.Status)
	assert.Equal(t, "offer-sdp", got.SDP)
	assert.Equal(t, later, got.UpdatedAt)

	// EndCall clears the record but the room stays.
	rr.EndCall(room.ID)
	_, found = rr.CallForPeer("peer_a")
	assert.False(t, found)
	_, found = rr.Get(room.ID)
	assert.True(t, found)
}

func TestStartCallRequiresRoom(t *testing.T) {
	rr := chathub.NewRoomRegistry()

	_, ok := rr.StartCall("room_missing", "", "a", "b", chathub.CallPending, time.Now())
	assert.False(t, ok)
}

func TestUpdateUnknownCallIgnored(t *testing.T) {
	rr := chathub.NewRoomRegistry()

	assert.False(t, rr.UpdateCall("call_missing", chathub.CallEnded, time.Now(), nil))
}

func TestDestroyClearsCalls(t *testing.T) {
	rr := chathub.NewRoomRegistry()
	now := time.Now()
	room, _ := rr.Create("peer_a", "peer_b", "video", now)
	rr.StartCall(room.ID, "", "peer_a", "peer_b", chathub.CallOffered, now)

	rr.Destroy(room.ID)

	_, found := rr.CallForPeer("peer_a")
	assert.False(t, found)
	_, found = rr.CallForPeer("peer_b")
	assert.False(t, found)
}

func TestCounts(t *testing.T) {
	rr := chathub.NewRoomRegistry()
	now := time.Now()

	r1, _ := rr.Create("a", "b", "video", now)
	rr.Create("c", "d", "text", now)
	rr.StartCall(r1.ID, "", "a", "b", chathub.CallOffered, now)

	rooms, calls := rr.Counts()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 1, calls)
}

func TestRoomIDsAreUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := chathub.NewRoomID(now)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}
