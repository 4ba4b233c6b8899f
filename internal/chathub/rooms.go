package chathub

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Call record states.
const (
	CallPending  = "pending"
	CallOffered  = "offered"
	CallIncoming = "incoming"
	CallAnswered = "answered"
	CallRejected = "rejected"
	CallEnded    = "ended"
)

// Room is the server-assigned scope for one committed pair.
type Room struct {
	ID        string
	PeerA     string
	PeerB     string
	Mode      string
	CreatedAt time.Time
	CallID    string
}

// Other returns the opposite end of the room, or "" for a stranger.
func (r *Room) Other(peerID string) string {
	switch peerID {
	case r.PeerA:
		return r.PeerB
	case r.PeerB:
		return r.PeerA
	}
	return ""
}

// CallRecord is the book-keeping for one WebRTC call inside a room. SDP
// blobs and metadata are opaque to the server.
type CallRecord struct {
	ID        string
	RoomID    string
	Caller    string
	Callee    string
	Status    string
	SDP       string
	AnswerSDP string
	Metadata  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoomRegistry owns rooms and call records. One logical call record is
// indexed by both peers; destroying a room clears everything scoped to
// it. Internal synchronization only, no caller-visible locking.
type RoomRegistry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	byPeer      map[string]string
	calls       map[string]*CallRecord
	callsByPeer map[string]string
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:       make(map[string]*Room),
		byPeer:      make(map[string]string),
		calls:       make(map[string]*CallRecord),
		callsByPeer: make(map[string]string),
	}
}

// NewRoomID builds a unique, unpredictable room identifier from a
// millisecond timestamp and 64 random bits of a v4 uuid (the version
// and variant nibbles are skipped).
func NewRoomID(now time.Time) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("room_%d_%s%s", now.UnixMilli(), raw[:12], raw[20:24])
}

// NewCallID builds a unique call identifier.
func NewCallID() string {
	return "call_" + uuid.NewString()
}

// Create registers a room for two peers. Either peer already being in a
// room fails the create; pair exclusivity is enforced here as well as at
// the session layer.
func (rr *RoomRegistry) Create(peerA, peerB, mode string, now time.Time) (*Room, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, busy := rr.byPeer[peerA]; busy {
		return nil, false
	}
	if _, busy := rr.byPeer[peerB]; busy {
		return nil, false
	}

	room := &Room{
		ID:        NewRoomID(now),
		PeerA:     peerA,
		PeerB:     peerB,
		Mode:      mode,
		CreatedAt: now,
	}
	rr.rooms[room.ID] = room
	rr.byPeer[peerA] = room.ID
	rr.byPeer[peerB] = room.ID
	return room, true
}

// Get returns a room by id.
func (rr *RoomRegistry) Get(roomID string) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	room, ok := rr.rooms[roomID]
	return room, ok
}

// ForPeer returns the room a peer currently belongs to.
func (rr *RoomRegistry) ForPeer(peerID string) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	roomID, ok := rr.byPeer[peerID]
	if !ok {
		return nil, false
	}
	room, ok := rr.rooms[roomID]
	return room, ok
}

// Destroy removes a room and every call record scoped to it. Destroying
// an unknown room is a no-op, which keeps teardown idempotent.
func (rr *RoomRegistry) Destroy(roomID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	room, ok := rr.rooms[roomID]
	if !ok {
		return
	}
	delete(rr.rooms, roomID)
	delete(rr.byPeer, room.PeerA)
	delete(rr.byPeer, room.PeerB)
	rr.clearCallLocked(room)
}

// StartCall creates a call record for a room and indexes it under both
// peers. An existing record for the room is replaced.
func (rr *RoomRegistry) StartCall(roomID, callID, caller, callee, status string, now time.Time) (*CallRecord, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	room, ok := rr.rooms[roomID]
	if !ok {
		return nil, false
	}
	if callID == "" {
		callID = NewCallID()
	}

	call := &CallRecord{
		ID:        callID,
		RoomID:    roomID,
		Caller:    caller,
		Callee:    callee,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	room.CallID = callID
	rr.calls[callID] = call
	rr.callsByPeer[caller] = callID
	rr.callsByPeer[callee] = callID
	return call, true
}

// CallForPeer resolves the call record a peer is indexed under.
func (rr *RoomRegistry) CallForPeer(peerID string) (*CallRecord, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	callID, ok := rr.callsByPeer[peerID]
	if !ok {
		return nil, false
	}
	call, ok := rr.calls[callID]
	return call, ok
}

// UpdateCall mutates a call record's status (and optionally SDP fields)
// under the registry lock. Unknown call ids are ignored.
func (rr *RoomRegistry) UpdateCall(callID, status string, now time.Time, mutate func(*CallRecord)) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	call, ok := rr.calls[callID]
	if !ok {
		return false
	}
	call.Status = status
	call.UpdatedAt = now
	if mutate != nil {
		mutate(call)
	}
	return true
}

// EndCall clears the call record and the room's callId but leaves the
// room itself alive. A rejected or ended call does not end the chat.
func (rr *RoomRegistry) EndCall(roomID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	room, ok := rr.rooms[roomID]
	if !ok {
		return
	}
	rr.clearCallLocked(room)
}

func (rr *RoomRegistry) clearCallLocked(room *Room) {
	if room.CallID == "" {
		return
	}
	if call, ok := rr.calls[room.CallID]; ok {
		delete(rr.callsByPeer, call.Caller)
		delete(rr.callsByPeer, call.Callee)
	}
	delete(rr.calls, room.CallID)
	room.CallID = ""
}

// Counts reports active rooms and calls in a connectable state.
func (rr *RoomRegistry) Counts() (rooms, activeCalls int) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	rooms = len(rr.rooms)
	for _, call := range rr.calls {
		if call.Status == CallOffered || call.Status == CallAnswered {
			activeCalls++
		}
	}
	return rooms, activeCalls
}
