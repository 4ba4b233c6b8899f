package chathub

import (
	"sync"
	"time"

	"github.com/rajeshbanoth/randomchat/internal/models"
)

// Session status values. Transitions form a state machine driven by the
// hub; the invariant is status == StatusChatting exactly when PartnerID
// and RoomID are both set.
const (
	StatusReady     = "ready"
	StatusSearching = "searching"
	StatusChatting  = "chatting"
)

// Session is the per-peer server-side state. Every field is guarded by
// the session's own mutex; operations touching two sessions acquire both
// locks in lexicographic peer-id order.
type Session struct {
	mu sync.Mutex

	PeerID  string
	Profile *models.Profile

	Status    string
	PartnerID string
	RoomID    string

	SearchStart time.Time
	Attempts    int
	AutoConnect bool

	ConnectedAt  time.Time
	LastActivity time.Time

	// lastAttempt is when the rematch sweeper last tried this peer.
	lastAttempt time.Time
}

func newSession(peerID string, profile *models.Profile, now time.Time) *Session {
	return &Session{
		PeerID:       peerID,
		Profile:      profile,
		Status:       StatusReady,
		AutoConnect:  true,
		ConnectedAt:  now,
		LastActivity: now,
	}
}

// Touch refreshes the activity timestamp. Called on every inbound event.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.LastActivity = now
	s.mu.Unlock()
}

// View is a consistent copy of the mutable session fields.
type View struct {
	PeerID      string
	Status      string
	PartnerID   string
	RoomID      string
	SearchStart time.Time
	Attempts    int
}

// Snapshot copies the mutable fields under the session lock.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		PeerID:      s.PeerID,
		Status:      s.Status,
		PartnerID:   s.PartnerID,
		RoomID:      s.RoomID,
		SearchStart: s.SearchStart,
		Attempts:    s.Attempts,
	}
}

// lockPair acquires both session locks in lexicographic peer-id order so
// concurrent two-peer operations cannot deadlock. The returned function
// releases both.
func lockPair(a, b *Session) func() {
	first, second := a, b
	if b.PeerID < a.PeerID {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}
