package chathub

import (
	"time"

	"github.com/rajeshbanoth/randomchat/internal/match"
	"github.com/rajeshbanoth/randomchat/internal/models"
)

// StatsSnapshot is the introspection view of the whole hub at one
// moment. It backs the stats event and the HTTP stats endpoint.
type StatsSnapshot struct {
	OnlinePeers         int         `json:"onlinePeers"`
	SearchingPeers      int         `json:"searchingPeers"`
	ChattingPeers       int         `json:"chattingPeers"`
	ActivePairs         int         `json:"activePairs"`
	ActiveCalls         int         `json:"activeCalls"`
	WaitingCallRequests int         `json:"waitingCallRequests"`
	TypingPeers         int         `json:"typingPeers"`
	RestrictedPeers     int         `json:"restrictedPeers"`
	ReportedPeers       int         `json:"reportedPeers"`
	Matcher             match.Stats `json:"matcher"`
	UptimeSeconds       int64       `json:"uptimeSeconds"`
	Timestamp           time.Time   `json:"timestamp"`
}

// Snapshot assembles the current counters. Sessions are read under
// their own locks, so the numbers are per-field consistent.
func (h *Hub) Snapshot() StatsSnapshot {
	now := time.Now()

	h.mu.RLock()
	online := len(h.clients)
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	snap := StatsSnapshot{
		OnlinePeers:         online,
		Matcher:             h.engine.Snapshot(now),
		WaitingCallRequests: h.relay.callRequestCount(),
		TypingPeers:         h.relay.typingCount(),
		UptimeSeconds:       int64(now.Sub(h.startedAt).Seconds()),
		Timestamp:           now,
	}

	for _, s := range sessions {
		switch s.Snapshot().Status {
		case StatusSearching:
			snap.SearchingPeers++
		case StatusChatting:
			snap.ChattingPeers++
		}
	}

	rooms, calls := h.rooms.Counts()
	snap.ActivePairs = rooms
	snap.ActiveCalls = calls
	snap.RestrictedPeers, snap.ReportedPeers = h.mod.Counts(now)
	return snap
}

// broadcastStats fans the snapshot out to every connected client and,
// when a publisher is wired, to the external stats channel.
func (h *Hub) broadcastStats() {
	snap := h.Snapshot()
	ev := models.ServerEvent{Type: models.EvStatsUpdated, Payload: snap}

	h.mu.RLock()
	peers := make([]string, 0, len(h.clients))
	for peerID := range h.clients {
		peers = append(peers, peerID)
	}
	h.mu.RUnlock()

	for _, peerID := range peers {
		h.send(peerID, ev)
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(snap); err != nil {
			h.log.WithError(err).Warn("stats publish failed")
		}
	}
}
