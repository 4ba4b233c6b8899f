package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rajeshbanoth/randomchat/internal/match"
	"github.com/rajeshbanoth/randomchat/internal/models"
	"github.com/rajeshbanoth/randomchat/internal/moderation"
)

// Options are the hub's timing knobs. Zero values fall back to the
// production defaults.
type Options struct {
	InactiveThreshold time.Duration
	CleanupInterval   time.Duration
	SweepInterval     time.Duration
	RematchInterval   time.Duration
	MaxWaitTime       time.Duration
	TypingTTL         time.Duration
	CallRequestTTL    time.Duration
	StatsInterval     time.Duration

	// AutoStartVideo makes the hub emit video-call-auto-start to the
	// designated caller right after a video match.
	AutoStartVideo bool
}

func (o Options) withDefaults() Options {
	if o.InactiveThreshold == 0 {
		o.InactiveThreshold = 5 * time.Minute
	}
	if o.CleanupInterval == 0 {
		o.CleanupInterval = 60 * time.Second
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = time.Second
	}
	if o.RematchInterval == 0 {
		o.RematchInterval = 5 * time.Second
	}
	if o.MaxWaitTime == 0 {
		o.MaxWaitTime = 45 * time.Second
	}
	if o.TypingTTL == 0 {
		o.TypingTTL = 3 * time.Second
	}
	if o.CallRequestTTL == 0 {
		o.CallRequestTTL = 30 * time.Second
	}
	if o.StatsInterval == 0 {
		o.StatsInterval = 10 * time.Second
	}
	return o
}

// Hub is the central coordinator: it owns clients and sessions, drives
// the matching engine, commits and tears down pairs, and hosts the
// signaling relay. Cross-peer operations take both session locks in
// lexicographic order; everything else is per-peer serial.
type Hub struct {
	opts      Options
	log       *logrus.Entry
	engine    *match.Engine
	rooms     *RoomRegistry
	relay     *relayState
	mod       *moderation.Service
	publisher *StatsPublisher

	mu       sync.RWMutex
	clients  map[string]Client
	sessions map[string]*Session

	startedAt time.Time
	stop      chan struct{}
}

// NewHub wires a hub around a matching engine. publisher may be nil.
func NewHub(engine *match.Engine, opts Options, log *logrus.Logger, publisher *StatsPublisher) *Hub {
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		opts:      opts.withDefaults(),
		log:       log.WithField("component", "hub"),
		engine:    engine,
		rooms:     NewRoomRegistry(),
		relay:     newRelayState(),
		mod:       moderation.NewService(moderation.DefaultConfig(), log),
		publisher: publisher,
		clients:   make(map[string]Client),
		sessions:  make(map[string]*Session),
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}
}

// Attach registers a client connection. A second connection for the
// same peer id replaces the first, which is closed.
func (h *Hub) Attach(c Client) {
	peerID := c.GetPeerID()

	h.mu.Lock()
	old, existed := h.clients[peerID]
	h.clients[peerID] = c
	h.mu.Unlock()

	if existed {
		old.Close()
	}
	h.log.WithField("peer", peerID).Info("client attached")
}

// Detach handles a transport drop: tears down the pair if any, leaves
// the waiting pool, destroys the session and forgets the client. Safe
// to call more than once.
func (h *Hub) Detach(c Client) {
	peerID := c.GetPeerID()

	h.mu.Lock()
	cur, ok := h.clients[peerID]
	// A replaced connection's pumps still call Detach on exit; only the
	// current client may destroy the session.
	if ok && cur == c {
		delete(h.clients, peerID)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	h.teardown(peerID, models.ReasonDisconnected)
	h.engine.Remove(peerID)
	h.relay.forget(peerID)

	h.mu.Lock()
	delete(h.sessions, peerID)
	h.mu.Unlock()

	c.Close()
	h.log.WithField("peer", peerID).Info("client detached")
}

func (h *Hub) session(peerID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[peerID]
}

// send pushes an event to a peer's client without blocking. A full send
// buffer means the client has stopped draining; it gets dropped the way
// a dead transport would be.
func (h *Hub) send(peerID string, ev models.ServerEvent) {
	h.mu.RLock()
	c := h.clients[peerID]
	h.mu.RUnlock()
	if c == nil {
		return
	}

	select {
	case c.GetSendChannel() <- ev:
	default:
		h.log.WithField("peer", peerID).Warn("send buffer full, dropping client")
		go h.Detach(c)
	}
}

// HandleEvent routes one inbound event for a peer. The caller (the
// client's read pump) guarantees per-peer serial delivery. Unexpected
// panics are contained to the offending peer.
func (h *Hub) HandleEvent(peerID string, ev models.ClientEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.log.WithFields(logrus.Fields{"peer": peerID, "panic": r}).
				Error("handler panic, disconnecting peer")
			if s := h.session(peerID); s != nil {
				h.teardown(peerID, models.ReasonDisconnected)
			}
			h.mu.RLock()
			c := h.clients[peerID]
			h.mu.RUnlock()
			if c != nil {
				go h.Detach(c)
			}
		}
	}()

	now := time.Now()
	if s := h.session(peerID); s != nil {
		s.Touch(now)
	}

	switch ev.Type {
	case models.EvRegister:
		h.handleRegister(peerID, ev.Payload, now)
	case models.EvSearch:
		h.handleSearch(peerID, ev.Payload, now)
	case models.EvCancelSearch:
		h.handleCancelSearch(peerID)
	case models.EvNext:
		h.handleNext(peerID, now)
	case models.EvDisconnectPartner:
		h.handleDisconnectPartner(peerID, ev.Payload)
	case models.EvBlockPartner:
		h.handleBlockPartner(peerID)
	case models.EvReportPartner:
		h.handleReportPartner(peerID, ev.Payload, now)
	case models.EvMessage:
		h.handleChatMessage(peerID, ev.Payload, now)
	case models.EvTyping:
		h.handleTyping(peerID, now)
	case models.EvTypingStopped:
		h.handleTypingStopped(peerID)
	case models.EvWebRTCOffer:
		h.handleOffer(peerID, ev.Payload, now)
	case models.EvWebRTCAnswer:
		h.handleAnswer(peerID, ev.Payload, now)
	case models.EvWebRTCICE:
		h.handleICECandidate(peerID, ev.Payload)
	case models.EvWebRTCEnd:
		h.handleCallEnd(peerID, ev.Payload, CallEnded, now)
	case models.EvWebRTCReject:
		h.handleCallEnd(peerID, ev.Payload, CallRejected, now)
	case models.EvVideoCallStatus, models.EvCallToggleMedia, models.EvScreenShareStatus:
		h.handlePassthrough(peerID, ev.Type, ev.Payload)
	case models.EvVideoCallRequest:
		h.handleVideoCallRequest(peerID, ev.Payload, now)
	case models.EvGetPartnerInfo:
		h.handleGetPartnerInfo(peerID)
	case models.EvGetStats:
		h.send(peerID, models.ServerEvent{Type: models.EvStats, Payload: h.Snapshot()})
	case models.EvHeartbeat:
		h.send(peerID, models.ServerEvent{
			Type:    models.EvHeartbeatResponse,
			Payload: map[string]any{"timestamp": now},
		})
	default:
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrInvalidMessage))
	}
}

func (h *Hub) handleRegister(peerID string, raw json.RawMessage, now time.Time) {
	var payload models.RegisterPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvRegisterError, models.ErrInvalidMessage))
			return
		}
	}

	profile, err := models.NewProfile(peerID, payload)
	if err != nil {
		h.send(peerID, models.ErrorEvent(models.EvRegisterError, err))
		return
	}

	h.mu.Lock()
	existing := h.sessions[peerID]
	if existing == nil {
		h.sessions[peerID] = newSession(peerID, profile, now)
		h.mu.Unlock()
	} else {
		h.mu.Unlock()
		existing.mu.Lock()
		busy := existing.Status != StatusReady
		if !busy {
			existing.Profile = profile
			existing.LastActivity = now
		}
		existing.mu.Unlock()
		if busy {
			h.send(peerID, models.ErrorEvent(models.EvRegisterError, models.ErrInvalidProfile))
			return
		}
	}

	h.log.WithFields(logrus.Fields{"peer": peerID, "mode": profile.ChatMode}).Info("peer registered")
	h.send(peerID, models.ServerEvent{
		Type: models.EvRegistered,
		Payload: models.RegisteredPayload{
			PeerID:    peerID,
			Username:  profile.Username,
			Timestamp: now,
		},
	})
}

func (h *Hub) handleSearch(peerID string, raw json.RawMessage, now time.Time) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(models.EvSearchError, models.ErrNotRegistered))
		return
	}

	var payload models.SearchPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvSearchError, models.ErrInvalidMessage))
			return
		}
	}
	if payload.Mode != "" && payload.Mode != models.ModeText && payload.Mode != models.ModeVideo {
		h.send(peerID, models.ErrorEvent(models.EvSearchError, models.ErrInvalidMessage))
		return
	}
	if _, restricted := h.mod.Restricted(peerID, now); restricted {
		h.send(peerID, models.ErrorEvent(models.EvSearchError, models.ErrRestricted))
		return
	}

	// Searching while paired means the peer moved on.
	if s.Snapshot().Status == StatusChatting {
		h.teardown(peerID, models.ReasonNewSearch)
	}

	s.mu.Lock()
	if payload.Mode != "" {
		s.Profile.ChatMode = payload.Mode
	}
	if payload.AutoConnect != nil {
		s.AutoConnect = *payload.AutoConnect
	}
	s.Status = StatusSearching
	s.SearchStart = now
	s.lastAttempt = now
	profile := *s.Profile
	attempts := s.Attempts
	s.mu.Unlock()

	h.engine.Add(&profile, attempts, now)
	h.send(peerID, models.ServerEvent{
		Type:    models.EvSearching,
		Payload: map[string]any{"mode": profile.ChatMode, "timestamp": now},
	})

	h.tryMatch(peerID, now)
}

func (h *Hub) handleCancelSearch(peerID string) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(models.EvSearchError, models.ErrNotRegistered))
		return
	}

	s.mu.Lock()
	wasSearching := s.Status == StatusSearching
	if wasSearching {
		s.Status = StatusReady
		s.SearchStart = time.Time{}
	}
	s.mu.Unlock()

	h.engine.Remove(peerID)
	if wasSearching {
		h.send(peerID, models.ServerEvent{Type: models.EvSearchCancelled})
	}
}

// handleNext leaves the current pair and immediately re-enters the pool
// with the same profile and an incremented attempt count.
func (h *Hub) handleNext(peerID string, now time.Time) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(models.EvSearchError, models.ErrNotRegistered))
		return
	}

	if _, restricted := h.mod.Restricted(peerID, now); restricted {
		h.send(peerID, models.ErrorEvent(models.EvSearchError, models.ErrRestricted))
		return
	}

	if s.Snapshot().Status == StatusChatting {
		h.teardown(peerID, models.ReasonNextRequested)
	}

	s.mu.Lock()
	s.Attempts++
	s.Status = StatusSearching
	s.SearchStart = now
	s.lastAttempt = now
	profile := *s.Profile
	attempts := s.Attempts
	s.mu.Unlock()

	h.engine.Add(&profile, attempts, now)
	h.send(peerID, models.ServerEvent{
		Type:    models.EvSearching,
		Payload: map[string]any{"mode": profile.ChatMode, "timestamp": now},
	})
	h.tryMatch(peerID, now)
}

func (h *Hub) handleDisconnectPartner(peerID string, raw json.RawMessage) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrNotRegistered))
		return
	}

	reason := models.ReasonManualDisconnect
	if len(raw) > 0 {
		var payload models.DisconnectPayload
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Reason != "" {
			reason = payload.Reason
		}
	}
	h.teardown(peerID, reason)
}

// handleBlockPartner blocks the current partner and leaves the pair.
// Neither side will ever be offered the other again.
func (h *Hub) handleBlockPartner(peerID string) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrNotRegistered))
		return
	}

	partnerID := s.Snapshot().PartnerID
	if partnerID == "" {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrNotPaired))
		return
	}

	h.engine.Block(peerID, partnerID)
	h.teardown(peerID, models.ReasonManualDisconnect)
}

// handleReportPartner records a report against the current partner,
// blocks the pair both ways and dissolves it. The partner only sees a
// generic disconnect.
func (h *Hub) handleReportPartner(peerID string, raw json.RawMessage, now time.Time) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrNotRegistered))
		return
	}

	partnerID := s.Snapshot().PartnerID
	if partnerID == "" {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrNotPaired))
		return
	}

	var payload models.ReportPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrInvalidMessage))
			return
		}
	}

	if _, ok := h.mod.Report(peerID, partnerID, payload.Category, now); !ok {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrInvalidMessage))
		return
	}

	h.engine.Block(peerID, partnerID)
	h.teardown(peerID, models.ReasonManualDisconnect)

	h.log.WithFields(logrus.Fields{
		"peer":     peerID,
		"reported": partnerID,
		"category": payload.Category,
	}).Info("partner reported")
	h.send(peerID, models.ServerEvent{
		Type:    models.EvReportAck,
		Payload: models.ReportAckPayload{Category: payload.Category, Timestamp: now},
	})
}

func (h *Hub) handleGetPartnerInfo(peerID string) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrNotRegistered))
		return
	}

	partnerID := s.Snapshot().PartnerID
	partner := h.session(partnerID)
	if partnerID == "" || partner == nil {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrNotPaired))
		return
	}

	partner.mu.Lock()
	pub := partner.Profile.Public()
	partner.mu.Unlock()
	h.send(peerID, models.ServerEvent{Type: models.EvPartnerInfo, Payload: pub})
}

// tryMatch asks the engine for a candidate and commits it. Losing the
// commit race just leaves both peers in the pool for the next tick.
func (h *Hub) tryMatch(peerID string, now time.Time) bool {
	cand := h.engine.FindMatch(peerID, now)
	if cand == nil {
		return false
	}
	return h.commitPair(cand, now)
}

// commitPair atomically pairs two searching peers. Both session locks
// are held across re-verification and state publication so no observer
// ever sees a half-built pair.
func (h *Hub) commitPair(cand *match.Candidate, now time.Time) bool {
	h.mu.RLock()
	a := h.sessions[cand.PeerID]
	b := h.sessions[cand.PartnerID]
	h.mu.RUnlock()
	if a == nil || b == nil {
		return false
	}

	unlock := lockPair(a, b)

	if a.Status != StatusSearching || b.Status != StatusSearching ||
		a.PartnerID != "" || b.PartnerID != "" {
		unlock()
		return false
	}

	room, ok := h.rooms.Create(a.PeerID, b.PeerID, cand.Mode, now)
	if !ok {
		unlock()
		return false
	}

	a.Status, b.Status = StatusChatting, StatusChatting
	a.PartnerID, b.PartnerID = b.PeerID, a.PeerID
	a.RoomID, b.RoomID = room.ID, room.ID
	a.SearchStart, b.SearchStart = time.Time{}, time.Time{}
	profileA, profileB := *a.Profile, *b.Profile
	autoConnect := a.AutoConnect
	unlock()

	h.engine.Remove(a.PeerID)
	h.engine.Remove(b.PeerID)
	h.engine.RecordMatch(a.PeerID, b.PeerID)

	h.send(a.PeerID, models.ServerEvent{Type: models.EvMatched, Payload: models.MatchedPayload{
		Partner:         profileB.Public(),
		Compatibility:   cand.Score,
		SharedInterests: cand.SharedInterests,
		MatchMode:       cand.Mode,
		RoomID:          room.ID,
		Timestamp:       now,
	}})
	h.send(b.PeerID, models.ServerEvent{Type: models.EvMatched, Payload: models.MatchedPayload{
		Partner:         profileA.Public(),
		Compatibility:   cand.Score,
		SharedInterests: cand.SharedInterests,
		MatchMode:       cand.Mode,
		RoomID:          room.ID,
		Timestamp:       now,
	}})

	if cand.Mode == models.ModeVideo {
		call, _ := h.rooms.StartCall(room.ID, "", cand.PeerID, cand.PartnerID, CallPending, now)
		ready := models.VideoMatchReadyPayload{RoomID: room.ID, CallID: call.ID, Timestamp: now}
		h.send(a.PeerID, models.ServerEvent{Type: models.EvVideoMatchReady, Payload: ready})
		h.send(b.PeerID, models.ServerEvent{Type: models.EvVideoMatchReady, Payload: ready})
		if h.opts.AutoStartVideo && autoConnect {
			h.send(cand.PeerID, models.ServerEvent{Type: models.EvVideoCallAutoStart, Payload: ready})
		}
	}

	h.log.WithFields(logrus.Fields{
		"peerA": a.PeerID,
		"peerB": b.PeerID,
		"room":  room.ID,
		"mode":  cand.Mode,
		"score": cand.Score,
	}).Info("pair committed")
	return true
}

// teardown dissolves the pair peerID belongs to, notifying the other
// side unless the reason is that side's own drop. Repeated calls are
// idempotent: once the pair link is gone there is nothing to do.
func (h *Hub) teardown(peerID, reason string) {
	s := h.session(peerID)
	if s == nil {
		return
	}

	s.mu.Lock()
	partnerID := s.PartnerID
	s.mu.Unlock()
	if partnerID == "" {
		return
	}

	partner := h.session(partnerID)
	if partner == nil {
		// Partner session already destroyed; clear the local half.
		s.mu.Lock()
		roomID := s.RoomID
		s.PartnerID, s.RoomID = "", ""
		if s.Status == StatusChatting {
			s.Status = StatusReady
		}
		s.mu.Unlock()
		h.rooms.Destroy(roomID)
		h.relay.clearPair(peerID, partnerID)
		h.relay.dropRoom(roomID)
		return
	}

	unlock := lockPair(s, partner)
	if s.PartnerID != partner.PeerID || partner.PartnerID != s.PeerID {
		unlock()
		return
	}

	roomID := s.RoomID
	s.PartnerID, partner.PartnerID = "", ""
	s.RoomID, partner.RoomID = "", ""
	if s.Status == StatusChatting {
		s.Status = StatusReady
	}
	if partner.Status == StatusChatting {
		partner.Status = StatusReady
	}
	unlock()

	h.rooms.Destroy(roomID)
	h.relay.clearPair(peerID, partnerID)
	h.relay.dropRoom(roomID)
	h.engine.Remove(peerID)
	h.engine.Remove(partnerID)

	h.send(partnerID, models.ServerEvent{
		Type: models.EvPartnerDisconnected,
		Payload: models.PartnerDisconnectedPayload{
			Reason:    reason,
			Timestamp: time.Now(),
		},
	})

	h.log.WithFields(logrus.Fields{
		"peer":    peerID,
		"partner": partnerID,
		"room":    roomID,
		"reason":  reason,
	}).Info("pair torn down")
}

// Run drives the periodic work: the rematch/timeout sweep, the typing
// and call-request expirations, the inactivity cleanup and the stats
// broadcast. One sweeper serves every peer; there is no timer per peer.
func (h *Hub) Run(ctx context.Context) {
	sweep := time.NewTicker(h.opts.SweepInterval)
	cleanup := time.NewTicker(h.opts.CleanupInterval)
	stats := time.NewTicker(h.opts.StatsInterval)
	defer sweep.Stop()
	defer cleanup.Stop()
	defer stats.Stop()

	h.log.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info("hub stopping")
			return
		case <-h.stop:
			h.log.Info("hub stopping")
			return
		case now := <-sweep.C:
			h.sweepSearches(now)
			h.sweepTyping(now)
			h.sweepCallRequests(now)
		case now := <-cleanup.C:
			h.sweepInactive(now)
		case <-stats.C:
			h.broadcastStats()
		}
	}
}

// Stop terminates Run for hubs started without a cancellable context.
func (h *Hub) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
}

// sweepSearches runs rematch ticks and search timeouts for every
// searching peer.
func (h *Hub) sweepSearches(now time.Time) {
	h.mu.RLock()
	searching := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		searching = append(searching, s)
	}
	h.mu.RUnlock()

	for _, s := range searching {
		s.mu.Lock()
		if s.Status != StatusSearching {
			s.mu.Unlock()
			continue
		}
		peerID := s.PeerID
		elapsed := now.Sub(s.SearchStart)
		attempts := s.Attempts
		due := now.Sub(s.lastAttempt) >= h.opts.RematchInterval
		if due {
			s.lastAttempt = now
		}
		timedOut := elapsed >= h.opts.MaxWaitTime
		if timedOut {
			s.Status = StatusReady
			s.SearchStart = time.Time{}
		}
		s.mu.Unlock()

		if timedOut {
			h.engine.Remove(peerID)
			h.send(peerID, models.ServerEvent{
				Type:    models.EvSearchTimeout,
				Payload: map[string]any{"elapsedMs": elapsed.Milliseconds()},
			})
			continue
		}
		if !due {
			continue
		}
		if !h.tryMatch(peerID, now) {
			h.send(peerID, models.ServerEvent{
				Type: models.EvSearchingUpdate,
				Payload: models.SearchingUpdatePayload{
					Attempts:  attempts,
					ElapsedMS: elapsed.Milliseconds(),
				},
			})
		}
	}
}

// sweepInactive force-disconnects peers with no activity past the
// threshold.
func (h *Hub) sweepInactive(now time.Time) {
	h.mu.RLock()
	stale := make([]Client, 0)
	for peerID, s := range h.sessions {
		s.mu.Lock()
		inactive := now.Sub(s.LastActivity) >= h.opts.InactiveThreshold
		s.mu.Unlock()
		if inactive {
			if c, ok := h.clients[peerID]; ok {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.WithField("peer", c.GetPeerID()).Info("disconnecting inactive peer")
		h.teardown(c.GetPeerID(), models.ReasonInactive)
		h.Detach(c)
	}
}
