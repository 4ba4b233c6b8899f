package chathub

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajeshbanoth/randomchat/internal/models"
)

const (
	maxMessageLength  = 1000
	recentMessagesCap = 50
)

// callRequest is a pending out-of-band video-call invitation.
type callRequest struct {
	callID    string
	partnerID string
	expiresAt time.Time
}

// relayState holds per-peer ephemeral relay bookkeeping: typing
// indicators with TTLs, pending call requests and the recent-message
// ring per room. Everything here is advisory; dropping it never breaks
// a pair.
type relayState struct {
	mu           sync.Mutex
	typing       map[string]time.Time
	callRequests map[string]callRequest
	recent       map[string][]models.ChatMessage
}

func newRelayState() *relayState {
	return &relayState{
		typing:       make(map[string]time.Time),
		callRequests: make(map[string]callRequest),
		recent:       make(map[string][]models.ChatMessage),
	}
}

func (r *relayState) setTyping(peerID string, until time.Time) {
	r.mu.Lock()
	r.typing[peerID] = until
	r.mu.Unlock()
}

func (r *relayState) clearTyping(peerID string) bool {
	r.mu.Lock()
	_, was := r.typing[peerID]
	delete(r.typing, peerID)
	r.mu.Unlock()
	return was
}

// expiredTyping collects peers whose typing indicator has passed its
// TTL and removes them.
func (r *relayState) expiredTyping(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []string
	for peerID, until := range r.typing {
		if now.After(until) {
			expired = append(expired, peerID)
			delete(r.typing, peerID)
		}
	}
	return expired
}

func (r *relayState) setCallRequest(peerID string, req callRequest) {
	r.mu.Lock()
	r.callRequests[peerID] = req
	r.mu.Unlock()
}

// expiredCallRequests collects and removes requests past their TTL.
func (r *relayState) expiredCallRequests(now time.Time) []callRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []callRequest
	for peerID, req := range r.callRequests {
		if now.After(req.expiresAt) {
			expired = append(expired, req)
			delete(r.callRequests, peerID)
		}
	}
	return expired
}

func (r *relayState) dropCallRequest(peerID string) {
	r.mu.Lock()
	delete(r.callRequests, peerID)
	r.mu.Unlock()
}

// appendRecent keeps the last recentMessagesCap messages per room.
func (r *relayState) appendRecent(roomID string, msg models.ChatMessage) {
	r.mu.Lock()
	ring := append(r.recent[roomID], msg)
	if len(ring) > recentMessagesCap {
		ring = ring[len(ring)-recentMessagesCap:]
	}
	r.recent[roomID] = ring
	r.mu.Unlock()
}

func (r *relayState) dropRoom(roomID string) {
	r.mu.Lock()
	delete(r.recent, roomID)
	r.mu.Unlock()
}

// typingCount reports how many typing indicators are live.
func (r *relayState) typingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.typing)
}

// callRequestCount reports pending call invitations.
func (r *relayState) callRequestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callRequests)
}

// forget clears every relay entry for a departing peer.
func (r *relayState) forget(peerID string) {
	r.mu.Lock()
	delete(r.typing, peerID)
	delete(r.callRequests, peerID)
	r.mu.Unlock()
}

// clearPair clears relay state for both halves of a dissolved pair.
func (r *relayState) clearPair(peerA, peerB string) {
	r.mu.Lock()
	delete(r.typing, peerA)
	delete(r.typing, peerB)
	delete(r.callRequests, peerA)
	delete(r.callRequests, peerB)
	r.mu.Unlock()
}

// pairContext resolves the peer's current partner and room, or sends a
// typed error and reports false. Every relay handler goes through this
// so nothing ever leaves the pair.
func (h *Hub) pairContext(peerID, errEvent string) (partnerID, roomID string, ok bool) {
	s := h.session(peerID)
	if s == nil {
		h.send(peerID, models.ErrorEvent(errEvent, models.ErrNotRegistered))
		return "", "", false
	}
	view := s.Snapshot()
	if view.PartnerID == "" || view.RoomID == "" {
		h.send(peerID, models.ErrorEvent(errEvent, models.ErrNotPaired))
		return "", "", false
	}
	return view.PartnerID, view.RoomID, true
}

// handleChatMessage validates, stamps and relays one chat message to
// the partner, then acknowledges the sender.
func (h *Hub) handleChatMessage(peerID string, raw json.RawMessage, now time.Time) {
	partnerID, roomID, ok := h.pairContext(peerID, models.EvMessageError)
	if !ok {
		return
	}

	var payload models.MessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrInvalidMessage))
		return
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		h.send(peerID, models.ErrorEvent(models.EvMessageError, models.ErrInvalidMessage))
		return
	}
	if runes := []rune(text); len(runes) > maxMessageLength {
		text = string(runes[:maxMessageLength])
	}

	s := h.session(peerID)
	s.mu.Lock()
	username := s.Profile.Username
	s.mu.Unlock()

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		From:      peerID,
		Username:  username,
		Text:      text,
		RoomID:    roomID,
		Timestamp: now,
	}
	h.relay.appendRecent(roomID, msg)

	// A message implies the sender stopped typing.
	if h.relay.clearTyping(peerID) {
		h.send(partnerID, models.ServerEvent{
			Type:    models.EvPartnerTypingStopped,
			Payload: map[string]any{"from": peerID},
		})
	}

	h.send(partnerID, models.ServerEvent{Type: models.EvMessage, Payload: msg})
	h.send(peerID, models.ServerEvent{
		Type:    models.EvMessageSent,
		Payload: models.MessageSentPayload{ID: msg.ID, Timestamp: now},
	})
}

// handleTyping arms the typing indicator and forwards it. The
// indicator expires on its own after TypingTTL if the client never
// sends typingStopped.
func (h *Hub) handleTyping(peerID string, now time.Time) {
	partnerID, _, ok := h.pairContext(peerID, models.EvMessageError)
	if !ok {
		return
	}
	h.relay.setTyping(peerID, now.Add(h.opts.TypingTTL))
	h.send(partnerID, models.ServerEvent{
		Type:    models.EvPartnerTyping,
		Payload: map[string]any{"from": peerID},
	})
}

func (h *Hub) handleTypingStopped(peerID string) {
	partnerID, _, ok := h.pairContext(peerID, models.EvMessageError)
	if !ok {
		return
	}
	if h.relay.clearTyping(peerID) {
		h.send(partnerID, models.ServerEvent{
			Type:    models.EvPartnerTypingStopped,
			Payload: map[string]any{"from": peerID},
		})
	}
}

// signalTarget validates a signaling payload's explicit target against
// the actual partner. An offer aimed outside the pair is an error, not
// a relay.
func (h *Hub) signalTarget(peerID, partnerID, to string) bool {
	if to != "" && to != partnerID {
		h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrNotPaired))
		return false
	}
	return true
}

// handleOffer opens (or restarts) a call: the record moves to offered,
// the SDP is stored verbatim and the envelope is forwarded.
func (h *Hub) handleOffer(peerID string, raw json.RawMessage, now time.Time) {
	partnerID, roomID, ok := h.pairContext(peerID, models.EvWebRTCError)
	if !ok {
		return
	}

	var payload models.SignalPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrInvalidMessage))
			return
		}
	}
	if !h.signalTarget(peerID, partnerID, payload.To) {
		return
	}

	callID := payload.CallID
	if call, found := h.rooms.CallForPeer(peerID); found && callID == "" {
		callID = call.ID
	}

	if callID != "" {
		updated := h.rooms.UpdateCall(callID, CallOffered, now, func(c *CallRecord) {
			c.SDP = payload.SDP
			if len(payload.Metadata) > 0 {
				c.Metadata = payload.Metadata
			}
		})
		if !updated {
			callID = ""
		}
	}
	if callID == "" {
		call, created := h.rooms.StartCall(roomID, "", peerID, partnerID, CallOffered, now)
		if !created {
			h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrNotPaired))
			return
		}
		h.rooms.UpdateCall(call.ID, CallOffered, now, func(c *CallRecord) {
			c.SDP = payload.SDP
			if len(payload.Metadata) > 0 {
				c.Metadata = payload.Metadata
			}
		})
		callID = call.ID
	}

	h.relay.dropCallRequest(peerID)
	h.send(partnerID, models.ServerEvent{Type: models.EvWebRTCOffer, Payload: models.SignalOut{
		From:     peerID,
		SDP:      payload.SDP,
		CallID:   callID,
		RoomID:   roomID,
		Metadata: payload.Metadata,
	}})
}

// handleAnswer moves the call to answered and forwards the answer SDP.
// An answer with no known record still relays; the record is
// synthesized so later teardown has something to clear.
func (h *Hub) handleAnswer(peerID string, raw json.RawMessage, now time.Time) {
	partnerID, roomID, ok := h.pairContext(peerID, models.EvWebRTCError)
	if !ok {
		return
	}

	var payload models.SignalPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrInvalidMessage))
			return
		}
	}
	if !h.signalTarget(peerID, partnerID, payload.To) {
		return
	}

	callID := payload.CallID
	if callID == "" {
		if call, found := h.rooms.CallForPeer(peerID); found {
			callID = call.ID
		}
	}

	answered := callID != "" && h.rooms.UpdateCall(callID, CallAnswered, now, func(c *CallRecord) {
		c.AnswerSDP = payload.SDP
	})
	if !answered {
		if call, created := h.rooms.StartCall(roomID, callID, partnerID, peerID, CallAnswered, now); created {
			h.rooms.UpdateCall(call.ID, CallAnswered, now, func(c *CallRecord) {
				c.AnswerSDP = payload.SDP
			})
			callID = call.ID
		}
	}

	h.send(partnerID, models.ServerEvent{Type: models.EvWebRTCAnswer, Payload: models.SignalOut{
		From:   peerID,
		SDP:    payload.SDP,
		CallID: callID,
		RoomID: roomID,
	}})
}

// handleICECandidate forwards a candidate verbatim. Candidates are
// opaque and never stored.
func (h *Hub) handleICECandidate(peerID string, raw json.RawMessage) {
	partnerID, roomID, ok := h.pairContext(peerID, models.EvWebRTCError)
	if !ok {
		return
	}

	var payload models.SignalPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrInvalidMessage))
			return
		}
	}
	if !h.signalTarget(peerID, partnerID, payload.To) {
		return
	}

	h.send(partnerID, models.ServerEvent{Type: models.EvWebRTCICE, Payload: models.SignalOut{
		From:      peerID,
		CallID:    payload.CallID,
		RoomID:    roomID,
		Candidate: payload.Candidate,
	}})
}

// handleCallEnd closes the call record as ended or rejected and tells
// the partner. The room stays up: ending a call never ends the chat.
func (h *Hub) handleCallEnd(peerID string, raw json.RawMessage, status string, now time.Time) {
	partnerID, roomID, ok := h.pairContext(peerID, models.EvWebRTCError)
	if !ok {
		return
	}

	var payload models.SignalPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrInvalidMessage))
			return
		}
	}
	if !h.signalTarget(peerID, partnerID, payload.To) {
		return
	}

	callID := payload.CallID
	if callID == "" {
		if call, found := h.rooms.CallForPeer(peerID); found {
			callID = call.ID
		}
	}
	if callID != "" {
		h.rooms.UpdateCall(callID, status, now, nil)
	}
	h.rooms.EndCall(roomID)
	h.relay.dropCallRequest(peerID)
	h.relay.dropCallRequest(partnerID)

	eventType := models.EvWebRTCEnd
	if status == CallRejected {
		eventType = models.EvWebRTCReject
	}
	h.send(partnerID, models.ServerEvent{Type: eventType, Payload: models.SignalOut{
		From:   peerID,
		CallID: callID,
		RoomID: roomID,
		Reason: payload.Reason,
	}})
}

// handlePassthrough relays call-status, media-toggle and screen-share
// events without interpreting them.
func (h *Hub) handlePassthrough(peerID, eventType string, raw json.RawMessage) {
	partnerID, roomID, ok := h.pairContext(peerID, models.EvWebRTCError)
	if !ok {
		return
	}

	var payload models.SignalPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrInvalidMessage))
			return
		}
	}
	if !h.signalTarget(peerID, partnerID, payload.To) {
		return
	}

	h.send(partnerID, models.ServerEvent{Type: eventType, Payload: models.SignalOut{
		From:     peerID,
		CallID:   payload.CallID,
		RoomID:   roomID,
		Status:   payload.Status,
		Reason:   payload.Reason,
		Metadata: payload.Metadata,
	}})
}

// handleVideoCallRequest stores a pending invitation with a TTL and
// forwards it. An offer from the requester clears it; otherwise it
// expires after CallRequestTTL and the partner gets a webrtc-end.
func (h *Hub) handleVideoCallRequest(peerID string, raw json.RawMessage, now time.Time) {
	partnerID, roomID, ok := h.pairContext(peerID, models.EvWebRTCError)
	if !ok {
		return
	}

	var payload models.VideoCallRequestPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.send(peerID, models.ErrorEvent(models.EvWebRTCError, models.ErrInvalidMessage))
			return
		}
	}

	callID := payload.CallID
	if callID == "" {
		callID = NewCallID()
	}
	h.relay.setCallRequest(peerID, callRequest{
		callID:    callID,
		partnerID: partnerID,
		expiresAt: now.Add(h.opts.CallRequestTTL),
	})

	h.send(partnerID, models.ServerEvent{Type: models.EvVideoCallRequest, Payload: models.SignalOut{
		From:   peerID,
		CallID: callID,
		RoomID: roomID,
	}})
}

// sweepTyping expires stale typing indicators and notifies the
// partner, if the pair still stands.
func (h *Hub) sweepTyping(now time.Time) {
	for _, peerID := range h.relay.expiredTyping(now) {
		s := h.session(peerID)
		if s == nil {
			continue
		}
		if partnerID := s.Snapshot().PartnerID; partnerID != "" {
			h.send(partnerID, models.ServerEvent{
				Type:    models.EvPartnerTypingStopped,
				Payload: map[string]any{"from": peerID},
			})
		}
	}
}

// sweepCallRequests drops expired invitations and tells the invited
// partner with a webrtc-end.
func (h *Hub) sweepCallRequests(now time.Time) {
	for _, req := range h.relay.expiredCallRequests(now) {
		h.send(req.partnerID, models.ServerEvent{
			Type:    models.EvWebRTCEnd,
			Payload: models.SignalOut{CallID: req.callID, Reason: "request_expired"},
		})
	}
}
