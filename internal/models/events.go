package models

import (
	"encoding/json"
	"time"
)

// Inbound event tags (client to server). Unknown tags are rejected with
// ErrInvalidMessage.
const (
	EvRegister          = "register"
	EvSearch            = "search"
	EvCancelSearch      = "cancel-search"
	EvMessage           = "message"
	EvTyping            = "typing"
	EvTypingStopped     = "typingStopped"
	EvNext              = "next"
	EvDisconnectPartner = "disconnect-partner"
	EvBlockPartner      = "block-partner"
	EvReportPartner     = "report-partner"
	EvWebRTCOffer       = "webrtc-offer"
	EvWebRTCAnswer      = "webrtc-answer"
	EvWebRTCICE         = "webrtc-ice-candidate"
	EvWebRTCEnd         = "webrtc-end"
	EvWebRTCReject      = "webrtc-reject"
	EvVideoCallStatus   = "video-call-status"
	EvCallToggleMedia   = "call-toggle-media"
	EvScreenShareStatus = "screen-share-status"
	EvVideoCallRequest  = "video-call-request"
	EvGetPartnerInfo    = "get-partner-info"
	EvGetStats          = "get-stats"
	EvHeartbeat         = "heartbeat"
)

// Outbound event tags (server to client).
const (
	EvRegistered           = "registered"
	EvSearching            = "searching"
	EvSearchingUpdate      = "searching-update"
	EvSearchTimeout        = "search-timeout"
	EvSearchCancelled      = "search-cancelled"
	EvMatched              = "matched"
	EvVideoMatchReady      = "video-match-ready"
	EvVideoCallAutoStart   = "video-call-auto-start"
	EvPartnerTyping        = "partnerTyping"
	EvPartnerTypingStopped = "partnerTypingStopped"
	EvMessageSent          = "message-sent"
	EvPartnerDisconnected  = "partnerDisconnected"
	EvPartnerInfo          = "partner-info"
	EvReportAck            = "report-ack"
	EvStats                = "stats"
	EvStatsUpdated         = "stats-updated"
	EvHeartbeatResponse    = "heartbeat-response"
	EvRegisterError        = "register-error"
	EvSearchError          = "search-error"
	EvMessageError         = "message-error"
	EvWebRTCError          = "webrtc-error"
)

// Teardown reasons delivered with partnerDisconnected.
const (
	ReasonNextRequested    = "next_requested"
	ReasonManualDisconnect = "manual_disconnect"
	ReasonNewSearch        = "new_search"
	ReasonInactive         = "inactive"
	ReasonDisconnected     = "disconnected"
)

// ClientEvent is the wire envelope for everything a client sends. The
// payload stays raw until the tag is known.
type ClientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is the wire envelope for everything the server sends.
type ServerEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// SearchPayload optionally overrides the registered chat mode and the
// peer's auto-connect preference for video matches.
type SearchPayload struct {
	Mode        string `json:"mode,omitempty"`
	AutoConnect *bool  `json:"autoConnect,omitempty"`
}

// MessagePayload carries one chat message.
type MessagePayload struct {
	Text string `json:"text"`
}

// ReportPayload accuses the current partner of misbehavior.
type ReportPayload struct {
	Category string `json:"category"`
	Details  string `json:"details,omitempty"`
}

// ReportAckPayload confirms a report was recorded.
type ReportAckPayload struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// DisconnectPayload optionally names why the peer is leaving the pair.
type DisconnectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// SignalPayload covers every WebRTC signaling event. SDP, candidates and
// metadata are opaque to the server.
type SignalPayload struct {
	To        string          `json:"to,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	CallID    string          `json:"callId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Status    string          `json:"status,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// VideoCallRequestPayload asks the partner to start a call out-of-band.
type VideoCallRequestPayload struct {
	CallID string `json:"callId,omitempty"`
}

// RegisteredPayload acknowledges a successful registration.
type RegisteredPayload struct {
	PeerID    string    `json:"peerId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// MatchedPayload notifies a peer of a committed pairing.
type MatchedPayload struct {
	Partner         PublicProfile `json:"partner"`
	Compatibility   float64       `json:"compatibility"`
	SharedInterests []string      `json:"sharedInterests"`
	MatchMode       string        `json:"matchMode"`
	RoomID          string        `json:"roomId"`
	Timestamp       time.Time     `json:"timestamp"`
}

// VideoMatchReadyPayload is sent alongside matched for video pairs.
type VideoMatchReadyPayload struct {
	RoomID    string    `json:"roomId"`
	CallID    string    `json:"callId"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchingUpdatePayload reports progress on each failed rematch tick.
type SearchingUpdatePayload struct {
	Attempts  int   `json:"attempts"`
	ElapsedMS int64 `json:"elapsedMs"`
}

// ChatMessage is the relayed form of a chat message. The id is assigned
// by the server.
type ChatMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	RoomID    string    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentPayload acknowledges a relayed message to its sender.
type MessageSentPayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// PartnerDisconnectedPayload tells the surviving side why the pair ended.
type PartnerDisconnectedPayload struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// SignalOut is the relayed form of a WebRTC signaling event.
type SignalOut struct {
	From      string          `json:"from"`
	SDP       string          `json:"sdp,omitempty"`
	CallID    string          `json:"callId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Status    string          `json:"status,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// ErrorPayload is the body of every typed error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds a typed error event from a sentinel error.
func ErrorEvent(eventType string, err error) ServerEvent {
	code := "internal"
	switch err {
	case ErrInvalidProfile:
		code = "invalid_profile"
	case ErrInvalidMessage:
		code = "invalid_message"
	case ErrNotRegistered:
		code = "not_registered"
	case ErrNotSearching:
		code = "not_searching"
	case ErrNotPaired:
		code = "not_paired"
	case ErrRestricted:
		code = "restricted"
	}
	return ServerEvent{
		Type:    eventType,
		Payload: ErrorPayload{Code: code, Message: err.Error()},
	}
}
