package chathub_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajeshbanoth/randomchat/internal/models"
)

func TestMessageRelayedToPartnerOnly(t *testing.T) {
	// Arrange
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeText)
	c := attachPeer(t, hub, "peer_c", searchablePayload())
	a.drain()
	b.drain()
	c.drain()

	// Act
	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvMessage,
		Payload: marshalPayload(t, models.MessagePayload{Text: "  hello there  "}),
	})

	// Assert - partner gets the trimmed message, sender gets the ack
	// with the same id, bystanders get nothing.
	msg := payloadAs[models.ChatMessage](t, b.expectEvent(t, models.EvMessage))
	assert.Equal(t, "hello there", msg.Text)
	assert.Equal(t, "peer_a", msg.From)
	assert.NotEmpty(t, msg.ID)
	assert.NotEmpty(t, msg.RoomID)

	ack := payloadAs[models.MessageSentPayload](t, a.expectEvent(t, models.EvMessageSent))
	assert.Equal(t, msg.ID, ack.ID)

	assert.Empty(t, c.drain())
}

func TestEmptyMessageRejected(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeText)
	a.drain()
	b.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvMessage,
		Payload: marshalPayload(t, models.MessagePayload{Text: "   "}),
	})

	perr := payloadAs[models.ErrorPayload](t, a.expectEvent(t, models.EvMessageError))
	assert.Equal(t, "invalid_message", perr.Code)
	assert.Empty(t, b.drain())
}

func TestOverlongMessageTruncated(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeText)
	a.drain()
	b.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvMessage,
		Payload: marshalPayload(t, models.MessagePayload{Text: strings.Repeat("x", 5000)}),
	})

	msg := payloadAs[models.ChatMessage](t, b.expectEvent(t, models.EvMessage))
	assert.Len(t, msg.Text, 1000)
}

func TestMessageWhileUnpairedFails(t *testing.T) {
	hub := createTestHub()
	a := attachPeer(t, hub, "peer_a", searchablePayload())

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvMessage,
		Payload: marshalPayload(t, models.MessagePayload{Text: "anyone?"}),
	})

	perr := payloadAs[models.ErrorPayload](t, a.expectEvent(t, models.EvMessageError))
	assert.Equal(t, "not_paired", perr.Code)
}

func TestTypingRelay(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeText)
	a.drain()
	b.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{Type: models.EvTyping})
	b.expectEvent(t, models.EvPartnerTyping)

	hub.HandleEvent("peer_a", models.ClientEvent{Type: models.EvTypingStopped})
	b.expectEvent(t, models.EvPartnerTypingStopped)
}

func TestMessageClearsTyping(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeText)
	a.drain()
	b.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{Type: models.EvTyping})
	b.expectEvent(t, models.EvPartnerTyping)

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvMessage,
		Payload: marshalPayload(t, models.MessagePayload{Text: "done typing"}),
	})

	b.expectEvent(t, models.EvPartnerTypingStopped)
	b.expectEvent(t, models.EvMessage)
}

func TestOfferAnswerICERoundTrip(t *testing.T) {
	// Arrange
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeVideo)
	a.drain()
	b.drain()

	// Act - caller offers
	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvWebRTCOffer,
		Payload: marshalPayload(t, models.SignalPayload{SDP: "offer-sdp"}),
	})
	offer := payloadAs[models.SignalOut](t, b.expectEvent(t, models.EvWebRTCOffer))
	assert.Equal(t, "peer_a", offer.From)
	assert.Equal(t, "offer-sdp", offer.SDP)
	require.NotEmpty(t, offer.CallID)

	// callee answers on the same call id
	hub.HandleEvent("peer_b", models.ClientEvent{
		Type:    models.EvWebRTCAnswer,
		Payload: marshalPayload(t, models.SignalPayload{SDP: "answer-sdp", CallID: offer.CallID}),
	})
	answer := payloadAs[models.SignalOut](t, a.expectEvent(t, models.EvWebRTCAnswer))
	assert.Equal(t, "peer_b", answer.From)
	assert.Equal(t, "answer-sdp", answer.SDP)
	assert.Equal(t, offer.CallID, answer.CallID)

	// candidates flow both ways, verbatim
	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvWebRTCICE,
		Payload: marshalPayload(t, models.SignalPayload{Candidate: marshalPayload(t, map[string]string{"candidate": "c1"})}),
	})
	ice := payloadAs[models.SignalOut](t, b.expectEvent(t, models.EvWebRTCICE))
	assert.Equal(t, "peer_a", ice.From)
	assert.JSONEq(t, `{"candidate":"c1"}`, string(ice.Candidate))
}

func TestOfferTargetedOutsidePairFails(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeVideo)
	c := attachPeer(t, hub, "peer_c", searchablePayload())
	a.drain()
	b.drain()
	c.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvWebRTCOffer,
		Payload: marshalPayload(t, models.SignalPayload{SDP: "sdp", To: "peer_c"}),
	})

	perr := payloadAs[models.ErrorPayload](t, a.expectEvent(t, models.EvWebRTCError))
	assert.Equal(t, "not_paired", perr.Code)
	assert.Empty(t, b.drain())
	assert.Empty(t, c.drain())
}

func TestSignalingWhileUnpairedFails(t *testing.T) {
	hub := createTestHub()
	a := attachPeer(t, hub, "peer_a", searchablePayload())

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvWebRTCOffer,
		Payload: marshalPayload(t, models.SignalPayload{SDP: "sdp"}),
	})

	perr := payloadAs[models.ErrorPayload](t, a.expectEvent(t, models.EvWebRTCError))
	assert.Equal(t, "not_paired", perr.Code)
}

func TestCallEndKeepsRoomAlive(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeVideo)
	a.drain()
	b.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvWebRTCOffer,
		Payload: marshalPayload(t, models.SignalPayload{SDP: "offer-sdp"}),
	})
	b.expectEvent(t, models.EvWebRTCOffer)

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvWebRTCEnd,
		Payload: marshalPayload(t, models.SignalPayload{Reason: "hung_up"}),
	})
	end := payloadAs[models.SignalOut](t, b.expectEvent(t, models.EvWebRTCEnd))
	assert.Equal(t, "hung_up", end.Reason)

	// The chat survives the call: text still flows.
	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvMessage,
		Payload: marshalPayload(t, models.MessagePayload{Text: "still here"}),
	})
	msg := payloadAs[models.ChatMessage](t, b.expectEvent(t, models.EvMessage))
	assert.Equal(t, "still here", msg.Text)
}

func TestCallRejectRelaysAsReject(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeVideo)
	a.drain()
	b.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvWebRTCOffer,
		Payload: marshalPayload(t, models.SignalPayload{SDP: "offer-sdp"}),
	})
	offer := payloadAs[models.SignalOut](t, b.expectEvent(t, models.EvWebRTCOffer))

	hub.HandleEvent("peer_b", models.ClientEvent{
		Type:    models.EvWebRTCReject,
		Payload: marshalPayload(t, models.SignalPayload{CallID: offer.CallID, Reason: "busy"}),
	})

	rej := payloadAs[models.SignalOut](t, a.expectEvent(t, models.EvWebRTCReject))
	assert.Equal(t, offer.CallID, rej.CallID)
	assert.Equal(t, "busy", rej.Reason)
}

func TestPassthroughEventsRelayed(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeVideo)
	a.drain()
	b.drain()

	for _, eventType := range []string{
		models.EvVideoCallStatus,
		models.EvCallToggleMedia,
		models.EvScreenShareStatus,
	} {
		hub.HandleEvent("peer_a", models.ClientEvent{
			Type:    eventType,
			Payload: marshalPayload(t, models.SignalPayload{Status: "muted"}),
		})
		out := payloadAs[models.SignalOut](t, b.expectEvent(t, eventType))
		assert.Equal(t, "peer_a", out.From)
		assert.Equal(t, "muted", out.Status)
	}
}

func TestVideoCallRequestForwarded(t *testing.T) {
	hub := createTestHub()
	a, b := pairUp(t, hub, "peer_a", "peer_b", models.ModeText)
	a.drain()
	b.drain()

	hub.HandleEvent("peer_a", models.ClientEvent{
		Type:    models.EvVideoCallRequest,
		Payload: marshalPayload(t, models.VideoCallRequestPayload{}),
	})

	req := payloadAs[models.SignalOut](t, b.expectEvent(t, models.EvVideoCallRequest))
	assert.Equal(t, "peer_a", req.From)
	assert.NotEmpty(t, req.CallID)
}
