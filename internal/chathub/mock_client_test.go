package chathub_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rajeshbanoth/randomchat/internal/chathub"
	"github.com/rajeshbanoth/randomchat/internal/match"
	"github.com/rajeshbanoth/randomchat/internal/models"
)

// MockClient is the in-memory Client double used by every hub test.
// Events the hub sends land in Recv.
type MockClient struct {
	peerID string
	Recv   chan models.ServerEvent

	mu     sync.Mutex
	closed bool
}

func newMockClient(peerID string) *MockClient {
	return &MockClient{
		peerID: peerID,
		Recv:   make(chan models.ServerEvent, 64),
	}
}

func (c *MockClient) GetPeerID() string { return c.peerID }

func (c *MockClient) GetSendChannel() chan<- models.ServerEvent { return c.Recv }

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drain empties the receive buffer and returns everything queued.
func (c *MockClient) drain() []models.ServerEvent {
	var out []models.ServerEvent
	for {
		select {
		case ev := <-c.Recv:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// expectEvent drains until an event of the wanted type shows up.
func (c *MockClient) expectEvent(t *testing.T, eventType string) models.ServerEvent {
	t.Helper()
	for {
		select {
		case ev := <-c.Recv:
			if ev.Type == eventType {
				return ev
			}
		default:
			t.Fatalf("no %q event queued for %s", eventType, c.peerID)
			return models.ServerEvent{}
		}
	}
}

// createTestHub builds a hub with default timings, video auto-start on
// and no publisher.
func createTestHub() *chathub.Hub {
	engine := match.NewEngine(match.DefaultScoringConfig(), nil)
	return chathub.NewHub(engine, chathub.Options{AutoStartVideo: true}, nil, nil)
}

// attachPeer wires a mock client and registers its profile.
func attachPeer(t *testing.T, hub *chathub.Hub, peerID string, payload models.RegisterPayload) *MockClient {
	t.Helper()
	client := newMockClient(peerID)
	hub.Attach(client)
	hub.HandleEvent(peerID, models.ClientEvent{
		Type:    models.EvRegister,
		Payload: marshalPayload(t, payload),
	})
	client.expectEvent(t, models.EvRegistered)
	return client
}

func marshalPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// searchablePayload is a registration that reliably clears the text
// threshold against an identical twin.
func searchablePayload() models.RegisterPayload {
	return models.RegisterPayload{
		Age:       25,
		Interests: []string{"music", "gaming", "art"},
	}
}

// startSearch puts a peer into searching state.
func startSearch(t *testing.T, hub *chathub.Hub, peerID, mode string) {
	t.Helper()
	hub.HandleEvent(peerID, models.ClientEvent{
		Type:    models.EvSearch,
		Payload: marshalPayload(t, models.SearchPayload{Mode: mode}),
	})
}

// pairUp registers two compatible peers and searches both, asserting
// the match commits. Returns both clients with their queues drained up
// to and including the matched event.
func pairUp(t *testing.T, hub *chathub.Hub, idA, idB, mode string) (*MockClient, *MockClient) {
	t.Helper()
	payload := searchablePayload()
	payload.ChatMode = mode

	a := attachPeer(t, hub, idA, payload)
	b := attachPeer(t, hub, idB, payload)

	startSearch(t, hub, idA, mode)
	startSearch(t, hub, idB, mode)

	a.expectEvent(t, models.EvMatched)
	b.expectEvent(t, models.EvMatched)
	return a, b
}
