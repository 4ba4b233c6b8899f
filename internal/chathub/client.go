package chathub

import "github.com/rajeshbanoth/randomchat/internal/models"

// Client is the interface for one connected peer's transport. It
// abstracts the underlying channel (WebSocket in production, test
// doubles in tests) so the hub can manage all connections uniformly.
type Client interface {
	// GetPeerID returns the connection-scoped peer identifier.
	GetPeerID() string

	// GetSendChannel returns the channel the hub writes outbound events
	// to. It is a send-only channel; the client's write pump drains it.
	GetSendChannel() chan<- models.ServerEvent

	// Run starts the client's read and write pumps.
	Run()

	// Close shuts down the client's connection and channels. It must be
	// safe to call more than once.
	Close()
}
