package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rajeshbanoth/randomchat/internal/models"
)

const (
	// writeWait is the allowance for one outbound frame.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the
	// read pump gives up on it.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxInboundBytes bounds one client frame. SDP blobs are the
	// largest legitimate payload and fit comfortably.
	maxInboundBytes = 64 * 1024

	// sendBufferSize is the outbound queue per client. A client that
	// falls this far behind gets dropped by the hub.
	sendBufferSize = 256
)

// WebSocketClient is the production Client: one gorilla connection,
// one read pump feeding the hub, one write pump draining the send
// channel.
type WebSocketClient struct {
	peerID string
	hub    *Hub
	conn   *websocket.Conn
	log    *logrus.Entry

	Send chan models.ServerEvent

	closeOnce sync.Once
}

// NewWebSocketClient wraps an upgraded connection for a peer.
func NewWebSocketClient(peerID string, hub *Hub, conn *websocket.Conn, log *logrus.Logger) *WebSocketClient {
	if log == nil {
		log = logrus.New()
	}
	return &WebSocketClient{
		peerID: peerID,
		hub:    hub,
		conn:   conn,
		log:    log.WithFields(logrus.Fields{"component": "ws", "peer": peerID}),
		Send:   make(chan models.ServerEvent, sendBufferSize),
	}
}

func (c *WebSocketClient) GetPeerID() string { return c.peerID }

func (c *WebSocketClient) GetSendChannel() chan<- models.ServerEvent { return c.Send }

// Run starts both pumps. It returns immediately; the pumps own the
// connection from here.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close shuts the connection down. Safe to call from any goroutine,
// any number of times.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = c.conn.Close()
	})
}

// readPump decodes inbound frames and hands them to the hub one at a
// time, which is what keeps per-peer handling serial.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.Detach(c)
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("unexpected close")
			}
			return
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Type == "" {
			select {
			case c.Send <- models.ErrorEvent(models.EvMessageError, models.ErrInvalidMessage):
			default:
			}
			continue
		}
		c.hub.HandleEvent(c.peerID, ev)
	}
}

// writePump serializes outbound events onto the wire and keeps the
// connection alive with pings. Events queued at a wakeup are written
// back to back, one frame each.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			if !c.writeEvent(ev) {
				return
			}
			// Drain whatever queued up while we were writing.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if !c.writeEvent(<-c.Send) {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) writeEvent(ev models.ServerEvent) bool {
	body, err := json.Marshal(ev)
	if err != nil {
		c.log.WithError(err).WithField("event", ev.Type).Error("marshal failed")
		return true
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return false
	}
	return true
}
