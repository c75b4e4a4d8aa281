package web

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Client is a websocket subscriber to run progress. Clients only listen;
// the only inbound message they send is a ping.
type Client struct {
	ID  string
	hub *Hub
	// runID limits the client to one run; empty follows every run
	runID string
	conn  *websocket.Conn
	send  chan *WebMessage
	debug bool
}

// NewClient creates a client following runID (empty for all runs) and
// queues its hello message.
func NewClient(hub *Hub, conn *websocket.Conn, runID string, debug bool) *Client {
	c := &Client{
		ID:    uuid.NewString(),
		hub:   hub,
		runID: runID,
		conn:  conn,
		send:  make(chan *WebMessage, 256),
		debug: debug,
	}
	c.send <- &WebMessage{Type: MessageTypeHello, RunID: runID, ClientID: c.ID, Version: consts.Version, Timestamp: time.Now()}
	return c
}

func (c *Client) follows(runID string) bool {
	return c.runID == "" || c.runID == runID
}

// ReadPump reads frames until the connection fails, then unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("websocket read error: %v", err)
			}
			return
		}
		if c.debug {
			logger.Debug("websocket received: %s", string(data))
		}

		var msg WebMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(&WebMessage{Type: MessageTypeError, Error: "invalid message"})
			continue
		}
		switch msg.Type {
		case MessageTypePing:
			c.reply(&WebMessage{Type: MessageTypePong})
		default:
			c.reply(&WebMessage{Type: MessageTypeError, Error: "unsupported message type: " + msg.Type})
		}
	}
}

// WritePump writes queued messages and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("failed to marshal websocket message: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket write failed: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply sends msg to this client only, provided the hub still owns it.
func (c *Client) reply(msg *WebMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		logger.Warn("websocket client %s send buffer full, dropping %s", c.ID, msg.Type)
	}
}
