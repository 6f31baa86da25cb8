/*
Package api
File: hub.go
Description:
    The WebSocket Hub is the real-time layer of the server.

    It keeps a registry of connected clients and a broadcast channel. The
    session heartbeat pushes "state_pulse" messages through it, and every
    inbound client message (click / buy) is handed to the Server, whose
    reply goes back to that one client only.

    Once Run returns, every blocked register/unregister/reply send gives up
    through the done channel, so client pumps exit after shutdown.

    Architecture:
    - Hub: owns the client set; only its Run loop touches it.
    - Client: one browser connection with its own send buffer.
    - ServeWs: upgrades a GET request to a WebSocket.
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/everforgeworks/moai-clicker/internal/game"
	"github.com/everforgeworks/moai-clicker/internal/platform/logger"
	"github.com/everforgeworks/moai-clicker/internal/platform/metrics"
	"github.com/everforgeworks/moai-clicker/internal/session"
)

// Message types carried in the envelope.
const (
	TypeStatePulse       = "state_pulse"
	TypePurchaseRejected = "purchase_rejected"
	TypeError            = "error"
	TypeClick            = "click"
	TypeBuy              = "buy"
)

const clientSendBuffer = 256

// Message defines the JSON envelope for all real-time communication.
type Message struct {
	ID      string      `json:"id,omitempty"` // Unique message ID
	Type    string      `json:"type"`         // e.g. "state_pulse", "purchase_rejected"
	Payload interface{} `json:"payload"`      // Snapshot, rejection details, ...
	Sender  string      `json:"sender"`       // "SYSTEM" or the client ID that caused it
}

// inboundMessage is what clients send; Payload is decoded per Type.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MessageHandler processes one inbound message and returns an optional direct reply.
type MessageHandler func(clientID string, msg inboundMessage) []byte

// Client represents a single connected browser tab.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // Closed when Run returns

	pumps atomic.Int64 // Running client read/write pumps

	handler MessageHandler
	onLeave func(clientID string)
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewHub creates a new Hub. Run must be started before clients connect.
func NewHub(log *logger.Logger, m *metrics.Collector) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, clientSendBuffer),
		direct:     make(chan directMessage, clientSendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
		metrics:    m,
	}
}

// Run is the main event loop for the Hub. It blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			h.log.Info("WS: hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.metrics.WSConnections.Add(1)
			h.log.Infof("WS: client %s registered", client.ID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.log.Infof("WS: client %s unregistered", client.ID)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}

		case d := <-h.direct:
			if _, ok := h.clients[d.client]; ok {
				h.deliver(d.client, d.data)
			}
		}
	}
}

// deliver must only be called from Run.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
		h.metrics.WSMessagesOut.Add(1)
	default:
		// Send buffer full: assume the client hung.
		h.metrics.WSDroppedSends.Add(1)
		h.remove(client)
		h.log.Warnf("WS: client %s dropped, send buffer full", client.ID)
	}
}

// remove forgets a registered client and closes its send channel.
// It must only be called from Run.
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.WSConnections.Add(-1)
	if h.onLeave != nil {
		h.onLeave(client.ID)
	}
}

// enqueueDirect hands a reply to Run. It returns false once the hub has stopped.
func (h *Hub) enqueueDirect(d directMessage) bool {
	select {
	case h.direct <- d:
		return true
	case <-h.done:
		return false
	}
}

// Broadcast queues a message for every client. It never blocks; if the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		h.log.Errorf("WS: marshal %s: %v", msg.Type, err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.metrics.WSDroppedSends.Add(1)
	}
}

// PublishState broadcasts a state pulse. It satisfies session.Publisher.
func (h *Hub) PublishState(snap game.Snapshot) {
	h.Broadcast(Message{Type: TypeStatePulse, Payload: snap, Sender: session.SystemActor})
}

func encodeMessage(msg Message) ([]byte, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return json.Marshal(msg)
}

// upgrader is configured by ServeWs per allowed origin.
func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
}

// ServeWs upgrades the HTTP connection and starts the client's pumps.
func (h *Hub) ServeWs(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WS upgrade error: %v", err)
		return
	}

	client := &Client{ID: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, clientSendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	h.pumps.Add(2)
	go client.writePump()
	go client.readPump()
}

// readPump decodes inbound messages and hands them to the hub's handler.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.hub.pumps.Add(-1)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warnf("WS read error from %s: %v", c.ID, err)
			}
			return
		}
		c.hub.metrics.WSMessagesIn.Add(1)

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Message{Type: TypeError, Payload: errorPayload{Reason: "bad_request", Detail: err.Error()}, Sender: session.SystemActor})
			continue
		}
		if c.hub.handler == nil {
			continue
		}
		if reply := c.hub.handler(c.ID, msg); reply != nil {
			if !c.hub.enqueueDirect(directMessage{client: c, data: reply}) {
				return
			}
		}
	}
}

func (c *Client) reply(msg Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		return
	}
	c.hub.enqueueDirect(directMessage{client: c, data: data})
}

// writePump writes queued messages until the send channel is closed.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
		c.hub.pumps.Add(-1)
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
