package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds the per-connection outbound queue. A replica that
	// cannot drain it gets disconnected rather than stalling the rest.
	sendBuffer = 64
)

// Hub fans broadcasts out to every connected replica, the originator of a
// change included. Each connection gets its own buffered outbound queue and
// write pump, so broadcasts never block on a slow peer.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: map[*client]bool{}}
}

// Count returns the number of connected replicas.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast encodes the payload once and enqueues it on every connection.
func (h *Hub) Broadcast(typ string, payload any) {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		h.log.Error("failed to build broadcast", "type", typ, "error", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		h.log.Error("failed to encode broadcast", "type", typ, "error", err)
		return
	}

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Queue full: the peer is too slow to keep in sync.
			h.log.Warn("dropping slow websocket client", "client", c.id)
			delete(h.clients, c)
			c.close()
		}
	}
	h.mu.Unlock()
}

// Handler processes one inbound envelope. reply enqueues a message to the
// originating connection only.
type Handler func(env Envelope, reply func(typ string, payload any))

// Serve runs the read loop for one connection until it closes. hello, when
// non-nil, is sent before any other traffic so a fresh replica starts from
// the authoritative state.
func (h *Hub) Serve(conn *websocket.Conn, hello func() (string, any), handle Handler) {
	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("websocket client connected", "client", c.id, "clients", n)

	go h.writePump(c)

	if hello != nil {
		typ, payload := hello()
		h.sendTo(c, typ, payload)
	}

	reply := func(typ string, payload any) { h.sendTo(c, typ, payload) }

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := Decode(data)
		if err != nil {
			h.sendTo(c, TypeError, ErrorPayload{Message: err.Error(), Code: "malformed"})
			continue
		}
		handle(env, reply)
	}

	h.mu.Lock()
	delete(h.clients, c)
	n = len(h.clients)
	h.mu.Unlock()
	c.close()
	h.log.Info("websocket client disconnected", "client", c.id, "clients", n)
}

func (h *Hub) sendTo(c *client, typ string, payload any) {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		h.log.Error("failed to build reply", "type", typ, "error", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		h.log.Error("failed to encode reply", "type", typ, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		h.log.Warn("dropping reply to slow websocket client", "type", typ)
	}
}

// writePump serializes all writes for one connection and keeps the peer
// alive with periodic pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CloseAll disconnects every client, used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}
