// Package websocket pushes frames to connected browsers.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/djlord-it/botgraph/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 512
	sendBuffer     = 16
)

// MetricsSink records the number of connected clients.
type MetricsSink interface {
	ClientsConnected(n int)
}

type client struct {
	id   uuid.UUID
	conn *ws.Conn
	send chan []byte
}

// Hub fans frames out to every connected client. A client that cannot keep
// up is disconnected rather than allowed to stall the others.
type Hub struct {
	upgrader ws.Upgrader
	metrics  MetricsSink // optional, nil = disabled

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// WithMetrics attaches a metrics sink to the hub.
func (h *Hub) WithMetrics(sink MetricsSink) *Hub {
	h.metrics = sink
	return h
}

// Run broadcasts frames until ctx is cancelled or frames is closed, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context, frames <-chan domain.Frame) {
	log.Printf("websocket: hub started")
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			log.Printf("websocket: hub stopped")
			return
		case frame, ok := <-frames:
			if !ok {
				log.Printf("websocket: frame channel closed")
				return
			}
			h.Broadcast(frame)
		}
	}
}

// Broadcast sends frame to every client and remembers it for new connections.
func (h *Hub) Broadcast(frame domain.Frame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		log.Printf("websocket: encode frame seq=%d: %v", frame.Seq, err)
		return
	}

	h.mu.Lock()
	h.latest = msg
	var dropped int
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.removeLocked(c)
			dropped++
			log.Printf("websocket: client=%s too slow, disconnecting", c.id)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	if dropped > 0 {
		h.reportClients(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.latest != nil {
		c.send <- h.latest
	}
	n := len(h.clients)
	h.mu.Unlock()

	log.Printf("websocket: client=%s connected from %s", c.id, conn.RemoteAddr())
	h.reportClients(n)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		h.removeLocked(c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		log.Printf("websocket: client=%s disconnected", c.id)
		h.reportClients(n)
	}
}

// removeLocked deletes c and closes its send channel. Callers hold h.mu.
func (h *Hub) removeLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.reportClients(0)
}

func (h *Hub) reportClients(n int) {
	if h.metrics != nil {
		h.metrics.ClientsConnected(n)
	}
}

// readPump discards client messages and keeps the read deadline fresh on pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure, ws.CloseAbnormalClosure) {
				log.Printf("websocket: client=%s read error: %v", c.id, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, msg); err != nil {
				log.Printf("websocket: client=%s write error: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
