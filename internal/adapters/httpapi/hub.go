package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan event
}

// Hub reparte cada señal persistida a los suscriptores del websocket.
// Implementa ports.Publisher. Un cliente que no consume su buffer se desconecta.
type Hub struct {
	highConfidence float64
	metrics        *Metrics

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub crea el hub. metrics puede ser nil.
func NewHub(highConfidence float64, metrics *Metrics) *Hub {
	return &Hub{
		highConfidence: highConfidence,
		metrics:        metrics,
		clients:        make(map[*wsClient]struct{}),
	}
}

// Publish encola la señal para todos los clientes conectados. Nunca bloquea.
func (h *Hub) Publish(_ context.Context, v domain.VerifiedSignal) {
	ev := event{
		Type:   "signal",
		Signal: toSignalJSON(v),
		Alert:  v.Confidence >= h.highConfidence,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slog.Warn("ws client too slow, dropping", "client", c.id)
			h.removeLocked(c)
		}
	}
}

// Len devuelve cuántos clientes hay conectados.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS hace el upgrade y registra al cliente hasta que se desconecte.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := &wsClient{
		id:   uuid.New().String()[:8],
		conn: conn,
		send: make(chan event, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.setGauge()
	h.mu.Unlock()
	slog.Info("ws client connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close desconecta a todos los clientes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// readLoop descarta lo que mande el cliente; sólo sirve para detectar el cierre.
func (h *Hub) readLoop(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				slog.Debug("ws write failed", "client", c.id, "err", err)
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

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setGauge()
	slog.Info("ws client disconnected", "client", c.id)
}

func (h *Hub) setGauge() {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(len(h.clients)))
	}
}
