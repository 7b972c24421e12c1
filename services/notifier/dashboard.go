package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"signal_report_backend/models"
)

// WebSocket constants
const (
	MaxDashboardClients = 100
	dashboardPingEvery  = 30 * time.Second
	dashboardPongWait   = 60 * time.Second
	dashboardWriteWait  = 10 * time.Second
)

// DashboardMessage is the frame pushed to dashboard clients
type DashboardMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Time string `json:"time"`
}

type dashboardClient struct {
	conn *websocket.Conn
	send chan []byte
}

type broadcast struct {
	data      []byte
	delivered chan int
}

// DashboardHub streams reports to connected admin dashboards over WebSocket
type DashboardHub struct {
	clients    map[*dashboardClient]bool
	broadcast  chan broadcast
	register   chan *dashboardClient
	unregister chan *dashboardClient
	shutdown   chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	maxClients int
}

// NewDashboardHub starts the hub loop. Close stops it and drops every client.
func NewDashboardHub(maxClients int) *DashboardHub {
	if maxClients <= 0 {
		maxClients = MaxDashboardClients
	}
	h := &DashboardHub{
		clients:    make(map[*dashboardClient]bool),
		broadcast:  make(chan broadcast),
		register:   make(chan *dashboardClient),
		unregister: make(chan *dashboardClient),
		shutdown:   make(chan struct{}),
		stopped:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		maxClients: maxClients,
	}
	go h.run()
	return h
}

func (h *DashboardHub) Name() string { return models.ChannelDashboard }

// Send broadcasts text to every connected dashboard. Having no dashboard open is not a failure.
func (h *DashboardHub) Send(ctx context.Context, text string) (Ack, error) {
	data, err := json.Marshal(DashboardMessage{Type: "report", Text: text, Time: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return Ack{}, &SendError{Channel: h.Name(), Err: err}
	}

	req := broadcast{data: data, delivered: make(chan int, 1)}
	select {
	case h.broadcast <- req:
	case <-h.shutdown:
		return Ack{}, &SendError{Channel: h.Name(), Err: ErrClosed}
	case <-ctx.Done():
		return Ack{}, &SendError{Channel: h.Name(), Err: ctx.Err()}
	}

	n := <-req.delivered
	return Ack{Reference: fmt.Sprintf("%d dashboards", n), At: time.Now().UTC()}, nil
}

// ClientCount returns the number of connected dashboards
func (h *DashboardHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all dashboards and stops the hub loop
func (h *DashboardHub) Close() error {
	h.closeOnce.Do(func() {
		close(h.shutdown)
		<-h.stopped
	})
	return nil
}

func (h *DashboardHub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*dashboardClient]bool)
			h.mu.Unlock()
			log.Info().Msg("Dashboard hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.maxClients {
				h.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				log.Warn().Int("max", h.maxClients).Msg("Dashboard client rejected: at capacity")
				continue
			}
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug().Int("clients", count).Msg("Dashboard client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug().Int("clients", count).Msg("Dashboard client disconnected")

		case req := <-h.broadcast:
			h.mu.Lock()
			delivered := 0
			var slow []*dashboardClient
			for client := range h.clients {
				select {
				case client.send <- req.data:
					delivered++
				default:
					slow = append(slow, client)
				}
			}
			for _, client := range slow {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			req.delivered <- delivered
		}
	}
}

// HandleWebSocket upgrades a dashboard connection and attaches it to the hub
func (h *DashboardHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= h.maxClients {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Dashboard websocket upgrade failed")
		return
	}

	client := &dashboardClient{conn: conn, send: make(chan []byte, 16)}
	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *dashboardClient) writePump() {
	ticker := time.NewTicker(dashboardPingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(dashboardWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(dashboardWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only keeps the read deadline moving; dashboards never send commands
func (c *dashboardClient) readPump(h *DashboardHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(dashboardPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(dashboardPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("Dashboard websocket read error")
			}
			return
		}
	}
}
