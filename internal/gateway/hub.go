package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	identity models.IdentityKey
}

// Hub fans inbound events out to connected websocket clients. Targeting
// mirrors the ordering system's conventions: "all", "staff", "customer"
// or "table:{id}" / "staff:{id}".
type Hub struct {
	logger *logger.Logger

	clients    map[*wsClient]struct{}
	broadcast  chan models.Event
	register   chan *wsClient
	unregister chan *wsClient
	// Closed when Run exits so client goroutines never block on the
	// register/unregister channels after shutdown.
	done chan struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger:     log,
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan models.Event, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			close(h.done)
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info("", "ws_client_connected", "client connected as "+client.identity.String())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("", "ws_client_disconnected", "client disconnected: "+client.identity.String())
			}

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("", "event_marshal_failed", "dropping undeliverable event", err)
				continue
			}
			for client := range h.clients {
				if !shouldDeliver(client.identity, event.Target) {
					continue
				}
				select {
				case client.send <- data:
					eventsDelivered.WithLabelValues(string(event.Type)).Inc()
				default:
					// Slow consumer; drop it rather than stall the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Broadcast hands an event to the hub loop.
func (h *Hub) Broadcast(event models.Event) {
	h.broadcast <- event
}

func shouldDeliver(identity models.IdentityKey, target string) bool {
	switch target {
	case "", "all":
		return true
	case "staff":
		return identity.Role == models.RoleStaff
	case "customer":
		return identity.Role == models.RoleCustomer
	}
	if id, ok := strings.CutPrefix(target, "table:"); ok {
		tableID, err := strconv.Atoi(id)
		return err == nil && identity.Role == models.RoleCustomer && identity.TableID == tableID
	}
	if id, ok := strings.CutPrefix(target, "staff:"); ok {
		staffID, err := strconv.Atoi(id)
		return err == nil && identity.Role == models.RoleStaff && identity.StaffID == staffID
	}
	return false
}

// ServeWS upgrades the request and registers the client. Identity comes
// from the query string, matching the client's dial parameters.
func (h *Hub) ServeWS(c *gin.Context) {
	identity := models.IdentityKey{Role: models.RoleCustomer}
	if c.Query("role") == string(models.RoleStaff) {
		identity.Role = models.RoleStaff
		identity.StaffID, _ = strconv.Atoi(c.Query("staff_id"))
	} else {
		identity.TableID, _ = strconv.Atoi(c.Query("table_id"))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("", "ws_upgrade_failed", "websocket upgrade failed", err)
		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan []byte, 16),
		identity: identity,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards inbound frames; the channel has no outbound events
// from clients. Its job is to notice the close.
func (c *wsClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
