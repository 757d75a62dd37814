package push

import (
	"net/http"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler handles HTTP-to-WebSocket upgrades for dashboard subscriptions.
type Handler struct {
	hub           *Hub
	defaultTenant string
}

// NewHandler creates a new handler bound to the given hub.
func NewHandler(hub *Hub, defaultTenant string) *Handler {
	return &Handler{hub: hub, defaultTenant: defaultTenant}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades the connection, registers the client for its
// tenant, and blocks reading until the peer goes away.
func (h *Handler) HandleConnect(c echo.Context) error {
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		if t := c.Request().Header.Get("X-Tenant-ID"); t != "" {
			tenantID = t
		} else {
			tenantID = h.defaultTenant
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		conn:     &gorillaConnAdapter{ws},
	}
	h.hub.Register(client)

	// Inbound frames are ignored; the read loop exists to notice the close.
	go h.readPump(client)
	return nil
}

func (h *Handler) readPump(client *Client) {
	defer h.hub.Unregister(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
