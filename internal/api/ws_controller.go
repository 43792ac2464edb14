package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"kitchenops/server/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// KitchenFeed pushes requisition and ledger events to websocket clients
type KitchenFeed struct {
	hub *Hub
	log *logrus.Logger
}

// NewKitchenFeed creates a feed over hub
func NewKitchenFeed(hub *Hub, log *logrus.Logger) *KitchenFeed {
	return &KitchenFeed{hub: hub, log: log}
}

// Attach forwards every event type to the hub
func (f *KitchenFeed) Attach(bus events.Bus) {
	for _, eventType := range events.AllTypes() {
		bus.Subscribe(eventType, f.Handle)
	}
}

// Handle broadcasts one event; it matches events.Handler
func (f *KitchenFeed) Handle(ctx context.Context, event events.Event) error {
	f.Broadcast(string(event.Type), event.Payload)
	return nil
}

// Broadcast sends one typed update to every client
func (f *KitchenFeed) Broadcast(messageType string, data interface{}) {
	update := map[string]interface{}{
		"type":      messageType,
		"data":      data,
		"timestamp": time.Now().Unix(),
	}
	jsonData, err := json.Marshal(update)
	if err != nil {
		f.log.WithError(err).Warn("⚠️ failed to marshal websocket update")
		return
	}
	f.hub.BroadcastMessage(jsonData)
}

// ServeWS upgrades the request and keeps the client registered until it disconnects
// GET /api/v1/ws/kitchen
func (f *KitchenFeed) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.log.WithError(err).Warn("⚠️ websocket upgrade failed")
		return
	}

	f.hub.AddClient(conn)
	f.log.WithField("clients", f.hub.GetClientsCount()).Info("🖥️ kitchen client connected")

	defer func() {
		f.hub.RemoveClient(conn)
		f.log.WithField("clients", f.hub.GetClientsCount()).Info("🖥️ kitchen client disconnected")
	}()

	// reads only keep the connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.log.WithError(err).Warn("⚠️ websocket read error")
			}
			break
		}
	}
}
