package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kitchenops/server/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKitchenFeed_BroadcastsBusEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	feed := NewKitchenFeed(hub, log)
	bus := events.NewMemoryBus()
	feed.Attach(bus)

	r := gin.New()
	r.GET("/ws", feed.ServeWS)
	server := httptest.NewServer(r)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientsCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), events.New(events.RequisitionCompleted, events.RequisitionPayload{
		RequisitionID: "r1",
		Status:        "completed",
	})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type      string         `json:"type"`
		Data      map[string]any `json:"data"`
		Timestamp int64          `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, string(events.RequisitionCompleted), msg.Type)
	assert.Equal(t, "r1", msg.Data["requisition_id"])
	assert.NotZero(t, msg.Timestamp)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientsCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsWhenQueueIsFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.BroadcastMessage([]byte("x"))
	}
	assert.Len(t, hub.broadcast, cap(hub.broadcast))
}
