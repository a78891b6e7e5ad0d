package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/pkg/dto"
)

func dialHub(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastWithPhotoFilter(t *testing.T) {
	hub := NewHub(func(faceID string) string { return "https://gw.example.com/face/" + faceID })
	go hub.Run()

	all := dialHub(t, hub, "")
	filtered := dialHub(t, hub, "?photo=photo-2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hub.BroadcastEvent(models.FaceEvent{Type: models.FaceEventCropped, FaceID: "a.jpg", OriginalPhotoID: "photo-1", Timestamp: ts})
	hub.BroadcastEvent(models.FaceEvent{Type: models.FaceEventLabeled, FaceID: "b.jpg", OriginalPhotoID: "photo-2", PersonName: "Alice", Timestamp: ts})

	read := func(conn *websocket.Conn) dto.WSEvent {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev dto.WSEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	first := read(all)
	assert.Equal(t, "face_cropped", first.Type)
	assert.Equal(t, "https://gw.example.com/face/a.jpg", first.FaceURL)
	assert.Equal(t, "2024-05-01T12:00:00Z", first.Timestamp)
	assert.Equal(t, "b.jpg", read(all).FaceID)

	only := read(filtered)
	assert.Equal(t, "b.jpg", only.FaceID)
	assert.Equal(t, "Alice", only.PersonName)
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	conn := dialHub(t, hub, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
