package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ict-report/backend/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFeed(t *testing.T, feed *ReportFeed) *websocket.Conn {
	t.Helper()
	e := echo.New()
	e.GET("/ws", feed.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestReportFeed_BroadcastsReports(t *testing.T) {
	feed := NewReportFeed(nil, 0)
	defer feed.Close()

	conn := dialFeed(t, feed)
	assert.Equal(t, MsgTypeConnected, readMessage(t, conn).Type)
	require.Eventually(t, func() bool { return feed.Clients() == 1 }, time.Second, 10*time.Millisecond)

	r := sampleUUT("SN12345", models.UUTStatusFailed)
	feed.Submit(r)

	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeReport, msg.Type)
	assert.Equal(t, r.ID, msg.ID)

	var summary models.UUTSummary
	require.NoError(t, json.Unmarshal(msg.Payload, &summary))
	assert.Equal(t, "SN12345", summary.SerialNumber)
	assert.Equal(t, models.UUTStatusFailed, summary.Status)
	assert.Equal(t, 1, summary.StepCount)
}

func TestReportFeed_PingAndUnknown(t *testing.T) {
	feed := NewReportFeed(nil, 0)
	defer feed.Close()

	conn := dialFeed(t, feed)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "subscribe"}))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "subscribe")
}

func TestReportFeed_CloseDisconnectsClients(t *testing.T) {
	feed := NewReportFeed(nil, 0)

	conn := dialFeed(t, feed)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return feed.Clients() == 1 }, time.Second, 10*time.Millisecond)

	feed.Close()
	assert.Equal(t, 0, feed.Clients())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
