package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ict-report/backend/internal/models"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebSocket message types for the report feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeReport    = "report"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	feedSendBuffer = 64
	feedWriteWait  = 10 * time.Second
)

// WSMessage is the envelope of every feed message.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ReportFeed pushes a summary of every submitted report to connected
// websocket clients. It implements parser.Submitter.
type ReportFeed struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	maxRead int64
}

// NewReportFeed creates a feed. maxMessageKB limits client messages.
func NewReportFeed(logger *zap.Logger, maxMessageKB int) *ReportFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &ReportFeed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
		maxRead: int64(maxMessageKB) * 1024,
	}
}

// Submit broadcasts the report summary. Clients that cannot keep up are dropped.
func (f *ReportFeed) Submit(report *models.UUTReport) {
	payload, err := json.Marshal(report.Summary())
	if err != nil {
		f.logger.Warn("failed to encode report for feed", zap.Error(err))
		return
	}
	f.broadcast(WSMessage{
		Type:      MsgTypeReport,
		ID:        report.ID,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (f *ReportFeed) broadcast(msg WSMessage) {
	data, _ := json.Marshal(msg)

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			f.logger.Warn("dropping slow feed client")
			f.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (f *ReportFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// HandleWebSocket upgrades the connection and streams feed messages until the
// client disconnects.
func (f *ReportFeed) HandleWebSocket(c echo.Context) error {
	ws, err := f.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	ws.SetReadLimit(f.maxRead)

	client := &feedClient{conn: ws, send: make(chan []byte, feedSendBuffer)}
	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()

	f.logger.Debug("feed client connected", zap.String("remote", c.RealIP()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.writeLoop(client)
	}()

	f.enqueue(client, WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})

	// Main message loop
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.logger.Debug("feed connection error", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			f.enqueue(client, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			f.enqueue(client, WSMessage{
				Type:      MsgTypeError,
				Payload:   mustJSON(map[string]string{"message": "unknown message type: " + msg.Type}),
				Timestamp: time.Now().UnixMilli(),
			})
		}
	}

	f.remove(client)
	<-done
	f.logger.Debug("feed client disconnected")
	return nil
}

func (f *ReportFeed) enqueue(c *feedClient, msg WSMessage) {
	data, _ := json.Marshal(msg)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writeLoop owns all writes to the connection and closes it when send is closed.
func (f *ReportFeed) writeLoop(c *feedClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.remove(c)
			// Drain until remove closes the channel.
			for range c.send {
			}
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (f *ReportFeed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(c)
}

func (f *ReportFeed) removeLocked(c *feedClient) {
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	close(c.send)
}

// Close disconnects every client.
func (f *ReportFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		f.removeLocked(c)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
