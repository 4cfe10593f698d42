package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/logging"
	"github.com/evildarkarchon/unpackrr/internal/scan"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	logger     *logging.Logger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	h.logger.Info("websocket hub started")

	for {
		select {
		case <-h.stop:
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			h.logger.Info("websocket hub stopped")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()

			h.logger.Info("websocket client connected",
				zap.Int("client_count", clientCount))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			clientCount := len(h.clients)
			h.mutex.Unlock()

			h.logger.Info("websocket client disconnected",
				zap.Int("client_count", clientCount))

		case message := <-h.broadcast:
			h.mutex.Lock()
			failedCount := 0
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
					failedCount++
				}
			}
			recipientCount := len(h.clients)
			h.mutex.Unlock()

			if failedCount > 0 {
				h.logger.Warn("dropped slow websocket clients",
					zap.Int("failed_count", failedCount),
					zap.Int("recipient_count", recipientCount))
			}
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// publish never blocks the producer; when the hub is backed up the message
// is dropped.
func (h *Hub) publish(messageType MessageType, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal websocket message",
			zap.String("message_type", string(messageType)),
			zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Debug("websocket broadcast buffer full, dropping message",
			zap.String("message_type", string(messageType)))
	}
}

func (h *Hub) PublishScanEvent(event scan.Event) {
	h.publish(MessageTypeScanProgress, ScanProgressEvent{
		BaseMessage: BaseMessage{Type: MessageTypeScanProgress, Timestamp: time.Now()},
		Event:       string(event.Kind()),
		Payload:     event,
	})
}

func (h *Hub) PublishExtractionEvent(batchID string, event extract.Event) {
	h.publish(MessageTypeExtractionProgress, ExtractionProgressEvent{
		BaseMessage: BaseMessage{Type: MessageTypeExtractionProgress, Timestamp: time.Now()},
		BatchID:     batchID,
		Event:       string(event.Kind()),
		Payload:     event,
	})
}

func (h *Hub) PublishInventoryChanged(root, reason string) {
	h.publish(MessageTypeInventoryChanged, InventoryChangedEvent{
		BaseMessage: BaseMessage{Type: MessageTypeInventoryChanged, Timestamp: time.Now()},
		Root:        root,
		Reason:      reason,
	})
}

func (h *Hub) PublishError(err error, context string) {
	h.publish(MessageTypeError, ErrorEvent{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: time.Now()},
		Error:       err.Error(),
		Context:     context,
	})
}

func (h *Hub) ServeWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err))
		return err
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	select {
	case h.register <- client:
	case <-h.stop:
		_ = conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return nil
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		_ = c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected websocket close error",
					zap.Error(err))
			}
			break
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for message := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, message)
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
