package memory

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qrave1/RoomScribe/internal/application/constant"
	"github.com/qrave1/RoomScribe/internal/application/metric"
)

const (
	writeWait    = 10 * time.Second
	PongWait     = 60 * time.Second
	pingInterval = (PongWait * 9) / 10
	sendBuffer   = 256
)

// WebsocketConnectionRepository интерфейс для работы с активными соединениями в памяти.
// Запись неблокирующая: сообщения попадают в очередь соединения и отправляются отдельной горутиной.
type WebsocketConnectionRepository interface {
	Add(uuid.UUID, *websocket.Conn)
	Remove(uuid uuid.UUID)

	// Write returns false when the connection is unknown or its queue is full.
	Write(uuid.UUID, any) bool
	Has(uuid.UUID) bool
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

type wsConnectionRepository struct {
	// wsConns хранит map[connection_id]*wsClient
	wsConns map[uuid.UUID]*wsClient

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[uuid.UUID]*wsClient, 10),
	}
}

func (w *wsConnectionRepository) Add(connID uuid.UUID, conn *websocket.Conn) {
	client := &wsClient{
		id:   connID,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		stop: make(chan struct{}),
	}

	w.mu.Lock()
	previous, exists := w.wsConns[connID]
	w.wsConns[connID] = client
	w.mu.Unlock()

	if exists {
		previous.close()
	} else {
		metric.IncrementWSActiveConnections()
	}

	go client.writePump()
}

func (w *wsConnectionRepository) Remove(connID uuid.UUID) {
	w.mu.Lock()
	client, exists := w.wsConns[connID]
	delete(w.wsConns, connID)
	w.mu.Unlock()

	if exists {
		client.close()
		metric.DecrementWSActiveConnections()
	}
}

func (w *wsConnectionRepository) Write(connID uuid.UUID, payload any) bool {
	client, ok := w.getClient(connID)
	if !ok {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error(
			"marshal websocket message",
			slog.Any(constant.Error, err),
			slog.Any(constant.ConnectionID, connID),
		)
		return false
	}

	select {
	case client.send <- data:
		return true
	case <-client.stop:
		return false
	default:
		slog.Warn("websocket send queue is full, message dropped", slog.Any(constant.ConnectionID, connID))
		return false
	}
}

func (w *wsConnectionRepository) Has(connID uuid.UUID) bool {
	_, ok := w.getClient(connID)
	return ok
}

func (w *wsConnectionRepository) getClient(connID uuid.UUID) (*wsClient, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	client, ok := w.wsConns[connID]
	return client, ok
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.stop) })
}

// writePump единственный писатель в соединение. Ошибка записи закрывает сокет,
// после чего цикл чтения в обработчике завершается и чистит состояние.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if !c.write(websocket.TextMessage, msg) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.stop:
			_ = c.conn.Close()
			return
		}
	}
}

func (c *wsClient) write(messageType int, data []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			slog.Error(
				"write to websocket",
				slog.Any(constant.Error, err),
				slog.Any(constant.ConnectionID, c.id),
			)
		}
		_ = c.conn.Close()

		return false
	}

	return true
}
