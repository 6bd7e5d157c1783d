package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	defaultEventBuffer = 64
)

// EventHub 将检测事件实时推送给 websocket 客户端，不保存历史
type EventHub struct {
	upgrader websocket.Upgrader
	events   chan model.DetectionEvent

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex

	dropped atomic.Uint64
}

func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		events:  make(chan model.DetectionEvent, buffer),
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Publish 不阻塞调用方，缓冲满时丢弃事件
func (h *EventHub) Publish(ev model.DetectionEvent) {
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
	}
}

// Dropped 因缓冲满被丢弃的事件数
func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run 广播事件直到 ctx 取消，退出时断开所有客户端
func (h *EventHub) Run(ctx context.Context) error {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-h.events:
			payload, err := json.Marshal(ev)
			if err != nil {
				utils.Logger.Warn("failed to encode detection event", zap.Error(err))
				continue
			}
			h.broadcast(payload)
		}
	}
}

type client struct {
	conn    *websocket.Conn
	writeMu *sync.Mutex
}

// snapshot 复制当前客户端列表，写入在锁外进行
func (h *EventHub) snapshot() []client {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]client, 0, len(h.clients))
	for conn, writeMu := range h.clients {
		clients = append(clients, client{conn: conn, writeMu: writeMu})
	}
	return clients
}

func (h *EventHub) broadcast(payload []byte) {
	for _, c := range h.snapshot() {
		if err := writeMessage(c.conn, c.writeMu, websocket.TextMessage, payload); err != nil {
			h.removeClient(c.conn)
		}
	}
}

// Handle 升级连接并保持到客户端断开
func (h *EventHub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = writeMu
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()
	defer close(done)
	defer h.removeClient(conn)

	// 客户端消息只用于维持读超时
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *EventHub) closeAll() {
	for _, c := range h.snapshot() {
		_ = writeMessage(c.conn, c.writeMu, websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
		h.removeClient(c.conn)
	}
}

func writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
