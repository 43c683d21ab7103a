package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/notifier"
	"rsi-sentry/pkg/types"
)

const (
	EventSnapshot     = "snapshot"
	EventToast        = "toast"
	EventToastRemoved = "toast_removed"

	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
	clientBuffer = 64
)

// Event 推送给浏览器的消息
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ToastRemovedData toast_removed 事件内容
type ToastRemovedData struct {
	ID     string                `json:"id"`
	Symbol string                `json:"symbol"`
	Reason notifier.RemoveReason `json:"reason"`
}

// Greeting 新连接建立时补发的当前状态
type Greeting func() []Event

type client struct {
	conn *websocket.Conn
	out  chan Event
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub 管理浏览器的WebSocket连接并广播事件。
// 写满的慢连接直接丢弃消息，不阻塞刷新周期。
type Hub struct {
	upgrader websocket.Upgrader
	greeting Greeting
	statuses *analyzer.StatusTable

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub 创建Hub，statuses 可为空
func NewHub(statuses *analyzer.StatusTable, greeting Greeting) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		greeting: greeting,
		statuses: statuses,
		clients:  make(map[*client]struct{}),
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 向所有连接发送事件
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- ev:
		default:
			zap.L().Warn("WebSocket发送队列满，丢弃消息", zap.String("type", ev.Type))
		}
	}
}

// BroadcastSnapshot 推送新快照
func (h *Hub) BroadcastSnapshot(snap types.Snapshot) {
	h.Broadcast(Event{Type: EventSnapshot, Data: NewSnapshotView(snap, h.statuses)})
}

func (h *Hub) ToastPushed(toast types.Toast) {
	h.Broadcast(Event{Type: EventToast, Data: toast})
}

func (h *Hub) ToastRemoved(toast types.Toast, reason notifier.RemoveReason) {
	h.Broadcast(Event{Type: EventToastRemoved, Data: ToastRemovedData{
		ID:     toast.ID,
		Symbol: toast.Symbol,
		Reason: reason,
	}})
}

// ServeHTTP 升级为WebSocket连接
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	c := &client{conn: conn, out: make(chan Event, clientBuffer), done: make(chan struct{})}

	// 问候消息和注册在同一把锁内完成，期间的广播排在问候之后
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		return
	}
	if h.greeting != nil {
		for _, ev := range h.greeting() {
			select {
			case c.out <- ev:
			default:
			}
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	zap.L().Debug("✅ WebSocket客户端已连接", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(c)
}

// writeLoop 发送事件和心跳
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				zap.L().Debug("WebSocket写入失败", zap.Error(err))
				h.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				zap.L().Debug("发送心跳失败", zap.Error(err))
				h.drop(c)
				return
			}
		}
	}
}

// readLoop 只用来感知断线和处理pong
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close 断开所有连接，之后的新连接会被拒绝
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}
