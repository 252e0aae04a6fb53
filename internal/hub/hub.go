// Package hub 维护 WebSocket 连接与任务订阅关系，负责任务更新的实时推送。
// 约定：每个客户端一条连接（client_id 由客户端生成）；订阅按 task_id 分组扇出。
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/azhengyongqin/novelhub/internal/logger"
	"github.com/azhengyongqin/novelhub/internal/metrics"
	"github.com/azhengyongqin/novelhub/internal/model"
)

const (
	// writeTimeout 单次写操作超时
	writeTimeout = 10 * time.Second

	// maxMessageSize 入站消息大小上限
	maxMessageSize = 4096
)

// Upgrader WebSocket 升级器
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 前端跨端口开发环境，放开 Origin 校验
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 一条已建立的 WebSocket 连接
type Client struct {
	ID   string
	conn *websocket.Conn

	// gorilla/websocket 要求同一连接同时只能有一个 writer
	writeMu sync.Mutex
}

// Send 发送一帧 JSON 文本
func (c *Client) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Close 关闭底层连接
func (c *Client) Close() error {
	return c.conn.Close()
}

// Hub 连接与订阅注册表
type Hub struct {
	mu sync.RWMutex

	// clients client_id -> 连接
	clients map[string]*Client

	// subscribers task_id -> client_id 集合
	subscribers map[string]map[string]struct{}
}

func New() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[string]struct{}),
	}
}

// Register 注册新连接。同一 client_id 重复连接时关闭旧连接（以新代旧）。
func (h *Hub) Register(clientID string, conn *websocket.Conn) *Client {
	conn.SetReadLimit(maxMessageSize)

	c := &Client{ID: clientID, conn: conn}

	h.mu.Lock()
	if old, ok := h.clients[clientID]; ok {
		_ = old.Close()
	}
	h.clients[clientID] = c
	n := len(h.clients)
	h.mu.Unlock()

	metrics.UpdateWSConnections(n)
	logger.WithClientID(clientID).Info().Msg("WebSocket 连接建立")
	return c
}

// Unregister 注销连接并清理其全部订阅
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	if c, ok := h.clients[clientID]; ok {
		_ = c.Close()
		delete(h.clients, clientID)
	}
	for taskID, subs := range h.subscribers {
		if _, ok := subs[clientID]; ok {
			delete(subs, clientID)
			if len(subs) == 0 {
				delete(h.subscribers, taskID)
			}
		}
	}
	n := len(h.clients)
	m := h.subscriptionCountLocked()
	h.mu.Unlock()

	metrics.UpdateWSConnections(n)
	metrics.UpdateWSSubscriptions(m)
	logger.WithClientID(clientID).Info().Msg("WebSocket 连接断开")
}

// Subscribe 订阅任务更新
func (h *Hub) Subscribe(clientID, taskID string) {
	h.mu.Lock()
	if _, ok := h.subscribers[taskID]; !ok {
		h.subscribers[taskID] = make(map[string]struct{})
	}
	h.subscribers[taskID][clientID] = struct{}{}
	m := h.subscriptionCountLocked()
	h.mu.Unlock()

	metrics.UpdateWSSubscriptions(m)
}

// Unsubscribe 取消订阅
func (h *Hub) Unsubscribe(clientID, taskID string) {
	h.mu.Lock()
	if subs, ok := h.subscribers[taskID]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(h.subscribers, taskID)
		}
	}
	m := h.subscriptionCountLocked()
	h.mu.Unlock()

	metrics.UpdateWSSubscriptions(m)
}

// SendToClient 向指定客户端推送；客户端不在线时静默忽略
func (h *Hub) SendToClient(clientID string, v interface{}) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if err := c.Send(v); err != nil {
		logger.WithClientID(clientID).Warn().Err(err).Msg("推送失败，注销连接")
		h.Unregister(clientID)
	}
}

// BroadcastTaskUpdate 向任务的全部订阅者扇出更新事件。
// 写失败的连接视为已断开，就地清理。
func (h *Hub) BroadcastTaskUpdate(ev model.TaskUpdateEvent) {
	h.mu.RLock()
	subs, ok := h.subscribers[ev.TaskID]
	if !ok || len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subs))
	for clientID := range subs {
		if c, exists := h.clients[clientID]; exists {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var dead []string
	for _, c := range targets {
		if err := c.Send(ev); err != nil {
			dead = append(dead, c.ID)
		}
	}

	for _, clientID := range dead {
		h.Unregister(clientID)
	}

	metrics.RecordWSEventSent(string(ev.Status))
}

// ClientCount 在线连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount 指定任务的订阅者数量
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[taskID])
}

// subscriptionCountLocked 订阅总数（调用方需持锁）
func (h *Hub) subscriptionCountLocked() int {
	n := 0
	for _, subs := range h.subscribers {
		n += len(subs)
	}
	return n
}
