package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultReconnectDelay 断线后的固定重连退避
const DefaultReconnectDelay = 3 * time.Second

// ChannelState 事件通道状态
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
	// StateClosed 唯一终态：仅由 Teardown 进入，之后不再自动重连
	StateClosed ChannelState = "closed"
)

// 与服务端对齐的消息类型
const (
	msgTypeSubscribe   = "subscribe"
	msgTypeUnsubscribe = "unsubscribe"
	msgTypePing        = "ping"
	msgTypePong        = "pong"
	msgTypeTaskUpdate  = "task_update"
)

// clientMessage 客户端 -> 服务端消息
type clientMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}

// serverEvent 服务端 -> 客户端事件信封
type serverEvent struct {
	Type         string  `json:"type"`
	TaskID       string  `json:"task_id"`
	Status       string  `json:"status"`
	Progress     *int    `json:"progress"`
	ResultURL    *string `json:"result_url"`
	ErrorMessage *string `json:"error_message"`
}

// Channel 重连式事件通道：维持到服务端的 WebSocket 订阅连接，
// 把任务更新事件投递进 TaskStore，断线后按固定退避自动重连。
//
// 状态机：disconnected -> connecting -> connected -> disconnected（出错/关闭）
// -> （退避后）connecting -> ...；Teardown 进入终态 closed。
// 同一时刻最多一个在途重连定时器。
type Channel struct {
	// url 形如 ws://host:port/ws/tasks（client_id 由通道拼接）
	url string

	// clientID 进程生命周期内稳定：创建时生成一次，重连不更换
	clientID string

	store          *TaskStore
	reconnectDelay time.Duration

	mu             sync.Mutex
	state          ChannelState
	conn           *websocket.Conn
	reconnectTimer *time.Timer
}

// ChannelOption Channel 可选配置
type ChannelOption func(*Channel)

// WithReconnectDelay 设置重连退避
func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithClientID 指定 client_id（默认随机生成，一般只在测试中使用）
func WithClientID(id string) ChannelOption {
	return func(c *Channel) {
		if id != "" {
			c.clientID = id
		}
	}
}

// NewChannel 创建事件通道；url 形如 ws://host:port/ws/tasks
func NewChannel(url string, store *TaskStore, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:            url,
		clientID:       uuid.NewString(),
		store:          store,
		reconnectDelay: DefaultReconnectDelay,
		state:          StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID 本进程的会话标识
func (c *Channel) ClientID() string { return c.clientID }

// State 当前通道状态
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect 建立连接。已在连接中 / 已连接时为 no-op；
// 连接成功后取消挂起的重连定时器；失败则调度一次重连。
func (c *Channel) Connect() error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return fmt.Errorf("channel closed")
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url+"/"+c.clientID, nil)

	c.mu.Lock()
	if c.state == StateClosed {
		// Connect 期间被 Teardown
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return fmt.Errorf("channel closed")
	}

	if err != nil {
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.conn = conn
	c.state = StateConnected
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	log.Printf("[channel] 已连接: client_id=%s", c.clientID)
	go c.readLoop(conn)
	return nil
}

// Subscribe 订阅任务更新；连接未打开时静默丢弃（不排队，重连后由调用方补订阅）
func (c *Channel) Subscribe(taskID string) {
	c.send(clientMessage{Type: msgTypeSubscribe, TaskID: taskID})
}

// Unsubscribe 取消订阅；连接未打开时静默丢弃
func (c *Channel) Unsubscribe(taskID string) {
	c.send(clientMessage{Type: msgTypeUnsubscribe, TaskID: taskID})
}

// Ping 发送心跳；连接未打开时静默丢弃
func (c *Channel) Ping() {
	c.send(clientMessage{Type: msgTypePing})
}

// SubscribeActive 为集合中所有非终态任务补订阅（通常在重连或集合变更后调用）
func (c *Channel) SubscribeActive() {
	for _, t := range c.store.Tasks() {
		if !t.Status.Terminal() {
			c.Subscribe(t.ID)
		}
	}
}

// Teardown 关闭通道：取消在途重连定时器并关闭连接，之后不再自动重连。
func (c *Channel) Teardown() {
	c.mu.Lock()
	c.state = StateClosed
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	log.Printf("[channel] 已关闭: client_id=%s", c.clientID)
}

// send 写一帧 JSON；写操作与状态检查共用锁，天然串行化 writer
func (c *Channel) send(msg clientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[channel] 发送失败: type=%s err=%v", msg.Type, err)
	}
}

// readLoop 读循环：坏报文记日志后丢弃，读错误触发断线处理
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var ev serverEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if isParseError(err) {
				// 帧已完整读出、连接仍可用，丢弃本帧继续读
				log.Printf("[channel] 丢弃无法解析的报文: %v", err)
				continue
			}
			c.handleDisconnect(conn)
			return
		}
		c.dispatch(ev)
	}
}

// dispatch 分发一条服务端事件
func (c *Channel) dispatch(ev serverEvent) {
	switch ev.Type {
	case msgTypeTaskUpdate:
		if ev.TaskID == "" {
			log.Printf("[channel] 丢弃缺少 task_id 的更新事件")
			return
		}
		if ev.Status != "" {
			if !TaskStatus(ev.Status).Valid() {
				log.Printf("[channel] 丢弃未知状态的更新事件: status=%s", ev.Status)
				return
			}
			c.store.SetStatus(ev.TaskID, TaskStatus(ev.Status), ev.ResultURL, ev.ErrorMessage)
		}
		if ev.Progress != nil {
			c.store.SetProgress(ev.TaskID, *ev.Progress)
		}

	case msgTypePong:
		// 心跳应答，无状态影响

	default:
		log.Printf("[channel] 丢弃未知类型的事件: type=%s", ev.Type)
	}
}

// handleDisconnect 处理断线：关闭旧连接并调度一次重连。
// 旧连接的读循环迟到的错误（conn 已被替换）直接忽略。
func (c *Channel) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	_ = conn.Close()

	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	log.Printf("[channel] 连接断开，%v 后重连: client_id=%s", c.reconnectDelay, c.clientID)
}

// scheduleReconnectLocked 调度一次重连（需持锁）。
// 已有在途定时器时直接返回，保证同一时刻至多一个。
func (c *Channel) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.state == StateClosed
		c.mu.Unlock()

		if closed {
			return
		}
		if err := c.Connect(); err != nil {
			log.Printf("[channel] 重连失败: %v", err)
		}
	})
}

// isParseError 判断 ReadJSON 的错误是否为 JSON 解析错误。
// 解析错误说明帧已完整读出、连接仍可用；其余（close/网络错误）视为断线。
func isParseError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
