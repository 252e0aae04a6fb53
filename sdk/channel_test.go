package sdk

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer 记录每次接入的测试服务端
type wsTestServer struct {
	srv *httptest.Server
	url string // ws://host/ws/tasks

	mu       sync.Mutex
	attempts []string // 每次接入的 client_id
}

// newWSTestServer handler 在每条连接升级成功后调用（独立 goroutine）
func newWSTestServer(t *testing.T, handler func(conn *websocket.Conn)) *wsTestServer {
	t.Helper()

	ts := &wsTestServer{}
	upgrader := websocket.Upgrader{}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		parts := strings.Split(r.URL.Path, "/")
		ts.mu.Lock()
		ts.attempts = append(ts.attempts, parts[len(parts)-1])
		ts.mu.Unlock()

		if handler != nil {
			handler(conn)
		}
	}))
	t.Cleanup(ts.srv.Close)

	ts.url = "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/tasks"
	return ts
}

func (ts *wsTestServer) attemptCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.attempts)
}

func (ts *wsTestServer) clientIDs() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.attempts...)
}

func TestChannel_ConnectAndDispatch(t *testing.T) {
	store := NewTaskStore(WithAdmissionDelay(time.Hour))
	task := NewLocalTask("novel.txt", 100)
	store.Enqueue(task)

	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		progress := 100
		resultURL := "/results/" + task.ID
		_ = conn.WriteJSON(serverEvent{
			Type:      msgTypeTaskUpdate,
			TaskID:    task.ID,
			Status:    string(TaskStatusCompleted),
			Progress:  &progress,
			ResultURL: &resultURL,
		})
		// 等客户端收完再断
		time.Sleep(200 * time.Millisecond)
	})

	ch := NewChannel(ts.url, store, WithReconnectDelay(50*time.Millisecond))
	defer ch.Teardown()
	require.NoError(t, ch.Connect())
	assert.Equal(t, StateConnected, ch.State())

	require.Eventually(t, func() bool {
		got, _ := store.Get(task.ID)
		return got.Status == TaskStatusCompleted
	}, time.Second, 5*time.Millisecond)

	got, _ := store.Get(task.ID)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/results/"+task.ID, got.ResultURL)
}

func TestChannel_MalformedPayloadDiscarded(t *testing.T) {
	store := NewTaskStore(WithAdmissionDelay(time.Hour))
	task := NewLocalTask("novel.txt", 100)
	store.Enqueue(task)

	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		// 坏报文不会让通道崩溃，后续合法事件照常投递
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus-kind"}`))
		_ = conn.WriteJSON(serverEvent{
			Type:   msgTypeTaskUpdate,
			TaskID: task.ID,
			Status: string(TaskStatusProcessing),
		})
		time.Sleep(200 * time.Millisecond)
	})

	ch := NewChannel(ts.url, store, WithReconnectDelay(50*time.Millisecond))
	defer ch.Teardown()
	require.NoError(t, ch.Connect())

	require.Eventually(t, func() bool {
		got, _ := store.Get(task.ID)
		return got.Status == TaskStatusProcessing
	}, time.Second, 5*time.Millisecond)
}

func TestChannel_ReconnectAfterDrop(t *testing.T) {
	store := NewTaskStore(WithAdmissionDelay(time.Hour))

	// 服务端每次接入后立刻断开，驱动客户端走重连路径
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		_ = conn.Close()
	})

	ch := NewChannel(ts.url, store, WithReconnectDelay(30*time.Millisecond))
	defer ch.Teardown()
	require.NoError(t, ch.Connect())

	require.Eventually(t, func() bool {
		return ts.attemptCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// client_id 进程内稳定：重连不更换
	ids := ts.clientIDs()
	for _, id := range ids {
		assert.Equal(t, ch.ClientID(), id)
	}
}

func TestChannel_SingleReconnectTimer(t *testing.T) {
	store := NewTaskStore(WithAdmissionDelay(time.Hour))
	ts := newWSTestServer(t, nil)

	ch := NewChannel(ts.url, store, WithReconnectDelay(50*time.Millisecond))
	defer ch.Teardown()

	// 退避窗口内连续两次断线事件只调度一次重连
	ch.mu.Lock()
	ch.state = StateDisconnected
	ch.scheduleReconnectLocked()
	first := ch.reconnectTimer
	ch.scheduleReconnectLocked()
	second := ch.reconnectTimer
	ch.mu.Unlock()

	require.NotNil(t, first)
	assert.Same(t, first, second)

	require.Eventually(t, func() bool {
		return ts.attemptCount() == 1
	}, time.Second, 5*time.Millisecond)

	// 定时器只触发一次连接尝试
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, ts.attemptCount())
}

func TestChannel_SendWhileDisconnectedDropped(t *testing.T) {
	store := NewTaskStore(WithAdmissionDelay(time.Hour))
	ch := NewChannel("ws://127.0.0.1:1/ws/tasks", store)

	// 连接未打开：订阅意图静默丢弃，不排队不崩溃
	ch.Subscribe("task-x")
	ch.Unsubscribe("task-x")
	ch.Ping()

	assert.Equal(t, StateDisconnected, ch.State())
	ch.Teardown()
}

func TestChannel_TeardownStopsReconnect(t *testing.T) {
	store := NewTaskStore(WithAdmissionDelay(time.Hour))
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		_ = conn.Close()
	})

	ch := NewChannel(ts.url, store, WithReconnectDelay(30*time.Millisecond))
	require.NoError(t, ch.Connect())
	require.Eventually(t, func() bool {
		return ts.attemptCount() >= 1
	}, time.Second, 5*time.Millisecond)

	ch.Teardown()
	assert.Equal(t, StateClosed, ch.State())

	// 关闭后不再自动重连
	settled := ts.attemptCount()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, settled, ts.attemptCount())

	// 关闭后的 Connect 明确报错
	assert.Error(t, ch.Connect())
}

func TestChannel_SubscribeActive(t *testing.T) {
	store := NewTaskStore(WithAdmissionDelay(time.Hour))
	a := NewLocalTask("a.txt", 1)
	b := NewLocalTask("b.txt", 1)
	store.Enqueue(a)
	store.Enqueue(b)
	store.SetStatus(b.ID, TaskStatusCompleted, nil, nil)

	received := make(chan clientMessage, 8)
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	})

	ch := NewChannel(ts.url, store, WithReconnectDelay(50*time.Millisecond))
	defer ch.Teardown()
	require.NoError(t, ch.Connect())

	ch.SubscribeActive()

	// 只补订阅非终态任务
	select {
	case msg := <-received:
		assert.Equal(t, msgTypeSubscribe, msg.Type)
		assert.Equal(t, a.ID, msg.TaskID)
	case <-time.After(time.Second):
		t.Fatal("未收到订阅消息")
	}

	select {
	case msg := <-received:
		t.Fatalf("终态任务不应被订阅: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
