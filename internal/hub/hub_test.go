package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/novelhub/internal/model"
)

// dialTestClient 建一条真实的 WebSocket 连接并注册进 hub
func dialTestClient(t *testing.T, h *Hub, clientID string) *websocket.Conn {
	t.Helper()

	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Register(clientID, conn)
		close(registered)
		// 连接由 hub 持有，handler 直接返回
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("注册超时")
	}
	return conn
}

// readEvent 从客户端连接读一条事件
func readEvent(t *testing.T, conn *websocket.Conn) model.TaskUpdateEvent {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev model.TaskUpdateEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	h := New()
	subscriber := dialTestClient(t, h, "client-a")
	bystander := dialTestClient(t, h, "client-b")

	h.Subscribe("client-a", "task-1")

	resultURL := "/results/task-1"
	h.BroadcastTaskUpdate(model.TaskUpdateEvent{
		Type:      model.EventTypeTaskUpdate,
		TaskID:    "task-1",
		Status:    model.TaskStatusCompleted,
		Progress:  100,
		ResultURL: &resultURL,
	})

	ev := readEvent(t, subscriber)
	assert.Equal(t, "task-1", ev.TaskID)
	assert.Equal(t, model.TaskStatusCompleted, ev.Status)
	require.NotNil(t, ev.ResultURL)
	assert.Equal(t, resultURL, *ev.ResultURL)

	// 未订阅者收不到
	_ = bystander.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := bystander.ReadMessage()
	assert.Error(t, err)
}

func TestHub_BroadcastWithoutSubscribersIsNoOp(t *testing.T) {
	h := New()
	dialTestClient(t, h, "client-a")

	// 没有订阅者时广播不做任何事，也不 panic
	h.BroadcastTaskUpdate(model.TaskUpdateEvent{
		Type:   model.EventTypeTaskUpdate,
		TaskID: "task-unknown",
		Status: model.TaskStatusProcessing,
	})
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	conn := dialTestClient(t, h, "client-a")

	h.Subscribe("client-a", "task-1")
	require.Equal(t, 1, h.SubscriberCount("task-1"))

	h.Unsubscribe("client-a", "task-1")
	assert.Equal(t, 0, h.SubscriberCount("task-1"))

	h.BroadcastTaskUpdate(model.TaskUpdateEvent{
		Type:   model.EventTypeTaskUpdate,
		TaskID: "task-1",
		Status: model.TaskStatusProcessing,
	})

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnregisterCleansSubscriptions(t *testing.T) {
	h := New()
	dialTestClient(t, h, "client-a")

	h.Subscribe("client-a", "task-1")
	h.Subscribe("client-a", "task-2")

	h.Unregister("client-a")

	assert.Equal(t, 0, h.ClientCount())
	assert.Equal(t, 0, h.SubscriberCount("task-1"))
	assert.Equal(t, 0, h.SubscriberCount("task-2"))
}

func TestHub_DuplicateClientIDReplacesConnection(t *testing.T) {
	h := New()
	old := dialTestClient(t, h, "client-a")
	fresh := dialTestClient(t, h, "client-a")

	// 以新代旧：连接数不变，旧连接被关闭
	assert.Equal(t, 1, h.ClientCount())

	_ = old.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := old.ReadMessage()
	assert.Error(t, err)

	h.Subscribe("client-a", "task-1")
	h.BroadcastTaskUpdate(model.TaskUpdateEvent{
		Type:   model.EventTypeTaskUpdate,
		TaskID: "task-1",
		Status: model.TaskStatusProcessing,
	})

	ev := readEvent(t, fresh)
	assert.Equal(t, "task-1", ev.TaskID)
}

func TestHub_SendToUnknownClientIsNoOp(t *testing.T) {
	h := New()
	h.SendToClient("ghost", model.PongMessage{Type: model.EventTypePong})
}
