package model

import "encoding/json"

// WebSocket 消息类型
const (
	EventTypeSubscribe   = "subscribe"
	EventTypeUnsubscribe = "unsubscribe"
	EventTypePing        = "ping"
	EventTypePong        = "pong"
	EventTypeTaskUpdate  = "task_update"
)

// ClientMessage 客户端 -> 服务端消息
// subscribe/unsubscribe 携带 task_id；ping 无负载。
type ClientMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}

// TaskUpdateEvent 服务端 -> 客户端的任务更新事件。
// result_url / error_message 允许为 null（与前端协议对齐）。
type TaskUpdateEvent struct {
	Type         string     `json:"type"`
	TaskID       string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	ResultURL    *string    `json:"result_url"`
	ErrorMessage *string    `json:"error_message"`
}

// NewTaskUpdateEvent 从任务实体构造推送事件。
func NewTaskUpdateEvent(t Task) TaskUpdateEvent {
	ev := TaskUpdateEvent{
		Type:     EventTypeTaskUpdate,
		TaskID:   t.ID,
		Status:   t.Status,
		Progress: t.Progress,
	}
	if t.ResultURL != "" {
		ev.ResultURL = &t.ResultURL
	}
	if t.ErrorMessage != "" {
		ev.ErrorMessage = &t.ErrorMessage
	}
	return ev
}

// PongMessage 心跳应答
type PongMessage struct {
	Type string `json:"type"`
}

// Encode 序列化为 JSON 文本帧。
func (e TaskUpdateEvent) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}
