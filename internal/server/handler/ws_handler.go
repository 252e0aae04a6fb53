package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/azhengyongqin/novelhub/internal/hub"
	"github.com/azhengyongqin/novelhub/internal/logger"
	"github.com/azhengyongqin/novelhub/internal/model"
	"github.com/azhengyongqin/novelhub/internal/repository"
)

// WSHandler WebSocket 接入处理器
type WSHandler struct {
	hub  *hub.Hub
	repo repository.TaskRepository
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(h *hub.Hub, repo repository.TaskRepository) *WSHandler {
	return &WSHandler{hub: h, repo: repo}
}

// Serve 接入一条客户端连接并进入读循环
// GET /ws/tasks/:client_id
func (h *WSHandler) Serve(c *gin.Context) {
	clientID := c.Param("client_id")

	conn, err := hub.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时 gorilla 已经写了 HTTP 错误响应
		logger.WithClientID(clientID).Warn().Err(err).Msg("WebSocket 升级失败")
		return
	}

	client := h.hub.Register(clientID, conn)
	defer h.hub.Unregister(clientID)

	for {
		var msg model.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithClientID(clientID).Warn().Err(err).Msg("WebSocket 读取异常")
			}
			return
		}

		switch msg.Type {
		case model.EventTypeSubscribe:
			if msg.TaskID == "" {
				continue
			}
			h.hub.Subscribe(clientID, msg.TaskID)
			// 订阅即推送当前状态，避免客户端错过订阅前的更新
			h.sendCurrentState(c, client, msg.TaskID)

		case model.EventTypeUnsubscribe:
			if msg.TaskID == "" {
				continue
			}
			h.hub.Unsubscribe(clientID, msg.TaskID)

		case model.EventTypePing:
			if err := client.Send(model.PongMessage{Type: model.EventTypePong}); err != nil {
				return
			}

		default:
			// 未知消息类型：记日志后丢弃，连接保持
			logger.WithClientID(clientID).Warn().
				Str("message_type", msg.Type).
				Msg("未知的 WebSocket 消息类型")
		}
	}
}

// sendCurrentState 推送任务当前状态快照；任务不存在时静默忽略
func (h *WSHandler) sendCurrentState(c *gin.Context, client *hub.Client, taskID string) {
	task, err := h.repo.Get(c.Request.Context(), taskID)
	if err != nil {
		if !errors.Is(err, repository.ErrTaskNotFound) {
			logger.WithTaskID(taskID).Warn().Err(err).Msg("订阅时查询任务失败")
		}
		return
	}
	if err := client.Send(model.NewTaskUpdateEvent(*task)); err != nil {
		logger.WithClientID(client.ID).Warn().Err(err).Msg("推送当前状态失败")
	}
}
