package model

// TaskStatus 统一任务状态枚举（用于 API/PG/WebSocket 推送）。
// 约定：
// - pending: 已上传（等待调度进入处理）
// - processing: 处理中（模拟处理器正在上报进度）
// - completed: 处理成功（result_url 可用）
// - failed: 处理失败（error_message 可用；可手动重试回到 pending）
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal 终态判断：completed/failed 之后不再自动迁移（仅手动重试例外）。
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}
