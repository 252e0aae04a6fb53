package model

import "time"

// Task 任务实体（一次上传文件的完整处理生命周期）。
// id 创建后不可变；started_at / completed_at 只在首次迁移时写入一次。
type Task struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type,omitempty"`
	FileHash string `json:"file_hash,omitempty"`

	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	// Priority 预留字段：调度器目前不读取（按 FIFO 准入）
	Priority int `json:"priority,omitempty"`

	UploadedAt  time.Time  `json:"uploaded_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewTask 构造默认任务：pending、进度 0、uploaded_at=now。
func NewTask(id, fileName string, fileSize int64) Task {
	return Task{
		ID:         id,
		FileName:   fileName,
		FileSize:   fileSize,
		Status:     TaskStatusPending,
		Progress:   0,
		UploadedAt: time.Now(),
	}
}

// LogLevel 任务日志级别
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelDebug   LogLevel = "debug"
)

// TaskLog 任务处理日志条目
type TaskLog struct {
	TaskID    string    `json:"task_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
