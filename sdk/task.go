package sdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task 客户端视角的任务记录。
// id 创建后不可变；started_at / completed_at 只写一次（first-write-wins）。
type Task struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`

	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	// Priority 预留字段：准入按 FIFO，调度不读取
	Priority int `json:"priority,omitempty"`

	UploadedAt  time.Time  `json:"uploaded_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewLocalTask 构造本地任务：pending、进度 0、uploaded_at=now，id 由客户端生成。
func NewLocalTask(fileName string, fileSize int64) Task {
	return Task{
		ID:         newLocalTaskID(),
		FileName:   fileName,
		FileSize:   fileSize,
		Status:     TaskStatusPending,
		Progress:   0,
		UploadedAt: time.Now(),
	}
}

// newLocalTaskID 生成任务 id：task-<秒级时间戳>-<9位随机hex>（与服务端格式一致）
func newLocalTaskID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("task-%d-%s", time.Now().Unix(), random)
}
