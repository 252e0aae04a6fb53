package repository

import (
	"context"

	"github.com/azhengyongqin/novelhub/internal/model"
)

// ListTasksFilter 任务列表查询条件
type ListTasksFilter struct {
	Status   string // 为空则不过滤
	SortBy   string // uploaded_at | file_name | status
	Order    string // asc | desc
	Page     int    // 从 1 开始
	PageSize int    // 默认 20，上限 100
}

// Statistics 任务统计
type Statistics struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`

	// AvgProcessingMs 已完成任务的平均处理耗时（毫秒），无数据时为 nil
	AvgProcessingMs *float64 `json:"avg_processing_time_ms"`
	// SuccessRate 成功率（百分比），无任务时为 nil
	SuccessRate *float64 `json:"success_rate"`
}

// StatusUpdate 状态更新参数。
// ResultURL / ErrorMessage 为 nil 表示保留现值（绝不隐式清空）。
type StatusUpdate struct {
	Status       model.TaskStatus
	ResultURL    *string
	ErrorMessage *string
}

// TaskRepository 任务仓储接口
// 抽象持久化层，便于测试和未来迁移
type TaskRepository interface {
	// Create 创建任务
	Create(ctx context.Context, t model.Task, storagePath string) error

	// Get 根据 id 获取任务
	Get(ctx context.Context, taskID string) (*model.Task, error)

	// GetByHash 根据文件哈希查找任务（用于去重）
	GetByHash(ctx context.Context, fileHash string) (*model.Task, error)

	// List 分页查询任务列表
	List(ctx context.Context, f ListTasksFilter) ([]model.Task, int64, error)

	// UpdateStatus 更新任务状态。
	// processing 首次写入 started_at；completed/failed 首次写入 completed_at（均为 first-write-wins）。
	UpdateStatus(ctx context.Context, taskID string, u StatusUpdate) error

	// UpdateProgress 更新进度（入库前裁剪到 [0,100]）
	UpdateProgress(ctx context.Context, taskID string, progress int) error

	// ResetForRetry 重置任务回 pending（清空进度/结果/错误/时间戳）
	ResetForRetry(ctx context.Context, taskID string) error

	// Delete 删除任务（级联删除日志），返回存储路径以便清理文件
	Delete(ctx context.Context, taskID string) (storagePath string, err error)

	// StoragePath 查询任务源文件的存储路径
	StoragePath(ctx context.Context, taskID string) (string, error)

	// Statistics 汇总统计
	Statistics(ctx context.Context) (*Statistics, error)

	// AddLog 追加任务日志
	AddLog(ctx context.Context, taskID string, level model.LogLevel, message string) error
}
