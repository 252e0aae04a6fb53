package dto

import (
	"time"

	"github.com/azhengyongqin/novelhub/internal/model"
)

// UploadResponse 文件上传响应
type UploadResponse struct {
	TaskID   string `json:"task_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Status   string `json:"status"`
}

// TaskResponse 任务详情响应
type TaskResponse struct {
	ID           string     `json:"id"`
	FileName     string     `json:"file_name"`
	FileSize     int64      `json:"file_size"`
	FileType     string     `json:"file_type,omitempty"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ResultURL    *string    `json:"result_url,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// TaskFromModel 从实体构造响应
func TaskFromModel(t model.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		FileName:    t.FileName,
		FileSize:    t.FileSize,
		FileType:    t.FileType,
		Status:      string(t.Status),
		Progress:    t.Progress,
		UploadedAt:  t.UploadedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.ResultURL != "" {
		resp.ResultURL = &t.ResultURL
	}
	if t.ErrorMessage != "" {
		resp.ErrorMessage = &t.ErrorMessage
	}
	return resp
}

// TaskListResponse 任务列表响应
type TaskListResponse struct {
	Tasks    []TaskResponse `json:"tasks"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// TaskStatusResponse 轻量状态响应（轮询快速路径）
type TaskStatusResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// UpdateTaskRequest 任务更新请求（外部处理服务回写状态用）。
// 指针字段：nil 表示不修改对应字段。
type UpdateTaskRequest struct {
	Status       *string `json:"status"`
	Progress     *int    `json:"progress"`
	ResultURL    *string `json:"result_url"`
	ErrorMessage *string `json:"error_message"`
}

// StatisticsResponse 任务统计响应
type StatisticsResponse struct {
	Total           int64    `json:"total"`
	Pending         int64    `json:"pending"`
	Processing      int64    `json:"processing"`
	Completed       int64    `json:"completed"`
	Failed          int64    `json:"failed"`
	AvgProcessingMs *float64 `json:"avg_processing_time_ms"`
	SuccessRate     *float64 `json:"success_rate"`
}
