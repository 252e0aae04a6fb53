package repository

import (
	"time"

	"github.com/azhengyongqin/novelhub/internal/model"
)

// TaskModel GORM 模型 - 对应 tasks 表
type TaskModel struct {
	ID       string `gorm:"primaryKey;column:id;type:varchar(50)"`
	FileName string `gorm:"column:file_name;type:varchar(255);not null"`
	FileSize int64  `gorm:"column:file_size;not null"`
	FileType string `gorm:"column:file_type;type:varchar(50);default:text/plain"`
	FileHash string `gorm:"column:file_hash;type:varchar(64);index:idx_tasks_file_hash"`

	Status   string `gorm:"column:status;type:text;not null;index:idx_tasks_status"`
	Progress int    `gorm:"column:progress;default:0"`
	Priority int    `gorm:"column:priority;default:0"`

	UploadedAt  time.Time  `gorm:"column:uploaded_at;not null;index:idx_tasks_uploaded_at,sort:desc"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`

	ResultURL    *string `gorm:"column:result_url;type:text"`
	ErrorMessage *string `gorm:"column:error_message;type:text"`

	StoragePath string `gorm:"column:storage_path;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (TaskModel) TableName() string { return "tasks" }

// ToTask 转换为 Task 实体
func (m *TaskModel) ToTask() model.Task {
	t := model.Task{
		ID:          m.ID,
		FileName:    m.FileName,
		FileSize:    m.FileSize,
		FileType:    m.FileType,
		FileHash:    m.FileHash,
		Status:      model.TaskStatus(m.Status),
		Progress:    m.Progress,
		Priority:    m.Priority,
		UploadedAt:  m.UploadedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.ResultURL != nil {
		t.ResultURL = *m.ResultURL
	}
	if m.ErrorMessage != nil {
		t.ErrorMessage = *m.ErrorMessage
	}
	return t
}

// TaskToModel 从 Task 实体创建模型
func TaskToModel(t model.Task) TaskModel {
	m := TaskModel{
		ID:          t.ID,
		FileName:    t.FileName,
		FileSize:    t.FileSize,
		FileType:    t.FileType,
		FileHash:    t.FileHash,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Priority:    t.Priority,
		UploadedAt:  t.UploadedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.ResultURL != "" {
		m.ResultURL = &t.ResultURL
	}
	if t.ErrorMessage != "" {
		m.ErrorMessage = &t.ErrorMessage
	}
	return m
}

// TaskLogModel GORM 模型 - 对应 task_logs 表
type TaskLogModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	TaskID    string    `gorm:"column:task_id;type:varchar(50);not null;index:idx_task_logs_task_id"`
	LogLevel  string    `gorm:"column:log_level;type:text;not null"`
	Message   string    `gorm:"column:message;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_task_logs_created_at"`
}

// TableName 指定表名
func (TaskLogModel) TableName() string { return "task_logs" }

// ToTaskLog 转换为 TaskLog 实体
func (m *TaskLogModel) ToTaskLog() model.TaskLog {
	return model.TaskLog{
		TaskID:    m.TaskID,
		Level:     model.LogLevel(m.LogLevel),
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}
