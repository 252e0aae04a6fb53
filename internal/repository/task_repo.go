package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/azhengyongqin/novelhub/internal/model"
)

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("task not found")

// TaskRepo TaskRepository 的 GORM 实现
type TaskRepo struct {
	db *gorm.DB
}

func NewTaskRepo(db *gorm.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task, storagePath string) error {
	if t.ID == "" {
		return errors.New("task id 不能为空")
	}
	m := TaskToModel(t)
	m.StoragePath = storagePath
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*model.Task, error) {
	var m TaskModel
	err := r.db.WithContext(ctx).Where("id = ?", taskID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	t := m.ToTask()
	return &t, nil
}

func (r *TaskRepo) GetByHash(ctx context.Context, fileHash string) (*model.Task, error) {
	var m TaskModel
	err := r.db.WithContext(ctx).Where("file_hash = ?", fileHash).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	t := m.ToTask()
	return &t, nil
}

func (r *TaskRepo) List(ctx context.Context, f ListTasksFilter) ([]model.Task, int64, error) {
	pageSize := f.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	// 排序白名单：非法列名一律回退 uploaded_at
	sortBy := f.SortBy
	switch sortBy {
	case "uploaded_at", "file_name", "status":
	default:
		sortBy = "uploaded_at"
	}
	order := "desc"
	if f.Order == "asc" {
		order = "asc"
	}

	q := r.db.WithContext(ctx).Model(&TaskModel{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []TaskModel
	err := q.Order(sortBy + " " + order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]model.Task, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToTask())
	}
	return out, total, nil
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, taskID string, u StatusUpdate) error {
	now := time.Now()

	values := map[string]any{
		"status":     string(u.Status),
		"updated_at": now,
	}

	// 时间戳 first-write-wins：重复事件不覆盖首次写入的值
	switch {
	case u.Status == model.TaskStatusProcessing:
		values["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
	case u.Status.Terminal():
		values["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", now)
	}

	// 未提供的字段保留现值，绝不隐式清空
	if u.ResultURL != nil {
		values["result_url"] = *u.ResultURL
	}
	if u.ErrorMessage != nil {
		values["error_message"] = *u.ErrorMessage
	}

	return r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("id = ?", taskID).
		Updates(values).Error
}

func (r *TaskRepo) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

func (r *TaskRepo) ResetForRetry(ctx context.Context, taskID string) error {
	return r.db.WithContext(ctx).
		Model(&TaskModel{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":        string(model.TaskStatusPending),
			"progress":      0,
			"result_url":    nil,
			"error_message": nil,
			"started_at":    nil,
			"completed_at":  nil,
			"updated_at":    time.Now(),
		}).Error
}

func (r *TaskRepo) Delete(ctx context.Context, taskID string) (string, error) {
	var m TaskModel
	err := r.db.WithContext(ctx).Where("id = ?", taskID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrTaskNotFound
	}
	if err != nil {
		return "", err
	}

	return m.StoragePath, r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&TaskLogModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", taskID).Delete(&TaskModel{}).Error
	})
}

func (r *TaskRepo) StoragePath(ctx context.Context, taskID string) (string, error) {
	var m TaskModel
	err := r.db.WithContext(ctx).Select("storage_path").Where("id = ?", taskID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrTaskNotFound
	}
	if err != nil {
		return "", err
	}
	return m.StoragePath, nil
}

func (r *TaskRepo) Statistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	row := r.db.WithContext(ctx).Model(&TaskModel{}).
		Select(`count(*),
count(*) filter (where status = 'pending'),
count(*) filter (where status = 'processing'),
count(*) filter (where status = 'completed'),
count(*) filter (where status = 'failed')`).
		Row()
	if err := row.Scan(&stats.Total, &stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed); err != nil {
		return nil, err
	}

	// 已完成任务的平均处理耗时（毫秒）
	var avg *float64
	err := r.db.WithContext(ctx).Model(&TaskModel{}).
		Select(`avg(extract(epoch from (completed_at - started_at)) * 1000)`).
		Where("status = 'completed' and started_at is not null and completed_at is not null").
		Row().Scan(&avg)
	if err == nil && avg != nil {
		stats.AvgProcessingMs = avg
	}

	if stats.Total > 0 {
		rate := float64(stats.Completed) / float64(stats.Total) * 100
		stats.SuccessRate = &rate
	}

	return &stats, nil
}

func (r *TaskRepo) AddLog(ctx context.Context, taskID string, level model.LogLevel, message string) error {
	return r.db.WithContext(ctx).Create(&TaskLogModel{
		TaskID:   taskID,
		LogLevel: string(level),
		Message:  message,
	}).Error
}
