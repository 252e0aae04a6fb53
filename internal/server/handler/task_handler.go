// Package handler 实现 HTTP / WebSocket 接口层。
package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/novelhub/internal/cache"
	"github.com/azhengyongqin/novelhub/internal/config"
	"github.com/azhengyongqin/novelhub/internal/filestore"
	"github.com/azhengyongqin/novelhub/internal/hub"
	"github.com/azhengyongqin/novelhub/internal/logger"
	"github.com/azhengyongqin/novelhub/internal/metrics"
	"github.com/azhengyongqin/novelhub/internal/middleware"
	"github.com/azhengyongqin/novelhub/internal/model"
	"github.com/azhengyongqin/novelhub/internal/processor"
	"github.com/azhengyongqin/novelhub/internal/repository"
	"github.com/azhengyongqin/novelhub/internal/server/dto"
)

// TaskHandler 任务接口处理器
type TaskHandler struct {
	repo     repository.TaskRepository
	cache    *cache.RedisCache // 可为 nil
	files    *filestore.Store
	enqueuer *processor.Enqueuer
	hub      *hub.Hub
	cfg      *config.Config
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(
	repo repository.TaskRepository,
	c *cache.RedisCache,
	files *filestore.Store,
	enqueuer *processor.Enqueuer,
	h *hub.Hub,
	cfg *config.Config,
) *TaskHandler {
	return &TaskHandler{
		repo:     repo,
		cache:    c,
		files:    files,
		enqueuer: enqueuer,
		hub:      h,
		cfg:      cfg,
	}
}

// newTaskID 生成任务 id：task-<秒级时间戳>-<9位随机hex>
func newTaskID() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return fmt.Sprintf("task-%d-%s", time.Now().Unix(), hex.EncodeToString(b)[:9])
}

// Upload 上传文件并创建处理任务
// POST /api/v1/tasks/upload
func (h *TaskHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "缺少上传文件（表单字段 file）"})
		return
	}
	defer file.Close()

	fileName := middleware.SanitizeString(header.Filename)
	if fileName == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "文件名无效"})
		return
	}

	if !middleware.ValidateFileExtension(fileName, h.cfg.Upload.AllowedExtensions) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "不支持的文件类型，仅允许: " + strings.Join(h.cfg.Upload.AllowedExtensions, ", "),
		})
		return
	}

	// 限读一个字节余量，超限即拒绝
	content, err := io.ReadAll(io.LimitReader(file, h.cfg.Upload.MaxFileSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "读取上传内容失败"})
		return
	}
	if int64(len(content)) > h.cfg.Upload.MaxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{
			Error: fmt.Sprintf("文件过大，最大允许 %d 字节", h.cfg.Upload.MaxFileSize),
		})
		return
	}

	// 内容哈希去重：同内容文件直接复用已有任务
	fileHash := filestore.HashContent(content)
	if existing, err := h.repo.GetByHash(c.Request.Context(), fileHash); err == nil && existing != nil {
		c.JSON(http.StatusOK, dto.UploadResponse{
			TaskID:   existing.ID,
			FileName: existing.FileName,
			FileSize: existing.FileSize,
			Status:   string(existing.Status),
		})
		return
	}

	task := model.NewTask(newTaskID(), fileName, int64(len(content)))
	task.FileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	task.FileHash = fileHash

	storagePath, err := h.files.Save(task.ID, fileName, content)
	if err != nil {
		logger.WithTaskID(task.ID).Error().Err(err).Msg("保存上传文件失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "保存文件失败"})
		return
	}

	if err := h.repo.Create(c.Request.Context(), task, storagePath); err != nil {
		_ = h.files.Remove(storagePath)
		logger.WithTaskID(task.ID).Error().Err(err).Msg("创建任务失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "创建任务失败"})
		return
	}
	_ = h.repo.AddLog(c.Request.Context(), task.ID, model.LogLevelInfo, "Task created: "+fileName)

	if err := h.enqueuer.EnqueueProcess(c.Request.Context(), task.ID); err != nil {
		logger.WithTaskID(task.ID).Error().Err(err).Msg("任务入队失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "任务入队失败"})
		return
	}

	metrics.RecordTaskUploaded()
	logger.WithTaskID(task.ID).Info().
		Str("file_name", fileName).
		Int64("file_size", task.FileSize).
		Msg("任务创建成功")

	c.JSON(http.StatusCreated, dto.UploadResponse{
		TaskID:   task.ID,
		FileName: task.FileName,
		FileSize: task.FileSize,
		Status:   string(task.Status),
	})
}

// List 分页查询任务列表
// GET /api/v1/tasks?page=1&page_size=20&status=&sort_by=uploaded_at&order=desc
func (h *TaskHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	status := c.Query("status")
	if status != "" && !model.TaskStatus(status).Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "status 取值无效"})
		return
	}

	tasks, total, err := h.repo.List(c.Request.Context(), repository.ListTasksFilter{
		Status:   status,
		SortBy:   c.DefaultQuery("sort_by", "uploaded_at"),
		Order:    c.DefaultQuery("order", "desc"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		logger.L.Error().Err(err).Msg("查询任务列表失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "查询任务列表失败"})
		return
	}

	resp := dto.TaskListResponse{
		Tasks:    make([]dto.TaskResponse, 0, len(tasks)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, dto.TaskFromModel(t))
	}

	c.JSON(http.StatusOK, resp)
}

// Statistics 任务统计
// GET /api/v1/tasks/statistics
func (h *TaskHandler) Statistics(c *gin.Context) {
	stats, err := h.repo.Statistics(c.Request.Context())
	if err != nil {
		logger.L.Error().Err(err).Msg("查询统计失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "查询统计失败"})
		return
	}

	c.JSON(http.StatusOK, dto.StatisticsResponse{
		Total:           stats.Total,
		Pending:         stats.Pending,
		Processing:      stats.Processing,
		Completed:       stats.Completed,
		Failed:          stats.Failed,
		AvgProcessingMs: stats.AvgProcessingMs,
		SuccessRate:     stats.SuccessRate,
	})
}

// Get 查询任务详情
// GET /api/v1/tasks/:task_id
func (h *TaskHandler) Get(c *gin.Context) {
	taskID := c.Param("task_id")

	task, err := h.repo.Get(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "任务不存在"})
			return
		}
		logger.WithTaskID(taskID).Error().Err(err).Msg("查询任务失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "查询任务失败"})
		return
	}

	c.JSON(http.StatusOK, dto.TaskFromModel(*task))
}

// Status 轻量状态查询（轮询快速路径，优先走缓存）
// GET /api/v1/tasks/:task_id/status
func (h *TaskHandler) Status(c *gin.Context) {
	taskID := c.Param("task_id")

	if h.cache != nil {
		if entry, err := h.cache.GetTaskStatus(c.Request.Context(), taskID); err == nil {
			c.JSON(http.StatusOK, dto.TaskStatusResponse{
				ID:       taskID,
				Status:   entry.Status,
				Progress: entry.Progress,
			})
			return
		}
	}

	task, err := h.repo.Get(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "任务不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "查询任务失败"})
		return
	}

	// 回填缓存，后续轮询走快速路径
	if h.cache != nil {
		_ = h.cache.SetTaskStatus(c.Request.Context(), taskID, string(task.Status), task.Progress)
	}

	c.JSON(http.StatusOK, dto.TaskStatusResponse{
		ID:       task.ID,
		Status:   string(task.Status),
		Progress: task.Progress,
	})
}

// Update 更新任务状态/进度（外部处理服务回写入口）。
// 未知 task_id 静默忽略（no-op 返回 200），保证回写端无需关心任务是否已删除。
// PATCH /api/v1/tasks/:task_id
func (h *TaskHandler) Update(c *gin.Context) {
	taskID := c.Param("task_id")

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "请求体格式错误"})
		return
	}

	if req.Status != nil && !model.TaskStatus(*req.Status).Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "status 取值无效"})
		return
	}

	ctx := c.Request.Context()

	if req.Status != nil {
		err := h.repo.UpdateStatus(ctx, taskID, repository.StatusUpdate{
			Status:       model.TaskStatus(*req.Status),
			ResultURL:    req.ResultURL,
			ErrorMessage: req.ErrorMessage,
		})
		if err != nil && !errors.Is(err, repository.ErrTaskNotFound) {
			logger.WithTaskID(taskID).Error().Err(err).Msg("更新任务状态失败")
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "更新任务失败"})
			return
		}
	}

	if req.Progress != nil {
		err := h.repo.UpdateProgress(ctx, taskID, *req.Progress)
		if err != nil && !errors.Is(err, repository.ErrTaskNotFound) {
			logger.WithTaskID(taskID).Error().Err(err).Msg("更新任务进度失败")
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "更新任务失败"})
			return
		}
	}

	// 读回最新状态，刷缓存并推送给订阅者
	task, err := h.repo.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			// 未知任务：no-op
			c.JSON(http.StatusOK, dto.MessageResponse{Message: "ok"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "查询任务失败"})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetTaskStatus(ctx, taskID, string(task.Status), task.Progress)
	}
	h.hub.BroadcastTaskUpdate(model.NewTaskUpdateEvent(*task))

	c.JSON(http.StatusOK, dto.TaskFromModel(*task))
}

// Delete 删除任务（含源文件与缓存）
// DELETE /api/v1/tasks/:task_id
func (h *TaskHandler) Delete(c *gin.Context) {
	taskID := c.Param("task_id")

	storagePath, err := h.repo.Delete(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "任务不存在"})
			return
		}
		logger.WithTaskID(taskID).Error().Err(err).Msg("删除任务失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "删除任务失败"})
		return
	}

	if err := h.files.Remove(storagePath); err != nil {
		// 文件残留不影响删除结果，记日志即可
		logger.WithTaskID(taskID).Warn().Err(err).Msg("清理源文件失败")
	}
	if h.cache != nil {
		_ = h.cache.DeleteTaskStatus(c.Request.Context(), taskID)
	}

	logger.WithTaskID(taskID).Info().Msg("任务已删除")
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "任务已删除"})
}

// Retry 重试任务：仅 failed / completed 状态可重试，完整重置后重新入队
// POST /api/v1/tasks/:task_id/retry
func (h *TaskHandler) Retry(c *gin.Context) {
	taskID := c.Param("task_id")
	ctx := c.Request.Context()

	task, err := h.repo.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "任务不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "查询任务失败"})
		return
	}

	if !task.Status.Terminal() {
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: "只有 failed 或 completed 状态的任务可以重试",
		})
		return
	}

	if err := h.repo.ResetForRetry(ctx, taskID); err != nil {
		logger.WithTaskID(taskID).Error().Err(err).Msg("重置任务失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "重置任务失败"})
		return
	}
	_ = h.repo.AddLog(ctx, taskID, model.LogLevelInfo, "Task retry requested")

	if h.cache != nil {
		_ = h.cache.SetTaskStatus(ctx, taskID, string(model.TaskStatusPending), 0)
	}
	h.hub.BroadcastTaskUpdate(model.TaskUpdateEvent{
		Type:     model.EventTypeTaskUpdate,
		TaskID:   taskID,
		Status:   model.TaskStatusPending,
		Progress: 0,
	})

	if err := h.enqueuer.EnqueueProcess(ctx, taskID); err != nil {
		logger.WithTaskID(taskID).Error().Err(err).Msg("重试入队失败")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "重试入队失败"})
		return
	}

	logger.WithTaskID(taskID).Info().Msg("任务重试已提交")
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "任务已重新排队"})
}
