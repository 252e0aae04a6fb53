// Package processor 是模拟的小说处理器：消费 asynq 队列中的处理任务，
// 用随机定时器模拟处理进度，并把每次状态变化落库、刷新缓存、推送给订阅者。
// 并发帽（MAX_CONCURRENT_TASKS）由 asynq.Config.Concurrency 强制。
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/azhengyongqin/novelhub/internal/cache"
	"github.com/azhengyongqin/novelhub/internal/logger"
	"github.com/azhengyongqin/novelhub/internal/metrics"
	"github.com/azhengyongqin/novelhub/internal/model"
	"github.com/azhengyongqin/novelhub/internal/repository"
)

// TypeProcessNovel asynq 任务类型
const TypeProcessNovel = "novel:process"

// ProcessPayload asynq 任务负载
type ProcessPayload struct {
	TaskID string `json:"task_id"`
}

// NewProcessTask 构造处理任务
func NewProcessTask(taskID string) (*asynq.Task, error) {
	b, err := json.Marshal(ProcessPayload{TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeProcessNovel, b), nil
}

// Enqueuer 处理任务入队器
type Enqueuer struct {
	client  *asynq.Client
	timeout time.Duration
}

func NewEnqueuer(client *asynq.Client, timeout time.Duration) *Enqueuer {
	return &Enqueuer{client: client, timeout: timeout}
}

// EnqueueProcess 入队一个处理任务。
// 模拟处理不自动重试（重试由用户手动触发，走 /retry 接口）。
func (e *Enqueuer) EnqueueProcess(ctx context.Context, taskID string) error {
	t, err := NewProcessTask(taskID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, t,
		asynq.MaxRetry(0),
		asynq.Timeout(e.timeout),
	)
	if err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}

// Notifier 任务更新事件的推送出口（由 hub 实现）
type Notifier interface {
	BroadcastTaskUpdate(ev model.TaskUpdateEvent)
}

// Processor 模拟处理器
type Processor struct {
	repo     repository.TaskRepository
	cache    *cache.RedisCache // 可为 nil（纯内存部署）
	notifier Notifier

	// 进度模拟参数（对齐原始行为：每 0.5-2.0s 前进 5-20）
	StepMin  int
	StepMax  int
	DelayMin time.Duration
	DelayMax time.Duration

	// asynq 并发执行 handler，rng 需要加锁
	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(repo repository.TaskRepository, c *cache.RedisCache, n Notifier) *Processor {
	return &Processor{
		repo:     repo,
		cache:    c,
		notifier: n,
		StepMin:  5,
		StepMax:  20,
		DelayMin: 500 * time.Millisecond,
		DelayMax: 2 * time.Second,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RegisterHandlers 注册到 asynq mux
func (p *Processor) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeProcessNovel, p.ProcessTask)
}

// ProcessTask 处理单个任务：pending -> processing -> (进度推进) -> completed。
// ctx 超时（TASK_TIMEOUT）时标记 failed 并返回错误。
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	taskID := payload.TaskID
	log := logger.WithTaskID(taskID)

	start := time.Now()

	// 进入 processing（started_at 由仓储 first-write-wins 写入）
	if err := p.setStatus(ctx, taskID, repository.StatusUpdate{Status: model.TaskStatusProcessing}, 0); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	_ = p.repo.AddLog(ctx, taskID, model.LogLevelInfo, "Task processing started")
	log.Info().Msg("开始处理任务")

	// 模拟处理：随机间隔推进随机进度
	progress := 0
	for progress < 100 {
		select {
		case <-ctx.Done():
			errMsg := "processing timeout"
			_ = p.setStatus(context.WithoutCancel(ctx), taskID, repository.StatusUpdate{
				Status:       model.TaskStatusFailed,
				ErrorMessage: &errMsg,
			}, progress)
			_ = p.repo.AddLog(context.WithoutCancel(ctx), taskID, model.LogLevelError, "Task processing failed: "+errMsg)
			metrics.RecordTaskCompleted(string(model.TaskStatusFailed), time.Since(start).Seconds())
			log.Error().Msg("处理超时，标记失败")
			return ctx.Err()
		case <-time.After(p.randomDelay()):
		}

		progress += p.randomStep()
		if progress > 100 {
			progress = 100
		}

		if err := p.repo.UpdateProgress(ctx, taskID, progress); err != nil {
			log.Warn().Err(err).Msg("更新进度失败")
		}
		p.refreshCache(ctx, taskID, model.TaskStatusProcessing, progress)
		p.notify(taskID, model.TaskStatusProcessing, progress, "", "")
	}

	// 完成
	resultURL := "/results/" + taskID
	if err := p.setStatus(ctx, taskID, repository.StatusUpdate{
		Status:    model.TaskStatusCompleted,
		ResultURL: &resultURL,
	}, 100); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	_ = p.repo.AddLog(ctx, taskID, model.LogLevelInfo, "Task processing completed successfully")
	metrics.RecordTaskCompleted(string(model.TaskStatusCompleted), time.Since(start).Seconds())
	log.Info().Dur("duration", time.Since(start)).Msg("任务处理完成")

	return nil
}

// setStatus 落库 + 刷缓存 + 推送
func (p *Processor) setStatus(ctx context.Context, taskID string, u repository.StatusUpdate, progress int) error {
	if err := p.repo.UpdateStatus(ctx, taskID, u); err != nil {
		return err
	}
	p.refreshCache(ctx, taskID, u.Status, progress)

	resultURL := ""
	if u.ResultURL != nil {
		resultURL = *u.ResultURL
	}
	errMsg := ""
	if u.ErrorMessage != nil {
		errMsg = *u.ErrorMessage
	}
	p.notify(taskID, u.Status, progress, resultURL, errMsg)
	return nil
}

func (p *Processor) refreshCache(ctx context.Context, taskID string, status model.TaskStatus, progress int) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetTaskStatus(ctx, taskID, string(status), progress); err != nil {
		metrics.RecordError("processor", "cache_refresh")
	}
}

func (p *Processor) notify(taskID string, status model.TaskStatus, progress int, resultURL, errMsg string) {
	if p.notifier == nil {
		return
	}
	ev := model.TaskUpdateEvent{
		Type:     model.EventTypeTaskUpdate,
		TaskID:   taskID,
		Status:   status,
		Progress: progress,
	}
	if resultURL != "" {
		ev.ResultURL = &resultURL
	}
	if errMsg != "" {
		ev.ErrorMessage = &errMsg
	}
	p.notifier.BroadcastTaskUpdate(ev)
}

func (p *Processor) randomStep() int {
	if p.StepMax <= p.StepMin {
		return p.StepMin
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.StepMin + p.rng.Intn(p.StepMax-p.StepMin+1)
}

func (p *Processor) randomDelay() time.Duration {
	if p.DelayMax <= p.DelayMin {
		return p.DelayMin
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.DelayMin + time.Duration(p.rng.Int63n(int64(p.DelayMax-p.DelayMin)))
}
