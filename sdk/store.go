package sdk

import (
	"sync"
	"time"
)

const (
	// DefaultMaxConcurrent 同时处于 processing 的任务上限
	DefaultMaxConcurrent = 3

	// DefaultAdmissionDelay pending -> processing 的固定准入延迟
	// （模拟向处理端移交的异步时延）
	DefaultAdmissionDelay = 100 * time.Millisecond
)

// ProgressSource 进度事件来源。
// 任务被准入为 processing 后由 Store 调用 Start；
// 后续进度/终态通过 Store 的 SetProgress / SetStatus 回写。
// 实现有两种：本地模拟（SimulatedSource）和远端事件驱动（RemoteSource，
// 事件由 Channel 投递，Start 为 no-op）。
type ProgressSource interface {
	Start(taskID string)
}

// RemoteSource 远端事件驱动的进度来源：服务端自行处理并经 Channel 推送，
// 客户端准入时无需任何动作。
type RemoteSource struct{}

func (RemoteSource) Start(string) {}

// TaskStore 任务集合的唯一归属者：集合的所有变更（无论来自本地模拟
// 还是远端事件）都必须经由它的方法，其余组件只读快照。
// 同时承担调度职责：保证 processing 数量不超过并发帽，pending 按 FIFO 准入。
type TaskStore struct {
	mu sync.Mutex

	// tasks 有序集合，新任务在头部（最近优先展示序）；
	// 准入从尾部扫描，即最老的 pending 先被选中。
	tasks []*Task

	// admitting 已被选中、处于准入延迟窗口内的任务 id。
	// 计入并发占用，防止同一槽位被重复分配。
	admitting map[string]struct{}

	maxConcurrent  int
	admissionDelay time.Duration
	source         ProgressSource

	onChange func()
}

// StoreOption TaskStore 可选配置
type StoreOption func(*TaskStore)

// WithMaxConcurrent 设置并发帽
func WithMaxConcurrent(n int) StoreOption {
	return func(s *TaskStore) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithAdmissionDelay 设置准入延迟
func WithAdmissionDelay(d time.Duration) StoreOption {
	return func(s *TaskStore) {
		if d >= 0 {
			s.admissionDelay = d
		}
	}
}

// WithProgressSource 设置进度来源
func WithProgressSource(src ProgressSource) StoreOption {
	return func(s *TaskStore) { s.source = src }
}

// NewTaskStore 创建任务集合
func NewTaskStore(opts ...StoreOption) *TaskStore {
	s := &TaskStore{
		admitting:      make(map[string]struct{}),
		maxConcurrent:  DefaultMaxConcurrent,
		admissionDelay: DefaultAdmissionDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOnChange 注册集合变更回调（UI 刷新、重连后补订阅等）。
// 回调在锁外执行，可以安全地回调 Store 方法。
func (s *TaskStore) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Enqueue 入队新任务：插入集合头部，随后尝试准入。
// id 已存在时静默忽略（集合内 id 必须唯一）。
func (s *TaskStore) Enqueue(t Task) {
	s.mu.Lock()
	if s.findLocked(t.ID) != nil {
		s.mu.Unlock()
		return
	}
	s.tasks = append([]*Task{&t}, s.tasks...)
	s.admitNextLocked()
	s.mu.Unlock()

	s.notifyChange()
}

// AdmitNext 尝试准入最老的 pending 任务。
// 没有 pending 或并发帽已满时为 no-op，重复调用无副作用。
func (s *TaskStore) AdmitNext() {
	s.mu.Lock()
	s.admitNextLocked()
	s.mu.Unlock()
}

// admitNextLocked 选中最老的 pending 任务并调度延迟准入（需持锁）。
// 被选中的任务进入 admitting 集合占住槽位，延迟到期后才真正迁移状态。
func (s *TaskStore) admitNextLocked() {
	if s.occupiedLocked() >= s.maxConcurrent {
		return
	}
	for i := len(s.tasks) - 1; i >= 0; i-- {
		t := s.tasks[i]
		if t.Status != TaskStatusPending {
			continue
		}
		if _, picked := s.admitting[t.ID]; picked {
			continue
		}
		s.admitting[t.ID] = struct{}{}
		id := t.ID
		time.AfterFunc(s.admissionDelay, func() { s.admit(id) })
		return
	}
}

// admit 准入延迟到期：任务仍为 pending 则迁移为 processing 并启动进度来源。
// 延迟窗口内任务被删除或被远端事件改走的，释放槽位并补位。
func (s *TaskStore) admit(id string) {
	s.mu.Lock()
	delete(s.admitting, id)

	t := s.findLocked(id)
	if t == nil || t.Status != TaskStatusPending {
		s.admitNextLocked()
		s.mu.Unlock()
		return
	}

	s.applyStatusLocked(t, TaskStatusProcessing, nil, nil)
	src := s.source
	s.mu.Unlock()

	s.notifyChange()
	if src != nil {
		src.Start(id)
	}
}

// SetProgress 更新进度，裁剪到 [0,100]；id 不存在时静默 no-op。
// 不校验任务状态，也不强制单调：调用方应只在 processing 期间发送。
func (s *TaskStore) SetProgress(id string, value int) {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}

	s.mu.Lock()
	t := s.findLocked(id)
	if t == nil {
		s.mu.Unlock()
		return
	}
	t.Progress = value
	s.mu.Unlock()

	s.notifyChange()
}

// SetStatus 迁移任务状态；id 不存在时静默 no-op（事件可能与删除竞态）。
// started_at / completed_at 均为首写生效（幂等，重复事件不覆盖）；
// resultURL / errMsg 为 nil 表示保留现值，绝不隐式清空。
// 迁入终态后自动尝试准入下一个 pending 任务补位。
func (s *TaskStore) SetStatus(id string, status TaskStatus, resultURL, errMsg *string) {
	s.mu.Lock()
	t := s.findLocked(id)
	if t == nil {
		s.mu.Unlock()
		return
	}

	s.applyStatusLocked(t, status, resultURL, errMsg)
	if status.Terminal() {
		delete(s.admitting, id)
		s.admitNextLocked()
	}
	s.mu.Unlock()

	s.notifyChange()
}

// applyStatusLocked 应用状态迁移与随附字段（需持锁）
func (s *TaskStore) applyStatusLocked(t *Task, status TaskStatus, resultURL, errMsg *string) {
	t.Status = status

	switch {
	case status == TaskStatusProcessing:
		if t.StartedAt == nil {
			now := time.Now()
			t.StartedAt = &now
		}
	case status.Terminal():
		if t.CompletedAt == nil {
			now := time.Now()
			t.CompletedAt = &now
		}
	}

	if resultURL != nil {
		t.ResultURL = *resultURL
	}
	if errMsg != nil {
		t.ErrorMessage = *errMsg
	}
}

// Remove 从集合删除任务；不存在时静默 no-op。
// 不通知外部处理端（协议没有取消消息），占用的槽位在下次准入时自然回收。
func (s *TaskStore) Remove(id string) {
	s.mu.Lock()
	delete(s.admitting, id)
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notifyChange()
}

// Retry 手动重试终态任务：完整重置回 pending（进度/结果/错误/时间戳全清），
// 随后尝试准入。非终态或不存在的任务为 no-op。
func (s *TaskStore) Retry(id string) {
	s.mu.Lock()
	t := s.findLocked(id)
	if t == nil || !t.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	t.Status = TaskStatusPending
	t.Progress = 0
	t.StartedAt = nil
	t.CompletedAt = nil
	t.ResultURL = ""
	t.ErrorMessage = ""
	s.admitNextLocked()
	s.mu.Unlock()

	s.notifyChange()
}

// Hydrate 用权威来源（服务端列表）整体替换集合。
// 替换后清空准入窗口并重新尝试准入本地 pending 任务。
func (s *TaskStore) Hydrate(tasks []Task) {
	s.mu.Lock()
	s.tasks = make([]*Task, 0, len(tasks))
	for i := range tasks {
		t := tasks[i]
		if s.findLocked(t.ID) != nil {
			continue
		}
		s.tasks = append(s.tasks, &t)
	}
	s.admitting = make(map[string]struct{})
	s.admitNextLocked()
	s.mu.Unlock()

	s.notifyChange()
}

// Tasks 集合快照（值拷贝，最近优先序）
func (s *TaskStore) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// Get 按 id 取任务快照
func (s *TaskStore) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.findLocked(id); t != nil {
		return *t, true
	}
	return Task{}, false
}

// ProcessingCount 当前 processing 任务数
func (s *TaskStore) ProcessingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processingCountLocked()
}

// Len 集合大小
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *TaskStore) findLocked(id string) *Task {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *TaskStore) processingCountLocked() int {
	n := 0
	for _, t := range s.tasks {
		if t.Status == TaskStatusProcessing {
			n++
		}
	}
	return n
}

// occupiedLocked 并发槽位占用 = processing 数 + 准入窗口内的数量
func (s *TaskStore) occupiedLocked() int {
	return s.processingCountLocked() + len(s.admitting)
}

func (s *TaskStore) notifyChange() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
