package sdk

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 极短准入延迟的测试集合（无进度来源，准入后停在 processing）
func newTestStore(opts ...StoreOption) *TaskStore {
	base := []StoreOption{WithAdmissionDelay(time.Millisecond)}
	return NewTaskStore(append(base, opts...)...)
}

func enqueueN(s *TaskStore, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		t := NewLocalTask(fmt.Sprintf("novel-%d.txt", i), 1024)
		t.ID = fmt.Sprintf("task-%d", i)
		s.Enqueue(t)
		ids = append(ids, t.ID)
	}
	return ids
}

func waitProcessing(t *testing.T, s *TaskStore, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.ProcessingCount() == want
	}, time.Second, 2*time.Millisecond)
}

func TestTaskStore_CapInvariant(t *testing.T) {
	s := newTestStore(WithMaxConcurrent(3))
	enqueueN(s, 5)

	waitProcessing(t, s, 3)

	// 稳定后并发数不超过帽
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, s.ProcessingCount())

	pending := 0
	for _, task := range s.Tasks() {
		if task.Status == TaskStatusPending {
			pending++
		}
	}
	assert.Equal(t, 2, pending)
}

func TestTaskStore_AdmissionFIFO(t *testing.T) {
	s := newTestStore(WithMaxConcurrent(3))
	ids := enqueueN(s, 4) // A B C D

	waitProcessing(t, s, 3)

	// 先入的 A B C 占满槽位，D 等待
	for _, id := range ids[:3] {
		task, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, TaskStatusProcessing, task.Status, id)
	}
	d, _ := s.Get(ids[3])
	assert.Equal(t, TaskStatusPending, d.Status)

	// A 完成后，补位的是 D（B C 不会被重复准入）
	resultURL := "/results/" + ids[0]
	s.SetStatus(ids[0], TaskStatusCompleted, &resultURL, nil)

	require.Eventually(t, func() bool {
		task, _ := s.Get(ids[3])
		return task.Status == TaskStatusProcessing
	}, time.Second, 2*time.Millisecond)

	a, _ := s.Get(ids[0])
	assert.Equal(t, TaskStatusCompleted, a.Status)
	assert.Equal(t, "/results/"+ids[0], a.ResultURL)
	assert.Equal(t, 3, s.ProcessingCount())
}

func TestTaskStore_IdempotentStartedAt(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 1)
	waitProcessing(t, s, 1)

	task, _ := s.Get(ids[0])
	require.NotNil(t, task.StartedAt)
	first := *task.StartedAt

	// 重复的 processing 事件不覆盖 started_at
	time.Sleep(5 * time.Millisecond)
	s.SetStatus(ids[0], TaskStatusProcessing, nil, nil)

	task, _ = s.Get(ids[0])
	require.NotNil(t, task.StartedAt)
	assert.Equal(t, first, *task.StartedAt)
}

func TestTaskStore_IdempotentCompletedAt(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 1)
	waitProcessing(t, s, 1)

	s.SetStatus(ids[0], TaskStatusCompleted, nil, nil)
	task, _ := s.Get(ids[0])
	require.NotNil(t, task.CompletedAt)
	first := *task.CompletedAt

	time.Sleep(5 * time.Millisecond)
	s.SetStatus(ids[0], TaskStatusCompleted, nil, nil)

	task, _ = s.Get(ids[0])
	assert.Equal(t, first, *task.CompletedAt)
}

func TestTaskStore_UnknownIDNoOp(t *testing.T) {
	s := NewTaskStore(WithAdmissionDelay(time.Hour)) // 冻结准入，快照前后状态稳定
	enqueueN(s, 2)
	before := s.Tasks()

	// 事件可能与删除竞态：未知 id 一律静默忽略
	s.SetProgress("nonexistent", 50)
	s.SetStatus("nonexistent", TaskStatusCompleted, nil, nil)
	s.Remove("nonexistent")
	s.Retry("nonexistent")

	after := s.Tasks()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Status, after[i].Status)
		assert.Equal(t, before[i].Progress, after[i].Progress)
	}
}

func TestTaskStore_ProgressClamp(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 1)

	s.SetProgress(ids[0], 150)
	task, _ := s.Get(ids[0])
	assert.Equal(t, 100, task.Progress)

	s.SetProgress(ids[0], -10)
	task, _ = s.Get(ids[0])
	assert.Equal(t, 0, task.Progress)
}

// 进度回退和终态任务的进度更新都不做校验（协议层未定义此约束）
func TestTaskStore_ProgressUnvalidated(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 1)

	s.SetProgress(ids[0], 80)
	s.SetProgress(ids[0], 30)
	task, _ := s.Get(ids[0])
	assert.Equal(t, 30, task.Progress)

	s.SetStatus(ids[0], TaskStatusCompleted, nil, nil)
	s.SetProgress(ids[0], 55)
	task, _ = s.Get(ids[0])
	assert.Equal(t, 55, task.Progress)
}

func TestTaskStore_SetStatusPreservesFields(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 1)

	resultURL := "/results/" + ids[0]
	s.SetStatus(ids[0], TaskStatusCompleted, &resultURL, nil)

	// 省略的参数保留现值，绝不隐式清空
	s.SetStatus(ids[0], TaskStatusCompleted, nil, nil)

	task, _ := s.Get(ids[0])
	assert.Equal(t, resultURL, task.ResultURL)
	assert.Empty(t, task.ErrorMessage)
}

func TestTaskStore_Retry(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 1)
	waitProcessing(t, s, 1)

	errMsg := "processing timeout"
	s.SetStatus(ids[0], TaskStatusFailed, nil, &errMsg)
	task, _ := s.Get(ids[0])
	require.Equal(t, TaskStatusFailed, task.Status)
	require.NotNil(t, task.CompletedAt)

	s.Retry(ids[0])

	// 完整重置：进度/结果/错误/时间戳全清
	require.Eventually(t, func() bool {
		task, _ := s.Get(ids[0])
		return task.Status == TaskStatusProcessing
	}, time.Second, 2*time.Millisecond)

	task, _ = s.Get(ids[0])
	assert.Empty(t, task.ErrorMessage)
	assert.Empty(t, task.ResultURL)
	assert.Nil(t, task.CompletedAt)
}

func TestTaskStore_RetryNonTerminalNoOp(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 1)
	waitProcessing(t, s, 1)

	s.Retry(ids[0])

	task, _ := s.Get(ids[0])
	assert.Equal(t, TaskStatusProcessing, task.Status)
}

func TestTaskStore_RemoveAndDuplicateEnqueue(t *testing.T) {
	s := newTestStore()
	ids := enqueueN(s, 2)

	// 重复 id 入队被忽略（集合内 id 唯一）
	dup := NewLocalTask("dup.txt", 1)
	dup.ID = ids[0]
	s.Enqueue(dup)
	assert.Equal(t, 2, s.Len())

	s.Remove(ids[0])
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get(ids[0])
	assert.False(t, ok)

	// 重复删除无副作用
	s.Remove(ids[0])
	assert.Equal(t, 1, s.Len())
}

func TestTaskStore_NewestFirstOrder(t *testing.T) {
	s := NewTaskStore(WithAdmissionDelay(time.Hour)) // 不触发准入，纯看顺序
	ids := enqueueN(s, 3)

	tasks := s.Tasks()
	require.Len(t, tasks, 3)
	// 展示序最近优先
	assert.Equal(t, ids[2], tasks[0].ID)
	assert.Equal(t, ids[0], tasks[2].ID)
}

func TestTaskStore_HydrateReplacesCollection(t *testing.T) {
	s := newTestStore()
	enqueueN(s, 2)

	now := time.Now()
	s.Hydrate([]Task{
		{ID: "srv-1", FileName: "a.txt", Status: TaskStatusCompleted, Progress: 100, UploadedAt: now},
		{ID: "srv-2", FileName: "b.txt", Status: TaskStatusPending, UploadedAt: now},
	})

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("srv-1")
	assert.True(t, ok)

	// 水合后的 pending 任务照常被准入
	require.Eventually(t, func() bool {
		task, _ := s.Get("srv-2")
		return task.Status == TaskStatusProcessing
	}, time.Second, 2*time.Millisecond)
}

func TestTaskStore_OnChangeNotified(t *testing.T) {
	s := NewTaskStore(WithAdmissionDelay(time.Hour))
	changes := make(chan struct{}, 16)
	s.SetOnChange(func() { changes <- struct{}{} })

	enqueueN(s, 1)

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("入队后未收到变更通知")
	}
}
