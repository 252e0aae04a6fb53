package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/novelhub/internal/model"
	"github.com/azhengyongqin/novelhub/internal/repository"
)

// fakeRepo 内存版任务仓储，只实现处理器用到的路径
type fakeRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
	logs  []string
}

func newFakeRepo(ids ...string) *fakeRepo {
	r := &fakeRepo{tasks: make(map[string]*model.Task)}
	for _, id := range ids {
		t := model.NewTask(id, id+".txt", 100)
		r.tasks[id] = &t
	}
	return r
}

func (r *fakeRepo) get(id string) model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.tasks[id]
}

func (r *fakeRepo) Create(ctx context.Context, t model.Task, storagePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = &t
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, taskID string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) GetByHash(ctx context.Context, fileHash string) (*model.Task, error) {
	return nil, repository.ErrTaskNotFound
}

func (r *fakeRepo) List(ctx context.Context, f repository.ListTasksFilter) ([]model.Task, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, taskID string, u repository.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return repository.ErrTaskNotFound
	}
	t.Status = u.Status
	now := time.Now()
	if u.Status == model.TaskStatusProcessing && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if u.Status.Terminal() && t.CompletedAt == nil {
		t.CompletedAt = &now
	}
	if u.ResultURL != nil {
		t.ResultURL = *u.ResultURL
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	return nil
}

func (r *fakeRepo) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return repository.ErrTaskNotFound
	}
	t.Progress = progress
	return nil
}

func (r *fakeRepo) ResetForRetry(ctx context.Context, taskID string) error { return nil }

func (r *fakeRepo) Delete(ctx context.Context, taskID string) (string, error) { return "", nil }

func (r *fakeRepo) StoragePath(ctx context.Context, taskID string) (string, error) { return "", nil }

func (r *fakeRepo) Statistics(ctx context.Context) (*repository.Statistics, error) {
	return &repository.Statistics{}, nil
}

func (r *fakeRepo) AddLog(ctx context.Context, taskID string, level model.LogLevel, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, message)
	return nil
}

// recordingNotifier 收集广播事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.TaskUpdateEvent
}

func (n *recordingNotifier) BroadcastTaskUpdate(ev model.TaskUpdateEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) all() []model.TaskUpdateEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.TaskUpdateEvent(nil), n.events...)
}

// newFastProcessor 毫秒级延迟的处理器，测试不用等真实模拟节奏
func newFastProcessor(repo repository.TaskRepository, n Notifier) *Processor {
	p := New(repo, nil, n)
	p.StepMin = 40
	p.StepMax = 60
	p.DelayMin = time.Millisecond
	p.DelayMax = 2 * time.Millisecond
	return p
}

func TestProcessor_ProcessTaskCompletes(t *testing.T) {
	repo := newFakeRepo("task-1")
	notifier := &recordingNotifier{}
	p := newFastProcessor(repo, notifier)

	task, err := NewProcessTask("task-1")
	require.NoError(t, err)

	require.NoError(t, p.ProcessTask(context.Background(), task))

	got := repo.get("task-1")
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/results/task-1", got.ResultURL)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	events := notifier.all()
	require.NotEmpty(t, events)

	// 事件序列：processing 开头，completed 收尾且带结果地址
	assert.Equal(t, model.TaskStatusProcessing, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, model.TaskStatusCompleted, last.Status)
	require.NotNil(t, last.ResultURL)
	assert.Equal(t, "/results/task-1", *last.ResultURL)
}

func TestProcessor_ProgressMonotonic(t *testing.T) {
	repo := newFakeRepo("task-1")
	notifier := &recordingNotifier{}
	p := newFastProcessor(repo, notifier)

	task, err := NewProcessTask("task-1")
	require.NoError(t, err)
	require.NoError(t, p.ProcessTask(context.Background(), task))

	prev := -1
	for _, ev := range notifier.all() {
		if ev.Status != model.TaskStatusProcessing {
			continue
		}
		assert.GreaterOrEqual(t, ev.Progress, prev)
		assert.LessOrEqual(t, ev.Progress, 100)
		prev = ev.Progress
	}
}

func TestProcessor_TimeoutMarksFailed(t *testing.T) {
	repo := newFakeRepo("task-1")
	notifier := &recordingNotifier{}
	p := newFastProcessor(repo, notifier)
	// 推进间隔远大于超时，必然触发 ctx 截止
	p.DelayMin = 200 * time.Millisecond
	p.DelayMax = 300 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	task, err := NewProcessTask("task-1")
	require.NoError(t, err)

	err = p.ProcessTask(ctx, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := repo.get("task-1")
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "processing timeout", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestProcessor_BadPayload(t *testing.T) {
	repo := newFakeRepo()
	p := newFastProcessor(repo, nil)

	err := p.ProcessTask(context.Background(), asynq.NewTask(TypeProcessNovel, []byte("{bad")))
	assert.Error(t, err)
}

func TestProcessor_RandomRanges(t *testing.T) {
	p := New(newFakeRepo(), nil, nil)

	for i := 0; i < 100; i++ {
		step := p.randomStep()
		assert.GreaterOrEqual(t, step, p.StepMin)
		assert.LessOrEqual(t, step, p.StepMax)

		d := p.randomDelay()
		assert.GreaterOrEqual(t, d, p.DelayMin)
		assert.Less(t, d, p.DelayMax)
	}
}
