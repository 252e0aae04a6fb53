package sdk

import (
	"math/rand"
	"sync"
	"time"
)

// SimulatedSource 本地模拟的进度来源：每个被准入的任务起一个 goroutine，
// 按随机间隔推进随机进度（对齐服务端模拟器：0.5-2.0s 前进 5-20），
// 进度满后标记 completed 并携带结果地址。
type SimulatedSource struct {
	StepMin  int
	StepMax  int
	DelayMin time.Duration
	DelayMax time.Duration

	store *TaskStore

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSource 创建模拟来源（随后需 Bind 到 Store）
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{
		StepMin:  5,
		StepMax:  20,
		DelayMin: 500 * time.Millisecond,
		DelayMax: 2 * time.Second,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Bind 绑定目标集合。Source 与 Store 互相引用，故分两步构造。
func (s *SimulatedSource) Bind(store *TaskStore) {
	s.store = store
}

// Start 开始为任务产生进度事件
func (s *SimulatedSource) Start(taskID string) {
	go s.run(taskID)
}

func (s *SimulatedSource) run(taskID string) {
	for {
		time.Sleep(s.randomDelay())

		// 任务被删除或被外部事件改走时停止模拟
		t, ok := s.store.Get(taskID)
		if !ok || t.Status != TaskStatusProcessing {
			return
		}

		progress := t.Progress + s.randomStep()
		if progress >= 100 {
			break
		}
		s.store.SetProgress(taskID, progress)
	}

	s.store.SetProgress(taskID, 100)
	resultURL := "/results/" + taskID
	s.store.SetStatus(taskID, TaskStatusCompleted, &resultURL, nil)
}

func (s *SimulatedSource) randomStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StepMax <= s.StepMin {
		return s.StepMin
	}
	return s.StepMin + s.rng.Intn(s.StepMax-s.StepMin+1)
}

func (s *SimulatedSource) randomDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DelayMax <= s.DelayMin {
		return s.DelayMin
	}
	return s.DelayMin + time.Duration(s.rng.Int63n(int64(s.DelayMax-s.DelayMin)))
}
