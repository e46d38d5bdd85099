package tasks

import (
	"sync"
	"time"
)

// Manager registers background tasks and drives their interval schedulers.
type Manager struct {
	tasks sync.Map
	done  chan struct{}
	once  sync.Once
}

func NewManager() *Manager {
	return &Manager{done: make(chan struct{})}
}

// Register adds a task. A positive interval starts a scheduler goroutine
// that runs the task until the manager is closed; zero or negative means
// trigger-only.
func (m *Manager) Register(name string, interval time.Duration, fn TaskFunc) {
	task := &RunnableTask{
		Name:         name,
		Interval:     interval,
		Handler:      fn,
		registeredAt: time.Now(),
	}
	m.tasks.Store(name, task)

	if interval > 0 {
		go m.scheduler(task)
	}
}

func (m *Manager) Trigger(name string) error {
	t, ok := m.tasks.Load(name)
	if !ok {
		return TaskNotFoundError{Name: name}
	}
	task := t.(*RunnableTask)
	go task.Run()
	return nil
}

func (m *Manager) ListStatus() []TaskStatus {
	var list []TaskStatus
	m.tasks.Range(func(key, value any) bool {
		task := value.(*RunnableTask)
		list = append(list, task.Status())
		return true
	})
	return list
}

// Close stops every interval scheduler. Runs already in flight finish;
// explicit triggers keep working.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *Manager) scheduler(task *RunnableTask) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			task.Run()
		case <-m.done:
			return
		}
	}
}
