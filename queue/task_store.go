package queue

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusRevoked   TaskStatus = "revoked"
)

// Done reports whether the task reached a final status.
func (s TaskStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRevoked
}

// Task is the record kept for every submitted job.
type Task struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Key          string     `json:"key"`
	Status       TaskStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	NotBefore    time.Time  `json:"not_before,omitempty"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	CompletedAt  time.Time  `json:"completed_at,omitempty"`
}

// TaskStore keeps task records until they expire.
type TaskStore struct {
	sync.RWMutex
	tasks  map[string]*Task
	logger *slog.Logger
	clock  TimeProvider

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

func NewTaskStore(logger *slog.Logger, clock TimeProvider) *TaskStore {
	if clock == nil {
		clock = &realTimeProvider{}
	}
	return &TaskStore{
		tasks:  make(map[string]*Task),
		logger: logger,
		clock:  clock,
	}
}

// StartCleanup periodically removes finished tasks older than threshold.
func (s *TaskStore) StartCleanup(threshold, cleanupInterval time.Duration) {
	s.stopCleanup = make(chan struct{})
	s.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.performCleanup(threshold)
			case <-s.stopCleanup:
				s.cleanupTicker.Stop()
				return
			}
		}
	}()
}

func (s *TaskStore) StopCleanup() {
	s.stopOnce.Do(func() {
		if s.stopCleanup != nil {
			close(s.stopCleanup)
		}
	})
}

func (s *TaskStore) performCleanup(threshold time.Duration) int {
	now := s.clock.Now()
	s.Lock()
	defer s.Unlock()

	removed := 0
	for id, task := range s.tasks {
		if task.Status.Done() && now.Sub(task.CompletedAt) > threshold {
			delete(s.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Expired task records removed", slog.Int("count", removed))
	}
	return removed
}

func (s *TaskStore) add(task *Task) {
	s.Lock()
	defer s.Unlock()
	s.tasks[task.ID] = task
}

// update applies fn to the stored task under the write lock.
func (s *TaskStore) update(id string, fn func(*Task)) {
	s.Lock()
	defer s.Unlock()
	if task, ok := s.tasks[id]; ok {
		fn(task)
	}
}

// Get returns a copy of the task record.
func (s *TaskStore) Get(id string) (Task, bool) {
	s.RLock()
	defer s.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// List returns the tasks with the given key, oldest first. An empty key
// lists every task.
func (s *TaskStore) List(key string) []Task {
	s.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if key == "" || task.Key == key {
			out = append(out, *task)
		}
	}
	s.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}
