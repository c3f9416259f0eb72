package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Job is the unit of work run by a worker. The context is cancelled when the
// task is revoked or the queue stops.
type Job func(ctx context.Context) error

var ErrStopped = errors.New("queue stopped")

type entry struct {
	id      string
	job     Job
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	revoked bool
	done    chan struct{}
}

// Queue runs jobs on a bounded number of workers. Tasks wait for a worker
// slot in submission order.
type Queue struct {
	logger *slog.Logger
	slots  *semaphore.Weighted
	store  *TaskStore
	clock  TimeProvider

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	pending sync.WaitGroup
	stopped bool
}

func New(logger *slog.Logger, workers int, store *TaskStore) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if store == nil {
		store = NewTaskStore(logger, nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		logger:  logger,
		slots:   semaphore.NewWeighted(int64(workers)),
		store:   store,
		clock:   store.clock,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Store returns the task records.
func (q *Queue) Store() *TaskStore {
	return q.store
}

// Submit queues job for immediate execution and returns its task id. key
// groups tasks for listing and bulk revocation (usually a script id).
func (q *Queue) Submit(taskType, key string, job Job) (string, error) {
	return q.SubmitAfter(0, taskType, key, job)
}

// SubmitAfter queues job once delay has elapsed.
func (q *Queue) SubmitAfter(delay time.Duration, taskType, key string, job Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return "", ErrStopped
	}

	now := q.clock.Now()
	e := &entry{id: uuid.New().String(), job: job, done: make(chan struct{})}
	e.ctx, e.cancel = context.WithCancel(q.ctx)
	q.entries[e.id] = e
	q.store.add(&Task{
		ID:          e.id,
		Type:        taskType,
		Key:         key,
		Status:      StatusQueued,
		SubmittedAt: now,
		NotBefore:   now.Add(delay),
	})
	q.pending.Add(1)

	if delay > 0 {
		e.timer = time.AfterFunc(delay, func() { q.run(e) })
	} else {
		go q.run(e)
	}

	q.logger.Debug("Task submitted",
		slog.String("task_id", e.id),
		slog.String("type", taskType),
		slog.String("key", key),
		slog.Duration("delay", delay))
	return e.id, nil
}

func (q *Queue) run(e *entry) {
	defer q.pending.Done()
	defer q.forget(e)

	if err := q.slots.Acquire(e.ctx, 1); err != nil {
		q.finish(e, err)
		return
	}
	defer q.slots.Release(1)

	if e.ctx.Err() != nil {
		q.finish(e, e.ctx.Err())
		return
	}

	q.store.update(e.id, func(t *Task) {
		t.Status = StatusRunning
		t.StartedAt = q.clock.Now()
	})
	q.finish(e, q.safeRun(e))
}

func (q *Queue) safeRun(e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return e.job(e.ctx)
}

func (q *Queue) finish(e *entry, err error) {
	q.mu.Lock()
	revoked := e.revoked
	q.mu.Unlock()

	status := StatusCompleted
	switch {
	case revoked || (err != nil && q.ctx.Err() != nil):
		status = StatusRevoked
	case err != nil:
		status = StatusFailed
	}

	q.store.update(e.id, func(t *Task) {
		t.Status = status
		t.CompletedAt = q.clock.Now()
		if err != nil {
			t.ErrorMessage = err.Error()
		}
	})
	if status == StatusFailed {
		q.logger.Warn("Task failed", slog.String("task_id", e.id), slog.String("error", err.Error()))
	}
}

func (q *Queue) forget(e *entry) {
	e.cancel()
	q.mu.Lock()
	delete(q.entries, e.id)
	q.mu.Unlock()
	close(e.done)
}

// Await blocks until the task finishes and returns its final record.
func (q *Queue) Await(ctx context.Context, id string) (Task, error) {
	q.mu.Lock()
	e, ok := q.entries[id]
	q.mu.Unlock()
	if ok {
		select {
		case <-e.done:
		case <-ctx.Done():
			return Task{}, ctx.Err()
		}
	}
	task, found := q.store.Get(id)
	if !found {
		return Task{}, fmt.Errorf("task %s not found", id)
	}
	return task, nil
}

// Revoke drops a waiting task or cancels the context of a running one. It
// returns false when the task is unknown or already finished.
func (q *Queue) Revoke(id string) bool {
	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	e.revoked = true
	q.mu.Unlock()

	e.cancel()
	if e.timer != nil && e.timer.Stop() {
		// The timer never fired; run the entry now so it records the revocation.
		go q.run(e)
	}
	q.logger.Info("Task revoked", slog.String("task_id", id))
	return true
}

// RevokeKey revokes every unfinished task with the given key and returns
// their ids.
func (q *Queue) RevokeKey(key string) []string {
	var ids []string
	for _, t := range q.store.List(key) {
		if !t.Status.Done() && q.Revoke(t.ID) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Wait blocks until every submitted task, delayed ones included, has
// finished or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks, cancels every outstanding one and waits for the
// workers to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	var delayed []*entry
	for _, e := range q.entries {
		if e.timer != nil && e.timer.Stop() {
			delayed = append(delayed, e)
		}
	}
	q.mu.Unlock()

	q.cancel()
	for _, e := range delayed {
		go q.run(e)
	}
	q.pending.Wait()
	q.store.StopCleanup()
}
