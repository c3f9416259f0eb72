package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mockTimeProvider struct {
	currentTime time.Time
	mutex       sync.Mutex
}

func (mtp *mockTimeProvider) Now() time.Time {
	mtp.mutex.Lock()
	defer mtp.mutex.Unlock()
	return mtp.currentTime
}

func (mtp *mockTimeProvider) Add(d time.Duration) {
	mtp.mutex.Lock()
	mtp.currentTime = mtp.currentTime.Add(d)
	mtp.mutex.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitAll(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestWorkersAreBounded(t *testing.T) {
	q := New(testLogger(), 2, nil)
	defer q.Stop()

	var running, peak atomic.Int32
	for i := 0; i < 10; i++ {
		_, err := q.Submit("image", "script-1", func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	waitAll(t, q)

	if p := peak.Load(); p > 2 || p == 0 {
		t.Errorf("peak concurrency = %d, want 1..2", p)
	}
	for _, task := range q.Store().List("script-1") {
		if task.Status != StatusCompleted {
			t.Errorf("task %s status = %s", task.ID, task.Status)
		}
	}
}

func TestTaskStatuses(t *testing.T) {
	q := New(testLogger(), 1, nil)
	defer q.Stop()

	okID, _ := q.Submit("voice", "s", func(ctx context.Context) error { return nil })
	errID, _ := q.Submit("voice", "s", func(ctx context.Context) error { return errors.New("boom") })
	panicID, _ := q.Submit("voice", "s", func(ctx context.Context) error { panic("bad") })
	waitAll(t, q)

	tests := []struct {
		id   string
		want TaskStatus
	}{
		{okID, StatusCompleted},
		{errID, StatusFailed},
		{panicID, StatusFailed},
	}
	for _, tt := range tests {
		task, ok := q.Store().Get(tt.id)
		if !ok {
			t.Fatalf("task %s not found", tt.id)
		}
		if task.Status != tt.want {
			t.Errorf("task %s status = %s, want %s", tt.id, task.Status, tt.want)
		}
	}
	if task, _ := q.Store().Get(errID); task.ErrorMessage != "boom" {
		t.Errorf("error message = %q", task.ErrorMessage)
	}
}

func TestSubmitAfterDelays(t *testing.T) {
	q := New(testLogger(), 1, nil)
	defer q.Stop()

	start := time.Now()
	var ranAt time.Time
	q.SubmitAfter(30*time.Millisecond, "compile", "s", func(ctx context.Context) error {
		ranAt = time.Now()
		return nil
	})
	waitAll(t, q)

	if ranAt.Sub(start) < 30*time.Millisecond {
		t.Errorf("delayed task ran after %v", ranAt.Sub(start))
	}
}

func TestRevokeDelayedTask(t *testing.T) {
	q := New(testLogger(), 1, nil)
	defer q.Stop()

	var ran atomic.Bool
	id, _ := q.SubmitAfter(time.Hour, "compile", "s", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if !q.Revoke(id) {
		t.Fatal("Revoke() = false")
	}
	waitAll(t, q)

	if ran.Load() {
		t.Error("revoked task ran")
	}
	if task, _ := q.Store().Get(id); task.Status != StatusRevoked {
		t.Errorf("status = %s, want revoked", task.Status)
	}
	if q.Revoke(id) {
		t.Error("second Revoke() should report false")
	}
}

func TestRevokeKeyCancelsRunningAndWaiting(t *testing.T) {
	q := New(testLogger(), 1, nil)
	defer q.Stop()

	started := make(chan struct{})
	runningID, _ := q.Submit("image", "script-1", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	waitingID, _ := q.Submit("voice", "script-1", func(ctx context.Context) error { return nil })
	otherID, _ := q.Submit("voice", "script-2", func(ctx context.Context) error { return nil })

	ids := q.RevokeKey("script-1")
	if len(ids) != 2 {
		t.Errorf("RevokeKey() revoked %d tasks, want 2", len(ids))
	}
	waitAll(t, q)

	for id, want := range map[string]TaskStatus{
		runningID: StatusRevoked,
		waitingID: StatusRevoked,
		otherID:   StatusCompleted,
	} {
		if task, _ := q.Store().Get(id); task.Status != want {
			t.Errorf("task %s status = %s, want %s", id, task.Status, want)
		}
	}
}

func TestStopRejectsNewTasks(t *testing.T) {
	q := New(testLogger(), 1, nil)
	q.SubmitAfter(time.Hour, "compile", "s", func(ctx context.Context) error { return nil })
	q.Stop()

	if _, err := q.Submit("image", "s", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after Stop error = %v", err)
	}
	for _, task := range q.Store().List("") {
		if task.Status != StatusRevoked {
			t.Errorf("task %s status = %s, want revoked", task.ID, task.Status)
		}
	}
}

func TestCleanupRemovesExpiredTasks(t *testing.T) {
	mtp := &mockTimeProvider{currentTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewTaskStore(testLogger(), mtp)
	q := New(testLogger(), 2, store)
	defer q.Stop()

	oldID, _ := q.Submit("image", "s", func(ctx context.Context) error { return nil })
	waitAll(t, q)
	mtp.Add(2 * time.Hour)
	newID, _ := q.Submit("image", "s", func(ctx context.Context) error { return nil })
	waitAll(t, q)

	if removed := store.performCleanup(time.Hour); removed != 1 {
		t.Errorf("performCleanup() removed %d, want 1", removed)
	}
	if _, ok := store.Get(oldID); ok {
		t.Error("expired task still stored")
	}
	if _, ok := store.Get(newID); !ok {
		t.Error("recent task removed")
	}
}

func TestConcurrentSubmits(t *testing.T) {
	q := New(testLogger(), 4, nil)
	defer q.Stop()

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Submit("voice", "s", func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()
	waitAll(t, q)

	if got := count.Load(); got != 100 {
		t.Errorf("ran %d tasks, want 100", got)
	}
}

func TestAwaitReturnsFinalRecord(t *testing.T) {
	q := New(testLogger(), 1, nil)
	defer q.Stop()

	release := make(chan struct{})
	id, _ := q.Submit("preview", "s", func(ctx context.Context) error {
		<-release
		return errors.New("encode failed")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	if _, err := q.Await(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() on a running task error = %v", err)
	}
	cancel()

	close(release)
	task, err := q.Await(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusFailed || task.ErrorMessage != "encode failed" {
		t.Errorf("unexpected task %+v", task)
	}

	// Finished tasks are answered from the store.
	if again, err := q.Await(context.Background(), id); err != nil || again.Status != StatusFailed {
		t.Errorf("second Await() = %+v, %v", again, err)
	}
	if _, err := q.Await(context.Background(), "unknown"); err == nil {
		t.Error("expected error for unknown task")
	}
}
