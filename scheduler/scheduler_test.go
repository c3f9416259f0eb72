package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/serisow/craftvid/orchestrator"
	"github.com/serisow/craftvid/script_type"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticSource struct {
	ids []string
	err error
}

func (s staticSource) PendingCompiles(ctx context.Context) ([]string, error) {
	return s.ids, s.err
}

type fakeCompiler struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]error
	gate    chan struct{}
}

func (c *fakeCompiler) Compile(ctx context.Context, scriptID string, opts orchestrator.CompileOptions) (*script_type.CompiledVideo, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[scriptID]++
	if err := c.results[scriptID]; err != nil {
		return nil, err
	}
	return &script_type.CompiledVideo{ID: "cv", ScriptID: scriptID, Path: "compiled/" + scriptID + ".mp4"}, nil
}

func (c *fakeCompiler) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func TestSweepCompilesEveryPendingScript(t *testing.T) {
	compiler := &fakeCompiler{results: map[string]error{
		"not-ready": orchestrator.ErrNotReady,
		"broken":    errors.New("encoder crashed"),
	}}
	s := New(testLogger(), time.Minute, staticSource{ids: []string{"ok", "not-ready", "broken"}}, compiler)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	for _, id := range []string{"ok", "not-ready", "broken"} {
		if got := compiler.count(id); got != 1 {
			t.Errorf("%s compiled %d times, want 1", id, got)
		}
	}
}

func TestSweepSkipsScriptsAlreadyCompiling(t *testing.T) {
	compiler := &fakeCompiler{gate: make(chan struct{})}
	s := New(testLogger(), time.Minute, staticSource{ids: []string{"s1"}}, compiler)

	s.Sweep(context.Background())
	s.Sweep(context.Background())
	close(compiler.gate)
	s.Wait()

	if got := compiler.count("s1"); got != 1 {
		t.Errorf("compiled %d times, want 1", got)
	}

	// Once finished, the next sweep compiles again.
	s.Sweep(context.Background())
	s.Wait()
	if got := compiler.count("s1"); got != 2 {
		t.Errorf("compiled %d times after second sweep, want 2", got)
	}
}

func TestSweepReturnsSourceError(t *testing.T) {
	want := errors.New("database down")
	s := New(testLogger(), time.Minute, staticSource{err: want}, &fakeCompiler{})
	if err := s.Sweep(context.Background()); !errors.Is(err, want) {
		t.Errorf("Sweep() error = %v", err)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	compiler := &fakeCompiler{}
	s := New(testLogger(), 5*time.Millisecond, staticSource{ids: []string{"s1"}}, compiler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for compiler.count("s1") < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if compiler.count("s1") < 2 {
		t.Errorf("expected repeated sweeps, got %d", compiler.count("s1"))
	}
}
