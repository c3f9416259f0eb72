package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/serisow/craftvid/orchestrator"
	"github.com/serisow/craftvid/script_type"
)

// PendingSource lists scripts with an open compile request.
type PendingSource interface {
	PendingCompiles(ctx context.Context) ([]string, error)
}

type Compiler interface {
	Compile(ctx context.Context, scriptID string, opts orchestrator.CompileOptions) (*script_type.CompiledVideo, error)
}

// Scheduler periodically retries compile requests that were left pending,
// typically because a scene completed after the batch had settled.
type Scheduler struct {
	logger        *slog.Logger
	checkInterval time.Duration
	source        PendingSource
	compiler      Compiler

	// running prevents two sweeps from compiling the same script at once.
	running sync.Map
	wg      sync.WaitGroup
}

func New(logger *slog.Logger, checkInterval time.Duration, source PendingSource, compiler Compiler) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &Scheduler{
		logger:        logger,
		checkInterval: checkInterval,
		source:        source,
		compiler:      compiler,
	}
}

// Start sweeps every check interval until ctx is done, then waits for the
// compiles it started.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting compile scheduler", slog.Duration("check_interval", s.checkInterval))
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Error fetching pending compiles", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("Compile scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep starts a compile for every pending script not already being
// compiled by this scheduler.
func (s *Scheduler) Sweep(ctx context.Context) error {
	ids, err := s.source.PendingCompiles(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, loaded := s.running.LoadOrStore(id, struct{}{}); loaded {
			continue
		}
		s.wg.Add(1)
		go s.compile(ctx, id)
	}
	return nil
}

func (s *Scheduler) compile(ctx context.Context, scriptID string) {
	defer s.wg.Done()
	defer s.running.Delete(scriptID)

	cv, err := s.compiler.Compile(ctx, scriptID, orchestrator.CompileOptions{})
	switch {
	case err == nil:
		s.logger.Info("Pending compile succeeded", slog.String("script_id", scriptID), slog.String("path", cv.Path))
	case errors.Is(err, orchestrator.ErrNotReady), errors.Is(err, orchestrator.ErrCompileInProgress):
		s.logger.Debug("Pending compile skipped", slog.String("script_id", scriptID), slog.String("reason", err.Error()))
	default:
		s.logger.Error("Pending compile failed", slog.String("script_id", scriptID), slog.String("error", err.Error()))
	}
}

// Wait blocks until every compile started by Sweep has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
