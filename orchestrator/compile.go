package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/serisow/craftvid/notify"
	"github.com/serisow/craftvid/repository"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/status"
	"github.com/serisow/craftvid/video"
)

// ScheduleCompile records a compile request and queues a compile attempt
// once the settle delay has passed.
func (o *Orchestrator) ScheduleCompile(ctx context.Context, scriptID string, opts CompileOptions) error {
	if err := o.repo.RequestCompile(ctx, scriptID, time.Now()); err != nil {
		return fmt.Errorf("failed to record compile request: %w", err)
	}
	return o.queueCompile(scriptID, opts, 0)
}

func (o *Orchestrator) queueCompile(scriptID string, opts CompileOptions, rearm int) error {
	_, err := o.queue.SubmitAfter(o.cfg.CompileSettle, string(notify.TaskCompile), scriptID, func(ctx context.Context) error {
		return o.tryCompile(ctx, scriptID, opts, rearm)
	})
	return err
}

// tryCompile compiles when every scene is completed. While units are still
// in flight the attempt is re-armed a bounded number of times; otherwise the
// request stays pending for the compile sweeper.
func (o *Orchestrator) tryCompile(ctx context.Context, scriptID string, opts CompileOptions, rearm int) error {
	_, err := o.Compile(ctx, scriptID, opts)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotReady) && !errors.Is(err, ErrCompileInProgress) {
		return err
	}

	busy := errors.Is(err, ErrCompileInProgress)
	if !busy {
		busy, err = o.inFlight(ctx, scriptID)
		if err != nil {
			return err
		}
	}
	if busy && rearm < o.cfg.MaxCompileRearms {
		o.logger.Info("Compile not ready, re-arming",
			slog.String("script_id", scriptID),
			slog.Int("rearm", rearm+1))
		return o.queueCompile(scriptID, opts, rearm+1)
	}
	o.logger.Info("Compile left pending", slog.String("script_id", scriptID))
	return nil
}

// inFlight reports whether any component of the script is queued,
// processing or waiting out a rate limit.
func (o *Orchestrator) inFlight(ctx context.Context, scriptID string) (bool, error) {
	script, err := o.repo.GetScript(ctx, scriptID)
	if err != nil {
		return false, err
	}
	snaps, err := o.tracker.Snapshot(ctx, script.SceneIDs())
	if err != nil {
		return false, err
	}
	for _, s := range snaps {
		for _, rec := range s.Components {
			switch rec.State {
			case status.StateQueued, status.StateProcessing, status.StateRateLimited:
				return true, nil
			}
		}
	}
	return false, nil
}

// Compile renders the final video of a script. It fails with ErrNotReady
// unless every scene is completed and with ErrCompileInProgress when a
// compile of the same script is already running.
func (o *Orchestrator) Compile(ctx context.Context, scriptID string, opts CompileOptions) (*script_type.CompiledVideo, error) {
	if _, running := o.compiling.LoadOrStore(scriptID, true); running {
		return nil, ErrCompileInProgress
	}
	defer o.compiling.Delete(scriptID)

	script, err := o.repo.GetScript(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	ready, err := o.tracker.CanCompile(ctx, script.SceneIDs())
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, ErrNotReady
	}

	if opts.Quality == "" {
		opts.Quality = o.cfg.Quality
	}
	if opts.Format == "" {
		opts.Format = o.cfg.Format
	}

	o.logger.Info("Compile started", slog.String("script_id", scriptID), slog.Int("scenes", len(script.Scenes)))
	o.publisher.Publish(ctx, compileEvent(script.WorkspaceID, scriptID, "processing", 0, ""))

	var last int
	cv, err := o.renderer.CompileScript(ctx, script, video.CompileOptions{
		Quality:         opts.Quality,
		Format:          opts.Format,
		Watermark:       opts.Watermark,
		BackgroundAudio: opts.BackgroundAudio,
		Channel:         o.channel(ctx, script.ChannelID),
		Intro:           opts.Intro,
		Outro:           opts.Outro,
		Progress: func(percent float64) {
			p := int(percent)
			if p-last < 10 {
				return
			}
			last = p
			o.publisher.Publish(ctx, compileEvent(script.WorkspaceID, scriptID, "processing", p, ""))
		},
	})
	if err != nil {
		o.logger.Error("Compile failed", slog.String("script_id", scriptID), slog.String("error", err.Error()))
		o.publisher.Publish(ctx, compileEvent(script.WorkspaceID, scriptID, "failed", 100, err.Error()))
		return nil, err
	}

	if thumb, err := o.renderer.Thumbnail(ctx, cv); err != nil {
		o.logger.Warn("Failed to extract thumbnail", slog.String("script_id", scriptID), slog.String("error", err.Error()))
	} else {
		cv.Thumbnail = thumb
	}

	if err := o.repo.SetCompiledVideo(ctx, cv); err != nil {
		o.storage.Remove(cv.Path)
		if cv.Thumbnail != "" {
			o.storage.Remove(cv.Thumbnail)
		}
		return nil, fmt.Errorf("failed to store compiled video: %w", err)
	}
	if prev := script.CompiledVideo; prev != nil {
		for _, path := range []string{prev.Path, prev.Thumbnail} {
			if path == "" || path == cv.Path || path == cv.Thumbnail {
				continue
			}
			if err := o.storage.Remove(path); err != nil {
				o.logger.Warn("Failed to remove superseded compile output", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
	}
	if err := o.repo.ClearCompileRequest(ctx, scriptID); err != nil {
		o.logger.Warn("Failed to clear compile request", slog.String("script_id", scriptID), slog.String("error", err.Error()))
	}

	o.publisher.Publish(ctx, compileEvent(script.WorkspaceID, scriptID, "completed", 100, cv.Path))
	return cv, nil
}

// CancelResult lists what a cancellation stopped.
type CancelResult struct {
	RevokedTasks []string `json:"revoked_tasks"`
	Cancelled    int      `json:"cancelled_components"`
}

// Cancel revokes every outstanding task of a script, marks its in-flight
// components cancelled and withdraws a pending compile request.
func (o *Orchestrator) Cancel(ctx context.Context, scriptID string) (*CancelResult, error) {
	script, err := o.repo.GetScript(ctx, scriptID)
	if err != nil {
		return nil, err
	}

	res := &CancelResult{RevokedTasks: o.queue.RevokeKey(scriptID)}
	for _, sc := range script.Scenes {
		for _, c := range script_type.Components {
			ok, err := o.tracker.Update(ctx, sc.ID, c, status.StateCancelled, nil)
			if err != nil {
				return nil, err
			}
			if ok {
				res.Cancelled++
			}
		}
	}
	if err := o.repo.ClearCompileRequest(ctx, scriptID); err != nil {
		return nil, err
	}

	o.logger.Info("Script cancelled",
		slog.String("script_id", scriptID),
		slog.Int("revoked_tasks", len(res.RevokedTasks)),
		slog.Int("cancelled_components", res.Cancelled))
	o.publisher.Publish(ctx, notify.Event{
		WorkspaceID: script.WorkspaceID,
		TaskType:    notify.TaskBatch,
		Status:      string(status.StateCancelled),
		Progress:    100,
		EntityID:    scriptID,
		Timestamp:   time.Now(),
	})
	return res, nil
}

// CancelComponent revokes the task of one scene component and marks it
// cancelled. It returns false when the component was not in flight.
func (o *Orchestrator) CancelComponent(ctx context.Context, sceneID string, c script_type.Component) (bool, error) {
	if _, err := o.repo.GetScene(ctx, sceneID); err != nil {
		return false, err
	}
	rec, err := o.tracker.Get(ctx, sceneID, c)
	if err != nil {
		return false, err
	}
	if rec.TaskID != "" {
		o.queue.Revoke(rec.TaskID)
	}
	return o.tracker.Update(ctx, sceneID, c, status.StateCancelled, nil)
}

// Reset clears a component back to pending so it can be generated again.
func (o *Orchestrator) Reset(ctx context.Context, sceneID string, c script_type.Component) error {
	if _, err := o.repo.GetScene(ctx, sceneID); err != nil {
		return err
	}
	return o.tracker.Reset(ctx, sceneID, c)
}

// SaveScript stores a script. When it updates an existing one, a scene whose
// narration changed gets its voice reset to pending and a scene whose visual
// prompt changed gets its image reset, so stale assets cannot be compiled.
func (o *Orchestrator) SaveScript(ctx context.Context, s *script_type.Script) (*script_type.Script, error) {
	stored, err := o.repo.GetScript(ctx, s.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err := o.repo.SaveScript(ctx, s); err != nil {
		return nil, err
	}
	if stored != nil {
		edited := make(map[string]script_type.Scene, len(s.Scenes))
		for _, sc := range s.Scenes {
			edited[sc.ID] = sc
		}
		for _, old := range stored.Scenes {
			sc := edited[old.ID]
			var stale []script_type.Component
			if sc.Narration != old.Narration {
				stale = append(stale, script_type.ComponentVoice)
			}
			if sc.VisualPrompt != old.VisualPrompt {
				stale = append(stale, script_type.ComponentImage)
			}
			for _, c := range stale {
				if err := o.tracker.Reset(ctx, old.ID, c); err != nil {
					return nil, err
				}
			}
		}
	}
	return o.repo.GetScript(ctx, s.ID)
}

// Status returns the per-scene status of a script in ordinal order.
func (o *Orchestrator) Status(ctx context.Context, scriptID string) ([]status.SceneSnapshot, error) {
	script, err := o.repo.GetScript(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	return o.tracker.Snapshot(ctx, script.SceneIDs())
}

// QueueCompile checks that a script can be compiled and queues the compile
// right away. It returns the queue task id.
func (o *Orchestrator) QueueCompile(ctx context.Context, scriptID string, opts CompileOptions) (string, error) {
	script, err := o.repo.GetScript(ctx, scriptID)
	if err != nil {
		return "", err
	}
	ready, err := o.tracker.CanCompile(ctx, script.SceneIDs())
	if err != nil {
		return "", err
	}
	if !ready {
		return "", ErrNotReady
	}
	if _, running := o.compiling.Load(scriptID); running {
		return "", ErrCompileInProgress
	}
	return o.queue.Submit(string(notify.TaskCompile), scriptID, func(ctx context.Context) error {
		_, err := o.Compile(ctx, scriptID, opts)
		return err
	})
}
