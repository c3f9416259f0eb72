package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/notify"
	"github.com/serisow/craftvid/plugin_registry"
	"github.com/serisow/craftvid/queue"
	"github.com/serisow/craftvid/repository"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/services/provider_service"
	"github.com/serisow/craftvid/status"
	"github.com/serisow/craftvid/storage"
)

// Orchestrator drives scene generation through the task queue and records
// every transition with the status tracker.
type Orchestrator struct {
	logger     *slog.Logger
	repo       repository.Repository
	tracker    *status.Tracker
	queue      *queue.Queue
	registry   *plugin_registry.PluginRegistry
	renderer   Renderer
	storage    storage.Storage
	downloader Downloader
	publisher  notify.Publisher
	usage      UsageRecorder
	batches    *BatchStore
	cfg        Config

	// compiling guards against two compiles of the same script.
	compiling sync.Map
}

type Deps struct {
	Repo       repository.Repository
	Tracker    *status.Tracker
	Queue      *queue.Queue
	Registry   *plugin_registry.PluginRegistry
	Renderer   Renderer
	Storage    storage.Storage
	Downloader Downloader
	Publisher  notify.Publisher
	Usage      UsageRecorder
	Batches    *BatchStore
}

func New(logger *slog.Logger, deps Deps, cfg Config) *Orchestrator {
	if deps.Publisher == nil {
		deps.Publisher = notify.Nop{}
	}
	if deps.Usage == nil {
		deps.Usage = LogUsageRecorder{Logger: logger}
	}
	if deps.Batches == nil {
		deps.Batches = NewBatchStore(logger)
	}
	return &Orchestrator{
		logger:     logger,
		repo:       deps.Repo,
		tracker:    deps.Tracker,
		queue:      deps.Queue,
		registry:   deps.Registry,
		renderer:   deps.Renderer,
		storage:    deps.Storage,
		downloader: deps.Downloader,
		publisher:  deps.Publisher,
		usage:      deps.Usage,
		batches:    deps.Batches,
		cfg:        cfg.withDefaults(),
	}
}

func (o *Orchestrator) Tracker() *status.Tracker { return o.tracker }

func (o *Orchestrator) Batches() *BatchStore { return o.batches }

// Task returns the queue record of a task.
func (o *Orchestrator) Task(id string) (queue.Task, bool) {
	return o.queue.Store().Get(id)
}

// batch carries what every unit of one RunBatch call shares.
type batch struct {
	script *script_type.Script
	opts   Options
	report *Report
	speech provider_service.SpeechSynthesizer
	images provider_service.ImageGenerator

	// generated holds the scene/component units this batch completed.
	generated sync.Map
}

func unitKey(sceneID string, c script_type.Component) string {
	return sceneID + "/" + string(c)
}

// RunBatch generates the requested components of every scene of a script
// and waits for them. Per-scene failures land in the report; only upfront
// validation errors are returned.
func (o *Orchestrator) RunBatch(ctx context.Context, scriptID string, opts Options) (*Report, error) {
	b, err := o.prepare(ctx, scriptID, opts)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, b), nil
}

// Submit validates a batch and runs it in the background. The returned id
// resolves through the batch store.
func (o *Orchestrator) Submit(ctx context.Context, scriptID string, opts Options) (string, error) {
	b, err := o.prepare(ctx, scriptID, opts)
	if err != nil {
		return "", err
	}
	id := o.batches.Start(scriptID)
	go func() {
		report := o.run(context.WithoutCancel(ctx), b)
		o.batches.Complete(id, report)
	}()
	return id, nil
}

func (o *Orchestrator) run(ctx context.Context, b *batch) *Report {
	script := b.script

	o.logger.Info("Batch started",
		slog.String("script_id", script.ID),
		slog.Int("scenes", len(script.Scenes)),
		slog.Bool("images", b.opts.GenerateImages),
		slog.Bool("voices", b.opts.GenerateVoices),
		slog.Bool("videos", b.opts.GenerateVideos),
		slog.Bool("final_video", b.opts.CreateFinalVideo))

	var g errgroup.Group
	for i := range script.Scenes {
		scene := &script.Scenes[i]
		regenerating := 0
		if b.opts.GenerateImages {
			regenerating++
			g.Go(func() error {
				o.assetFlow(ctx, b, scene, script_type.ComponentImage)
				return nil
			})
		}
		if b.opts.GenerateVoices {
			regenerating++
			g.Go(func() error {
				o.assetFlow(ctx, b, scene, script_type.ComponentVoice)
				return nil
			})
		}
		if regenerating == 0 && b.opts.GenerateVideos {
			g.Go(func() error {
				o.tryPreview(ctx, b, scene.ID)
				return nil
			})
		}
	}
	g.Wait()

	failed := b.report.failedScenes()
	for _, sc := range script.Scenes {
		if !failed[sc.ID] {
			b.report.ProcessedCount++
		}
	}

	if b.opts.CreateFinalVideo {
		copts := b.opts.Compile
		if copts.Quality == "" {
			copts.Quality = b.opts.Quality
		}
		if copts.Format == "" {
			copts.Format = b.opts.Format
		}
		if err := o.ScheduleCompile(ctx, script.ID, copts); err != nil {
			o.logger.Error("Failed to schedule compile",
				slog.String("script_id", script.ID),
				slog.String("error", err.Error()))
		} else {
			b.report.CompileScheduled = true
		}
	}
	b.report.CompletedAt = time.Now()

	o.publisher.Publish(ctx, notify.Event{
		WorkspaceID: script.WorkspaceID,
		TaskType:    notify.TaskBatch,
		Status:      "completed",
		Progress:    100,
		EntityID:    script.ID,
		Message:     fmt.Sprintf("%d of %d scenes processed", b.report.ProcessedCount, b.report.TotalScenes),
		Timestamp:   b.report.CompletedAt,
	})
	o.logger.Info("Batch finished",
		slog.String("script_id", script.ID),
		slog.Int("processed", b.report.ProcessedCount),
		slog.Int("errors", len(b.report.Errors)))
	return b.report
}

// prepare loads the script and validates the batch. Nothing is dispatched
// when it fails.
func (o *Orchestrator) prepare(ctx context.Context, scriptID string, opts Options) (*batch, error) {
	script, err := o.repo.GetScript(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if len(script.Scenes) == 0 {
		return nil, &ValidationError{Message: fmt.Sprintf("script %s has no scenes", scriptID)}
	}
	if !opts.GenerateImages && !opts.GenerateVoices && !opts.GenerateVideos && !opts.CreateFinalVideo {
		return nil, &ValidationError{Message: "nothing to generate"}
	}

	opts = o.withDefaults(opts)
	b := &batch{
		script: script,
		opts:   opts,
		report: &Report{ScriptID: script.ID, TotalScenes: len(script.Scenes), Errors: []ReportError{}, StartedAt: time.Now()},
	}
	if opts.GenerateImages {
		if b.images, err = o.registry.ConfiguredImageService(opts.ImageProvider); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
	}
	if opts.GenerateVoices {
		if b.speech, err = o.registry.ConfiguredSpeechService(opts.SpeechProvider); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		if opts.Voice.ID == "" {
			return nil, &ValidationError{Message: "a voice profile is required"}
		}
	}
	if opts.GenerateVideos || opts.CreateFinalVideo {
		if _, err := o.renderer.Presets().Lookup(opts.Quality); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
	}
	return b, nil
}

func (o *Orchestrator) withDefaults(opts Options) Options {
	if opts.Voice.ID == "" {
		opts.Voice = o.cfg.DefaultVoice
	}
	if opts.Model.ID == "" {
		opts.Model = o.cfg.DefaultModel
	}
	if opts.SpeechProvider == "" {
		opts.SpeechProvider = o.cfg.SpeechProvider
	}
	if opts.ImageProvider == "" {
		opts.ImageProvider = o.cfg.ImageProvider
	}
	if opts.Quality == "" {
		opts.Quality = o.cfg.Quality
	}
	if opts.Format == "" {
		opts.Format = o.cfg.Format
	}
	if opts.Quality == "" {
		opts.Quality = "medium"
	}
	return opts
}

// assetFlow generates one image or voice asset and, when it completes,
// offers the scene to the preview gate.
func (o *Orchestrator) assetFlow(ctx context.Context, b *batch, scene *script_type.Scene, c script_type.Component) {
	var work unitFunc
	switch c {
	case script_type.ComponentImage:
		work = o.imageWork(b, scene)
	case script_type.ComponentVoice:
		work = o.voiceWork(b, scene)
	}
	if !o.execute(ctx, b, scene, c, work, false) {
		return
	}
	b.generated.Store(unitKey(scene.ID, c), true)
	if b.opts.GenerateVideos {
		o.tryPreview(ctx, b, scene.ID)
	}
}

// tryPreview dispatches the preview of a scene when both of its assets are
// ready. The transition of the video component to queued is the gate: of
// several concurrent callers at most one wins it.
func (o *Orchestrator) tryPreview(ctx context.Context, b *batch, sceneID string) {
	scene, err := o.repo.GetScene(ctx, sceneID)
	if err != nil {
		o.logger.Error("Failed to load scene for preview", slog.String("scene_id", sceneID), slog.String("error", err.Error()))
		return
	}
	for _, c := range []script_type.Component{script_type.ComponentImage, script_type.ComponentVoice} {
		if !o.assetReady(b, scene, c) {
			return
		}
	}

	won, err := o.tracker.Update(ctx, scene.ID, script_type.ComponentVideo, status.StateQueued, nil)
	if err != nil {
		o.logger.Error("Failed to queue preview", slog.String("scene_id", scene.ID), slog.String("error", err.Error()))
		return
	}
	if !won {
		return
	}
	o.execute(ctx, b, scene, script_type.ComponentVideo, o.previewWork(b, scene), true)
}

// assetReady reports whether a component can feed a preview. A component
// regenerated by this batch must have completed in this batch; any other
// must already have its file on storage.
func (o *Orchestrator) assetReady(b *batch, scene *script_type.Scene, c script_type.Component) bool {
	regenerated := (c == script_type.ComponentImage && b.opts.GenerateImages) ||
		(c == script_type.ComponentVoice && b.opts.GenerateVoices)
	if regenerated {
		_, ok := b.generated.Load(unitKey(scene.ID, c))
		return ok && scene.Asset(c) != nil
	}
	ref := scene.Asset(c)
	return ref != nil && o.storage.Exists(ref.Path)
}

type unitFunc func(ctx context.Context, taskID string) error

var errNotRunnable = errors.New("component is no longer queued")

// execute runs one unit through the queue until it completes, fails for
// good, is rate limited too often or is revoked. queued is true when the
// caller already moved the component to queued.
func (o *Orchestrator) execute(ctx context.Context, b *batch, scene *script_type.Scene, c script_type.Component, work unitFunc, queued bool) bool {
	if !queued {
		ok, err := o.tracker.Update(ctx, scene.ID, c, status.StateQueued, nil)
		if err != nil {
			b.report.addError(scene, c, err)
			return false
		}
		if !ok {
			rec, _ := o.tracker.Get(ctx, scene.ID, c)
			b.report.addError(scene, c, failure.Cancelled(fmt.Errorf("component is %s and cannot be queued", rec.State)))
			return false
		}
	}

	var delay time.Duration
	for requeues := 0; ; requeues++ {
		var outcome error
		id, err := o.queue.SubmitAfter(delay, string(c), scene.ScriptID, func(jctx context.Context) error {
			outcome = o.attempt(jctx, b, scene, c, work)
			return outcome
		})
		if err != nil {
			o.tracker.Update(ctx, scene.ID, c, status.StateCancelled, nil)
			b.report.addError(scene, c, failure.Cancelled(err))
			return false
		}
		if err := o.tracker.SetTaskID(ctx, scene.ID, c, id); err != nil {
			o.logger.Warn("Failed to record task id", slog.String("task_id", id), slog.String("error", err.Error()))
		}

		task, err := o.queue.Await(ctx, id)
		if err != nil {
			b.report.addError(scene, c, failure.Cancelled(err))
			return false
		}
		if task.Status == queue.StatusRevoked {
			b.report.addError(scene, c, failure.Cancelled(errors.New("task revoked")))
			return false
		}
		if outcome == nil {
			return true
		}

		after, limited := failure.RetryAfterOf(outcome)
		if !limited || requeues >= o.cfg.MaxRateLimitRequeues {
			b.report.addError(scene, c, outcome)
			return false
		}
		if after <= 0 {
			after = o.cfg.RateLimitDelay
		}
		if ok, _ := o.tracker.Update(ctx, scene.ID, c, status.StateQueued, nil); !ok {
			b.report.addError(scene, c, outcome)
			return false
		}
		o.logger.Info("Rate limited, re-queueing",
			slog.String("scene_id", scene.ID),
			slog.String("component", string(c)),
			slog.Duration("after", after))
		delay = after
	}
}

// attempt is the body of a queued unit. Provider errors are retried in
// place; every other outcome is written to the tracker.
func (o *Orchestrator) attempt(ctx context.Context, b *batch, scene *script_type.Scene, c script_type.Component, work unitFunc) error {
	ok, err := o.tracker.Update(ctx, scene.ID, c, status.StateProcessing, nil)
	if err != nil {
		return err
	}
	if !ok {
		return failure.Cancelled(errNotRunnable)
	}
	taskID := o.taskID(ctx, scene.ID, c)
	o.publish(ctx, b, scene, c, taskID, "processing", 10, "")

	for i := 1; ; i++ {
		err := work(ctx, taskID)
		if err == nil {
			if _, err := o.tracker.Update(ctx, scene.ID, c, status.StateCompleted, nil); err != nil {
				return err
			}
			o.publish(ctx, b, scene, c, taskID, "completed", 100, "")
			return nil
		}
		if ctx.Err() != nil {
			return failure.Cancelled(err)
		}

		if failure.IsRetryable(err) && i < o.cfg.RetryAttempts {
			o.logger.Warn("Attempt failed, retrying",
				slog.String("scene_id", scene.ID),
				slog.String("component", string(c)),
				slog.Int("attempt", i),
				slog.Duration("retry_delay", o.cfg.RetryDelay),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return failure.Cancelled(ctx.Err())
			case <-time.After(o.cfg.RetryDelay):
			}
			continue
		}

		state := status.StateFailed
		if _, limited := failure.RetryAfterOf(err); limited {
			state = status.StateRateLimited
		}
		o.tracker.Update(ctx, scene.ID, c, state, status.ErrorFromFailure(err))
		o.publish(ctx, b, scene, c, taskID, string(state), 100, err.Error())
		o.logger.Error("Unit failed",
			slog.String("scene_id", scene.ID),
			slog.String("component", string(c)),
			slog.String("kind", string(failure.KindOf(err))),
			slog.String("error", err.Error()))
		return err
	}
}

func (o *Orchestrator) taskID(ctx context.Context, sceneID string, c script_type.Component) string {
	rec, err := o.tracker.Get(ctx, sceneID, c)
	if err != nil {
		return ""
	}
	return rec.TaskID
}

func (o *Orchestrator) publish(ctx context.Context, b *batch, scene *script_type.Scene, c script_type.Component, taskID, state string, progress int, msg string) {
	o.publisher.Publish(ctx, notify.Event{
		WorkspaceID: b.script.WorkspaceID,
		TaskID:      taskID,
		TaskType:    notify.TaskType(c),
		Status:      state,
		Progress:    notify.ClampProgress(progress),
		Message:     msg,
		EntityID:    scene.ID,
		Timestamp:   time.Now(),
	})
}
