package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/serisow/craftvid/script_type"
)

const maxCASAttempts = 16

// SceneSnapshot is the status view of one scene.
type SceneSnapshot struct {
	SceneID    string                           `json:"scene_id"`
	State      State                            `json:"state"`
	Components map[script_type.Component]Record `json:"components"`
}

// Tracker owns every status transition. All writes go through
// compare-and-swap on the record version, so concurrent writers never
// overwrite each other silently.
type Tracker struct {
	logger   *slog.Logger
	store    Store
	required []script_type.Component
	now      func() time.Time
}

func NewTracker(logger *slog.Logger, store Store) *Tracker {
	return &Tracker{
		logger:   logger,
		store:    store,
		required: script_type.Components,
		now:      time.Now,
	}
}

// Update moves a component to state. It returns false, without error, when
// the transition is not allowed from the current state. errInfo is kept
// only for failed and rate-limited states.
func (t *Tracker) Update(ctx context.Context, sceneID string, component script_type.Component, state State, errInfo *ErrorInfo) (bool, error) {
	return t.apply(ctx, sceneID, component, func(rec *Record) bool {
		if !CanTransition(rec.State, state) {
			return false
		}
		rec.State = state
		rec.Error = nil
		if state == StateFailed || state == StateRateLimited {
			rec.Error = errInfo
		}
		return true
	})
}

// SetTaskID records the queue task currently handling a component.
func (t *Tracker) SetTaskID(ctx context.Context, sceneID string, component script_type.Component, taskID string) error {
	_, err := t.apply(ctx, sceneID, component, func(rec *Record) bool {
		rec.TaskID = taskID
		return true
	})
	return err
}

// Reset forces a component back to pending, whatever its state. It is the
// operator override out of cancelled.
func (t *Tracker) Reset(ctx context.Context, sceneID string, component script_type.Component) error {
	_, err := t.apply(ctx, sceneID, component, func(rec *Record) bool {
		rec.State = StatePending
		rec.Error = nil
		rec.TaskID = ""
		return true
	})
	if err == nil {
		t.logger.Info("Generation status reset",
			slog.String("scene_id", sceneID),
			slog.String("component", string(component)))
	}
	return err
}

// Invalidate moves a completed component back to pending. It returns false
// when the component was not completed.
func (t *Tracker) Invalidate(ctx context.Context, sceneID string, component script_type.Component) (bool, error) {
	return t.apply(ctx, sceneID, component, func(rec *Record) bool {
		if rec.State != StateCompleted {
			return false
		}
		rec.State = StatePending
		rec.Error = nil
		rec.TaskID = ""
		return true
	})
}

func (t *Tracker) apply(ctx context.Context, sceneID string, component script_type.Component, mutate func(*Record) bool) (bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		rec, err := t.store.Get(ctx, sceneID, component)
		if err != nil {
			return false, fmt.Errorf("failed to load status of %s/%s: %w", sceneID, component, err)
		}
		from := rec.State
		expected := rec.Version
		rec.SceneID = sceneID
		rec.Component = component
		if !mutate(&rec) {
			return false, nil
		}
		rec.UpdatedAt = t.now()

		ok, err := t.store.CompareAndSwap(ctx, rec, expected)
		if err != nil {
			return false, fmt.Errorf("failed to store status of %s/%s: %w", sceneID, component, err)
		}
		if ok {
			if from != rec.State {
				t.logger.Debug("Generation status changed",
					slog.String("scene_id", sceneID),
					slog.String("component", string(component)),
					slog.String("from", string(from)),
					slog.String("to", string(rec.State)))
			}
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	return false, ErrConflict
}

// Get returns the record of one component.
func (t *Tracker) Get(ctx context.Context, sceneID string, component script_type.Component) (Record, error) {
	rec, err := t.store.Get(ctx, sceneID, component)
	if err != nil {
		return Record{}, err
	}
	rec.SceneID, rec.Component = sceneID, component
	return rec, nil
}

// Snapshot returns the per-component records and derived state of each
// scene, in the order given.
func (t *Tracker) Snapshot(ctx context.Context, sceneIDs []string) ([]SceneSnapshot, error) {
	records, err := t.store.List(ctx, sceneIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	byScene := make(map[string]map[script_type.Component]Record, len(sceneIDs))
	for _, rec := range records {
		if byScene[rec.SceneID] == nil {
			byScene[rec.SceneID] = make(map[script_type.Component]Record)
		}
		byScene[rec.SceneID][rec.Component] = rec
	}

	out := make([]SceneSnapshot, 0, len(sceneIDs))
	for _, id := range sceneIDs {
		comps := make(map[script_type.Component]Record, len(t.required))
		states := make(map[script_type.Component]State, len(t.required))
		for _, c := range t.required {
			rec, ok := byScene[id][c]
			if !ok {
				rec = Record{SceneID: id, Component: c, State: StatePending}
			}
			comps[c] = rec
			states[c] = rec.State
		}
		out = append(out, SceneSnapshot{
			SceneID:    id,
			State:      Aggregate(states, t.required),
			Components: comps,
		})
	}
	return out, nil
}

// SceneStatus returns the aggregate state of a scene.
func (t *Tracker) SceneStatus(ctx context.Context, sceneID string) (State, error) {
	snaps, err := t.Snapshot(ctx, []string{sceneID})
	if err != nil {
		return "", err
	}
	return snaps[0].State, nil
}

// CanCompile reports whether every scene is completed. An empty set cannot
// be compiled.
func (t *Tracker) CanCompile(ctx context.Context, sceneIDs []string) (bool, error) {
	if len(sceneIDs) == 0 {
		return false, nil
	}
	snaps, err := t.Snapshot(ctx, sceneIDs)
	if err != nil {
		return false, err
	}
	for _, s := range snaps {
		if s.State != StateCompleted {
			return false, nil
		}
	}
	return true, nil
}
