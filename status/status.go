package status

import (
	"context"
	"errors"
	"time"

	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/script_type"
)

// State is the generation state of one scene component.
type State string

const (
	StatePending     State = "pending"
	StateQueued      State = "queued"
	StateProcessing  State = "processing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateRateLimited State = "rate_limited"
	StateCancelled   State = "cancelled"
)

// States lists every state.
var States = []State{
	StatePending, StateQueued, StateProcessing, StateCompleted,
	StateFailed, StateRateLimited, StateCancelled,
}

// transitions lists the allowed target states per source state. Cancelled
// is terminal; only Reset leaves it.
var transitions = map[State][]State{
	StatePending:     {StateQueued, StateProcessing},
	StateQueued:      {StateProcessing, StateCancelled},
	StateProcessing:  {StateCompleted, StateFailed, StateRateLimited, StateCancelled},
	StateRateLimited: {StateQueued, StateProcessing, StateCancelled},
	StateCompleted:   {StateQueued, StateProcessing},
	StateFailed:      {StateQueued, StateProcessing},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrorInfo is the error exposed on a status record.
type ErrorInfo struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
	// RetryAfter is the provider hint in seconds.
	RetryAfter float64 `json:"retry_after,omitempty"`
}

// ErrorFromFailure converts an error into the exposed status error.
func ErrorFromFailure(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: failure.KindOf(err), Message: err.Error()}
	if after, ok := failure.RetryAfterOf(err); ok {
		info.RetryAfter = after.Seconds()
	}
	return info
}

// Record is the stored status of one (scene, component) pair. Version
// increases on every write; zero means the record was never written.
type Record struct {
	SceneID   string                `json:"scene_id"`
	Component script_type.Component `json:"component"`
	State     State                 `json:"state"`
	Error     *ErrorInfo            `json:"error,omitempty"`
	TaskID    string                `json:"task_id,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
	Version   int64                 `json:"-"`
}

// ErrConflict is returned when a compare-and-swap keeps losing to
// concurrent writers.
var ErrConflict = errors.New("status update conflict")

// Store persists status records.
type Store interface {
	// Get returns the record, or a pending record with version 0 when none
	// exists.
	Get(ctx context.Context, sceneID string, component script_type.Component) (Record, error)
	// List returns every stored record of the given scenes.
	List(ctx context.Context, sceneIDs []string) ([]Record, error)
	// CompareAndSwap writes rec if the stored version equals expected. A
	// successful write stores rec with version expected+1.
	CompareAndSwap(ctx context.Context, rec Record, expected int64) (bool, error)
}

// Aggregate derives a scene state from its component states. Missing
// components count as pending.
//
//	failed      if any component failed
//	completed   if every required component completed
//	processing  if any component is queued or processing
//	pending     otherwise (rate limited and cancelled count as pending)
func Aggregate(states map[script_type.Component]State, required []script_type.Component) State {
	for _, s := range states {
		if s == StateFailed {
			return StateFailed
		}
	}

	all := len(required) > 0
	for _, c := range required {
		if states[c] != StateCompleted {
			all = false
			break
		}
	}
	if all {
		return StateCompleted
	}

	for _, s := range states {
		switch s {
		case StateQueued, StateProcessing:
			return StateProcessing
		}
	}
	return StatePending
}
