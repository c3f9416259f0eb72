package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serisow/craftvid/script_type"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks a script that cannot be stored as given.
	ErrInvalid = errors.New("invalid script")
)

// Repository persists scripts, scenes, compiled videos and channels.
type Repository interface {
	// SaveScript creates a script or updates the text of an existing one.
	// An update keeps the stored assets and compiled video and fails with
	// ErrInvalid when it drops a scene or moves one to another ordinal.
	SaveScript(ctx context.Context, s *script_type.Script) error
	// GetScript returns the script with its scenes sorted by ordinal.
	GetScript(ctx context.Context, id string) (*script_type.Script, error)
	GetScene(ctx context.Context, id string) (*script_type.Scene, error)
	// SetSceneAsset attaches ref to a scene component. A nil ref detaches.
	SetSceneAsset(ctx context.Context, sceneID string, component script_type.Component, ref *script_type.AssetRef) error
	SetCompiledVideo(ctx context.Context, cv *script_type.CompiledVideo) error

	SaveChannel(ctx context.Context, ch *script_type.Channel) error
	GetChannel(ctx context.Context, id string) (*script_type.Channel, error)

	// RequestCompile marks a script as waiting for its final compile.
	RequestCompile(ctx context.Context, scriptID string, at time.Time) error
	ClearCompileRequest(ctx context.Context, scriptID string) error
	// PendingCompiles lists scripts with an open compile request.
	PendingCompiles(ctx context.Context) ([]string, error)
}

func checkOrdinals(s *script_type.Script) error {
	seen := make(map[int]bool, len(s.Scenes))
	for _, sc := range s.Scenes {
		if seen[sc.Ordinal] {
			return fmt.Errorf("duplicate scene ordinal %d in script %s: %w", sc.Ordinal, s.ID, ErrInvalid)
		}
		seen[sc.Ordinal] = true
	}
	return nil
}

// keepStored carries the generated assets and compiled video of stored over
// to next. Scenes may be added but never dropped or moved.
func keepStored(next, stored *script_type.Script) error {
	byID := make(map[string]*script_type.Scene, len(next.Scenes))
	for i := range next.Scenes {
		byID[next.Scenes[i].ID] = &next.Scenes[i]
	}
	for _, old := range stored.Scenes {
		sc, ok := byID[old.ID]
		if !ok {
			return fmt.Errorf("scene %s cannot be removed from script %s: %w", old.ID, stored.ID, ErrInvalid)
		}
		if sc.Ordinal != old.Ordinal {
			return fmt.Errorf("scene %s cannot move from ordinal %d to %d: %w", old.ID, old.Ordinal, sc.Ordinal, ErrInvalid)
		}
		sc.Image, sc.Voice, sc.Preview = old.Image, old.Voice, old.Preview
	}
	next.CompiledVideo = stored.CompiledVideo
	return nil
}

func cloneScript(s *script_type.Script) *script_type.Script {
	out := *s
	out.Scenes = make([]script_type.Scene, len(s.Scenes))
	for i := range s.Scenes {
		out.Scenes[i] = cloneScene(s.Scenes[i])
	}
	if s.CompiledVideo != nil {
		cv := *s.CompiledVideo
		out.CompiledVideo = &cv
	}
	return &out
}

func cloneScene(sc script_type.Scene) script_type.Scene {
	if sc.EffectParams != nil {
		params := make(map[string]interface{}, len(sc.EffectParams))
		for k, v := range sc.EffectParams {
			params[k] = v
		}
		sc.EffectParams = params
	}
	return sc
}
