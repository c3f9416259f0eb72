package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/serisow/craftvid/script_type"
)

func testScript() *script_type.Script {
	return &script_type.Script{
		ID:          "script-1",
		WorkspaceID: "w1",
		Title:       "Test",
		Scenes: []script_type.Scene{
			{ID: "c", Ordinal: 30, EffectParams: map[string]interface{}{"zoom_ratio": 0.2}},
			{ID: "a", Ordinal: 1},
			{ID: "b", Ordinal: 7},
		},
	}
}

func TestMemoryScriptsAreSortedCopies(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()
	if err := repo.SaveScript(ctx, testScript()); err != nil {
		t.Fatal(err)
	}

	s, err := repo.GetScript(ctx, "script-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.SceneIDs(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("scene order = %v", got)
	}
	if s.Scenes[0].ScriptID != "script-1" {
		t.Errorf("scene script id = %q", s.Scenes[0].ScriptID)
	}

	s.Scenes[2].EffectParams["zoom_ratio"] = 0.9
	s.Title = "changed"
	again, _ := repo.GetScript(ctx, "script-1")
	if again.Title != "Test" || again.Scenes[2].EffectParams["zoom_ratio"] != 0.2 {
		t.Error("mutating a returned script changed the stored copy")
	}
}

func TestMemoryRejectsDuplicateOrdinals(t *testing.T) {
	s := testScript()
	s.Scenes[1].Ordinal = 7
	if err := NewMemory().SaveScript(context.Background(), s); !errors.Is(err, ErrInvalid) {
		t.Errorf("SaveScript() error = %v, want ErrInvalid", err)
	}
}

func TestMemoryNotFound(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	_, err := repo.GetScript(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetScript() error = %v", err)
	}
	if _, err := repo.GetScene(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetScene() error = %v", err)
	}
	if _, err := repo.GetChannel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetChannel() error = %v", err)
	}
	if err := repo.RequestCompile(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("RequestCompile() error = %v", err)
	}
}

func TestMemorySceneAssets(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()
	repo.SaveScript(ctx, testScript())

	ref := &script_type.AssetRef{Path: "image/script-1/b.png", Kind: script_type.AssetImage}
	if err := repo.SetSceneAsset(ctx, "b", script_type.ComponentImage, ref); err != nil {
		t.Fatal(err)
	}
	sc, err := repo.GetScene(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if sc.Image == nil || sc.Image.Path != ref.Path {
		t.Errorf("image = %+v", sc.Image)
	}

	cv := &script_type.CompiledVideo{ID: "v1", ScriptID: "script-1", Path: "compiled/script-1/v1.mp4"}
	if err := repo.SetCompiledVideo(ctx, cv); err != nil {
		t.Fatal(err)
	}
	s, _ := repo.GetScript(ctx, "script-1")
	if s.CompiledVideo == nil || s.CompiledVideo.ID != "v1" {
		t.Errorf("compiled video = %+v", s.CompiledVideo)
	}
}

func TestMemoryUpdateKeepsGeneratedOutput(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()
	repo.SaveScript(ctx, testScript())
	image := &script_type.AssetRef{Path: "image/script-1/a.png", Kind: script_type.AssetImage}
	repo.SetSceneAsset(ctx, "a", script_type.ComponentImage, image)
	repo.SetCompiledVideo(ctx, &script_type.CompiledVideo{ID: "v1", ScriptID: "script-1"})

	update := testScript()
	update.Scenes[1].Narration = "edited"
	update.Scenes[1].Image = &script_type.AssetRef{Path: "/etc/passwd"}
	update.Scenes = append(update.Scenes, script_type.Scene{ID: "d", Ordinal: 40})
	if err := repo.SaveScript(ctx, update); err != nil {
		t.Fatal(err)
	}

	s, _ := repo.GetScript(ctx, "script-1")
	if s.Scenes[0].Narration != "edited" {
		t.Errorf("narration = %q", s.Scenes[0].Narration)
	}
	if s.Scenes[0].Image == nil || s.Scenes[0].Image.Path != image.Path {
		t.Errorf("image = %+v, want the stored one", s.Scenes[0].Image)
	}
	if s.CompiledVideo == nil || s.CompiledVideo.ID != "v1" {
		t.Errorf("compiled video = %+v", s.CompiledVideo)
	}
	if len(s.Scenes) != 4 {
		t.Errorf("scenes = %v", s.SceneIDs())
	}
}

func TestMemoryRejectsDestructiveUpdates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*script_type.Script)
	}{
		{name: "scene removed", mutate: func(s *script_type.Script) { s.Scenes = s.Scenes[1:] }},
		{name: "ordinal changed", mutate: func(s *script_type.Script) { s.Scenes[0].Ordinal = 31 }},
		{name: "scene of another script", mutate: func(s *script_type.Script) {
			s.Scenes = append(s.Scenes, script_type.Scene{ID: "other-1", Ordinal: 50})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemory()
			ctx := context.Background()
			repo.SaveScript(ctx, testScript())
			repo.SaveScript(ctx, &script_type.Script{ID: "other", Scenes: []script_type.Scene{{ID: "other-1", Ordinal: 1}}})

			update := testScript()
			tt.mutate(update)
			if err := repo.SaveScript(ctx, update); !errors.Is(err, ErrInvalid) {
				t.Fatalf("SaveScript() error = %v, want ErrInvalid", err)
			}
			s, _ := repo.GetScript(ctx, "script-1")
			if got := s.SceneIDs(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
				t.Errorf("stored scenes = %v", got)
			}
			if _, err := repo.GetScene(ctx, "other-1"); err != nil {
				t.Errorf("scene of the other script lost: %v", err)
			}
		})
	}
}

func TestMemoryPendingCompiles(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"s2", "s1", "s3"} {
		repo.SaveScript(ctx, &script_type.Script{ID: id})
		repo.RequestCompile(ctx, id, base.Add(time.Duration(i)*time.Minute))
	}
	repo.ClearCompileRequest(ctx, "s1")

	got, _ := repo.PendingCompiles(ctx)
	if !reflect.DeepEqual(got, []string{"s2", "s3"}) {
		t.Errorf("PendingCompiles() = %v", got)
	}
}
