package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/serisow/craftvid/failure"
	"github.com/serisow/craftvid/notify"
	"github.com/serisow/craftvid/repository"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/services/provider_service"
	"github.com/serisow/craftvid/storage"
	"github.com/serisow/craftvid/video"
)

func (o *Orchestrator) imageWork(b *batch, scene *script_type.Scene) unitFunc {
	return func(ctx context.Context, taskID string) error {
		if strings.TrimSpace(scene.VisualPrompt) == "" {
			return &failure.Error{Kind: failure.KindMissingInput, Message: "scene has no visual prompt"}
		}
		res, err := b.images.Generate(ctx, provider_service.ImageRequest{
			Prompt:  scene.VisualPrompt,
			Size:    b.opts.ImageOptions.Size,
			Quality: b.opts.ImageOptions.Quality,
			Style:   b.opts.ImageOptions.Style,
		})
		if err != nil {
			return err
		}
		o.publish(ctx, b, scene, script_type.ComponentImage, taskID, "processing", 60, "image generated")

		rel := storage.AssetPath(script_type.AssetImage, scene.ScriptID, scene.ID, ".png")
		var size int64
		switch {
		case len(res.Data) > 0:
			size, err = storage.Write(o.storage, rel, bytes.NewReader(res.Data))
		case res.URL != "":
			size, err = o.downloader.Download(ctx, res.URL, rel)
		default:
			err = failure.Provider(b.opts.ImageProvider, errors.New("response carried no image"))
		}
		if err != nil {
			return err
		}

		mime := res.MimeType
		if mime == "" {
			mime = "image/png"
		}
		ref := &script_type.AssetRef{Path: rel, Kind: script_type.AssetImage, MimeType: mime, Size: size, CreatedAt: time.Now()}
		if err := o.attach(ctx, scene.ID, script_type.ComponentImage, ref); err != nil {
			return err
		}
		o.usage.RecordUsage(ctx, Usage{
			WorkspaceID: b.script.WorkspaceID,
			SceneID:     scene.ID,
			Provider:    b.opts.ImageProvider,
			Endpoint:    "image_generation",
			Cost:        res.Cost,
		})
		return nil
	}
}

func (o *Orchestrator) voiceWork(b *batch, scene *script_type.Scene) unitFunc {
	return func(ctx context.Context, taskID string) error {
		if strings.TrimSpace(scene.Narration) == "" {
			return &failure.Error{Kind: failure.KindMissingInput, Message: "scene has no narration"}
		}
		res, err := b.speech.Synthesize(ctx, provider_service.SpeechRequest{
			Text:  scene.Narration,
			Voice: b.opts.Voice,
			Model: b.opts.Model,
		})
		if err != nil {
			return err
		}
		if len(res.Audio) == 0 {
			return failure.Provider(b.opts.SpeechProvider, errors.New("response carried no audio"))
		}
		o.publish(ctx, b, scene, script_type.ComponentVoice, taskID, "processing", 60, "audio generated")

		ext := res.Extension
		if ext == "" {
			ext = "mp3"
		}
		rel := storage.AssetPath(script_type.AssetAudio, scene.ScriptID, scene.ID, ext)
		size, err := storage.Write(o.storage, rel, bytes.NewReader(res.Audio))
		if err != nil {
			return err
		}
		mime := res.MimeType
		if mime == "" {
			mime = "audio/mpeg"
		}
		ref := &script_type.AssetRef{Path: rel, Kind: script_type.AssetAudio, MimeType: mime, Size: size, CreatedAt: time.Now()}
		if err := o.attach(ctx, scene.ID, script_type.ComponentVoice, ref); err != nil {
			return err
		}
		o.usage.RecordUsage(ctx, Usage{
			WorkspaceID: b.script.WorkspaceID,
			SceneID:     scene.ID,
			Provider:    b.opts.SpeechProvider,
			Endpoint:    "text_to_speech",
			Characters:  res.CharacterCount,
			Cost:        res.Cost,
		})
		return nil
	}
}

// previewWork renders the scene preview from the assets currently stored
// on the scene.
func (o *Orchestrator) previewWork(b *batch, scene *script_type.Scene) unitFunc {
	return func(ctx context.Context, taskID string) error {
		current, err := o.repo.GetScene(ctx, scene.ID)
		if err != nil {
			return err
		}
		channel := o.channel(ctx, b.script.ChannelID)

		var last int
		ref, err := o.renderer.GeneratePreview(ctx, current, video.PreviewOptions{
			Quality:   b.opts.Quality,
			Format:    b.opts.Format,
			Watermark: b.opts.PreviewWatermark,
			Channel:   channel,
			Progress: func(percent float64) {
				p := int(percent)
				if p-last < 10 {
					return
				}
				last = p
				o.publish(ctx, b, scene, script_type.ComponentVideo, taskID, "processing", p, "")
			},
		})
		if err != nil {
			return err
		}
		if err := o.attach(ctx, scene.ID, script_type.ComponentVideo, ref); err != nil {
			return err
		}
		return nil
	}
}

// attach stores ref on the scene and releases the file it replaces. The
// new file is removed when the scene cannot be updated.
func (o *Orchestrator) attach(ctx context.Context, sceneID string, c script_type.Component, ref *script_type.AssetRef) error {
	sc, err := o.repo.GetScene(ctx, sceneID)
	if err == nil {
		err = o.repo.SetSceneAsset(ctx, sceneID, c, ref)
	}
	if err != nil {
		o.storage.Remove(ref.Path)
		return fmt.Errorf("failed to attach %s to scene %s: %w", c, sceneID, err)
	}

	prev := sc.Asset(c)
	if prev != nil && filepath.Clean(prev.Path) != filepath.Clean(ref.Path) {
		if err := storage.Release(o.storage, prev); err != nil {
			o.logger.Warn("Failed to release superseded asset",
				slog.String("path", prev.Path),
				slog.String("error", err.Error()))
		}
	}
	if c != script_type.ComponentVideo {
		o.invalidatePreview(ctx, sceneID)
	}
	return nil
}

// invalidatePreview drops a completed preview once one of the assets it was
// rendered from has been replaced, so the scene cannot be compiled from it.
func (o *Orchestrator) invalidatePreview(ctx context.Context, sceneID string) {
	dropped, err := o.tracker.Invalidate(ctx, sceneID, script_type.ComponentVideo)
	if err != nil {
		o.logger.Warn("Failed to invalidate preview", slog.String("scene_id", sceneID), slog.String("error", err.Error()))
		return
	}
	if !dropped {
		return
	}
	sc, err := o.repo.GetScene(ctx, sceneID)
	if err != nil || sc.Preview == nil {
		return
	}
	if err := o.repo.SetSceneAsset(ctx, sceneID, script_type.ComponentVideo, nil); err != nil {
		o.logger.Warn("Failed to detach stale preview", slog.String("scene_id", sceneID), slog.String("error", err.Error()))
		return
	}
	if err := storage.Release(o.storage, sc.Preview); err != nil {
		o.logger.Warn("Failed to release stale preview", slog.String("path", sc.Preview.Path), slog.String("error", err.Error()))
	}
}

// channel returns the script's channel, or nil when it has none or it
// cannot be loaded.
func (o *Orchestrator) channel(ctx context.Context, id string) *script_type.Channel {
	if id == "" {
		return nil
	}
	ch, err := o.repo.GetChannel(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			o.logger.Warn("Failed to load channel", slog.String("channel_id", id), slog.String("error", err.Error()))
		}
		return nil
	}
	return ch
}

func compileEvent(workspaceID, scriptID, state string, progress int, msg string) notify.Event {
	return notify.Event{
		WorkspaceID: workspaceID,
		TaskType:    notify.TaskCompile,
		Status:      state,
		Progress:    notify.ClampProgress(progress),
		Message:     msg,
		EntityID:    scriptID,
		Timestamp:   time.Now(),
	}
}
