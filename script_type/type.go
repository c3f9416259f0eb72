package script_type

import (
	"sort"
	"time"
)

// Component is one independently generated part of a scene.
type Component string

const (
	ComponentImage Component = "image"
	ComponentVoice Component = "voice"
	ComponentVideo Component = "video"
)

// Components lists every component a scene carries, in dispatch order.
var Components = []Component{ComponentImage, ComponentVoice, ComponentVideo}

// Format selects the output geometry.
type Format string

const (
	FormatLandscape Format = "landscape"
	FormatShorts    Format = "shorts"
)

type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetAudio AssetKind = "audio"
	AssetVideo AssetKind = "video"
)

// AssetRef points at a generated media file. Refs are immutable: a
// regenerated asset gets a new ref and the previous file is released.
type AssetRef struct {
	Path      string    `json:"path"`
	Kind      AssetKind `json:"kind"`
	MimeType  string    `json:"mime_type,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Script struct {
	ID            string         `json:"id"`
	WorkspaceID   string         `json:"workspace_id"`
	Title         string         `json:"title"`
	ChannelID     string         `json:"channel_id,omitempty"`
	Scenes        []Scene        `json:"scenes"`
	CompiledVideo *CompiledVideo `json:"compiled_video,omitempty"`
}

// SortScenes orders scenes by ascending ordinal. Gaps are allowed.
func (s *Script) SortScenes() {
	sort.SliceStable(s.Scenes, func(i, j int) bool {
		return s.Scenes[i].Ordinal < s.Scenes[j].Ordinal
	})
}

// SceneIDs returns the scene ids in ordinal order.
func (s *Script) SceneIDs() []string {
	ids := make([]string, 0, len(s.Scenes))
	for _, sc := range s.Scenes {
		ids = append(ids, sc.ID)
	}
	return ids
}

type Scene struct {
	ID           string                 `json:"id"`
	ScriptID     string                 `json:"script_id"`
	Ordinal      int                    `json:"ordinal"`
	Narration    string                 `json:"narration"`
	VisualPrompt string                 `json:"visual_prompt"`
	Caption      string                 `json:"caption,omitempty"`
	Duration     float64                `json:"duration,omitempty"`
	Effect       string                 `json:"effect,omitempty"`
	EffectParams map[string]interface{} `json:"effect_params,omitempty"`
	Image        *AssetRef              `json:"image,omitempty"`
	Voice        *AssetRef              `json:"voice,omitempty"`
	Preview      *AssetRef              `json:"preview,omitempty"`
}

// Asset returns the scene's asset for a component.
func (s *Scene) Asset(c Component) *AssetRef {
	switch c {
	case ComponentImage:
		return s.Image
	case ComponentVoice:
		return s.Voice
	case ComponentVideo:
		return s.Preview
	}
	return nil
}

// SetAsset attaches ref to the component and returns the ref it replaced.
func (s *Scene) SetAsset(c Component, ref *AssetRef) *AssetRef {
	var prev *AssetRef
	switch c {
	case ComponentImage:
		prev, s.Image = s.Image, ref
	case ComponentVoice:
		prev, s.Voice = s.Voice, ref
	case ComponentVideo:
		prev, s.Preview = s.Preview, ref
	}
	return prev
}

type WatermarkConfig struct {
	Path     string `json:"path,omitempty" yaml:"path"`
	Position string `json:"position,omitempty" yaml:"position"`
	// Opacity is in [0, 1]; nil selects the default.
	Opacity   *float64 `json:"opacity,omitempty" yaml:"opacity"`
	SizeRatio float64  `json:"size_ratio,omitempty" yaml:"size_ratio"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
}

// CompiledVideo is the final render of a script. It only exists once an
// assembly has succeeded.
type CompiledVideo struct {
	ID              string          `json:"id"`
	ScriptID        string          `json:"script_id"`
	Path            string          `json:"path"`
	Quality         string          `json:"quality"`
	Format          Format          `json:"format"`
	Watermark       WatermarkConfig `json:"watermark"`
	BackgroundAudio string          `json:"background_audio,omitempty"`
	SceneCount      int             `json:"scene_count"`
	Duration        float64         `json:"duration"`
	Size            int64           `json:"size"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// VoiceProfile identifies the narration voice passed to the speech provider.
type VoiceProfile struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// ModelProfile identifies the speech model.
type ModelProfile struct {
	ID string `json:"id" yaml:"id"`
}

// Channel holds the branding used for fallback watermarks.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LogoPath string `json:"logo_path,omitempty"`
}
