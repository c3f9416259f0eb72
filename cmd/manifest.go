package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/video"
	"gopkg.in/yaml.v3"
)

// Manifest describes an offline render: existing scene media plus the
// compile settings. Relative paths resolve against the manifest directory.
type Manifest struct {
	ID              string                       `yaml:"id"`
	Title           string                       `yaml:"title"`
	Quality         string                       `yaml:"quality"`
	Format          script_type.Format           `yaml:"format"`
	BackgroundAudio string                       `yaml:"background_audio"`
	Watermark       *script_type.WatermarkConfig `yaml:"watermark"`
	Intro           string                       `yaml:"intro"`
	Outro           string                       `yaml:"outro"`
	Scenes          []ManifestScene              `yaml:"scenes"`

	dir string
}

type ManifestScene struct {
	Image        string                 `yaml:"image"`
	Audio        string                 `yaml:"audio"`
	Caption      string                 `yaml:"caption"`
	Effect       string                 `yaml:"effect"`
	EffectParams map[string]interface{} `yaml:"effect_params"`
	Duration     float64                `yaml:"duration"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m.dir = dir
	if m.ID == "" {
		m.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &m, nil
}

// Dir is the directory media paths are resolved against.
func (m *Manifest) Dir() string { return m.dir }

// Script converts the manifest into a script whose asset refs are relative
// to Dir. Scene media must live below Dir.
func (m *Manifest) Script() (*script_type.Script, error) {
	if len(m.Scenes) == 0 {
		return nil, fmt.Errorf("manifest has no scenes")
	}
	script := &script_type.Script{ID: m.ID, Title: m.Title}
	for i, ms := range m.Scenes {
		if ms.Image == "" || ms.Audio == "" {
			return nil, fmt.Errorf("scene %d: image and audio are required", i+1)
		}
		img, err := m.relative(ms.Image)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i+1, err)
		}
		audio, err := m.relative(ms.Audio)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i+1, err)
		}
		script.Scenes = append(script.Scenes, script_type.Scene{
			ID:           fmt.Sprintf("%s-%d", m.ID, i+1),
			ScriptID:     m.ID,
			Ordinal:      i + 1,
			Caption:      ms.Caption,
			Duration:     ms.Duration,
			Effect:       ms.Effect,
			EffectParams: ms.EffectParams,
			Image:        &script_type.AssetRef{Path: img, Kind: script_type.AssetImage},
			Voice:        &script_type.AssetRef{Path: audio, Kind: script_type.AssetAudio},
		})
	}
	return script, nil
}

// CompileOptions maps the manifest settings onto a compile. Intro, outro,
// background audio and watermark paths become absolute.
func (m *Manifest) CompileOptions() video.CompileOptions {
	opts := video.CompileOptions{
		Quality: m.Quality,
		Format:  m.Format,
		Intro:   m.absolute(m.Intro),
		Outro:   m.absolute(m.Outro),
	}
	if strings.EqualFold(m.BackgroundAudio, video.BackgroundNone) {
		opts.BackgroundAudio = video.BackgroundNone
	} else {
		opts.BackgroundAudio = m.absolute(m.BackgroundAudio)
	}
	if m.Watermark != nil {
		wm := *m.Watermark
		wm.Path = m.absolute(wm.Path)
		wm.Enabled = wm.Path != ""
		opts.Watermark = &wm
	}
	return opts
}

func (m *Manifest) absolute(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

func (m *Manifest) relative(p string) (string, error) {
	rel, err := filepath.Rel(m.dir, m.absolute(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", p, m.dir)
	}
	return rel, nil
}
