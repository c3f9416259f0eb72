package video

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/serisow/craftvid/ffmpeg"
	"github.com/serisow/craftvid/script_type"
	"gopkg.in/yaml.v3"
)

// Preset is a named quality level.
type Preset struct {
	Name    string `yaml:"-" json:"name"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
	Bitrate string `yaml:"bitrate" json:"bitrate"`
	FPS     int    `yaml:"fps" json:"fps"`
}

// Shorts output is vertical full HD at the preset's bitrate and frame rate.
const (
	ShortsWidth  = 1080
	ShortsHeight = 1920
)

// Presets maps quality names to presets.
type Presets map[string]Preset

// DefaultPresets returns the built-in quality levels.
func DefaultPresets() Presets {
	return Presets{
		"low":    {Name: "low", Width: 640, Height: 360, Bitrate: "1000k", FPS: 24},
		"medium": {Name: "medium", Width: 1280, Height: 720, Bitrate: "2500k", FPS: 30},
		"high":   {Name: "high", Width: 1920, Height: 1080, Bitrate: "5000k", FPS: 30},
		"ultra":  {Name: "ultra", Width: 3840, Height: 2160, Bitrate: "15000k", FPS: 60},
	}
}

// LoadPresets returns the defaults overlaid with the presets defined in a
// YAML file keyed by quality name. An empty path yields the defaults.
func LoadPresets(path string) (Presets, error) {
	presets := DefaultPresets()
	if path == "" {
		return presets, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}
	var overrides map[string]Preset
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}
	for name, p := range overrides {
		name = strings.ToLower(name)
		base := presets[name]
		if p.Width > 0 {
			base.Width = p.Width
		}
		if p.Height > 0 {
			base.Height = p.Height
		}
		if p.Bitrate != "" {
			base.Bitrate = p.Bitrate
		}
		if p.FPS > 0 {
			base.FPS = p.FPS
		}
		if base.Width <= 0 || base.Height <= 0 || base.FPS <= 0 {
			return nil, fmt.Errorf("preset %q needs width, height and fps", name)
		}
		base.Name = name
		presets[name] = base
	}
	return presets, nil
}

// Lookup returns the named preset.
func (p Presets) Lookup(name string) (Preset, error) {
	preset, ok := p[strings.ToLower(name)]
	if !ok {
		return Preset{}, fmt.Errorf("unknown quality preset %q", name)
	}
	return preset, nil
}

// Names returns the preset names ordered by resolution.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := p[names[i]], p[names[j]]
		if a.Width*a.Height != b.Width*b.Height {
			return a.Width*a.Height < b.Width*b.Height
		}
		return names[i] < names[j]
	})
	return names
}

// Encoding returns the encoder settings of the preset for an output format.
func (p Preset) Encoding(format script_type.Format) ffmpeg.Encoding {
	width, height := p.Width, p.Height
	if format == script_type.FormatShorts {
		width, height = ShortsWidth, ShortsHeight
	}
	return ffmpeg.Encoding{
		Width:   width,
		Height:  height,
		FPS:     p.FPS,
		Bitrate: p.Bitrate,
	}
}
