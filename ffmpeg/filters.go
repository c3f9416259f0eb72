package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Fit scales into width x height preserving aspect ratio and letterboxes
// the remainder with color.
func (fb *FilterBuilder) Fit(width, height int, color string) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s", width, height, orDefault(color, "black")),
	)
	return fb
}

// Fill scales to cover width x height and centre-crops the overflow.
func (fb *FilterBuilder) Fill(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", width, height),
		fmt.Sprintf("crop=%d:%d", width, height),
	)
	return fb
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps int) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%d", fps))
	return fb
}

// SetSAR normalises the sample aspect ratio so concat accepts the stream.
func (fb *FilterBuilder) SetSAR() *FilterBuilder {
	fb.filters = append(fb.filters, "setsar=1")
	return fb
}

// Format forces a pixel or sample format.
func (fb *FilterBuilder) Format(format string) *FilterBuilder {
	fb.filters = append(fb.filters, "format="+format)
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	return strings.Join(fb.filters, ",")
}

// Graph assembles a -filter_complex argument from labelled chains.
type Graph struct {
	chains []string
}

func NewGraph() *Graph {
	return &Graph{}
}

// Chain adds "[in0][in1]filters[out0]" to the graph.
func (g *Graph) Chain(inputs []string, filters string, outputs ...string) *Graph {
	var b strings.Builder
	for _, in := range inputs {
		b.WriteString("[" + in + "]")
	}
	b.WriteString(filters)
	for _, out := range outputs {
		b.WriteString("[" + out + "]")
	}
	g.chains = append(g.chains, b.String())
	return g
}

func (g *Graph) Build() string {
	return strings.Join(g.chains, ";")
}

func (g *Graph) Len() int {
	return len(g.chains)
}
