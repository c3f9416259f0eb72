package video

import (
	"fmt"
	"math"
	"strings"

	"github.com/serisow/craftvid/ffmpeg"
)

// DefaultBackgroundVolume is the attenuation applied to background music.
const DefaultBackgroundVolume = 0.1

// Segment is a slice of the background track, in seconds from its start.
type Segment struct {
	Start    float64
	Duration float64
}

// BackgroundPlan lays the background track end to end until it covers
// total seconds. The last repetition is trimmed so the segments sum to
// total exactly. A track longer than total yields a single trimmed segment.
func BackgroundPlan(trackDuration, total float64) []Segment {
	if trackDuration <= 0 || total <= 0 {
		return nil
	}
	var plan []Segment
	remaining := total
	for remaining > 1e-9 {
		d := math.Min(trackDuration, remaining)
		plan = append(plan, Segment{Start: 0, Duration: d})
		remaining -= d
	}
	return plan
}

// backgroundFilter builds the chain that turns input label in into the
// attenuated background stream out.
func backgroundFilter(g *ffmpeg.Graph, in, out string, plan []Segment, volume float64) {
	if volume <= 0 {
		volume = DefaultBackgroundVolume
	}
	format := "aformat=sample_rates=44100:channel_layouts=stereo"

	if len(plan) == 1 {
		g.Chain([]string{in}, fmt.Sprintf("atrim=start=%s:duration=%s,asetpts=PTS-STARTPTS,%s,volume=%s",
			secs(plan[0].Start), secs(plan[0].Duration), format, trimFloat(volume)), out)
		return
	}

	split := make([]string, len(plan))
	for i := range plan {
		split[i] = fmt.Sprintf("bgs%d", i)
	}
	g.Chain([]string{in}, fmt.Sprintf("asplit=%d", len(plan)), split...)

	parts := make([]string, len(plan))
	for i, seg := range plan {
		parts[i] = fmt.Sprintf("bgp%d", i)
		g.Chain([]string{split[i]}, fmt.Sprintf("atrim=start=%s:duration=%s,asetpts=PTS-STARTPTS,%s",
			secs(seg.Start), secs(seg.Duration), format), parts[i])
	}
	g.Chain(parts, fmt.Sprintf("concat=n=%d:v=0:a=1,volume=%s", len(plan), trimFloat(volume)), out)
}

func secs(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

func trimFloat(f float64) string {
	s := strings.TrimRight(fmt.Sprintf("%.4f", f), "0")
	return strings.TrimSuffix(s, ".")
}
