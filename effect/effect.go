package effect

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/serisow/craftvid/failure"
)

// Visual is anything that can produce frames over a bounded time span.
// Frames returned by Frame must be treated as read-only by callers.
type Visual interface {
	Duration() float64
	Size() (width, height int)
	Frame(t float64) (*image.RGBA, error)
}

// Border controls how pixels outside the source are filled after a
// geometric transform.
type Border int

const (
	BorderBlack Border = iota
	BorderClamp
	BorderWrap
)

// PixelFunc transforms a frame into a new frame. It must not modify src.
type PixelFunc func(src *image.RGBA) *image.RGBA

// Op describes the transform to apply for a single output frame.
type Op struct {
	// SourceTime is the time sampled from the base visual.
	SourceTime float64
	// Scale zooms around the frame centre; 1 leaves geometry untouched.
	Scale float64
	// OffsetX and OffsetY translate the content in output pixels.
	OffsetX, OffsetY float64
	// ShiftX and ShiftY translate the content by a fraction of the frame
	// size, on top of the pixel offset.
	ShiftX, ShiftY float64
	// Rotate is a clockwise rotation in degrees.
	Rotate       float64
	FlipH, FlipV bool
	Border       Border
	Pixel        PixelFunc
	// Opacity fades towards black, 1 is fully visible.
	Opacity float64
	// Flash blends towards white, 0 is none.
	Flash float64
}

// Identity returns the op that leaves the frame at time t untouched.
func Identity(t float64) Op {
	return Op{SourceTime: t, Scale: 1, Opacity: 1}
}

// Effect is a stateless, time-parametrized transform.
type Effect interface {
	Name() string
	Description() string
	// Duration maps the source duration to the output duration.
	Duration(src float64, p Params) (float64, error)
	// At returns the op for output time t of an output of the given duration.
	At(t, duration float64, p Params) (Op, error)
}

// Engine resolves effect names and applies them to visuals.
type Engine struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	effects map[string]Effect
}

// NewEngine returns an engine with every built-in effect registered.
func NewEngine(logger *slog.Logger) *Engine {
	e := &Engine{
		logger:  logger,
		effects: make(map[string]Effect),
	}
	for _, b := range builtins() {
		e.Register(b)
	}
	return e
}

func (e *Engine) Register(effect Effect) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.effects[effect.Name()] = effect
}

func (e *Engine) Lookup(name string) (Effect, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	eff, ok := e.effects[normalizeName(name)]
	return eff, ok
}

// Names returns every registered effect name, sorted.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.effects))
	for n := range e.effects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// Apply returns visual with the named effect layered on top. Unknown
// effects, malformed params and failing transforms all degrade to the
// untouched input: an effect never aborts compositing.
func (e *Engine) Apply(name string, visual Visual, duration float64, params Params) Visual {
	n := normalizeName(name)
	if n == "" || n == "none" {
		return visual
	}
	eff, ok := e.Lookup(n)
	if !ok {
		e.logger.Warn("Unknown effect, rendering without it", slog.String("effect", name))
		return visual
	}
	if duration <= 0 {
		duration = visual.Duration()
	}
	if params == nil {
		params = Params{}
	}

	out, err := safeDuration(eff, duration, params)
	if err == nil {
		_, err = safeAt(eff, 0, out, params)
	}
	if err != nil {
		e.logger.Warn("Effect could not be applied, rendering without it",
			slog.String("effect", n),
			slog.String("error", failure.Effect(n, err).Error()))
		return visual
	}

	return &applied{
		base:     visual,
		effect:   eff,
		params:   params,
		duration: out,
		source:   duration,
		logger:   e.logger,
	}
}

type applied struct {
	base     Visual
	effect   Effect
	params   Params
	duration float64
	source   float64
	logger   *slog.Logger
	warnOnce sync.Once
}

func (a *applied) Duration() float64 { return a.duration }

func (a *applied) Size() (int, int) { return a.base.Size() }

// Unwrap exposes the underlying visual so owners can release it.
func (a *applied) Unwrap() Visual { return a.base }

func (a *applied) Frame(t float64) (*image.RGBA, error) {
	op, err := safeAt(a.effect, t, a.duration, a.params)
	if err != nil {
		a.warn(err)
		return a.base.Frame(clampTime(t, a.source))
	}

	src, err := a.base.Frame(clampTime(op.SourceTime, a.source))
	if err != nil {
		return nil, err
	}

	out, err := safeRender(src, op)
	if err != nil {
		a.warn(err)
		return src, nil
	}
	return out, nil
}

func (a *applied) warn(err error) {
	a.warnOnce.Do(func() {
		a.logger.Warn("Effect failed while rendering, frames pass through",
			slog.String("effect", a.effect.Name()),
			slog.String("error", failure.Effect(a.effect.Name(), err).Error()))
	})
}

func clampTime(t, duration float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if duration > 0 && t > duration {
		return duration
	}
	return t
}

func safeDuration(eff Effect, src float64, p Params) (d float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic computing duration: %v", r)
		}
	}()
	d, err = eff.Duration(src, p)
	if err == nil && (d <= 0 || math.IsNaN(d) || math.IsInf(d, 0)) {
		err = fmt.Errorf("invalid output duration %v", d)
	}
	return d, err
}

func safeAt(eff Effect, t, duration float64, p Params) (op Op, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic computing transform at %.3fs: %v", t, r)
		}
	}()
	return eff.At(t, duration, p)
}

func safeRender(src *image.RGBA, op Op) (out *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic rendering frame: %v", r)
		}
	}()
	return render(src, op), nil
}
