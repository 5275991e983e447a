// Package session runs layer interaction server-side. A viewer forwards
// pointer events with their resolved map coordinate; the headless Engine
// hit-tests, records style writes, popup and view changes, and returns
// them as a Frame.
package session

import (
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/interaction"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/style"
)

// View is a requested view fit.
type View struct {
	Bound      [4]float64 `json:"bound" doc:"minLon, minLat, maxLon, maxLat"`
	DurationMS int64      `json:"durationMs" doc:"Animation duration in milliseconds"`
	MaxZoom    float64    `json:"maxZoom,omitempty" doc:"Maximum zoom, 0 for unbounded"`
}

func boundArray(b orb.Bound) [4]float64 {
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Changes is what one dispatch altered.
type Changes struct {
	Styles       map[feature.ID]style.Spec `json:"styles,omitempty" doc:"Styles written, by feature ID"`
	PopupChanged bool                      `json:"popupChanged" doc:"Whether the popup was shown or hidden"`
	Fits         []View                    `json:"fits,omitempty" doc:"View fits requested"`
}

type drawLayer struct {
	src *feature.Collection
	fn  style.Func
}

type subscription struct {
	kind interaction.Kind
	h    layer.Handler
}

// Engine is a headless layer.Engine and layer.PopupElement.
type Engine struct {
	mu       sync.Mutex
	layers   map[string]drawLayer
	explicit map[*feature.Feature]style.Spec
	subs     []*subscription
	cursor   string
	popup    *popup.Content
	view     *View

	pending Changes
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		layers:   map[string]drawLayer{},
		explicit: map[*feature.Feature]style.Spec{},
		cursor:   interaction.DefaultCursor,
	}
}

func (e *Engine) AddLayer(name string, src *feature.Collection, fn style.Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.layers[name]; ok && old.src != src {
		for f := range old.src.All() {
			delete(e.explicit, f)
		}
	}
	e.layers[name] = drawLayer{src: src, fn: fn}
}

func (e *Engine) RemoveLayer(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.layers[name]; ok {
		for f := range old.src.All() {
			delete(e.explicit, f)
		}
	}
	delete(e.layers, name)
}

// FeatureAt returns the topmost feature of the layer containing the event
// coordinate.
func (e *Engine) FeatureAt(name string, ev layer.MapEvent) *feature.Feature {
	if ev.Outside {
		return nil
	}
	e.mu.Lock()
	l, ok := e.layers[name]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	features := l.src.Features()
	for _, f := range slices.Backward(features) {
		if contains(f.Geometry, ev.Coordinate) {
			return f
		}
	}
	return nil
}

// hitTolerance is the slack, in map units, for point and line hits.
const hitTolerance = 1e-6

func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case nil:
		return false
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	case orb.Collection:
		for _, c := range g {
			if contains(c, p) {
				return true
			}
		}
		return false
	default:
		return g.Bound().Pad(hitTolerance).Contains(p)
	}
}

func (e *Engine) SetStyle(f *feature.Feature, s style.Spec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.explicit[f] = s
	if e.pending.Styles == nil {
		e.pending.Styles = map[feature.ID]style.Spec{}
	}
	e.pending.Styles[f.ID] = s
}

func (e *Engine) SetCursor(cursor string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = cursor
}

func (e *Engine) On(kind interaction.Kind, h layer.Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub := &subscription{kind: kind, h: h}
	e.subs = append(e.subs, sub)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subs = slices.DeleteFunc(e.subs, func(s *subscription) bool { return s == sub })
	}
}

func (e *Engine) Fit(b orb.Bound, opts layer.FitOptions) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{Bound: boundArray(b), DurationMS: opts.Duration.Milliseconds(), MaxZoom: opts.MaxZoom}
	e.view = &v
	e.pending.Fits = append(e.pending.Fits, v)
}

// Show implements layer.PopupElement.
func (e *Engine) Show(c popup.Content) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.popup = &c
	e.pending.PopupChanged = true
}

// Hide implements layer.PopupElement.
func (e *Engine) Hide() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.popup != nil {
		e.pending.PopupChanged = true
	}
	e.popup = nil
}

// Dispatch delivers ev to every subscriber of its kind, in subscription
// order, and returns what they changed. Callers serialise dispatches.
func (e *Engine) Dispatch(ev layer.MapEvent) Changes {
	e.mu.Lock()
	var handlers []layer.Handler
	for _, s := range e.subs {
		if s.kind == ev.Kind {
			handlers = append(handlers, s.h)
		}
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return e.Drain()
}

// Drain returns and clears the changes recorded since the last drain.
func (e *Engine) Drain() Changes {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.pending
	e.pending = Changes{}
	return c
}

// StyleOf returns the style the feature is drawn with: its explicit style,
// or the layer style function's base style.
func (e *Engine) StyleOf(name string, f *feature.Feature) style.Spec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.explicit[f]; ok {
		return s
	}
	if l, ok := e.layers[name]; ok && l.fn != nil {
		return l.fn(f, false, false)
	}
	return style.Spec{}
}

// Popup returns the visible popup.
func (e *Engine) Popup() (popup.Content, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.popup == nil {
		return popup.Content{}, false
	}
	return *e.popup, true
}

// Cursor returns the current cursor.
func (e *Engine) Cursor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// View returns the last requested view fit.
func (e *Engine) View() (View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.view == nil {
		return View{}, false
	}
	return *e.view, true
}

var (
	_ layer.Engine       = (*Engine)(nil)
	_ layer.PopupElement = (*Engine)(nil)
)

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Styles) == 0 && !c.PopupChanged && len(c.Fits) == 0
}
