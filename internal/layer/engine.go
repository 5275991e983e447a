package layer

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/interaction"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/style"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

// MapEvent is a raw pointer event from the rendering engine.
type MapEvent struct {
	Kind       interaction.Kind
	Pixel      popup.Point
	Coordinate orb.Point
	// Outside is set when the pointer left the map; nothing is hit.
	Outside bool
}

// Handler receives map events.
type Handler func(MapEvent)

// FitOptions controls a view fit.
type FitOptions struct {
	Duration time.Duration
	MaxZoom  float64 // 0 means unbounded
}

// Engine is the rendering engine a layer draws on. Events are delivered
// serially.
type Engine interface {
	// AddLayer adds or replaces a named layer drawn with fn unless a
	// feature has an explicit style.
	AddLayer(name string, src *feature.Collection, fn style.Func)
	RemoveLayer(name string)
	// FeatureAt hit-tests the layer at the event position.
	FeatureAt(layer string, ev MapEvent) *feature.Feature
	SetStyle(f *feature.Feature, s style.Spec)
	SetCursor(cursor string)
	// On subscribes h to events of kind and returns the unsubscribe func.
	On(kind interaction.Kind, h Handler) (off func())
	Fit(b orb.Bound, opts FitOptions)
}

// PopupElement is the single popup the layer writes to.
type PopupElement interface {
	Show(c popup.Content)
	Hide()
}

// Fetcher loads the feature collection for a request.
type Fetcher interface {
	Fetch(ctx context.Context, req wfs.Request) (*geojson.FeatureCollection, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req wfs.Request) (*geojson.FeatureCollection, error)

func (f FetcherFunc) Fetch(ctx context.Context, req wfs.Request) (*geojson.FeatureCollection, error) {
	return f(ctx, req)
}

// surface routes interaction output to the engine and popup element.
type surface struct {
	engine Engine
	popup  PopupElement
}

func (s surface) SetStyle(f *feature.Feature, spec style.Spec) {
	s.engine.SetStyle(f, spec)
}

func (s surface) SetCursor(cursor string) {
	s.engine.SetCursor(cursor)
}

func (s surface) ShowPopup(c popup.Content) {
	if s.popup != nil {
		s.popup.Show(c)
	}
}

func (s surface) HidePopup() {
	if s.popup != nil {
		s.popup.Hide()
	}
}
