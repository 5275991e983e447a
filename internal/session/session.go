package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/popup"
	"github.com/joeblew999/plat-wfs/internal/style"
)

// Snapshot is the observable state of a session.
type Snapshot struct {
	ID       string         `json:"id" doc:"Session ID"`
	Layer    string         `json:"layer" doc:"Layer ID"`
	Status   string         `json:"status" enum:"idle,loading,ready,failed" doc:"Layer load status"`
	State    string         `json:"state" enum:"idle,hovering,selected,hovering_selected" doc:"Interaction state"`
	Hovered  feature.ID     `json:"hovered,omitempty" doc:"Hovered feature ID"`
	Selected feature.ID     `json:"selected,omitempty" doc:"Selected feature ID"`
	Features int            `json:"features" doc:"Number of features in the layer"`
	Popup    *popup.Content `json:"popup,omitempty" doc:"Visible popup"`
	Cursor   string         `json:"cursor" doc:"Cursor to show over the map" example:"pointer"`
	View     *View          `json:"view,omitempty" doc:"Last requested view fit"`
	Extent   *[4]float64    `json:"extent,omitempty" doc:"Layer extent: minLon, minLat, maxLon, maxLat"`
	Error    string         `json:"error,omitempty" doc:"Last load error"`
}

// Frame is the result of one dispatched event.
type Frame struct {
	Snapshot Snapshot `json:"snapshot"`
	Changes  Changes  `json:"changes"`
}

// Session is one viewer's layer, drawn on a headless engine.
type Session struct {
	ID      string
	LayerID string
	Created time.Time

	engine     *Engine
	controller *layer.Controller
	save       func(ctx context.Context, src *feature.Collection)

	// mu serialises dispatches so each Frame holds only its own changes.
	mu      sync.Mutex
	loadErr error
}

// Load fetches the layer's features. The fetch runs without the session
// lock; the result is committed and drained under it, so the returned
// Changes hold the load's view fit and restyles.
func (s *Session) Load(ctx context.Context) (Frame, error) {
	p := s.controller.Fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.controller.Commit(ctx, p)
	switch {
	case err == nil:
		s.loadErr = nil
	case !errors.Is(err, layer.ErrSuperseded):
		s.loadErr = err
	}
	return Frame{Changes: s.engine.Drain(), Snapshot: s.snapshot()}, err
}

// Append adds features to the loaded source without reloading and saves
// the grown set. The view is not refitted.
func (s *Session) Append(ctx context.Context, fc *geojson.FeatureCollection) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.controller.AddFeatures(fc); err != nil {
		return Frame{}, err
	}
	if s.save != nil {
		s.save(ctx, s.controller.Source())
	}
	return Frame{Changes: s.engine.Drain(), Snapshot: s.snapshot()}, nil
}

// Dispatch delivers a map event and returns what it changed.
func (s *Session) Dispatch(ev layer.MapEvent) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := s.engine.Dispatch(ev)
	return Frame{Snapshot: s.snapshot(), Changes: changes}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	state, hovered, selected := s.controller.Interaction()
	snap := Snapshot{
		ID:     s.ID,
		Layer:  s.LayerID,
		Status: s.controller.Status().String(),
		State:  state.String(),
		Cursor: s.engine.Cursor(),
	}
	if hovered != nil {
		snap.Hovered = hovered.ID
	}
	if selected != nil {
		snap.Selected = selected.ID
	}
	if src := s.controller.Source(); src != nil {
		snap.Features = src.Len()
		if b, ok := src.Bound(); ok {
			ext := boundArray(b)
			snap.Extent = &ext
		}
	}
	if c, ok := s.engine.Popup(); ok {
		snap.Popup = &c
	}
	if v, ok := s.engine.View(); ok {
		snap.View = &v
	}
	if s.loadErr != nil {
		snap.Error = s.loadErr.Error()
	}
	return snap
}

// Styles returns the style every feature is currently drawn with.
func (s *Session) Styles() map[feature.ID]style.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.controller.Source()
	if src == nil {
		return map[feature.ID]style.Spec{}
	}
	name := s.controller.Config().Name
	styles := make(map[feature.ID]style.Spec, src.Len())
	for f := range src.All() {
		styles[f.ID] = s.engine.StyleOf(name, f)
	}
	return styles
}

// Source returns the loaded features, or nil before the first load.
func (s *Session) Source() *feature.Collection {
	return s.controller.Source()
}

// Close detaches the layer from the engine.
func (s *Session) Close() {
	s.controller.Close()
}
