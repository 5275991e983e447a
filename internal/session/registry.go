package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/layer"
	"github.com/joeblew999/plat-wfs/internal/service"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Sink receives every successfully loaded feature set.
type Sink interface {
	SaveFeatures(ctx context.Context, layerID string, src *feature.Collection) error
}

// Registry creates and tracks viewer sessions.
type Registry struct {
	wfs     layer.Fetcher
	sources *service.SourceService
	sink    Sink
	bus     *service.EventBus
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Registry.
type Option func(*Registry)

// WithSources enables layers backed by local GeoJSON sources.
func WithSources(s *service.SourceService) Option {
	return func(r *Registry) { r.sources = s }
}

// WithSink stores every loaded feature set.
func WithSink(s Sink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithBus publishes session changes.
func WithBus(b *service.EventBus) Option {
	return func(r *Registry) { r.bus = b }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// NewRegistry creates a registry fetching WFS layers with wfs.
func NewRegistry(wfs layer.Fetcher, opts ...Option) *Registry {
	r := &Registry{
		wfs:      wfs,
		log:      zap.NewNop(),
		sessions: map[string]*Session{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create builds a session for the layer definition and loads it. A session
// whose first load fails is discarded and the load error returned.
func (r *Registry) Create(ctx context.Context, def service.LayerConfig) (*Session, Frame, error) {
	cfg, err := def.LayerOptions().Normalize()
	if err != nil {
		return nil, Frame{}, err
	}
	fetcher, err := r.fetcher(def)
	if err != nil {
		return nil, Frame{}, err
	}

	id := uuid.NewString()
	log := r.log.With(zap.String("session", id), zap.String("layer_id", def.ID))
	engine := NewEngine()
	s := &Session{
		ID:      id,
		LayerID: def.ID,
		Created: time.Now(),
		engine:  engine,
		save: func(ctx context.Context, src *feature.Collection) {
			r.save(ctx, def.ID, src)
		},
	}
	s.controller = layer.New(cfg, def.Request(), layer.Deps{
		Engine:  engine,
		Popup:   engine,
		Fetcher: fetcher,
		Log:     log,
		OnReady: s.save,
		OnError: func(err error) {
			r.publish("failed", id, err.Error())
		},
	})

	frame, err := s.Load(ctx)
	if err != nil {
		s.Close()
		return nil, Frame{}, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	log.Info("session created", zap.Int("features", frame.Snapshot.Features))
	r.publish("created", id, frame.Snapshot)
	return s, frame, nil
}

func (r *Registry) fetcher(def service.LayerConfig) (layer.Fetcher, error) {
	if def.Source == "" {
		if r.wfs == nil {
			return nil, fmt.Errorf("layer %q: no WFS client configured", def.ID)
		}
		return r.wfs, nil
	}
	if r.sources == nil {
		return nil, fmt.Errorf("layer %q: local sources are not enabled", def.ID)
	}
	return r.sources.Fetcher(def.Source), nil
}

func (r *Registry) save(ctx context.Context, layerID string, src *feature.Collection) {
	if r.sink == nil || src == nil {
		return
	}
	if err := r.sink.SaveFeatures(ctx, layerID, src); err != nil {
		r.log.Warn("caching features failed", zap.String("layer_id", layerID), zap.Error(err))
	}
}

// Get returns a session by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns snapshots of every session, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	sessions := slices.Collect(maps.Values(r.sessions))
	r.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return a.Created.Compare(b.Created)
	})
	snaps := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// Dispatch delivers a map event to a session and publishes its changes.
func (r *Registry) Dispatch(id string, ev layer.MapEvent) (Frame, error) {
	s, err := r.Get(id)
	if err != nil {
		return Frame{}, err
	}
	frame := s.Dispatch(ev)
	if !frame.Changes.Empty() {
		r.publish("changed", id, frame)
	}
	return frame, nil
}

// Reload refetches a session's features. A reload superseded by a later
// one returns layer.ErrSuperseded.
func (r *Registry) Reload(ctx context.Context, id string) (Frame, error) {
	s, err := r.Get(id)
	if err != nil {
		return Frame{}, err
	}
	frame, err := s.Load(ctx)
	if err != nil {
		return frame, err
	}
	r.publish("reloaded", id, frame)
	return frame, nil
}

// Append adds features to a session's loaded source.
func (r *Registry) Append(ctx context.Context, id string, fc *geojson.FeatureCollection) (Frame, error) {
	s, err := r.Get(id)
	if err != nil {
		return Frame{}, err
	}
	frame, err := s.Append(ctx, fc)
	if err != nil {
		return Frame{}, err
	}
	r.publish("changed", id, frame)
	return frame, nil
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Close()
	r.log.Info("session deleted", zap.String("session", id))
	r.publish("deleted", id, nil)
	return nil
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) publish(action, id string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(service.Event{Resource: "sessions", Action: action, ID: id, Data: data})
}
