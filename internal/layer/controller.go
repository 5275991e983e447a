package layer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-wfs/internal/feature"
	"github.com/joeblew999/plat-wfs/internal/interaction"
	"github.com/joeblew999/plat-wfs/internal/style"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

// ErrNotLoaded is returned when features are added before the first
// successful load.
var ErrNotLoaded = errors.New("layer not loaded")

// ErrSuperseded is returned by a Load whose response was discarded because
// a later Load started, or the controller was closed.
var ErrSuperseded = errors.New("layer load superseded")

// Status is the load status of a layer.
type Status int

const (
	Idle Status = iota
	Loading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Engine  Engine
	Popup   PopupElement
	Fetcher Fetcher
	Log     *zap.Logger

	// OnReady is called after each successful load with the context the
	// load was committed with.
	OnReady func(ctx context.Context, src *feature.Collection)
	// OnError is called once per failed load, never for superseded ones.
	OnError func(err error)
}

// Controller loads a layer, draws it and routes map events to its
// interaction machine. Its methods are safe for concurrent use; map events
// are handled one at a time.
type Controller struct {
	cfg      Config
	req      wfs.Request
	deps     Deps
	log      *zap.Logger
	resolver style.Resolver

	mu      sync.Mutex
	gen     uint64
	status  Status
	source  *feature.Collection
	machine *interaction.Machine
	offs    []func()
}

// New creates an idle controller. Nothing is drawn until Load succeeds.
func New(cfg Config, req wfs.Request, deps Deps) *Controller {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cfg:      cfg,
		req:      req,
		deps:     deps,
		log:      log.With(zap.String("layer", cfg.Name)),
		resolver: style.NewResolver(cfg.Palette),
	}
}

// Config returns the layer configuration.
func (c *Controller) Config() Config { return c.cfg }

// Resolver returns the style resolver the layer draws with.
func (c *Controller) Resolver() style.Resolver { return c.resolver }

// Load fetches the feature set and makes it the layer's source. Only the
// most recently started load is applied; earlier ones return
// ErrSuperseded. A fetch failure is passed to OnError and returned.
func (c *Controller) Load(ctx context.Context) error {
	return c.Commit(ctx, c.Fetch(ctx))
}

// Pending is a fetched load that has not been committed yet.
type Pending struct {
	gen uint64
	fc  *geojson.FeatureCollection
	err error
}

// Fetch starts a load and waits for its features. The layer keeps
// answering events on its previous source until the result is committed.
func (c *Controller) Fetch(ctx context.Context) Pending {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.status = Loading
	c.mu.Unlock()

	fc, err := c.deps.Fetcher.Fetch(ctx, c.req)
	return Pending{gen: gen, fc: fc, err: err}
}

// Commit applies a fetched load unless a later load started since. A
// failed load resets the interaction on the previous source, which keeps
// handling events.
func (c *Controller) Commit(ctx context.Context, p Pending) error {
	c.mu.Lock()
	if p.gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("discarding superseded load", zap.Uint64("generation", p.gen))
		return ErrSuperseded
	}
	if p.err != nil {
		c.status = Failed
		if c.machine != nil {
			c.machine.Reset()
		}
		c.mu.Unlock()
		c.log.Warn("layer load failed", zap.Error(p.err))
		if c.deps.OnError != nil {
			c.deps.OnError(p.err)
		}
		return p.err
	}
	src := feature.FromGeoJSON(p.fc)
	c.apply(src)
	c.mu.Unlock()

	c.log.Info("layer ready", zap.Int("features", src.Len()))
	if c.deps.OnReady != nil {
		c.deps.OnReady(ctx, src)
	}
	return nil
}

// apply installs src and transitions into Ready, fitting the view to its
// extent once. Called with mu held.
func (c *Controller) apply(src *feature.Collection) {
	c.source = src
	c.deps.Engine.AddLayer(c.cfg.Name, src, c.resolver.Func())

	if c.machine == nil {
		c.machine = interaction.New(interaction.Config{
			Resolver:      c.resolver,
			Popup:         c.cfg.Popup,
			Cursor:        c.cfg.Cursor,
			SelectOnClick: c.cfg.SelectOnClick,
		}, src, surface{engine: c.deps.Engine, popup: c.deps.Popup}, c.log)
		c.attach()
	} else {
		c.machine.Rebind(src)
	}

	c.status = Ready
	if c.cfg.ZoomToLayer {
		if b, ok := src.Bound(); ok {
			c.deps.Engine.Fit(b, FitOptions{Duration: c.cfg.ZoomDuration, MaxZoom: c.cfg.MaxZoom})
		}
	}
}

// attach subscribes the machine and, when enabled, zoom-to-feature.
// Both click listeners are independent.
func (c *Controller) attach() {
	e := c.deps.Engine
	c.offs = append(c.offs,
		e.On(interaction.PointerMove, c.handle),
		e.On(interaction.Click, c.handle),
	)
	if c.cfg.ZoomToFeature {
		c.offs = append(c.offs, e.On(interaction.Click, c.zoomToFeature))
	}
}

func (c *Controller) handle(ev MapEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return
	}
	c.machine.HandleEvent(interaction.Event{
		Kind:       ev.Kind,
		Feature:    c.deps.Engine.FeatureAt(c.cfg.Name, ev),
		Pixel:      ev.Pixel,
		Coordinate: ev.Coordinate,
	})
}

func (c *Controller) zoomToFeature(ev MapEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return
	}
	f := c.deps.Engine.FeatureAt(c.cfg.Name, ev)
	if f == nil || !c.source.Contains(f) || f.Geometry == nil {
		return
	}
	c.deps.Engine.Fit(f.Bound(), FitOptions{Duration: c.cfg.ZoomDuration})
}

// AddFeatures appends features to the current source without a new load.
// The view is not refitted.
func (c *Controller) AddFeatures(fc *geojson.FeatureCollection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return fmt.Errorf("layer %q: %w", c.cfg.Name, ErrNotLoaded)
	}
	for f := range feature.FromGeoJSON(fc).All() {
		c.source.Add(f)
	}
	c.deps.Engine.AddLayer(c.cfg.Name, c.source, c.resolver.Func())
	return nil
}

// Status returns the load status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Source returns the current feature source, or nil before the first
// successful load.
func (c *Controller) Source() *feature.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Interaction reports the interaction state and the hovered and selected
// features.
func (c *Controller) Interaction() (state interaction.State, hovered, selected *feature.Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return interaction.Idle, nil, nil
	}
	return c.machine.State(), c.machine.Hovered(), c.machine.Selected()
}

// Close unsubscribes from the engine and removes the layer. In-flight
// loads are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, off := range c.offs {
		off()
	}
	c.offs = nil
	c.machine = nil
	c.source = nil
	c.status = Idle
	c.deps.Engine.RemoveLayer(c.cfg.Name)
}
